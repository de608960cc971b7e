// Package metadata recovers document-type, week, subject and grade signals
// from submitted files. Digital documents are read directly; scanned images
// go through optical recognition with a bilingual second pass.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"

	"github.com/turoarchive/turoarchive/internal/config"
	"github.com/turoarchive/turoarchive/internal/models"
)

const ocrSystemPrompt = "You are an OCR engine for scanned school documents. " +
	"Transcribe every piece of text you can read, preserving line breaks. " +
	"Respond with a single JSON object."

const ocrUserPrompt = `Transcribe all text in this scanned document image.

Return a JSON object with exactly two keys:
  - "text": the full transcription, one line per visible line.
  - "confidence": your overall recognition confidence as an integer 0-100.

Do not include any other keys or commentary.`

const ocrFilipinoHint = `The document is written in Filipino. Pay particular
attention to Filipino orthography (ng, mga, diacritics) when transcribing.`

// Extractor recognizes text in submitted files. The zero client (nil) is
// valid and degrades every image extraction to an empty, zero-confidence
// result, which keeps the pipeline usable offline.
type Extractor struct {
	defaultModel  *genai.GenerativeModel
	filipinoModel *genai.GenerativeModel
	baseClient    *genai.Client
	logger        *slog.Logger
}

// NewExtractor creates an Extractor holding the default and Filipino-tuned
// recognition models.
func NewExtractor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Extractor, error) {
	if cfg.ProjectID == "" || cfg.VertexAIRegion == "" {
		return nil, fmt.Errorf("NewExtractor: projectID and region cannot be empty")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	baseClient, err := genai.NewClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	defaultModel := baseClient.GenerativeModel("gemini-1.5-flash")
	defaultModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ocrSystemPrompt)},
	}
	defaultModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	filipinoModel := baseClient.GenerativeModel("gemini-1.5-flash")
	filipinoModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ocrSystemPrompt + " " + ocrFilipinoHint)},
	}
	filipinoModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &Extractor{
		defaultModel:  defaultModel,
		filipinoModel: filipinoModel,
		baseClient:    baseClient,
		logger:        logger,
	}, nil
}

func (e *Extractor) Close() error {
	if e.baseClient != nil {
		return e.baseClient.Close()
	}
	return nil
}

// Extract recovers metadata from file. It never fails the pipeline: inputs
// it cannot read yield an Unknown record with confidence 0.
func (e *Extractor) Extract(ctx context.Context, file *models.SourceFile) *models.DocMetadata {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(file.Name), "."))
	switch ext {
	case "pdf":
		text, err := extractPDFText(file.Data)
		if err != nil || strings.TrimSpace(text) == "" {
			e.logger.Warn("No digital text in PDF, returning empty metadata.", "file", file.Name, "error", err)
			return unknownMetadata()
		}
		return FromText(text, 100)
	case "png", "jpg", "jpeg", "webp":
		return e.extractFromImage(ctx, file, ext)
	default:
		return unknownMetadata()
	}
}

type ocrResult struct {
	Text       string `json:"text"`
	Confidence int    `json:"confidence"`
}

func (e *Extractor) extractFromImage(ctx context.Context, file *models.SourceFile, ext string) *models.DocMetadata {
	if e.baseClient == nil {
		return unknownMetadata()
	}

	mimeType := "image/" + ext
	if ext == "jpg" {
		mimeType = "image/jpeg"
	}

	first, err := e.recognize(ctx, e.defaultModel, file.Data, mimeType)
	if err != nil {
		e.logger.Warn("Optical recognition failed, returning empty metadata.", "file", file.Name, "error", err)
		return unknownMetadata()
	}

	result := first
	if filipino, english := ScoreLanguage(first.Text); filipino > english {
		second, err := e.recognize(ctx, e.filipinoModel, file.Data, mimeType)
		if err != nil {
			e.logger.Warn("Filipino recognition pass failed, keeping first pass.", "file", file.Name, "error", err)
		} else {
			result = second
		}
	}

	meta := ParseFields(result.Text)
	meta.Confidence = clampConfidence(result.Confidence)
	return meta
}

func (e *Extractor) recognize(ctx context.Context, model *genai.GenerativeModel, data []byte, mimeType string) (*ocrResult, error) {
	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: data},
		genai.Text(ocrUserPrompt),
	)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	raw := responseText(resp)
	if raw == "" {
		return nil, fmt.Errorf("recognition response contained no text parts")
	}

	var result ocrResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("parse recognition JSON: %w", err)
	}
	return &result, nil
}

// responseText concatenates the text parts of a model response, stripping
// any stray code fences.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	out := strings.TrimSpace(sb.String())
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out)
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

func unknownMetadata() *models.DocMetadata {
	return &models.DocMetadata{
		DocType:  models.DocTypeUnknown,
		Language: models.LanguageUnknown,
	}
}
