// Package transcode normalizes supported input files into a baseline PDF.
// PDFs pass through byte-identical; word-processor documents are reduced to
// a simplified markup representation and laid out onto A4 pages.
package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/turoarchive/turoarchive/internal/models"
)

// ErrUnsupportedFormat marks inputs outside the fixed set of supported
// extensions. It is the only transcoding error that ends a pipeline run.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Result is the output of a transcoding call. Text is populated for inputs
// whose content was available digitally and feeds the metadata extractor.
type Result struct {
	PDFBytes []byte
	Text     string
}

// Transcode converts file into a baseline PDF. Image inputs are shrunk
// toward imageTarget bytes with their longer side capped at imageMaxDim
// before page placement; zero values fall back to package defaults.
func Transcode(logger *slog.Logger, file *models.SourceFile, imageTarget int64, imageMaxDim int) (*Result, error) {
	switch ext := normalizedExt(file); ext {
	case "pdf":
		if err := validatePDF(file.Data); err != nil {
			return nil, fmt.Errorf("input claims to be PDF but failed validation: %w", err)
		}
		return &Result{PDFBytes: file.Data}, nil
	case "docx", "doc":
		return transcodeWordDocument(logger, file)
	case "png", "jpg", "jpeg", "webp":
		return transcodeImage(logger, file, imageTarget, imageMaxDim)
	default:
		return nil, fmt.Errorf("%w: .%s", ErrUnsupportedFormat, ext)
	}
}

func normalizedExt(file *models.SourceFile) string {
	ext := file.Ext
	if ext == "" {
		ext = filepath.Ext(file.Name)
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func validatePDF(data []byte) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.Validate(bytes.NewReader(data), conf)
}

func transcodeWordDocument(logger *slog.Logger, file *models.SourceFile) (*Result, error) {
	markup, err := docxToMarkup(file.Data)
	if err != nil {
		// Unparseable documents degrade to the placeholder element rather
		// than failing the run.
		logger.Warn("Word document extraction failed, rendering placeholder.", "file", file.Name, "error", err)
		markup = ""
	}

	elements := ParseMarkup(markup)
	pdfBytes, err := RenderPDF(elements)
	if err != nil {
		return nil, fmt.Errorf("render PDF for %s: %w", file.Name, err)
	}

	var text strings.Builder
	for i, el := range elements {
		if i > 0 {
			text.WriteByte('\n')
		}
		text.WriteString(el.Text)
	}
	return &Result{PDFBytes: pdfBytes, Text: text.String()}, nil
}
