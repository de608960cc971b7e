package transcode

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/turoarchive/turoarchive/internal/compress"
	"github.com/turoarchive/turoarchive/internal/models"
)

const (
	defaultImageTargetBytes  = 1 << 20
	defaultImageMaxDimension = 2000
)

// transcodeImage shrinks a photographed or scanned page toward the image
// byte budget and places it onto a single A4 page. Text stays empty; the
// metadata extractor recognizes scanned content from the original image.
func transcodeImage(logger *slog.Logger, file *models.SourceFile, target int64, maxDim int) (*Result, error) {
	if target <= 0 {
		target = defaultImageTargetBytes
	}
	if maxDim <= 0 {
		maxDim = defaultImageMaxDimension
	}

	shrunk := compress.ShrinkImage(logger, file.Data, maxDim, target)

	imp, err := pdfcpu.ParseImportDetails("formsize:A4, pos:full", types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("parse import config: %w", err)
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, []io.Reader{bytes.NewReader(shrunk)}, imp, conf); err != nil {
		return nil, fmt.Errorf("place image %s onto PDF page: %w", file.Name, err)
	}
	return &Result{PDFBytes: out.Bytes()}, nil
}
