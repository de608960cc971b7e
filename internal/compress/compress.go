// Package compress shrinks PDF artifacts toward a size budget using an
// ordered ladder of strategies. Every strategy is optional: a failure keeps
// the previous layer's output, and the caller always gets valid bytes back.
package compress

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Strategy is one idempotent compression layer.
type Strategy struct {
	Name  string
	Apply func([]byte) ([]byte, error)
}

// Run applies strategies in order against the best output so far. A strategy
// that errors or grows the document is skipped. Run stops early once the
// target is met and never returns larger or invalid bytes than its input.
func Run(logger *slog.Logger, input []byte, target int64, strategies []Strategy) []byte {
	best := input
	if int64(len(best)) <= target {
		return best
	}

	for _, s := range strategies {
		out, err := s.Apply(best)
		if err != nil {
			logger.Warn("Compression strategy failed, keeping previous output.", "strategy", s.Name, "error", err)
			continue
		}
		if len(out) == 0 || len(out) >= len(best) {
			logger.Debug("Compression strategy did not shrink the document.", "strategy", s.Name, "before", len(best), "after", len(out))
			continue
		}
		logger.Debug("Compression strategy applied.", "strategy", s.Name, "before", len(best), "after", len(out))
		best = out
		if int64(len(best)) <= target {
			break
		}
	}

	if int64(len(best)) > target {
		logger.Warn("Document remains above size target after all strategies.", "size", len(best), "target", target)
	}
	return best
}

// PDF runs the default PDF ladder: page normalization, structural
// optimization, then lossy rasterize-and-rebuild for scanned documents.
func PDF(logger *slog.Logger, pdfBytes []byte, target int64) []byte {
	return Run(logger, pdfBytes, target, []Strategy{
		{Name: "normalize-pages", Apply: normalizePages},
		{Name: "optimize", Apply: optimize},
		{Name: "rasterize-rebuild", Apply: rasterizeRebuild},
	})
}

func relaxedConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// normalizePages scales oversized pages down to A4. Documents already within
// A4 bounds are returned unchanged so the layer stays idempotent.
func normalizePages(in []byte) ([]byte, error) {
	conf := relaxedConf()
	dims, err := api.PageDims(bytes.NewReader(in), conf)
	if err != nil {
		return nil, fmt.Errorf("read page dimensions: %w", err)
	}

	const a4Width, a4Height = 595.28, 841.89
	oversized := false
	for _, d := range dims {
		if d.Width > a4Width+1 || d.Height > a4Height+1 {
			oversized = true
			break
		}
	}
	if !oversized {
		return in, nil
	}

	resize, err := pdfcpu.ParseResizeConfig("formsize:A4", types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("parse resize config: %w", err)
	}
	var out bytes.Buffer
	if err := api.Resize(bytes.NewReader(in), &out, nil, resize, conf); err != nil {
		return nil, fmt.Errorf("resize pages: %w", err)
	}
	return out.Bytes(), nil
}

// optimize re-serializes the document with stream compression and without
// redundant object retention.
func optimize(in []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(in), &out, relaxedConf()); err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}
	return out.Bytes(), nil
}
