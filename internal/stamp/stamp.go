// Package stamp embeds a scannable verification marker into a PDF. The
// marker is a QR code encoding the verification locator for the document's
// fingerprint, placed on the first page without touching any other content.
//
// Stamping runs after fingerprinting: the published digest always refers to
// the pre-stamp bytes, and the verification endpoint resolves that digest.
package stamp

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	qrPixels = 144

	// Bottom-right of page one, nudged in from the margin corner, at half
	// the generated pixel size (72pt square on the page).
	watermarkDesc = "pos:br, off:-24 24, scale:0.5 abs, rot:0"
)

// VerifyURL builds the locator the QR marker encodes. It must stay in sync
// with the route served by the verification endpoint.
func VerifyURL(baseURL, fingerprint string) string {
	return fmt.Sprintf("%s/verify/%s", strings.TrimSuffix(baseURL, "/"), fingerprint)
}

// Apply stamps pdfBytes with a QR marker for fingerprint and returns the
// stamped document.
func Apply(pdfBytes []byte, fingerprint, verifyBaseURL string) ([]byte, error) {
	png, err := qrcode.Encode(VerifyURL(verifyBaseURL, fingerprint), qrcode.Medium, qrPixels)
	if err != nil {
		return nil, fmt.Errorf("encode QR marker: %w", err)
	}

	// pdfcpu reads image watermarks from disk.
	tempDir, err := os.MkdirTemp("", "turoarchive-stamp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	qrPath := filepath.Join(tempDir, "marker.png")
	if err := os.WriteFile(qrPath, png, 0o644); err != nil {
		return nil, fmt.Errorf("write QR marker: %w", err)
	}

	wm, err := api.ImageWatermark(qrPath, watermarkDesc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("build watermark: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(pdfBytes), &out, []string{"1"}, wm, conf); err != nil {
		return nil, fmt.Errorf("apply watermark: %w", err)
	}
	return out.Bytes(), nil
}
