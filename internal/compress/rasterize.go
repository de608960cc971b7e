package compress

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/draw"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const (
	rasterMaxDimension = 1600
	rasterJPEGQuality  = 60
)

// rasterizeRebuild re-encodes a scanned document from its page images at a
// lossy quality and rebuilds the PDF from those images. It only applies when
// every page carries an extractable raster image; documents with native text
// content are left to the structural strategies.
func rasterizeRebuild(in []byte) ([]byte, error) {
	conf := relaxedConf()

	pageCount, err := api.PageCount(bytes.NewReader(in), conf)
	if err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}

	extracted, err := api.ExtractImagesRaw(bytes.NewReader(in), nil, conf)
	if err != nil {
		return nil, fmt.Errorf("extract page images: %w", err)
	}

	pageImages := make(map[int][]byte, pageCount)
	for _, byObj := range extracted {
		for _, img := range byObj {
			data, err := io.ReadAll(img)
			if err != nil {
				return nil, fmt.Errorf("read page %d image: %w", img.PageNr, err)
			}
			// Keep the largest image per page; smaller ones are logos or
			// decorations, not the scanned page itself.
			if len(data) > len(pageImages[img.PageNr]) {
				pageImages[img.PageNr] = data
			}
		}
	}
	if len(pageImages) < pageCount {
		return nil, fmt.Errorf("document has no raster basis (%d of %d pages carry images)", len(pageImages), pageCount)
	}

	readers := make([]io.Reader, 0, pageCount)
	for page := 1; page <= pageCount; page++ {
		reencoded, err := reencodeJPEG(pageImages[page], rasterMaxDimension, rasterJPEGQuality)
		if err != nil {
			return nil, fmt.Errorf("re-encode page %d: %w", page, err)
		}
		readers = append(readers, bytes.NewReader(reencoded))
	}

	imp, err := pdfcpu.ParseImportDetails("formsize:A4, pos:full", types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("parse import config: %w", err)
	}
	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, readers, imp, conf); err != nil {
		return nil, fmt.Errorf("rebuild from page images: %w", err)
	}
	return out.Bytes(), nil
}

// reencodeJPEG decodes any supported raster format, caps the longer side at
// maxDim and writes a JPEG at the given quality.
func reencodeJPEG(data []byte, maxDim int, quality int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	src = downscale(src, maxDim)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

func downscale(src image.Image, maxDim int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return src
	}

	scale := float64(maxDim) / float64(w)
	if h > w {
		scale = float64(maxDim) / float64(h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}
