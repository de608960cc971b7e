package transcode

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/turoarchive/turoarchive/internal/models"
)

// A4 geometry in points, 40pt margins on every page.
const (
	pageWidth  = 595.28
	pageHeight = 841.89
	pageMargin = 40.0

	contentWidth = pageWidth - 2*pageMargin

	fontFamily  = "Helvetica"
	bodySize    = 11.0
	headingSize = 16.0
	lineSpacing = 1.3
)

// WrapLines word-wraps text greedily against width, which must report the
// rendered width of a string in points. A single word longer than maxWidth
// is emitted on its own line, never split.
func WrapLines(text string, maxWidth float64, width func(string) float64) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var (
		lines   []string
		current = words[0]
	)
	for _, word := range words[1:] {
		candidate := current + " " + word
		if width(candidate) > maxWidth {
			lines = append(lines, current)
			current = word
			continue
		}
		current = candidate
	}
	return append(lines, current)
}

func elementFont(el models.ContentElement) (style string, size float64) {
	if el.Bold || el.Heading {
		style += "B"
	}
	if el.Italic {
		style += "I"
	}
	size = bodySize
	if el.Heading {
		size = headingSize
	}
	return style, size
}

// RenderPDF lays content elements onto A4 pages. A new page starts whenever
// the remaining vertical space is smaller than the current line height.
func RenderPDF(elements []models.ContentElement) ([]byte, error) {
	if len(elements) == 0 {
		elements = []models.ContentElement{{Text: placeholderText}}
	}

	doc := fpdf.New("P", "pt", "A4", "")
	// Pinned timestamps: identical content must yield identical bytes so
	// the fingerprint can serve as a duplicate key.
	doc.SetCreationDate(time.Unix(0, 0).UTC())
	doc.SetModificationDate(time.Unix(0, 0).UTC())
	doc.SetMargins(pageMargin, pageMargin, pageMargin)
	doc.SetAutoPageBreak(false, pageMargin)
	doc.AddPage()

	y := pageMargin
	for _, el := range elements {
		style, size := elementFont(el)
		doc.SetFont(fontFamily, style, size)
		lineHeight := size * lineSpacing

		for _, line := range WrapLines(el.Text, contentWidth, doc.GetStringWidth) {
			if pageHeight-pageMargin-y < lineHeight {
				doc.AddPage()
				y = pageMargin
			}
			doc.Text(pageMargin, y+size, line)
			y += lineHeight
		}
		if el.Heading {
			y += lineHeight / 2
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("write PDF: %w", err)
	}
	return buf.Bytes(), nil
}
