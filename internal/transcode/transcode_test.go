package transcode

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turoarchive/turoarchive/internal/fingerprint"
	"github.com/turoarchive/turoarchive/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

type docxParagraph struct {
	text    string
	heading bool
	bold    bool
}

// buildDocx assembles a minimal DOCX archive around word/document.xml.
func buildDocx(t *testing.T, paragraphs []docxParagraph) []byte {
	t.Helper()

	var doc strings.Builder
	doc.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	doc.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		doc.WriteString("<w:p>")
		if p.heading {
			doc.WriteString(`<w:pPr><w:pStyle w:val="Heading1"/></w:pPr>`)
		}
		doc.WriteString("<w:r>")
		if p.bold {
			doc.WriteString("<w:rPr><w:b/></w:rPr>")
		}
		doc.WriteString("<w:t>" + p.text + "</w:t>")
		doc.WriteString("</w:r></w:p>")
	}
	doc.WriteString("</w:body></w:document>")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(doc.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestTranscodePDFPassthroughIsIdentity(t *testing.T) {
	pdfBytes, err := RenderPDF([]models.ContentElement{{Text: "already a PDF"}})
	require.NoError(t, err)

	result, err := Transcode(testLogger(), &models.SourceFile{
		Name: "input.pdf",
		Ext:  ".pdf",
		Size: int64(len(pdfBytes)),
		Data: pdfBytes,
	}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, result.PDFBytes)
}

func TestTranscodeUnsupportedExtension(t *testing.T) {
	_, err := Transcode(testLogger(), &models.SourceFile{Name: "notes.xlsx", Ext: ".xlsx"}, 0, 0)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "xlsx")
}

func TestTranscodeDocx(t *testing.T) {
	data := buildDocx(t, []docxParagraph{
		{text: "Daily Lesson Log", heading: true},
		{text: "Objectives for the week ahead.", bold: true},
		{text: "Plain body paragraph."},
	})

	result, err := Transcode(testLogger(), &models.SourceFile{
		Name: "dll.docx",
		Ext:  ".docx",
		Size: int64(len(data)),
		Data: data,
	}, 0, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(result.PDFBytes), "%PDF-"))
	assert.Contains(t, result.Text, "Daily Lesson Log")
	assert.Contains(t, result.Text, "Plain body paragraph.")
}

func TestTranscodeCorruptDocxRendersPlaceholder(t *testing.T) {
	result, err := Transcode(testLogger(), &models.SourceFile{
		Name: "broken.docx",
		Ext:  ".docx",
		Data: []byte("this is not a zip archive"),
	}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, placeholderText, result.Text)
	assert.NotEmpty(t, result.PDFBytes)
}

// expectedPageCount replays the layout walk with the renderer's own width
// function to predict how many pages the document needs.
func expectedPageCount(elements []models.ContentElement) int {
	measure := fpdf.New("P", "pt", "A4", "")
	pages := 1
	y := pageMargin
	for _, el := range elements {
		style, size := elementFont(el)
		measure.SetFont(fontFamily, style, size)
		lineHeight := size * lineSpacing
		for range WrapLines(el.Text, contentWidth, measure.GetStringWidth) {
			if pageHeight-pageMargin-y < lineHeight {
				pages++
				y = pageMargin
			}
			y += lineHeight
		}
		if el.Heading {
			y += lineHeight / 2
		}
	}
	return pages
}

func TestTranscodeLargeDocxPageCountMatchesWrapping(t *testing.T) {
	sentence := "Learners demonstrate understanding of the week's competencies through guided and independent practice. "
	long := strings.Repeat(sentence, 300)

	paragraphs := []docxParagraph{
		{text: "First Quarter Overview", heading: true},
		{text: "Weekly Objectives", heading: true},
		{text: long, bold: true},
	}
	data := buildDocx(t, paragraphs)

	result, err := Transcode(testLogger(), &models.SourceFile{Name: "big.docx", Ext: ".docx", Data: data}, 0, 0)
	require.NoError(t, err)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	gotPages, err := api.PageCount(bytes.NewReader(result.PDFBytes), conf)
	require.NoError(t, err)

	wantPages := expectedPageCount(ParseMarkup(mustMarkup(t, data)))
	assert.Greater(t, gotPages, 1, "document should span multiple pages")
	assert.Equal(t, wantPages, gotPages)
}

func TestTranscodeDocxTwiceYieldsSameFingerprint(t *testing.T) {
	data := buildDocx(t, []docxParagraph{
		{text: "Reproducible", heading: true},
		{text: "Identical input must produce an identical artifact."},
	})
	file := func() *models.SourceFile {
		return &models.SourceFile{Name: "repeat.docx", Ext: ".docx", Data: data}
	}

	first, err := Transcode(testLogger(), file(), 0, 0)
	require.NoError(t, err)
	second, err := Transcode(testLogger(), file(), 0, 0)
	require.NoError(t, err)

	assert.Equal(t, fingerprint.Hash(first.PDFBytes), fingerprint.Hash(second.PDFBytes))
}

func mustMarkup(t *testing.T, docxData []byte) string {
	t.Helper()
	markup, err := docxToMarkup(docxData)
	require.NoError(t, err)
	return markup
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8((i*i + i*3) % 253)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestTranscodeImageYieldsSinglePagePDF(t *testing.T) {
	data := encodePNG(t, 800, 600)

	result, err := Transcode(testLogger(), &models.SourceFile{
		Name: "scan.png",
		Ext:  ".png",
		Size: int64(len(data)),
		Data: data,
	}, 0, 0)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(result.PDFBytes), "%PDF-"))
	assert.Empty(t, result.Text, "scanned content has no digital text")

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pages, err := api.PageCount(bytes.NewReader(result.PDFBytes), conf)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
}

func TestTranscodeImageShrinksLargePhoto(t *testing.T) {
	data := encodePNG(t, 1400, 1000)

	result, err := Transcode(testLogger(), &models.SourceFile{
		Name: "photo.jpg",
		Ext:  ".jpg",
		Data: data,
	}, 1, 400)
	require.NoError(t, err)
	assert.Less(t, len(result.PDFBytes), len(data), "tiny budget must force lossy re-encode")
}

func TestTranscodeCorruptImageFails(t *testing.T) {
	_, err := Transcode(testLogger(), &models.SourceFile{
		Name: "broken.jpg",
		Ext:  ".jpg",
		Data: []byte("not an image at all"),
	}, 0, 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDocxToMarkup(t *testing.T) {
	data := buildDocx(t, []docxParagraph{
		{text: "Heading", heading: true},
		{text: "bold text", bold: true},
	})
	markup, err := docxToMarkup(data)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Heading</h1><p><b>bold text</b></p>", markup)
}

func TestDocxToMarkupMissingDocumentXML(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/other.xml")
	require.NoError(t, err)
	fmt.Fprint(w, "<w:document/>")
	require.NoError(t, zw.Close())

	_, err = docxToMarkup(buf.Bytes())
	require.Error(t, err)
}
