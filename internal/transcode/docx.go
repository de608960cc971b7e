package transcode

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	stdhtml "html"
	"io"
	"strings"
)

// docxToMarkup unpacks word/document.xml from a DOCX archive and reduces it
// to simplified markup: <h1> for styled headings, <p> for paragraphs, with
// <b>/<i> around styled runs. Everything else in the document is dropped.
func docxToMarkup(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}

	var docXML *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML = f
			break
		}
	}
	if docXML == nil {
		return "", errors.New("docx archive has no word/document.xml")
	}

	rc, err := docXML.Open()
	if err != nil {
		return "", fmt.Errorf("open word/document.xml: %w", err)
	}
	defer rc.Close()

	return documentXMLToMarkup(rc)
}

type runSpan struct {
	text   string
	bold   bool
	italic bool
}

func documentXMLToMarkup(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		markup    strings.Builder
		paragraph []runSpan
		heading   bool
		inRun     bool
		runBold   bool
		runItalic bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				paragraph = paragraph[:0]
				heading = false
			case "r":
				inRun = true
				runBold = false
				runItalic = false
			case "pStyle":
				for _, attr := range t.Attr {
					if attr.Name.Local == "val" && strings.HasPrefix(attr.Value, "Heading") {
						heading = true
					}
				}
			case "b":
				if inRun {
					runBold = true
				}
			case "i":
				if inRun {
					runItalic = true
				}
			case "t":
				var text string
				if err := dec.DecodeElement(&text, &t); err != nil {
					return "", fmt.Errorf("decode text run: %w", err)
				}
				if text != "" {
					paragraph = append(paragraph, runSpan{text: text, bold: runBold, italic: runItalic})
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "r":
				inRun = false
			case "p":
				flushParagraph(&markup, paragraph, heading)
			}
		}
	}
	return markup.String(), nil
}

func flushParagraph(markup *strings.Builder, runs []runSpan, heading bool) {
	if len(runs) == 0 {
		return
	}
	if heading {
		markup.WriteString("<h1>")
		for _, run := range runs {
			markup.WriteString(stdhtml.EscapeString(run.text))
		}
		markup.WriteString("</h1>")
		return
	}
	markup.WriteString("<p>")
	for _, run := range runs {
		if run.bold {
			markup.WriteString("<b>")
		}
		if run.italic {
			markup.WriteString("<i>")
		}
		markup.WriteString(stdhtml.EscapeString(run.text))
		if run.italic {
			markup.WriteString("</i>")
		}
		if run.bold {
			markup.WriteString("</b>")
		}
	}
	markup.WriteString("</p>")
}
