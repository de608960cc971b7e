package transcode

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/turoarchive/turoarchive/internal/models"
)

// placeholderText stands in for documents with no extractable content so the
// PDF generator never receives an empty element sequence.
const placeholderText = "(empty document)"

// styleState tracks the open style markers while scanning markup. Counters
// instead of booleans so unmatched close tags can never underflow the state.
type styleState struct {
	bold    int
	italic  int
	heading int
}

func (s *styleState) enter(tag string) {
	switch tag {
	case "b", "strong":
		s.bold++
	case "i", "em":
		s.italic++
	case "h1", "h2", "h3", "h4", "h5", "h6":
		s.heading++
	}
}

func (s *styleState) exit(tag string) {
	switch tag {
	case "b", "strong":
		if s.bold > 0 {
			s.bold--
		}
	case "i", "em":
		if s.italic > 0 {
			s.italic--
		}
	case "h1", "h2", "h3", "h4", "h5", "h6":
		if s.heading > 0 {
			s.heading--
		}
	}
}

// ParseMarkup scans simplified markup into styled content elements. Malformed
// or unknown markup degrades to plain text; the result is never empty.
func ParseMarkup(markup string) []models.ContentElement {
	var (
		out   []models.ContentElement
		state styleState
	)

	tz := html.NewTokenizer(strings.NewReader(markup))
	for {
		tt := tz.Next()
		if tt == html.ErrorToken {
			// io.EOF or malformed input; either way there is nothing more
			// to recover.
			break
		}
		switch tt {
		case html.StartTagToken:
			name, _ := tz.TagName()
			state.enter(string(name))
		case html.EndTagToken:
			name, _ := tz.TagName()
			state.exit(string(name))
		case html.TextToken:
			text := strings.TrimSpace(string(tz.Text()))
			if text == "" {
				continue
			}
			out = append(out, models.ContentElement{
				Text:    text,
				Bold:    state.bold > 0,
				Italic:  state.italic > 0,
				Heading: state.heading > 0,
			})
		}
	}

	if len(out) == 0 {
		out = append(out, models.ContentElement{Text: placeholderText})
	}
	return out
}
