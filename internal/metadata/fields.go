package metadata

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/turoarchive/turoarchive/internal/models"
)

// Keyword families for document-type classification, bilingual.
var docTypePatterns = []struct {
	docType models.DocType
	re      *regexp.Regexp
}{
	{models.DocTypeDLL, regexp.MustCompile(`(?i)daily\s+lesson\s+log|detalyadong\s+plano\s+ng\s+aralin|banghay[\s-]aralin|\bDLL\b`)},
	{models.DocTypeISP, regexp.MustCompile(`(?i)individual\s+supervisory\s+plan|instructional\s+supervisory\s+plan|\bISP\b`)},
	{models.DocTypeISR, regexp.MustCompile(`(?i)individual\s+supervisory\s+report|instructional\s+supervisory\s+report|\bISR\b`)},
}

// Subject patterns are checked in order and the first match wins. The order
// is a priority list: multi-word Filipino subjects come before the bare
// language names so that e.g. "Edukasyon sa Pagpapakatao" is not swallowed
// by a stray "Filipino" elsewhere on the page.
var subjectPatterns = []struct {
	subject string
	re      *regexp.Regexp
}{
	{"Araling Panlipunan", regexp.MustCompile(`(?i)araling\s+panlipunan|\bAP\b`)},
	{"Edukasyon sa Pagpapakatao", regexp.MustCompile(`(?i)edukasyon\s+sa\s+pagpapakatao|\bEsP\b`)},
	{"Edukasyong Pantahanan at Pangkabuhayan", regexp.MustCompile(`(?i)edukasyong\s+pantahanan|\bEPP\b`)},
	{"Mother Tongue", regexp.MustCompile(`(?i)mother\s+tongue|\bMTB(?:-MLE)?\b`)},
	{"MAPEH", regexp.MustCompile(`(?i)\bMAPEH\b`)},
	{"TLE", regexp.MustCompile(`(?i)technology\s+and\s+livelihood|\bTLE\b`)},
	{"Mathematics", regexp.MustCompile(`(?i)\bmathematics\b|\bmatematika\b|\bmath\b`)},
	{"Science", regexp.MustCompile(`(?i)\bscience\b|\bagham\b`)},
	{"English", regexp.MustCompile(`(?i)\benglish\b`)},
	{"Filipino", regexp.MustCompile(`(?i)\bfilipino\b`)},
}

var (
	gradeRe      = regexp.MustCompile(`(?i)\b(?:grade|baitang|antas)\s*[:.]?\s*(\d{1,2})\b`)
	weekRe       = regexp.MustCompile(`(?i)\b(?:week|linggo)\s*(?:no\.?|#|blg\.?)?\s*[:.]?\s*(\d{1,2})\b`)
	schoolYearRe = regexp.MustCompile(`(?i)\bs\.?\s*y\.?\s*[:.]?\s*(\d{4})\s*[-–]\s*(\d{4})\b`)
	bareYearRe   = regexp.MustCompile(`\b(\d{4})\s*[-–]\s*(\d{4})\b`)
	schoolRe     = regexp.MustCompile(`(?im)^[^\S\n]*(?:school|paaralan)[^\S\n]*:[^\S\n]*(.+)$`)
	teacherRe    = regexp.MustCompile(`(?im)^[^\S\n]*(?:teacher|guro)[^\S\n]*:[^\S\n]*(.+)$`)
)

var filipinoIndicators = []string{
	"mga", "aralin", "layunin", "paksa", "pagtataya", "gawain",
	"linggo", "baitang", "guro", "paaralan", "wika", "pagkatuto",
}

var englishIndicators = []string{
	"the", "and", "objectives", "lesson", "assessment", "activity",
	"week", "grade", "teacher", "school", "subject", "learning",
}

// ScoreLanguage counts Filipino and English indicator keywords in text.
func ScoreLanguage(text string) (filipino, english int) {
	lower := strings.ToLower(text)
	for _, word := range filipinoIndicators {
		filipino += countWord(lower, word)
	}
	for _, word := range englishIndicators {
		english += countWord(lower, word)
	}
	return filipino, english
}

func countWord(lower, word string) int {
	count := 0
	for _, field := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if field == word {
			count++
		}
	}
	return count
}

func detectLanguage(text string) models.Language {
	filipino, english := ScoreLanguage(text)
	switch {
	case filipino == 0 && english == 0:
		return models.LanguageUnknown
	case filipino > english:
		return models.LanguageFilipino
	default:
		return models.LanguageEnglish
	}
}

// ParseFields runs the bilingual pattern extraction over recognized text.
// Every result is advisory and may be overridden by the caller.
func ParseFields(rawText string) *models.DocMetadata {
	meta := &models.DocMetadata{
		DocType:  models.DocTypeUnknown,
		Language: detectLanguage(rawText),
		RawText:  rawText,
	}
	if strings.TrimSpace(rawText) == "" {
		return meta
	}

	for _, p := range docTypePatterns {
		if p.re.MatchString(rawText) {
			meta.DocType = p.docType
			break
		}
	}

	for _, p := range subjectPatterns {
		if p.re.MatchString(rawText) {
			meta.Subject = p.subject
			break
		}
	}

	if m := gradeRe.FindStringSubmatch(rawText); m != nil {
		meta.GradeLevel, _ = strconv.Atoi(m[1])
	}
	if m := weekRe.FindStringSubmatch(rawText); m != nil {
		meta.WeekNumber, _ = strconv.Atoi(m[1])
	}
	if m := schoolYearRe.FindStringSubmatch(rawText); m != nil {
		meta.SchoolYear = m[1] + "-" + m[2]
	} else if m := bareYearRe.FindStringSubmatch(rawText); m != nil {
		meta.SchoolYear = m[1] + "-" + m[2]
	}
	if m := schoolRe.FindStringSubmatch(rawText); m != nil {
		meta.School = strings.TrimSpace(m[1])
	}
	if m := teacherRe.FindStringSubmatch(rawText); m != nil {
		meta.Teacher = strings.TrimSpace(m[1])
	}
	return meta
}

// FromText builds metadata for text that was already available digitally.
func FromText(text string, confidence int) *models.DocMetadata {
	meta := ParseFields(text)
	meta.Confidence = confidence
	return meta
}
