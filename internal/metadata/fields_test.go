package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turoarchive/turoarchive/internal/models"
)

func TestParseFieldsEnglishDLL(t *testing.T) {
	text := `Daily Lesson Log
School: San Isidro Elementary School
Teacher: Maria Santos
Grade 4 - Mathematics
Week #3, S.Y. 2025-2026
Objectives: the learners demonstrate understanding of fractions.`

	meta := ParseFields(text)

	assert.Equal(t, models.DocTypeDLL, meta.DocType)
	assert.Equal(t, "San Isidro Elementary School", meta.School)
	assert.Equal(t, "Maria Santos", meta.Teacher)
	assert.Equal(t, 4, meta.GradeLevel)
	assert.Equal(t, "Mathematics", meta.Subject)
	assert.Equal(t, 3, meta.WeekNumber)
	assert.Equal(t, "2025-2026", meta.SchoolYear)
	assert.Equal(t, models.LanguageEnglish, meta.Language)
}

func TestParseFieldsFilipino(t *testing.T) {
	text := `Detalyadong Plano ng Aralin
Paaralan: Mababang Paaralan ng San Roque
Guro: Jose Rizal
Baitang 6 - Araling Panlipunan
Linggo 12
Layunin: naipapakita ng mga mag-aaral ang pag-unawa sa aralin.`

	meta := ParseFields(text)

	assert.Equal(t, models.DocTypeDLL, meta.DocType)
	assert.Equal(t, "Mababang Paaralan ng San Roque", meta.School)
	assert.Equal(t, "Jose Rizal", meta.Teacher)
	assert.Equal(t, 6, meta.GradeLevel)
	assert.Equal(t, "Araling Panlipunan", meta.Subject)
	assert.Equal(t, 12, meta.WeekNumber)
	assert.Equal(t, models.LanguageFilipino, meta.Language)
}

func TestParseFieldsSubjectPriorityOrder(t *testing.T) {
	// Both patterns match; the ordered list decides, not alphabet.
	meta := ParseFields("Edukasyon sa Pagpapakatao taught in Filipino")
	assert.Equal(t, "Edukasyon sa Pagpapakatao", meta.Subject)

	meta = ParseFields("Subject: Filipino")
	assert.Equal(t, "Filipino", meta.Subject)
}

func TestParseFieldsBareSchoolYear(t *testing.T) {
	meta := ParseFields("Plan for 2024-2025 submissions")
	assert.Equal(t, "2024-2025", meta.SchoolYear)
}

func TestParseFieldsEmptyText(t *testing.T) {
	meta := ParseFields("")

	assert.Equal(t, models.DocTypeUnknown, meta.DocType)
	assert.Equal(t, models.LanguageUnknown, meta.Language)
	assert.Empty(t, meta.Subject)
	assert.Zero(t, meta.WeekNumber)
	assert.Zero(t, meta.GradeLevel)
}

func TestParseFieldsISRAcronym(t *testing.T) {
	meta := ParseFields("Attached ISR for week 2")
	assert.Equal(t, models.DocTypeISR, meta.DocType)
	assert.Equal(t, 2, meta.WeekNumber)
}

func TestScoreLanguage(t *testing.T) {
	filipino, english := ScoreLanguage("ang mga mag-aaral ay may aralin at layunin")
	assert.Greater(t, filipino, english)

	filipino, english = ScoreLanguage("the lesson objectives and the weekly assessment")
	assert.Greater(t, english, filipino)
}

func TestFromTextSetsConfidence(t *testing.T) {
	meta := FromText("Daily Lesson Log Grade 2", 100)
	assert.Equal(t, 100, meta.Confidence)
	assert.Equal(t, models.DocTypeDLL, meta.DocType)
	assert.Equal(t, 2, meta.GradeLevel)
}
