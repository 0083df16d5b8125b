package statement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/medicalrecordflow/internal/models"
)

func TestParseParagraph_FullStatement(t *testing.T) {
	text := "01/15/2026, John Doe, 123 Main St, (555) 123-4567 (Pages 1-3)"

	s, ok := ParseParagraph(0, text)
	require.True(t, ok)

	assert.Equal(t, time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC), s.Date)
	assert.Equal(t, "John Doe", s.Name)
	assert.Equal(t, "123 Main St", s.Address)
	assert.Equal(t, "(555) 123-4567", s.Contact)
	require.NotNil(t, s.PageRange)
	assert.Equal(t, models.PageRange{Start: 1, End: 3}, *s.PageRange)
	assert.Equal(t, models.SourcePosition{Paragraph: 0, Offset: 0, Length: len([]rune(text))}, s.Source)
	assert.Equal(t, text, s.RawText)
}

func TestParseParagraph_DateLayouts(t *testing.T) {
	tests := []struct {
		name string
		text string
		want time.Time
	}{
		{"slash", "01/15/2026, A, B, C", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"dash mdy", "01-15-2026, A, B, C", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"iso", "2026-01-15, A, B, C", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"two digit year", "01/15/26, A, B, C", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := ParseParagraph(0, tt.text)
			require.True(t, ok)
			assert.Equal(t, tt.want, s.Date)
		})
	}
}

func TestParseParagraph_Skipped(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no date", "John Doe, 123 Main St, 555-0100"},
		{"malformed date", "13/45/2026, John Doe, 123 Main St, 555-0100"},
		{"no comma after date", "01/15/2026 John Doe, 123 Main St, 555-0100"},
		{"too few fields", "01/15/2026, John Doe, 123 Main St"},
		{"empty field", "01/15/2026, , 123 Main St, 555-0100"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseParagraph(0, tt.text)
			assert.False(t, ok)
		})
	}
}

func TestParseParagraph_FirstValidDateAnchors(t *testing.T) {
	// A malformed date-like token is passed over in favor of the first token
	// that parses as a real date.
	s, ok := ParseParagraph(0, "99/99/9999 01/15/2026, Jane Roe, 9 Elm St, 555-0100")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), s.Date)
	assert.Equal(t, "Jane Roe", s.Name)
}

func TestParseParagraph_ExtraFieldsFoldIntoContact(t *testing.T) {
	s, ok := ParseParagraph(0, "01/15/2026, Jane Roe, 9 Elm St, 555-0100, ext 42")
	require.True(t, ok)
	assert.Equal(t, "555-0100, ext 42", s.Contact)
}

func TestParseParagraph_SinglePageAnnotation(t *testing.T) {
	s, ok := ParseParagraph(0, "01/15/2026, Jane Roe, 9 Elm St, 555-0100 (Pages 7)")
	require.True(t, ok)
	require.NotNil(t, s.PageRange)
	assert.Equal(t, models.PageRange{Start: 7, End: 7}, *s.PageRange)
}

func TestParseParagraph_NormalizationKeepsOffsets(t *testing.T) {
	// NBSP and en dash are mapped rune-for-rune, so the offset into the
	// original paragraph equals the offset into the normalized text.
	text := "Ref: 01/15/2026, Jane Roe, 9 Elm St, 555-0100 (Pages 2–4)"

	s, ok := ParseParagraph(3, text)
	require.True(t, ok)
	assert.Equal(t, 5, s.Source.Offset)
	assert.Equal(t, 3, s.Source.Paragraph)
	require.NotNil(t, s.PageRange)
	assert.Equal(t, models.PageRange{Start: 2, End: 4}, *s.PageRange)

	// RawText must match the normalized run the offset points at.
	runes := []rune(normalize(text))
	assert.Equal(t, string(runes[s.Source.Offset:s.Source.Offset+s.Source.Length]), s.RawText)
}

func TestParse_DocumentOrderAndIndices(t *testing.T) {
	paragraphs := []string{
		"MEDICAL RECORD SUMMARY",
		"01/15/2026, John Doe, 123 Main St, 555-0100 (Pages 1-3)",
		"not a statement",
		"02/20/2026, Jane Roe, 9 Elm St, 555-0200 (Pages 4-6)",
	}

	statements := Parse(paragraphs)
	require.Len(t, statements, 2)
	assert.Equal(t, 1, statements[0].Source.Paragraph)
	assert.Equal(t, 3, statements[1].Source.Paragraph)
	assert.True(t, statements[0].Resolved())

	// Parsing is pure: a second pass yields identical records.
	assert.Equal(t, statements, Parse(paragraphs))
}

func TestPatientName(t *testing.T) {
	name, ok := PatientName([]string{"MEDICAL RECORD", "PATIENT NAME: Mary Smith", "01/15/2026, ..."})
	require.True(t, ok)
	assert.Equal(t, "Mary Smith", name)

	_, ok = PatientName([]string{"no header here"})
	assert.False(t, ok)
}
