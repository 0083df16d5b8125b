package docx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/medicalrecordflow/internal/models"
	"github.com/Lllllllleong/medicalrecordflow/internal/testutil"
)

func TestOpen_Paragraphs(t *testing.T) {
	raw := testutil.BuildDocx([]string{"first paragraph", "second paragraph"})

	doc, err := Open(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"first paragraph", "second paragraph"}, doc.Paragraphs())
}

func TestOpen_NotADocx(t *testing.T) {
	_, err := Open([]byte("plain text"))
	assert.Error(t, err)
}

func TestInsertHyperlink_AndReadBack(t *testing.T) {
	text := "Ref: 01/15/2026, John Doe, 123 Main St, 555-0100"
	raw := testutil.BuildDocx([]string{"header", text})

	doc, err := Open(raw)
	require.NoError(t, err)

	pos := models.SourcePosition{
		Paragraph: 1,
		Offset:    5,
		Length:    len([]rune(text)) - 5,
	}
	linkText := text[5:]
	require.NoError(t, doc.InsertHyperlink(pos, "https://example.com/splits/1-3.pdf", linkText))

	target, err := doc.HyperlinkTarget(pos)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/splits/1-3.pdf", target)

	// Paragraph text is unchanged: the edit only rewraps runs.
	assert.Equal(t, text, doc.Paragraphs()[1])
}

func TestInsertHyperlink_TextMismatch(t *testing.T) {
	raw := testutil.BuildDocx([]string{"some paragraph text"})

	doc, err := Open(raw)
	require.NoError(t, err)

	err = doc.InsertHyperlink(models.SourcePosition{Paragraph: 0, Offset: 0, Length: 4}, "https://example.com", "different")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestInsertHyperlink_OutOfRange(t *testing.T) {
	raw := testutil.BuildDocx([]string{"short"})

	doc, err := Open(raw)
	require.NoError(t, err)

	err = doc.InsertHyperlink(models.SourcePosition{Paragraph: 5, Offset: 0, Length: 1}, "https://example.com", "")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = doc.InsertHyperlink(models.SourcePosition{Paragraph: 0, Offset: 3, Length: 10}, "https://example.com", "")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestInsertHyperlink_MultipleReverseOrder(t *testing.T) {
	paragraphs := []string{
		"01/15/2026, John Doe, 123 Main St, 555-0100",
		"02/20/2026, Jane Roe, 9 Elm St, 555-0200",
	}
	raw := testutil.BuildDocx(paragraphs)

	doc, err := Open(raw)
	require.NoError(t, err)

	for i := len(paragraphs) - 1; i >= 0; i-- {
		pos := models.SourcePosition{Paragraph: i, Offset: 0, Length: len([]rune(paragraphs[i]))}
		require.NoError(t, doc.InsertHyperlink(pos, "mem://fp/"+paragraphs[i][:2]+".pdf", paragraphs[i]))
	}

	for i := range paragraphs {
		pos := models.SourcePosition{Paragraph: i, Offset: 0, Length: len([]rune(paragraphs[i]))}
		target, err := doc.HyperlinkTarget(pos)
		require.NoError(t, err)
		assert.Equal(t, "mem://fp/"+paragraphs[i][:2]+".pdf", target)
	}
}

func TestOpen_TabStopDefinitionsAreNotText(t *testing.T) {
	// A w:tab under w:pPr/w:tabs defines a tab stop; only a w:tab inside a
	// run is a content character.
	text := "01/15/2026, John Doe, 123 Main St, 555-0100"
	raw := testutil.BuildDocxBody(
		`<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr>` +
			`<w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p>`)

	doc, err := Open(raw)
	require.NoError(t, err)
	require.Equal(t, []string{text}, doc.Paragraphs())

	pos := models.SourcePosition{Paragraph: 0, Offset: 0, Length: len([]rune(text))}
	require.NoError(t, doc.InsertHyperlink(pos, "https://example.com/1-3.pdf", text))

	out, err := doc.Bytes()
	require.NoError(t, err)
	reopened, err := Open(out)
	require.NoError(t, err)

	// The edit must not grow the visible text.
	assert.Equal(t, []string{text}, reopened.Paragraphs())
	target, err := reopened.HyperlinkTarget(pos)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/1-3.pdf", target)
}

func TestOpen_RunTabIsText(t *testing.T) {
	raw := testutil.BuildDocxBody(
		`<w:p><w:r><w:t>before</w:t><w:tab/><w:t>after</w:t></w:r></w:p>`)

	doc, err := Open(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"before\tafter"}, doc.Paragraphs())
}

func TestBytes_RoundTripsEdits(t *testing.T) {
	text := "01/15/2026, John Doe, 123 Main St, 555-0100"
	raw := testutil.BuildDocx([]string{text})

	doc, err := Open(raw)
	require.NoError(t, err)

	pos := models.SourcePosition{Paragraph: 0, Offset: 0, Length: len([]rune(text))}
	require.NoError(t, doc.InsertHyperlink(pos, "https://example.com/1-3.pdf", text))

	out, err := doc.Bytes()
	require.NoError(t, err)

	reopened, err := Open(out)
	require.NoError(t, err)
	assert.Equal(t, []string{text}, reopened.Paragraphs())

	target, err := reopened.HyperlinkTarget(pos)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/1-3.pdf", target)
}

func TestInsertHyperlink_EscapesTarget(t *testing.T) {
	text := "01/15/2026, John Doe, 123 Main St, 555-0100"
	raw := testutil.BuildDocx([]string{text})

	doc, err := Open(raw)
	require.NoError(t, err)

	url := "https://example.com/view?id=1&name=a b"
	pos := models.SourcePosition{Paragraph: 0, Offset: 0, Length: len([]rune(text))}
	require.NoError(t, doc.InsertHyperlink(pos, url, text))

	target, err := doc.HyperlinkTarget(pos)
	require.NoError(t, err)
	assert.Equal(t, url, target)

	assert.False(t, strings.Contains(string(doc.relsXML), "id=1&name"),
		"ampersand must be escaped in the relationships part")
}
