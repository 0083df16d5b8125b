// Package statement parses free-text patient statement lines out of the
// source document's paragraphs.
package statement

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Lllllllleong/medicalrecordflow/internal/models"
)

// Recognized pattern family:
//
//	<date>, <name>, <address>, <contact>[ (Pages <range>)]
//
// Fields appear in positional order separated by commas. An extra trailing
// comma-delimited field is folded into contact. Non-matching paragraphs are
// skipped, never an error.

var (
	dateRe  = regexp.MustCompile(`\d{1,4}[/-]\d{1,2}[/-]\d{1,4}`)
	pagesRe = regexp.MustCompile(`(?i)\(\s*pages?\s+(\d+)(?:\s*-\s*(\d+))?\s*\)`)
)

// Parse scans paragraphs in document order and returns one Statement per
// paragraph matching the recognized pattern. The sequence is restartable:
// parsing is pure, so re-invoking on the same paragraphs yields the same
// records with the same source positions.
func Parse(paragraphs []string) []models.Statement {
	var out []models.Statement
	for i, text := range paragraphs {
		if s, ok := ParseParagraph(i, text); ok {
			out = append(out, s)
		}
	}
	return out
}

// ParseParagraph parses a single paragraph. The boolean is false when the
// paragraph does not match the statement pattern (including a matched but
// malformed date, which downgrades the paragraph to skipped).
func ParseParagraph(index int, text string) (models.Statement, bool) {
	norm := normalize(text)

	// Tie-break: of all date-like substrings, the first that parses as a
	// valid date anchors the statement.
	var date time.Time
	dateStart, dateEnd := -1, -1
	for _, loc := range dateRe.FindAllStringIndex(norm, -1) {
		d, err := parseDate(norm[loc[0]:loc[1]])
		if err != nil {
			continue
		}
		date, dateStart, dateEnd = d, loc[0], loc[1]
		break
	}
	if dateStart < 0 {
		return models.Statement{}, false
	}

	rest := norm[dateEnd:]
	trimmed := strings.TrimLeft(rest, " \t")
	if !strings.HasPrefix(trimmed, ",") {
		return models.Statement{}, false
	}
	trimmed = trimmed[1:]

	var pageRange *models.PageRange
	if m := pagesRe.FindStringSubmatchIndex(trimmed); m != nil {
		start, _ := strconv.Atoi(trimmed[m[2]:m[3]])
		end := start
		if m[4] >= 0 {
			end, _ = strconv.Atoi(trimmed[m[4]:m[5]])
		}
		pageRange = &models.PageRange{Start: start, End: end}
		trimmed = strings.TrimSpace(trimmed[:m[0]] + trimmed[m[1]:])
	}

	fields := strings.Split(trimmed, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) < 3 || fields[0] == "" || fields[1] == "" || fields[2] == "" {
		return models.Statement{}, false
	}

	raw := strings.TrimRight(norm[dateStart:], " \t")
	return models.Statement{
		Date:      date,
		Name:      fields[0],
		Address:   fields[1],
		Contact:   strings.Join(fields[2:], ", "),
		PageRange: pageRange,
		Source: models.SourcePosition{
			Paragraph: index,
			Offset:    utf8.RuneCountInString(norm[:dateStart]),
			Length:    utf8.RuneCountInString(raw),
		},
		RawText: raw,
	}, true
}

// normalize maps NBSP and unicode dash variants onto their ASCII forms.
// Replacements are rune-for-rune so source positions computed on the
// normalized text remain valid rune offsets into the original paragraph.
func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ':
			return ' '
		case '‐', '‑', '‒', '–', '—':
			return '-'
		}
		return r
	}, s)
}

var slashLayouts = []string{"01/02/2006", "01/02/06"}

// parseDate accepts MM/DD/YYYY, MM-DD-YYYY, YYYY-MM-DD and two-digit-year
// variants, normalizing to a canonical UTC date.
func parseDate(token string) (time.Time, error) {
	var layouts []string
	switch {
	case strings.Contains(token, "/"):
		layouts = slashLayouts
	case len(token) >= 4 && allDigits(token[:4]):
		layouts = []string{"2006-01-02"}
	default:
		layouts = []string{"01-02-2006", "01-02-06"}
	}

	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, token)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
