// Package pagerange parses and validates page-range expressions against a
// PDF's page count. Validation is deliberately separate from statement parsing
// and from splitting, so the orchestrator can report "13 statements found, 11
// with valid ranges, 2 need manual entry" without re-deriving ranges.
package pagerange

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Lllllllleong/medicalrecordflow/internal/models"
)

var (
	tokenRe = regexp.MustCompile(`^(\d+)(?:\s*-\s*(\d+))?$`)
	wsRe    = regexp.MustCompile(`\s+`)
)

// TokenResult is the per-token outcome of parsing a manual range expression.
// A failed token never invalidates its siblings.
type TokenResult struct {
	Token string
	Range models.PageRange
	Err   error
}

// Valid reports whether the token parsed and validated cleanly.
func (t TokenResult) Valid() bool { return t.Err == nil }

// ParseManual parses a semicolon-separated manual page-range expression, e.g.
// "1-3;4-6;7-8", validating each token against totalPages. A bare page number
// "4" is accepted as the single-page range 4-4.
func ParseManual(spec string, totalPages int) []TokenResult {
	spec = Normalize(spec)

	var results []TokenResult
	for _, tok := range strings.Split(spec, ";") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}

		r, err := ParseToken(tok)
		if err == nil {
			err = Validate(r, totalPages)
		}
		results = append(results, TokenResult{Token: tok, Range: r, Err: err})
	}
	return results
}

// ParseToken parses a single "start-end" or "page" token.
func ParseToken(tok string) (models.PageRange, error) {
	m := tokenRe.FindStringSubmatch(strings.TrimSpace(tok))
	if m == nil {
		return models.PageRange{}, &ParseError{Token: tok}
	}

	start, err := strconv.Atoi(m[1])
	if err != nil {
		return models.PageRange{}, &ParseError{Token: tok}
	}
	end := start
	if m[2] != "" {
		if end, err = strconv.Atoi(m[2]); err != nil {
			return models.PageRange{}, &ParseError{Token: tok}
		}
	}
	return models.PageRange{Start: start, End: end}, nil
}

// Validate checks a range against the document's page count. Inversion is
// reported before bounds so "9-3" on a 5-page document reads as inverted, not
// out of bounds.
func Validate(r models.PageRange, totalPages int) error {
	if r.Start > r.End {
		return &InvertedError{Range: r}
	}
	if r.Start < 1 || r.End > totalPages {
		return &OutOfBoundsError{Range: r, TotalPages: totalPages}
	}
	return nil
}

// Normalize maps NBSP and unicode dash variants to ASCII and collapses
// whitespace, so copy-pasted specs from word processors parse cleanly.
func Normalize(s string) string {
	s = strings.NewReplacer(
		" ", " ",
		"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-",
	).Replace(s)
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}
