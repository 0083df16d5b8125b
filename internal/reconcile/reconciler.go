// Package reconcile matches parsed statements to their uploaded artifacts and
// rewrites the source document's text runs into verified hyperlinks.
package reconcile

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/Lllllllleong/medicalrecordflow/internal/docx"
	"github.com/Lllllllleong/medicalrecordflow/internal/models"
)

// Document is the editing surface the reconciler needs: insert one hyperlink
// and read the written target back. Satisfied by *docx.Document.
type Document interface {
	InsertHyperlink(pos models.SourcePosition, url, expectedText string) error
	HyperlinkTarget(pos models.SourcePosition) (string, error)
}

// Pair associates a statement with the uploaded artifact its page range
// resolved to.
type Pair struct {
	StatementIndex int
	Statement      models.Statement
	Artifact       models.UploadedArtifact
}

// Report summarizes the link phase. Every input pair appears either in Linked
// or in Unlinked; nothing is silently dropped.
type Report struct {
	Linked   []Pair
	Unlinked []models.UnlinkedStatement
}

// Apply inserts one hyperlink per pair into doc. Insertions proceed in
// reverse document order so earlier edits never invalidate positions still to
// be processed. Each insertion is verified by reading the written target back;
// a mismatch is retried once, then the statement is reported unlinked. A
// failed pair never aborts the others.
func Apply(doc Document, pairs []Pair, log *slog.Logger) Report {
	ordered := make([]Pair, len(pairs))
	copy(ordered, pairs)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i].Statement.Source, ordered[j].Statement.Source
		if a.Paragraph != b.Paragraph {
			return a.Paragraph > b.Paragraph
		}
		return a.Offset > b.Offset
	})

	var report Report
	for _, pair := range ordered {
		if err := linkOne(doc, pair); err != nil {
			reason := "link insertion failed: " + err.Error()
			if errors.Is(err, docx.ErrRunNotFound) {
				reason = "text run not found: " + err.Error()
			}
			log.Warn("Statement left unlinked.",
				"statement", pair.StatementIndex,
				"range", rangeLabel(pair.Statement),
				"error", err,
			)
			report.Unlinked = append(report.Unlinked, models.UnlinkedStatement{
				StatementIndex: pair.StatementIndex,
				Range:          rangeLabel(pair.Statement),
				Reason:         reason,
			})
			continue
		}
		report.Linked = append(report.Linked, pair)
	}
	return report
}

// linkOne inserts and verifies a single hyperlink, retrying the insertion
// once when verification fails.
func linkOne(doc Document, pair Pair) error {
	pos := pair.Statement.Source
	locator := pair.Artifact.Locator

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := doc.InsertHyperlink(pos, locator, pair.Statement.RawText); err != nil {
			return err
		}

		target, err := doc.HyperlinkTarget(pos)
		if err == nil && target == locator {
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = errors.New("link verification failed: written target does not match locator")
		}
	}
	return lastErr
}

func rangeLabel(s models.Statement) string {
	if s.PageRange == nil {
		return ""
	}
	return s.PageRange.String()
}
