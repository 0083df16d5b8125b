package models

import (
	"fmt"
	"time"
)

// PageRange is an inclusive, 1-indexed page interval of the source PDF.
type PageRange struct {
	Start int `json:"start" firestore:"start"`
	End   int `json:"end" firestore:"end"`
}

// String renders the range in the "start-end" form used for artifact names.
func (r PageRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Pages returns the number of pages covered by the range.
func (r PageRange) Pages() int {
	return r.End - r.Start + 1
}

// SourcePosition locates a matched text run inside the source document.
// It is computed from the paragraph index and the rune offset of the match,
// so it stays valid when the document is re-parsed in another process.
type SourcePosition struct {
	Paragraph int `json:"paragraph" firestore:"paragraph"`
	Offset    int `json:"offset" firestore:"offset"`
	Length    int `json:"length" firestore:"length"`
}

// Statement is one parsed patient record extracted from the source document.
// A Statement without a page range is unresolved: it cannot progress past the
// split phase until a range is supplied manually.
type Statement struct {
	Date      time.Time      `json:"date" firestore:"date"`
	Name      string         `json:"name" firestore:"name"`
	Address   string         `json:"address" firestore:"address"`
	Contact   string         `json:"contact" firestore:"contact"`
	PageRange *PageRange     `json:"pageRange,omitempty" firestore:"pageRange,omitempty"`
	Source    SourcePosition `json:"source" firestore:"source"`
	RawText   string         `json:"rawText" firestore:"rawText"`
}

// Resolved reports whether the statement carries a page range.
func (s *Statement) Resolved() bool {
	return s.PageRange != nil
}

// SplitArtifact is one PDF section produced by the splitter. It becomes
// immutable once fingerprinted; the local file lives in the run's temp
// workspace and is deleted at pipeline teardown.
type SplitArtifact struct {
	Range       PageRange `json:"range" firestore:"range"`
	Fingerprint string    `json:"fingerprint" firestore:"fingerprint"`
	ByteSize    int64     `json:"byteSize" firestore:"byteSize"`
	LocalPath   string    `json:"-" firestore:"-"`
}

// UploadedArtifact records the remote locator for a split artifact. Keyed by
// fingerprint: the same fingerprint always resolves to the same locator.
type UploadedArtifact struct {
	Locator     string `json:"locator" firestore:"locator"`
	Fingerprint string `json:"fingerprint" firestore:"fingerprint"`
	FolderPath  string `json:"folderPath" firestore:"folderPath"`
}
