// Package store abstracts remote artifact storage down to the three
// operations the pipeline needs: upload a file, look up a prior upload by
// content fingerprint, and ensure a deterministic folder hierarchy exists.
package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Lllllllleong/medicalrecordflow/internal/models"
)

// ArtifactStore is the only interface the pipeline requires from remote
// storage. Upload is at-least-once from the caller's perspective: callers
// check FindByFingerprint first, and a second upload of identical content is
// wasteful but never a correctness violation.
type ArtifactStore interface {
	// EnsureFolder resolves the hierarchy path to a folder handle, creating
	// missing levels. Deterministic: the same path always resolves to the
	// same folder.
	EnsureFolder(ctx context.Context, path []string) (string, error)

	// Upload stores the local file under folderID and returns a stable
	// locator, recording the fingerprint for later dedup lookups.
	Upload(ctx context.Context, localPath, fingerprint, folderID, name string) (models.UploadedArtifact, error)

	// FindByFingerprint returns the locator of a previously uploaded
	// artifact with identical content, if one exists.
	FindByFingerprint(ctx context.Context, fingerprint string) (models.UploadedArtifact, bool, error)
}

var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// FolderPath derives the deterministic artifact hierarchy for a statement:
// year / month name / "D Month YYYY" / patient name / splits. Repeated runs
// for the same (date, name) always land artifacts in the same folder.
func FolderPath(date time.Time, patientName string) []string {
	monthName := date.Month().String()
	return []string{
		fmt.Sprintf("%d", date.Year()),
		monthName,
		fmt.Sprintf("%d %s %d", date.Day(), monthName, date.Year()),
		SanitizeName(patientName),
		"splits",
	}
}

// SanitizeName converts a patient name into a filesystem- and Drive-safe
// folder component.
func SanitizeName(name string) string {
	name = unsafeChars.ReplaceAllString(strings.TrimSpace(name), "_")
	return strings.ReplaceAll(name, " ", "_")
}
