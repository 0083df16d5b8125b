// Package split produces one PDF artifact per validated page range, with
// content-hash deduplication so the split phase is idempotent under retry.
package split

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/medicalrecordflow/internal/models"
)

// ErrSourceCorrupt marks an input PDF that cannot be parsed. Fatal for the
// whole run.
var ErrSourceCorrupt = errors.New("source PDF cannot be parsed")

// Splitter splits one source PDF inside a run-scoped working directory. It is
// not safe for concurrent use; the orchestrator drives the split phase
// sequentially.
type Splitter struct {
	workDir       string
	sourcePath    string
	pageCount     int
	byRange       map[string]*models.SplitArtifact
	byFingerprint map[string]*models.SplitArtifact
}

// New validates the source PDF, optimizes it into workDir and reads its page
// count. A PDF pdfcpu cannot validate yields ErrSourceCorrupt.
func New(sourcePDF []byte, workDir string) (*Splitter, error) {
	rawPath := filepath.Join(workDir, "source.pdf")
	if err := os.WriteFile(rawPath, sourcePDF, 0o644); err != nil {
		return nil, fmt.Errorf("failed to stage source PDF: %w", err)
	}

	optimizedPath := filepath.Join(workDir, "optimized.pdf")
	if err := optimizePDF(rawPath, optimizedPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceCorrupt, err)
	}

	pageCount, err := api.PageCountFile(optimizedPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceCorrupt, err)
	}

	return &Splitter{
		workDir:       workDir,
		sourcePath:    optimizedPath,
		pageCount:     pageCount,
		byRange:       make(map[string]*models.SplitArtifact),
		byFingerprint: make(map[string]*models.SplitArtifact),
	}, nil
}

// PageCount returns the total page count of the optimized source PDF.
func (s *Splitter) PageCount() int {
	return s.pageCount
}

// Split extracts pages [r.Start, r.End] into "<start>-<end>.pdf", preserving
// embedded text and metadata, and fingerprints the output bytes. Splitting the
// same range twice returns the earlier artifact, and a byte-identical output
// for a different range is superseded by the first artifact with that
// fingerprint: no duplicate disk write, same locator downstream.
func (s *Splitter) Split(r models.PageRange) (*models.SplitArtifact, error) {
	if a, ok := s.byRange[r.String()]; ok {
		return a, nil
	}

	// Should not occur post-validation, but a stale range must fail only
	// itself, never the run.
	if r.Start < 1 || r.End > s.pageCount || r.Start > r.End {
		return nil, fmt.Errorf("range %s outside 1-%d", r, s.pageCount)
	}

	outPath := filepath.Join(s.workDir, r.String()+".pdf")
	if err := api.TrimFile(s.sourcePath, outPath, []string{r.String()}, relaxedConf()); err != nil {
		return nil, fmt.Errorf("failed to split range %s: %w", r, err)
	}

	fingerprint, size, err := fingerprintFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint %s: %w", outPath, err)
	}

	if existing, ok := s.byFingerprint[fingerprint]; ok {
		// Byte-identical to an earlier artifact: drop the new file and
		// reuse the original.
		if err := os.Remove(outPath); err != nil {
			slog.Warn("Failed to remove superseded split output.", "path", outPath, "error", err)
		}
		s.byRange[r.String()] = existing
		return existing, nil
	}

	artifact := &models.SplitArtifact{
		Range:       r,
		Fingerprint: fingerprint,
		ByteSize:    size,
		LocalPath:   outPath,
	}
	s.byRange[r.String()] = artifact
	s.byFingerprint[fingerprint] = artifact
	return artifact, nil
}

// Artifacts returns the distinct artifacts produced so far, keyed by range.
func (s *Splitter) Artifacts() map[string]*models.SplitArtifact {
	return s.byRange
}

func optimizePDF(inPath, outPath string) error {
	return api.OptimizeFile(inPath, outPath, relaxedConf())
}

func relaxedConf() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

func fingerprintFile(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()
	hash := sha256.New()
	size, err := io.Copy(hash, file)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hash.Sum(nil)), size, nil
}
