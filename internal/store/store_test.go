package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.pdf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFolderPath(t *testing.T) {
	date := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t,
		[]string{"2026", "January", "15 January 2026", "John_Doe", "splits"},
		FolderPath(date, "John Doe"),
	)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "John_Doe", SanitizeName("John Doe"))
	assert.Equal(t, "A_B_C", SanitizeName(`A/B:C`))
	assert.Equal(t, "Jane", SanitizeName("  Jane  "))
}

func TestMemoryStore_EnsureFolderDeterministic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.EnsureFolder(ctx, []string{"2026", "January", "splits"})
	require.NoError(t, err)
	second, err := s.EnsureFolder(ctx, []string{"2026", "January", "splits"})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := s.EnsureFolder(ctx, []string{"2026", "February", "splits"})
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestMemoryStore_UploadDedupByFingerprint(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	path := writeTempFile(t, "identical bytes")

	folder, err := s.EnsureFolder(ctx, []string{"2026", "splits"})
	require.NoError(t, err)

	first, err := s.Upload(ctx, path, "fp-1", folder, "1-3.pdf")
	require.NoError(t, err)
	second, err := s.Upload(ctx, path, "fp-1", folder, "4-6.pdf")
	require.NoError(t, err)

	// Identical content resolves to the same remote artifact and locator.
	assert.Equal(t, first.Locator, second.Locator)
	assert.Equal(t, 1, s.ArtifactCount())
	assert.Equal(t, 2, s.UploadCount())
}

func TestMemoryStore_FindByFingerprint(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	path := writeTempFile(t, "content")

	_, found, err := s.FindByFingerprint(ctx, "fp-9")
	require.NoError(t, err)
	assert.False(t, found)

	uploaded, err := s.Upload(ctx, path, "fp-9", "folder-1", "1-1.pdf")
	require.NoError(t, err)

	got, found, err := s.FindByFingerprint(ctx, "fp-9")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uploaded, got)
}

func TestMemoryStore_UploadMissingFile(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), "fp", "folder-1", "x.pdf")
	assert.Error(t, err)
}
