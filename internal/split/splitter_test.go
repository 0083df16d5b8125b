package split

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/medicalrecordflow/internal/models"
	"github.com/Lllllllleong/medicalrecordflow/internal/testutil"
)

func fivePagePDF() []byte {
	return testutil.BuildPDF([]string{
		"Page one", "Page two", "Page three", "Page four", "Page five",
	})
}

func TestNew_ReadsPageCount(t *testing.T) {
	s, err := New(fivePagePDF(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 5, s.PageCount())
}

func TestNew_CorruptSource(t *testing.T) {
	_, err := New([]byte("not a pdf at all"), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceCorrupt)
}

func TestSplit_ProducesArtifact(t *testing.T) {
	s, err := New(fivePagePDF(), t.TempDir())
	require.NoError(t, err)

	artifact, err := s.Split(models.PageRange{Start: 2, End: 4})
	require.NoError(t, err)

	assert.Equal(t, "2-4", artifact.Range.String())
	assert.NotEmpty(t, artifact.Fingerprint)
	assert.Positive(t, artifact.ByteSize)

	info, err := os.Stat(artifact.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, artifact.ByteSize, info.Size())
}

func TestSplit_SameRangeIsIdempotent(t *testing.T) {
	s, err := New(fivePagePDF(), t.TempDir())
	require.NoError(t, err)

	first, err := s.Split(models.PageRange{Start: 1, End: 2})
	require.NoError(t, err)
	second, err := s.Split(models.PageRange{Start: 1, End: 2})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Len(t, s.Artifacts(), 1)
}

func TestSplit_OutOfBoundsFailsOnlyItself(t *testing.T) {
	s, err := New(fivePagePDF(), t.TempDir())
	require.NoError(t, err)

	_, err = s.Split(models.PageRange{Start: 4, End: 9})
	require.Error(t, err)

	// The splitter stays usable for valid ranges.
	artifact, err := s.Split(models.PageRange{Start: 5, End: 5})
	require.NoError(t, err)
	assert.Equal(t, "5-5", artifact.Range.String())
}

func TestSplit_DistinctRangesDistinctArtifacts(t *testing.T) {
	s, err := New(fivePagePDF(), t.TempDir())
	require.NoError(t, err)

	a, err := s.Split(models.PageRange{Start: 1, End: 1})
	require.NoError(t, err)
	b, err := s.Split(models.PageRange{Start: 2, End: 2})
	require.NoError(t, err)

	assert.NotEqual(t, a.Fingerprint, b.Fingerprint)
	assert.Len(t, s.Artifacts(), 2)
}
