package pagerange

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/medicalrecordflow/internal/models"
)

func TestParseManual_AllValid(t *testing.T) {
	results := ParseManual("1-3;4-6;7-8", 10)
	require.Len(t, results, 3)

	want := []models.PageRange{{Start: 1, End: 3}, {Start: 4, End: 6}, {Start: 7, End: 8}}
	for i, r := range results {
		assert.True(t, r.Valid(), "token %q", r.Token)
		assert.Equal(t, want[i], r.Range)
	}
}

func TestParseManual_PartialFailure(t *testing.T) {
	// One bad token never invalidates its siblings.
	results := ParseManual("1-3; 9-12", 10)
	require.Len(t, results, 2)

	assert.True(t, results[0].Valid())

	require.False(t, results[1].Valid())
	var oob *OutOfBoundsError
	require.ErrorAs(t, results[1].Err, &oob)
	assert.Equal(t, 10, oob.TotalPages)
}

func TestParseManual_SinglePageToken(t *testing.T) {
	results := ParseManual("4", 10)
	require.Len(t, results, 1)
	require.True(t, results[0].Valid())
	assert.Equal(t, models.PageRange{Start: 4, End: 4}, results[0].Range)
}

func TestParseManual_EmptyTokensSkipped(t *testing.T) {
	results := ParseManual(";;1-2;", 10)
	require.Len(t, results, 1)
	assert.Equal(t, models.PageRange{Start: 1, End: 2}, results[0].Range)
}

func TestParseToken_Malformed(t *testing.T) {
	for _, tok := range []string{"abc", "1-2-3", "1..3", "-4", ""} {
		_, err := ParseToken(tok)
		var parseErr *ParseError
		assert.ErrorAs(t, err, &parseErr, "token %q", tok)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		r       models.PageRange
		total   int
		wantErr error
	}{
		{"in bounds", models.PageRange{Start: 1, End: 10}, 10, nil},
		{"zero start", models.PageRange{Start: 0, End: 3}, 10, &OutOfBoundsError{}},
		{"past end", models.PageRange{Start: 8, End: 11}, 10, &OutOfBoundsError{}},
		{"inverted", models.PageRange{Start: 5, End: 2}, 10, &InvertedError{}},
		// Inversion wins over bounds so the message names the real mistake.
		{"inverted and out of bounds", models.PageRange{Start: 9, End: 3}, 5, &InvertedError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.r, tt.total)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			switch tt.wantErr.(type) {
			case *OutOfBoundsError:
				var e *OutOfBoundsError
				assert.True(t, errors.As(err, &e))
			case *InvertedError:
				var e *InvertedError
				assert.True(t, errors.As(err, &e))
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "1-3; 4-6", Normalize("1–3; 4–6"))
	assert.Equal(t, "1-2", Normalize("  1-2  "))
}

func TestParseManual_UnicodeDashes(t *testing.T) {
	results := ParseManual("1–3;4—6", 10)
	require.Len(t, results, 2)
	assert.True(t, results[0].Valid())
	assert.True(t, results[1].Valid())
	assert.Equal(t, models.PageRange{Start: 4, End: 6}, results[1].Range)
}
