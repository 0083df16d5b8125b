package pagerange

import (
	"fmt"

	"github.com/Lllllllleong/medicalrecordflow/internal/models"
)

// ParseError reports a malformed numeric token in a page-range expression.
type ParseError struct {
	Token string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid page range %q: use forms like 1-4 or 55", e.Token)
}

// OutOfBoundsError reports a range outside [1, totalPages].
type OutOfBoundsError struct {
	Range      models.PageRange
	TotalPages int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("page range %s out of bounds for a %d-page document", e.Range, e.TotalPages)
}

// InvertedError reports a range whose start exceeds its end.
type InvertedError struct {
	Range models.PageRange
}

func (e *InvertedError) Error() string {
	return fmt.Sprintf("page range %s is inverted: start exceeds end", e.Range)
}
