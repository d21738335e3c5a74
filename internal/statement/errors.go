package statement

import (
	"errors"
	"fmt"
)

// ErrMalformedFilename means the owning account number could not be
// determined from the upload filename. File-scoped: the whole upload fails.
var ErrMalformedFilename = errors.New("cannot determine account number from filename")

// ErrInconsistentCurrency means one file exhibits both the GEL and the USD
// amount pattern. File-scoped: the whole upload fails.
var ErrInconsistentCurrency = errors.New("statement mixes GEL and USD amount patterns")

// RowError reports a single malformed row. Row-scoped: the row is skipped
// and recorded, the rest of the file is still processed.
type RowError struct {
	Row   int    // 1-based line number in the file
	Field string // the missing or invalid field
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: malformed %s", e.Row, e.Field)
}
