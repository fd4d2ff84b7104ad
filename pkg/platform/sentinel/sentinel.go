package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// and the country service translates them into domain errors:
//   - ErrNotFound: no row with the requested key
//   - ErrConflict: the target key already belongs to another row
//
// Validation failures never use these; they are domain errors from the start.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
