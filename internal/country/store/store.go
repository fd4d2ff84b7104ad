// Package store holds the country store implementations. Every
// implementation keys rows by exact country name and reports missing rows with
// sentinel.ErrNotFound and key collisions on rename with sentinel.ErrConflict.
package store

import (
	"countries/pkg/platform/sentinel"
)

// ErrNotFound is returned when no row matches the requested key.
var ErrNotFound = sentinel.ErrNotFound

// ErrConflict is returned when a rename targets a key owned by another row.
var ErrConflict = sentinel.ErrConflict
