package table

import "errors"

var (
	// ErrSchemaMismatch is returned when an ingested row disagrees with the
	// declared columns: wrong arity, unparseable key or unsupported value type.
	ErrSchemaMismatch = errors.New("table: schema mismatch")

	// ErrIllegalState is returned for a nested or missing transaction and for
	// reads through a computer whose configuration is incomplete.
	ErrIllegalState = errors.New("table: illegal state")

	// ErrOutOfRange is returned for negative removal counts, inverted key
	// ranges and column indices outside the declared schema.
	ErrOutOfRange = errors.New("table: out of range")

	// ErrDuplicateField is returned when a mapping field or computer output
	// name is already taken.
	ErrDuplicateField = errors.New("table: duplicate field")
)
