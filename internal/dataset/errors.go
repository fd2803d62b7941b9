package dataset

import "errors"

var (
	// ErrEmpty is returned when an operation needs at least one row.
	ErrEmpty = errors.New("dataset has no rows")

	// ErrUnknownColumn is returned when a column name is not in the dataset.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrDuplicateColumn is returned when two columns share a name.
	ErrDuplicateColumn = errors.New("duplicate column name")

	// ErrRaggedColumns is returned when columns have different lengths.
	ErrRaggedColumns = errors.New("columns have different lengths")

	// ErrUnsupportedFormat is returned for files that are neither CSV nor JSON.
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
)
