package store

import "errors"

// Errors returned by Store operations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, store.ErrDuplicateIdentifier) {
//	    // IPN already taken
//	}
var (
	// ErrInvalidIdentifier is returned when an IPN does not match the
	// XXX-NNNN-AAAA pattern or its prefix is not the table's category code.
	ErrInvalidIdentifier = errors.New("invalid IPN")

	// ErrTableNotFound is returned when no CSV file exists for a table.
	ErrTableNotFound = errors.New("table not found")

	// ErrDuplicateIdentifier is returned when creating a record whose IPN
	// is already present in the table.
	ErrDuplicateIdentifier = errors.New("IPN already exists")

	// ErrNotFound is returned when no record matches a lookup.
	ErrNotFound = errors.New("part not found")

	// ErrMalformedTable is returned when a CSV file has no header, a header
	// that does not start with IPN, or rows with the wrong number of fields.
	ErrMalformedTable = errors.New("malformed table")
)

// IsClientError returns true if the error was caused by the caller's input
// rather than by the store itself (I/O failures, malformed files).
func IsClientError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrInvalidIdentifier) ||
		errors.Is(err, ErrTableNotFound) ||
		errors.Is(err, ErrDuplicateIdentifier) ||
		errors.Is(err, ErrNotFound)
}

// IsTableNotFound returns true if err indicates a missing table file.
func IsTableNotFound(err error) bool {
	return errors.Is(err, ErrTableNotFound)
}
