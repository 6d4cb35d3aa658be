package contextmem

import (
	"errors"
	"fmt"
)

// Common errors for context memory operations.
var (
	// ErrNotFound indicates no item exists for a (category, key) pair.
	ErrNotFound = errors.New("context item not found")

	// ErrInvalidData indicates a rejected write: empty or oversized value,
	// unknown category or source, or metadata that does not fit the category.
	ErrInvalidData = errors.New("invalid context data")

	// ErrSaveFailed wraps a persistence error during insert or update.
	ErrSaveFailed = errors.New("saving context item failed")

	// ErrFetchFailed wraps a persistence error during a read.
	ErrFetchFailed = errors.New("fetching context items failed")

	// ErrDeleteFailed wraps a persistence error during deletion.
	ErrDeleteFailed = errors.New("deleting context item failed")

	// ErrNotConfirmed indicates a bulk forget was requested without the
	// confirmed flag.
	ErrNotConfirmed = errors.New("bulk forget requires confirmation")
)

func invalidDataf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidData, fmt.Sprintf(format, args...))
}

func saveFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrSaveFailed, err)
}

func fetchFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrFetchFailed, err)
}

func deleteFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
}

// notFound builds an ErrNotFound carrying the missing identity.
func notFound(category Category, key string) error {
	return fmt.Errorf("%w: %s/%s", ErrNotFound, category, key)
}
