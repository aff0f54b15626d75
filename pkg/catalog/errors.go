package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the upstream has no record for the request.
	ErrNotFound = errors.New("catalog record not found")

	// ErrMalformed indicates a record that cannot be used (undecodable or
	// missing its identity). It is treated as absent.
	ErrMalformed = fmt.Errorf("malformed catalog record: %w", ErrNotFound)
)

// StatusError reports an upstream answer that is neither success nor 404,
// typically the last response of an exhausted retry sequence.
type StatusError struct {
	Resource   string
	StatusCode int
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog %s: unexpected status %d", e.Resource, e.StatusCode)
}
