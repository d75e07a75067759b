package listing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSortField is returned when the requested sort field is not in the entity allow-list.
	ErrInvalidSortField = errors.New("invalid sort field")
	// ErrUnknownEntity is returned when no definition is registered for a namespace.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrInvalidDefinition is returned when an entity definition is inconsistent.
	ErrInvalidDefinition = errors.New("invalid entity definition")
)

// Query phases reported by QueryExecutionError.
const (
	PhaseQuery = "query"
	PhaseCount = "count"
)

// QueryExecutionError reports a store failure while retrieving a page or its count.
type QueryExecutionError struct {
	Entity string
	Phase  string
	Err    error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("listing %s: %s failed: %v", e.Entity, e.Phase, e.Err)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }
