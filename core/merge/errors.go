package merge

import (
	"errors"
	"fmt"
)

var (
	// ErrTableNotFound is returned when the catalog reports no columns for the target table.
	ErrTableNotFound = errors.New("table not found")
	// ErrNoDescriptor is returned when no descriptor is registered for a record type.
	ErrNoDescriptor = errors.New("no descriptor registered")
	// ErrNoPrimaryKey is returned when update, upsert or delete cannot resolve a primary key.
	ErrNoPrimaryKey = errors.New("no primary key")
)

// Step names the orchestration step an operation failed in.
type Step string

const (
	StepConnection Step = "connection"
	StepMetadata   Step = "metadata"
	StepStaging    Step = "staging"
	StepTransfer   Step = "transfer"
	StepStatement  Step = "statement"
	StepIdentity   Step = "identity"
)

// Error reports a failed bulk operation together with the step that failed.
// The underlying database or conversion error is available through Unwrap.
type Error struct {
	Kind  Kind
	Step  Step
	Table string
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("bulk %s failed at %s: %v", e.Kind, e.Step, e.Err)
	}
	return fmt.Sprintf("bulk %s on %s failed at %s: %v", e.Kind, e.Table, e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }
