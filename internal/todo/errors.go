package todo

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation reports an empty or malformed required field.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound reports an operation on an id the store does not hold.
	ErrNotFound = errors.New("todo not found")
	// ErrUnauthorized reports an actor changing a todo they do not own.
	ErrUnauthorized = errors.New("not the owner of this todo")
	// ErrPersistence is matched by every *PersistenceError.
	ErrPersistence = errors.New("persistence failed")
)

// PersistenceError is an adapter failure. The in-memory state it leaves
// behind depends on the store's rollback setting.
type PersistenceError struct {
	Op         string
	ID         string
	RolledBack bool
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
