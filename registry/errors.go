package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every unknown-project error
	ErrNotFound = errors.New("project not found")
	// ErrInvalidName is returned for names that are not a single path element
	ErrInvalidName = errors.New("invalid project name")
)

// ErrProjectNotFound names the project that was looked up
type ErrProjectNotFound struct {
	Name string
}

func (e *ErrProjectNotFound) Error() string {
	return fmt.Sprintf("project <%s> not found in current database", e.Name)
}

func (e *ErrProjectNotFound) Is(target error) bool { return target == ErrNotFound }
