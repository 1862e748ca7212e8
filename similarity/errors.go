package similarity

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkerFailure is matched by every *WorkerError
	ErrWorkerFailure = errors.New("similarity: worker failure")
	// ErrInvalidK is returned by TopK for k <= 0
	ErrInvalidK = errors.New("k must be positive")
)

// WorkerError reports a comparison whose compute task could not complete:
// the pool was closed or the task panicked
type WorkerError struct {
	Project string
	Err     error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("similarity: compare in project %s: worker failure: %v", e.Project, e.Err)
}

func (e *WorkerError) Unwrap() []error { return []error{ErrWorkerFailure, e.Err} }
