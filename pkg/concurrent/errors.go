package concurrent

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrDuplicateSubscribe is signalled to a second subscriber of a
	// single-subscriber producer.
	ErrDuplicateSubscribe = errors.New("concurrent: duplicate subscribe")

	// ErrInvalidDemand is signalled when a subscriber requests n <= 0 items.
	ErrInvalidDemand = errors.New("concurrent: demand must be positive")

	// ErrExecutorClosed is returned when work is offered to a closed Executor.
	ErrExecutorClosed = errors.New("concurrent: executor closed")
)

// PanicError carries a value recovered from a panicking callback.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("concurrent: recovered panic: %v", e.Value)
}

// Unwrap returns the recovered value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func panicError(r any) error {
	return &PanicError{Value: r}
}

// call runs fn and converts a panic into an error.
func call[T any](fn func() T) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return fn(), nil
}

// reportLatePanic logs a panic that can no longer be delivered because the
// subscriber already saw its terminal signal.
func reportLatePanic(kind string, r any) {
	slog.Default().Error("panic after terminal signal", "producer", kind, "panic", r)
}
