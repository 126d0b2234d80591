// Package llm provides text-generation backends for the translation engine.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for generation backends.
var (
	ErrBackendUnavailable = errors.New("generation backend unavailable")
	ErrModelNotFound      = errors.New("generation model not found")
	ErrEmptyPrompt        = errors.New("cannot generate from empty prompt")
	ErrContextCanceled    = errors.New("generation canceled")
)

// StreamFunc receives response fragments in emission order. Returning an
// error stops consumption and fails the generation call.
type StreamFunc func(fragment string) error

// Generator defines the interface for text-generation backends.
type Generator interface {
	// Generate submits a prompt and blocks until the full response is ready.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStream submits a prompt and invokes fn for every fragment as
	// it arrives, returning the accumulated full response. Fragments are
	// delivered in emission order with no reordering or loss.
	GenerateStream(ctx context.Context, prompt string, fn StreamFunc) (string, error)

	// Model returns the generation model identifier.
	Model() string

	// Ping checks the backend is reachable and the model is available.
	Ping(ctx context.Context) error
}

// BackendError wraps errors with backend context.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// NewBackendError creates a new BackendError.
func NewBackendError(backend, op string, err error) error {
	return &BackendError{
		Backend: backend,
		Op:      op,
		Err:     err,
	}
}
