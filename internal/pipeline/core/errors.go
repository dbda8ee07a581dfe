// Package core defines the stage-job contract: the Stage interface, stage
// results and metrics, shared dependencies, and the classified error model
// the runner translates into state transitions.
package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/enliterate-io/enliterate/internal/services"
)

// Kind classifies a stage error. The runner is the only consumer: kinds
// decide between retry, run failure, and no-op.
type Kind string

const (
	// KindInvalidInput covers content or field validation failures. Per-item
	// non-retriable; the item fails the stage while the stage continues.
	KindInvalidInput Kind = "invalid_input"
	// KindPrecondition covers batch-fatal misuse of a collaborator, such as
	// mixing schema and data operations in one graph transaction.
	KindPrecondition Kind = "precondition_failure"
	// KindExternalTransient covers timeouts, 5xx responses, and databases
	// not yet online. Retriable with backoff.
	KindExternalTransient Kind = "external_transient"
	// KindExternalPermanent covers authentication failures and unknown
	// models. Fails the run immediately.
	KindExternalPermanent Kind = "external_permanent"
	// KindIntegrity covers integrity verifier errors after graph assembly.
	KindIntegrity Kind = "integrity_failure"
	// KindStateConflict covers redundant state transitions. State no-op; the
	// error message is still recorded.
	KindStateConflict Kind = "state_transition_conflict"
)

// Retriable reports whether the runner may retry a stage after this kind.
func (k Kind) Retriable() bool {
	return k == KindExternalTransient
}

// Error is a classified stage error.
type Error struct {
	Kind  Kind
	Stage int
	Err   error
}

// Errorf builds a classified stage error.
func Errorf(kind Kind, stage int, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Err: fmt.Errorf(format, args...)}
}

// WrapError classifies err for the given stage. Service sentinel errors and
// context deadlines map onto their kinds; anything unrecognized is treated
// as transient so a retry gets a chance before an operator does.
func WrapError(stage int, err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	kind := KindExternalTransient
	switch {
	case errors.Is(err, services.ErrRejected):
		kind = KindExternalPermanent
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindExternalTransient
	case errors.Is(err, services.ErrUnavailable):
		kind = KindExternalTransient
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the kind from err, defaulting to external_transient.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindExternalTransient
}
