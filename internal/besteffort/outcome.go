// Package besteffort models the result of calls whose failure must never
// abort the surrounding operation: the platform metadata lookup, the external
// ledger submission and the report archive upload.
//
// Instead of catching and discarding errors at each call site, collaborators
// return an Outcome that carries either a value or the reason it is missing.
package besteffort

import "fmt"

// Status classifies an Outcome.
type Status string

const (
	// StatusOK means the call succeeded and Value is meaningful.
	StatusOK Status = "ok"
	// StatusSkipped means the call was not attempted (e.g. no credential).
	StatusSkipped Status = "skipped"
	// StatusUnavailable means the collaborator could not be reached or
	// answered outside the success range.
	StatusUnavailable Status = "unavailable"
	// StatusFailed means the collaborator answered but the call failed.
	StatusFailed Status = "failed"
)

// Outcome is the result of a best-effort call.
type Outcome[T any] struct {
	Value  T
	Status Status
	Err    error
}

func OK[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v, Status: StatusOK}
}

func Skipped[T any](reason string) Outcome[T] {
	return Outcome[T]{Status: StatusSkipped, Err: fmt.Errorf("skipped: %s", reason)}
}

func Unavailable[T any](err error) Outcome[T] {
	return Outcome[T]{Status: StatusUnavailable, Err: err}
}

func Failed[T any](err error) Outcome[T] {
	return Outcome[T]{Status: StatusFailed, Err: err}
}

// Ok reports whether the call produced a value.
func (o Outcome[T]) Ok() bool {
	return o.Status == StatusOK
}

// Or returns the value when the call succeeded and fallback otherwise.
func (o Outcome[T]) Or(fallback T) T {
	if o.Ok() {
		return o.Value
	}
	return fallback
}

// Ptr returns a pointer to the value, or nil when the call did not succeed.
// It maps directly onto nullable fields such as a transaction hash.
func (o Outcome[T]) Ptr() *T {
	if !o.Ok() {
		return nil
	}
	v := o.Value
	return &v
}
