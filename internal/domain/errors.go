package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the reconciliation engine. Webhook handlers catch all of
// these at the boundary; what reaches the external caller is dictated by the
// carrier/gateway contracts, not by these values.

// ErrNotFound is the benign "no matching record" resolution outcome. Carriers
// routinely push events for shipments created by unrelated test traffic.
var ErrNotFound = errors.New("record not found")

// ErrTransitionConflict marks an attempted status regression. The original
// state is preserved and the event is recorded in history only.
var ErrTransitionConflict = errors.New("transition conflict: status would regress")

// NormalizationError means the webhook body had no recognizable shape or
// status field. No state change happens.
type NormalizationError struct {
	Source EventSource
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("cannot normalize %s payload: %s", e.Source, e.Reason)
}

// TranslationGap means the entity resolved but the carrier status code is not
// in the canonical table. Tracking history is still updated; status is not.
type TranslationGap struct {
	StatusCode  int
	StatusLabel string
}

func (e *TranslationGap) Error() string {
	return fmt.Sprintf("unmapped carrier status code %d (%q)", e.StatusCode, e.StatusLabel)
}

// ExternalCallFailure wraps a carrier or gateway API error. It is never
// silently converted into success.
type ExternalCallFailure struct {
	System string // "carrier" or "gateway"
	Op     string
	Err    error
}

func (e *ExternalCallFailure) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.System, e.Op, e.Err)
}

func (e *ExternalCallFailure) Unwrap() error { return e.Err }

// PersistenceFailure is fatal for the current request. The contract is
// all-or-nothing: a partial write must never be left behind.
type PersistenceFailure struct {
	Op  string
	Err error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }
