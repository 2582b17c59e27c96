package domain

import (
	"context"
	"errors"
	"fmt"
)

// ReasonCode is the machine-readable cause attached to layer failures and
// degradations. Reports surface these codes, never raw error text.
type ReasonCode string

const (
	ReasonNone               ReasonCode = ""
	ReasonInsufficientData   ReasonCode = "insufficient_data"
	ReasonDegenerateInput    ReasonCode = "degenerate_input"
	ReasonInvalidLayerOutput ReasonCode = "invalid_layer_output"
	ReasonTimeout            ReasonCode = "timeout"
	ReasonUpstreamError      ReasonCode = "upstream_error"
	ReasonMissingData        ReasonCode = "missing_data"
	ReasonNoUsableSignal     ReasonCode = "no_usable_signal"
)

// DomainError is a typed error carrying a reason code. Layer boundaries
// convert these into status flags; only NoUsableSignal escapes aggregation.
type DomainError struct {
	Code   ReasonCode
	Op     string
	Detail string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Op, e.Code, e.Detail)
}

// Is matches two domain errors by reason code so errors.Is works against
// the exported sentinels below regardless of Op/Detail.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// Sentinels for errors.Is matching
var (
	ErrInsufficientData   = &DomainError{Code: ReasonInsufficientData}
	ErrDegenerateInput    = &DomainError{Code: ReasonDegenerateInput}
	ErrInvalidLayerOutput = &DomainError{Code: ReasonInvalidLayerOutput}
	ErrNoUsableSignal     = &DomainError{Code: ReasonNoUsableSignal}
)

// NewInsufficientData builds an InsufficientData error for the given operation
func NewInsufficientData(op, detail string) error {
	return &DomainError{Code: ReasonInsufficientData, Op: op, Detail: detail}
}

// NewDegenerateInput builds a DegenerateInput error for the given operation
func NewDegenerateInput(op, detail string) error {
	return &DomainError{Code: ReasonDegenerateInput, Op: op, Detail: detail}
}

// NewInvalidLayerOutput builds an InvalidLayerOutput error for the given operation
func NewInvalidLayerOutput(op, detail string) error {
	return &DomainError{Code: ReasonInvalidLayerOutput, Op: op, Detail: detail}
}

// NewNoUsableSignal builds the fatal all-layers-down error
func NewNoUsableSignal(op, detail string) error {
	return &DomainError{Code: ReasonNoUsableSignal, Op: op, Detail: detail}
}

// ReasonOf extracts the reason code from an error chain. Errors without a
// DomainError in the chain map to upstream_error, and context timeouts to
// timeout, so callers always get a reportable code.
func ReasonOf(err error) ReasonCode {
	if err == nil {
		return ReasonNone
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonUpstreamError
}
