// Package errors provides structured error types for the isolates module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes context: the Go type involved, the isolate it refers to,
// and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseSession, errors.KindMainNamespaceUnavailable).
//		Isolate(3).
//		Detail("failed to get main namespace").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotShareable(errors.PhaseProduce, value, "")
//	err := errors.OwnerGone(ownerID)
//
// All errors implement the standard error interface and support errors.Is/As.
// OwnerGone is warning-class: it reports a leak but never aborts the caller.
package errors
