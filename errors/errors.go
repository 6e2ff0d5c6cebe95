package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseRegistry    Phase = "registry"    // producer registration and lookup
	PhaseProduce     Phase = "produce"     // live value to handle
	PhaseReconstruct Phase = "reconstruct" // handle to live value
	PhaseRelease     Phase = "release"     // payload teardown
	PhaseNamespace   Phase = "namespace"   // shared namespace operations
	PhaseSession     Phase = "session"     // enter/exit of an isolate
	PhaseCapture     Phase = "capture"     // exception snapshots
	PhaseHeap        Phase = "heap"        // isolate-local allocation
	PhaseIsolate     Phase = "isolate"     // isolate lifecycle
	PhaseConfig      Phase = "config"      // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindNotShareable             Kind = "not_shareable"
	KindAllocation               Kind = "allocation"
	KindAlreadyRunning           Kind = "already_running"
	KindMainNamespaceUnavailable Kind = "main_namespace_unavailable"
	KindApplyNamespaceFailed     Kind = "apply_namespace_failed"
	KindUncaughtException        Kind = "uncaught_exception"
	KindOwnerGone                Kind = "owner_gone"
	KindOther                    Kind = "other"
	KindInvalidHandle            Kind = "invalid_handle"
	KindInvalidInput             Kind = "invalid_input"
	KindOverflow                 Kind = "overflow"
	KindRegistration             Kind = "registration"
	KindClosed                   Kind = "closed"
	KindNotFound                 Kind = "not_found"
)

// typeNames maps kinds to the failure names reported across isolates.
var typeNames = map[Kind]string{
	KindNotShareable:             "NotShareableError",
	KindAllocation:               "MemoryError",
	KindAlreadyRunning:           "InterpreterError",
	KindMainNamespaceUnavailable: "RuntimeError",
	KindApplyNamespaceFailed:     "RuntimeError",
	KindOverflow:                 "OverflowError",
	KindInvalidInput:             "ValueError",
	KindOwnerGone:                "ResourceWarning",
}

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	GoType   string
	Detail   string
	Isolate  int64
	HasOwner bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.HasOwner {
		b.WriteString(" isolate ")
		fmt.Fprintf(&b, "%d", e.Isolate)
	}

	if e.GoType != "" {
		b.WriteString(": Go type ")
		b.WriteString(e.GoType)
	}

	if e.Detail != "" {
		if e.GoType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// TypeName returns the failure name used when the error is snapshotted.
func (e *Error) TypeName() string {
	if name, ok := typeNames[e.Kind]; ok {
		return name
	}
	return "RuntimeError"
}

// Warning reports whether the error is a recoverable, report-only condition.
func (e *Error) Warning() bool {
	return e.Kind == KindOwnerGone
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Isolate sets the isolate the error refers to
func (b *Builder) Isolate(id int64) *Builder {
	b.err.Isolate = id
	b.err.HasOwner = true
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// IsKind reports whether any *Error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if stderrors.As(err, &e) {
			if e.Kind == kind {
				return true
			}
			err = e.Cause
			continue
		}
		return false
	}
	return false
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsWarning reports whether err is a warning-class *Error.
func IsWarning(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Warning()
}

// Convenience constructors for common error patterns

// NotShareable creates the error raised when a value has no registered producer.
// With a nil value and empty msg the generic message is used.
func NotShareable(phase Phase, value any, msg string) *Error {
	detail := msg
	if detail == "" {
		if value == nil {
			detail = "object does not support cross-isolate data"
		} else {
			detail = fmt.Sprintf("%v does not support cross-isolate data", describe(value))
		}
	}
	return &Error{
		Phase:  phase,
		Kind:   KindNotShareable,
		Value:  value,
		GoType: goType(value),
		Detail: detail,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// AlreadyRunning creates the re-entrancy error for an isolate
func AlreadyRunning(id int64) *Error {
	return &Error{
		Phase:    PhaseSession,
		Kind:     KindAlreadyRunning,
		Isolate:  id,
		HasOwner: true,
		Detail:   "isolate already running",
	}
}

// OwnerGone creates the warning-class error for a release whose owner was destroyed
func OwnerGone(id int64) *Error {
	return &Error{
		Phase:    PhaseRelease,
		Kind:     KindOwnerGone,
		Isolate:  id,
		HasOwner: true,
		Detail:   "owning isolate no longer exists; payload leaked",
	}
}

// InvalidHandle creates an error for a handle that cannot be used
func InvalidHandle(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidHandle,
		Detail: detail,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, value any, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Value:  value,
		GoType: goType(value),
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(typeName, detail string) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindRegistration,
		GoType: typeName,
		Detail: detail,
	}
}

// Closed creates an error for an operation on a closed resource
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what string, name any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %v not found", what, name),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

func goType(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%T", v)
}

// describe renders a short, bounded representation of a value for messages.
func describe(v any) string {
	s := fmt.Sprintf("%#v", v)
	if len(s) <= 64 {
		return s
	}
	cut := 61
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
