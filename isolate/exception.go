package isolate

import (
	stderrors "errors"
	"fmt"
)

// ExceptionType names a kind of isolate-level failure.
type ExceptionType struct {
	Base *ExceptionType
	Name string
}

// Builtin exception types.
var (
	BaseException = &ExceptionType{Name: "Exception"}
	RuntimeError  = &ExceptionType{Name: "RuntimeError", Base: BaseException}
	MemoryError   = &ExceptionType{Name: "MemoryError", Base: BaseException}
	ValueError    = &ExceptionType{Name: "ValueError", Base: BaseException}
	OverflowError = &ExceptionType{Name: "OverflowError", Base: BaseException}
)

// NewExceptionType defines a type deriving from base. A nil base means BaseException.
func NewExceptionType(name string, base *ExceptionType) *ExceptionType {
	if base == nil {
		base = BaseException
	}
	return &ExceptionType{Name: name, Base: base}
}

// New creates an exception of this type.
func (t *ExceptionType) New(msg string) *Exception {
	return &Exception{Type: t, Msg: msg}
}

// Newf creates an exception with a formatted message.
func (t *ExceptionType) Newf(format string, args ...any) *Exception {
	return &Exception{Type: t, Msg: fmt.Sprintf(format, args...)}
}

// Subtype reports whether t is of or derives from other.
func (t *ExceptionType) Subtype(other *ExceptionType) bool {
	for c := t; c != nil; c = c.Base {
		if c == other {
			return true
		}
	}
	return false
}

func (t *ExceptionType) String() string {
	return t.Name
}

// Exception is a raised failure inside an isolate.
type Exception struct {
	Type  *ExceptionType
	Cause error
	Msg   string
}

// Error returns the message, or the type name when there is none.
func (e *Exception) Error() string {
	if e.Msg == "" {
		return e.TypeName()
	}
	return e.Msg
}

// TypeName returns the exception type's name.
func (e *Exception) TypeName() string {
	if e.Type == nil {
		return BaseException.Name
	}
	return e.Type.Name
}

// Unwrap returns the chained cause.
func (e *Exception) Unwrap() error {
	return e.Cause
}

// Is matches another exception whose type e's type derives from.
func (e *Exception) Is(target error) bool {
	t, ok := target.(*Exception)
	if !ok || t.Type == nil || e.Type == nil {
		return false
	}
	return e.Type.Subtype(t.Type)
}

// WithCause chains cause and returns e.
func (e *Exception) WithCause(cause error) *Exception {
	e.Cause = cause
	return e
}

// IsException reports whether err's chain holds an exception of (or derived from) t.
func IsException(err error, t *ExceptionType) bool {
	var e *Exception
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Type != nil && e.Type.Subtype(t) {
			return true
		}
		err = e.Cause
	}
	return false
}
