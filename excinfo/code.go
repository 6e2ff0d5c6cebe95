package excinfo

import "github.com/wippyai/isolates/errors"

// Code is the structured reason a cross-isolate operation failed.
type Code int

const (
	NoError Code = iota
	UncaughtException
	Other
	NoMemory
	AlreadyRunning
	MainNamespaceUnavailable
	ApplyNamespaceFailed
	NotShareable
)

var codeNames = [...]string{
	NoError:                  "no_error",
	UncaughtException:        "uncaught_exception",
	Other:                    "other",
	NoMemory:                 "no_memory",
	AlreadyRunning:           "already_running",
	MainNamespaceUnavailable: "main_namespace_unavailable",
	ApplyNamespaceFailed:     "apply_namespace_failed",
	NotShareable:             "not_shareable",
}

func (c Code) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return "unknown"
}

// CodeOf classifies err by its outermost error only. Anything that is not
// itself a structured error is an uncaught exception, whatever it wraps.
func CodeOf(err error) Code {
	if err == nil {
		return NoError
	}
	e, ok := err.(*errors.Error)
	if !ok {
		return UncaughtException
	}
	switch e.Kind {
	case errors.KindNotShareable:
		return NotShareable
	case errors.KindAllocation:
		return NoMemory
	case errors.KindAlreadyRunning:
		return AlreadyRunning
	case errors.KindMainNamespaceUnavailable:
		return MainNamespaceUnavailable
	case errors.KindApplyNamespaceFailed:
		return ApplyNamespaceFailed
	case errors.KindOther:
		return Other
	default:
		return UncaughtException
	}
}

// ApplyCode returns the canonical failure for code. Isolate is the id
// the failure refers to, used for already_running.
func ApplyCode(code Code, isolate int64) error {
	b := codeError(code, isolate)
	if b == nil {
		return nil
	}
	return b.Build()
}

func codeError(code Code, isolate int64) *errors.Builder {
	switch code {
	case NoError:
		return nil
	case AlreadyRunning:
		return errors.New(errors.PhaseSession, errors.KindAlreadyRunning).
			Isolate(isolate).
			Detail("isolate already running")
	case MainNamespaceUnavailable:
		return errors.New(errors.PhaseSession, errors.KindMainNamespaceUnavailable).
			Detail("failed to get main bindings")
	case ApplyNamespaceFailed:
		return errors.New(errors.PhaseSession, errors.KindApplyNamespaceFailed).
			Detail("failed to apply namespace to main bindings")
	case NoMemory:
		return errors.New(errors.PhaseSession, errors.KindAllocation).
			Detail("out of memory")
	case NotShareable:
		return errors.New(errors.PhaseSession, errors.KindNotShareable).
			Detail("object does not support cross-isolate data")
	case UncaughtException:
		return errors.New(errors.PhaseSession, errors.KindUncaughtException).
			Detail("uncaught exception")
	case Other:
		return errors.New(errors.PhaseSession, errors.KindOther).
			Detail("cross-isolate operation failed")
	default:
		return errors.New(errors.PhaseSession, errors.KindOther).
			Detail("unsupported error code %d", int(code))
	}
}
