package excinfo

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/isolate"
)

// Snapshot is an owned copy of a failure's type name and message. It
// shares no memory with the failure it was taken from.
type Snapshot struct {
	Type string `cbor:"1,keyasint,omitempty"`
	Msg  string `cbor:"2,keyasint,omitempty"`
}

// String renders the snapshot as "Type: Msg", or whichever part is present.
func (s *Snapshot) String() string {
	if s == nil {
		return ""
	}
	switch {
	case s.Type != "" && s.Msg != "":
		return s.Type + ": " + s.Msg
	case s.Msg != "":
		return s.Msg
	default:
		return s.Type
	}
}

// Apply raises the snapshot as an exception of kind in the current isolate.
// A nil kind means RuntimeError.
func (s *Snapshot) Apply(kind *isolate.ExceptionType) *isolate.Exception {
	if kind == nil {
		kind = isolate.RuntimeError
	}
	return kind.New(s.String())
}

type typeNamer interface {
	TypeName() string
}

// SnapshotOf copies err's type name and message. Formatting failures,
// including panics from Error methods, are returned instead of propagating.
func SnapshotOf(err error) (snap *Snapshot, ferr error) {
	if err == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			snap = nil
			ferr = errors.New(errors.PhaseCapture, errors.KindOther).
				Detail("unable to format exception: %v", r).
				Build()
		}
	}()

	return &Snapshot{
		Type: strings.Clone(typeName(err)),
		Msg:  strings.Clone(message(err)),
	}, nil
}

func typeName(err error) string {
	if tn, ok := err.(typeNamer); ok {
		return tn.TypeName()
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return fmt.Sprintf("%T", err)
}

func message(err error) string {
	if e, ok := err.(*errors.Error); ok && e.Detail != "" {
		return e.Detail
	}
	return err.Error()
}
