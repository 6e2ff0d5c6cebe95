package xidata

import (
	"reflect"

	"github.com/wippyai/isolates/isolate"
)

// Type identifies a value's exact runtime type. Static types are Go types;
// dynamic types are classes defined inside an isolate.
type Type struct {
	static reflect.Type
	class  *isolate.Class
}

// TypeOf returns the type of v. Instances of a Class yield the class.
func TypeOf(v any) Type {
	if inst, ok := v.(isolate.Instance); ok {
		if c := inst.Class(); c != nil {
			return Type{class: c}
		}
	}
	return Type{static: reflect.TypeOf(v)}
}

// TypeFor returns the static type T.
func TypeFor[T any]() Type {
	return Type{static: reflect.TypeFor[T]()}
}

// ClassType returns the dynamic type c.
func ClassType(c *isolate.Class) Type {
	return Type{class: c}
}

// NilType is the type of the nil value.
var NilType = Type{}

// Dynamic reports whether t is an isolate-defined class.
func (t Type) Dynamic() bool {
	return t.class != nil
}

// Class returns the class of a dynamic type.
func (t Type) Class() *isolate.Class {
	return t.class
}

// String returns a readable type name.
func (t Type) String() string {
	switch {
	case t.class != nil:
		return t.class.Name()
	case t.static == nil:
		return "nil"
	default:
		return t.static.String()
	}
}
