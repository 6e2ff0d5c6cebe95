package isolate

import "sync/atomic"

// Class is a type defined at run time inside an isolate. Registries track
// classes weakly, so a registered class can still be collected.
type Class struct {
	owner     *Isolate
	name      string
	destroyed atomic.Bool
}

// Name returns the class name.
func (c *Class) Name() string {
	return c.name
}

// Owner returns the isolate that defined the class.
func (c *Class) Owner() *Isolate {
	return c.owner
}

// New creates an instance holding v.
func (c *Class) New(v any) *Object {
	return &Object{class: c, Value: v}
}

// Destroy marks the class as gone. Registry entries for it are evicted on the next lookup.
func (c *Class) Destroy() {
	c.destroyed.Store(true)
}

// Destroyed reports whether Destroy was called.
func (c *Class) Destroyed() bool {
	return c.destroyed.Load()
}

// Instance is implemented by values whose type is a Class.
type Instance interface {
	Class() *Class
}

// Object is an instance of a Class.
type Object struct {
	class *Class
	Value any
}

// Class returns the object's class.
func (o *Object) Class() *Class {
	return o.class
}
