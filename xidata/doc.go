// Package xidata produces portable handles for values so they can cross
// from one isolate to another.
//
// A Manager maps value types to Producers. Static Go types live in a
// global registry shared by every isolate; classes defined inside an
// isolate live in that isolate's own registry and are tracked weakly, so
// registration never keeps a class alive. The global registry starts with
// producers for nil, bool, int, int64, *big.Int, float64, []byte and string.
//
// A Handle records the isolate that produced it. Reconstruction may happen
// anywhere and any number of times; release always destroys the payload on
// the owning isolate, posting the work to the owner's pending-call queue
// when needed:
//
//	h, err := mgr.Produce(th, "hello")
//	...
//	th.Swap(other)
//	v, err := mgr.NewObject(h) // "hello"
//	err = mgr.Release(th, h)   // deferred to the producing isolate
package xidata
