// Package isolate provides the execution model the cross-isolate layer runs on.
//
// A Runtime owns a table of isolates. Each Isolate has its own heap,
// top-level Bindings, isolate-local storage and a queue of pending calls
// posted by other isolates. A Thread is an explicit thread of control; it
// holds one ThreadState per isolate it has visited and executes in whichever
// isolate its current state is bound to:
//
//	rt, _ := isolate.New(ctx)
//	iso, _ := rt.NewIsolate(ctx, "worker")
//	th := rt.NewThread(rt.Main())
//	defer th.Close()
//
//	prev := th.Swap(th.NewState(iso, isolate.WhenceSession))
//	// ... execute in iso ...
//	th.Swap(prev)
//
// Only one thread executes in an isolate at a time. Pending calls run when
// the executing thread reaches a safe point (Thread.SafePoint) or on a
// goroutine driving Isolate.Serve.
package isolate
