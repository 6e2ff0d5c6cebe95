// Package isolates lets independent, concurrently running isolates exchange
// values and propagate failures safely.
//
// An isolate owns its own top-level bindings, its own heap and its own
// pending-call queue. Values cannot be handed directly from one isolate to
// another: a value is first turned into a portable handle by the producer
// registered for its type, the handle is carried across, and the destination
// reconstructs a fresh value from it. Whatever the handle's payload holds is
// always torn down on the isolate that produced it.
//
// # Architecture Overview
//
//	isolates/            Root package with the Memory and Allocator interfaces
//	├── isolate/         Runtime, Isolate, Thread and execution contexts
//	├── heap/            Per-isolate allocator over a wazero linear memory
//	├── xidata/          Portable handles, type capability registry, deferred release
//	├── namespace/       Ordered name→handle bags exported and imported by isolates
//	├── excinfo/         Exception snapshots and structured error codes
//	├── session/         Scoped entry into another isolate with re-entrancy guard
//	├── metrics/         Prometheus collectors
//	├── config/          TOML/YAML configuration
//	└── errors/          Structured error types
//
// # Quick Start
//
//	rt, err := isolate.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mgr := xidata.NewManager()
//	th := rt.NewThread(rt.Main())
//	defer th.Close()
//
//	sub, err := rt.NewIsolate(ctx, "worker")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	shared := isolate.NewBindings("greeting", "hello")
//	_, err = session.Exec(th, mgr, sub, session.ExecOptions{Shared: shared},
//	    func(main *isolate.Bindings) error {
//	        v, _ := main.Get("greeting")
//	        fmt.Println(v) // "hello", reconstructed inside the worker
//	        return nil
//	    })
//
// Failures raised inside the worker come back as a *session.RunFailedError
// whose message preserves the original "Type: message".
//
// # Thread Safety
//
// Runtime and Manager are safe for concurrent use. A Thread is an execution
// context and must be driven by a single goroutine. An isolate's bindings,
// per-isolate registry and heap bookkeeping are only touched by the thread
// currently holding that isolate.
package isolates
