package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wippyai/isolates/config"
	"github.com/wippyai/isolates/excinfo"
	"github.com/wippyai/isolates/isolate"
	"github.com/wippyai/isolates/metrics"
	"github.com/wippyai/isolates/session"
	"github.com/wippyai/isolates/xidata"
)

var (
	nameStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98"))
	kindStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

type options struct {
	configFile  string
	into        string
	raise       string
	metricsAddr string
	share       []string
	export      []string
	sets        []string
	styled      bool
}

type env struct {
	cfg    *config.Config
	log    *zap.Logger
	rt     *isolate.Runtime
	mgr    *xidata.Manager
	th     *isolate.Thread
	srv    *http.Server
	cancel context.CancelFunc
	order  []*isolate.Isolate
	set    []string
	wg     sync.WaitGroup
	styled bool
}

func setup(ctx context.Context, opts options) (*env, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		var err error
		if cfg, err = config.Load(opts.configFile); err != nil {
			return nil, err
		}
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}

	log, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	isolate.SetLogger(log.Named("isolate"))
	xidata.SetLogger(log.Named("xidata"))
	session.SetLogger(log.Named("session"))
	excinfo.SetLogger(log.Named("excinfo"))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	rt, err := isolate.New(ctx, isolate.WithHeapConfig(cfg.HeapConfig()), isolate.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	r, burst := cfg.LeakLimit()
	e := &env{
		cfg:    cfg,
		log:    log,
		rt:     rt,
		mgr:    xidata.NewManager(xidata.WithMetrics(m), xidata.WithLeakLimit(r, burst)),
		th:     rt.NewThread(rt.Main()),
		styled: opts.styled,
	}
	if err := excinfo.Register(e.th, e.mgr); err != nil {
		_ = e.close(ctx)
		return nil, err
	}

	serveCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	if cfg.Metrics.Addr != "" {
		e.serveMetrics(cfg.Metrics.Addr, reg)
	}

	if err := e.startIsolates(ctx, serveCtx); err != nil {
		_ = e.close(ctx)
		return nil, err
	}
	if err := e.applySets(opts.sets); err != nil {
		_ = e.close(ctx)
		return nil, err
	}
	return e, nil
}

func (e *env) serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	e.srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := e.srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			e.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	e.log.Info("serving metrics", zap.String("addr", addr))
}

// startIsolates creates the configured isolates and seeds their main bindings.
func (e *env) startIsolates(ctx, serveCtx context.Context) error {
	for _, ic := range e.cfg.Isolates {
		iso := e.rt.Main()
		if ic.Name != config.MainIsolate {
			var err error
			if iso, err = e.rt.NewIsolate(ctx, ic.Name); err != nil {
				return err
			}
			e.order = append(e.order, iso)
		}

		seed, err := ic.MainBindings()
		if err != nil {
			return err
		}
		if seed.Len() > 0 {
			if _, err := session.Exec(e.th, e.mgr, iso, session.ExecOptions{Shared: seed}, noop); err != nil {
				return fmt.Errorf("seed %s: %w", ic.Name, err)
			}
		}

		// The main isolate is driven by this thread; its calls run at session exits.
		if ic.Serve && iso != e.rt.Main() {
			e.wg.Add(1)
			go func(iso *isolate.Isolate) {
				defer e.wg.Done()
				if err := iso.Serve(serveCtx); err != nil && !stderrors.Is(err, context.Canceled) {
					e.log.Warn("serve stopped", zap.String("isolate", iso.Name()), zap.Error(err))
				}
			}(iso)
		}
	}
	return nil
}

func noop(*isolate.Bindings) error { return nil }

func (e *env) applySets(sets []string) error {
	if len(sets) == 0 {
		return nil
	}
	b := isolate.NewBindings()
	for _, s := range sets {
		name, v, err := parseBinding(s, e.mgr.Kinds())
		if err != nil {
			return err
		}
		b.Set(name, v)
		e.set = append(e.set, name)
	}
	main, err := e.rt.Main().MainBindings()
	if err != nil {
		return err
	}
	b.Range(func(name string, v any) bool {
		main.Set(name, v)
		return true
	})
	return nil
}

func (e *env) target(name string) (*isolate.Isolate, error) {
	if name == "" {
		if len(e.order) == 0 {
			return e.rt.Main(), nil
		}
		return e.order[0], nil
	}
	if name == config.MainIsolate {
		return e.rt.Main(), nil
	}
	for _, iso := range e.order {
		if iso.Name() == name {
			return iso, nil
		}
	}
	return nil, fmt.Errorf("no isolate named %q", name)
}

func (e *env) list(w io.Writer) error {
	fmt.Fprintln(w, "Isolates:")
	for _, iso := range e.rt.Isolates() {
		fmt.Fprintf(w, "  %d %s\n", iso.ID(), e.style(nameStyle, iso.Name()))
	}
	fmt.Fprintln(w, "\nShareable kinds:")
	for _, k := range e.mgr.Kinds() {
		fmt.Fprintf(w, "  %-8s %s\n", k.Name, e.style(kindStyle, witTypeStr(k.WIT)))
	}
	return nil
}

type runResult struct {
	target   []binding
	exported []binding
	iso      string
}

type binding struct {
	name  string
	value string
	kind  string
}

func describe(b *isolate.Bindings) []binding {
	var out []binding
	b.Range(func(name string, v any) bool {
		out = append(out, binding{name: name, value: fmt.Sprintf("%v", v), kind: fmt.Sprintf("%T", v)})
		return true
	})
	return out
}

// execute shares the named main bindings into the target, runs there and
// applies the exported names back onto main.
func (e *env) execute(into string, share, export []string, raise string) (*runResult, error) {
	iso, err := e.target(into)
	if err != nil {
		return nil, err
	}
	main, err := e.rt.Main().MainBindings()
	if err != nil {
		return nil, err
	}
	if share == nil {
		share = e.set
	}
	shared := isolate.NewBindings()
	for _, name := range share {
		v, ok := main.Get(name)
		if !ok {
			return nil, fmt.Errorf("main has no binding %q", name)
		}
		shared.Set(name, v)
	}

	res := &runResult{iso: iso.Name()}
	ns, err := session.Exec(e.th, e.mgr, iso, session.ExecOptions{Shared: shared, Export: export}, func(b *isolate.Bindings) error {
		res.target = describe(b)
		if raise != "" {
			return raiseLiteral(raise)
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	if ns != nil {
		exported := isolate.NewBindings()
		err := ns.Apply(e.mgr, exported, nil)
		_ = ns.Free(e.th, e.mgr)
		if err != nil {
			return res, err
		}
		exported.Range(func(name string, v any) bool {
			main.Set(name, v)
			return true
		})
		res.exported = describe(exported)
	}
	return res, nil
}

// raiseLiteral turns "Type: message" into an exception of that type.
func raiseLiteral(s string) error {
	typ, msg, ok := strings.Cut(s, ":")
	if !ok {
		return isolate.RuntimeError.New(s)
	}
	return isolate.NewExceptionType(strings.TrimSpace(typ), nil).New(strings.TrimSpace(msg))
}

func (e *env) run(w io.Writer, opts options) error {
	res, err := e.execute(opts.into, opts.share, opts.export, opts.raise)
	if res != nil {
		fmt.Fprintf(w, "Bindings in %s:\n", e.style(nameStyle, res.iso))
		e.printBindings(w, res.target)
		if len(res.exported) > 0 {
			fmt.Fprintln(w, "\nExported to main:")
			e.printBindings(w, res.exported)
		}
	}
	var rf *session.RunFailedError
	if stderrors.As(err, &rf) {
		fmt.Fprintf(w, "\n%s\n", e.style(failStyle, "Failed: "+rf.Error()))
		e.log.Debug("run failed", zap.String("detail", rf.Detail()))
		return fmt.Errorf("run in %s failed", res.iso)
	}
	return err
}

func (e *env) printBindings(w io.Writer, bs []binding) {
	if len(bs) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, b := range bs {
		fmt.Fprintf(w, "  %s %s = %s\n", e.style(nameStyle, b.name), e.style(kindStyle, b.kind), e.style(valueStyle, b.value))
	}
}

func (e *env) style(s lipgloss.Style, text string) string {
	if !e.styled {
		return text
	}
	return s.Render(text)
}

func (e *env) close(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	if e.srv != nil {
		_ = e.srv.Shutdown(ctx)
	}
	e.th.Close()
	err := e.rt.Close(ctx)
	_ = e.log.Sync()
	return err
}
