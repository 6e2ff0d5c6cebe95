package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

type setFlags []string

func (s *setFlags) String() string     { return strings.Join(*s, ",") }
func (s *setFlags) Set(v string) error { *s = append(*s, v); return nil }

func main() {
	var sets setFlags
	var (
		configFile  = flag.String("config", "", "Path to a .toml or .yaml config file")
		into        = flag.String("into", "", "Isolate to run in (default: first configured isolate)")
		share       = flag.String("share", "", "Main bindings to share, comma-separated (default: all -set names)")
		export      = flag.String("export", "", "Bindings to export back to main, comma-separated")
		raise       = flag.String("raise", "", "Fail inside the isolate with \"Type: message\"")
		metricsAddr = flag.String("metrics-addr", "", "Serve prometheus metrics on this address")
		list        = flag.Bool("list", false, "List isolates and shareable kinds and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Var(&sets, "set", "Bind a main value as name:kind=value (repeatable)")
	flag.Parse()

	opts := options{
		configFile:  *configFile,
		into:        *into,
		share:       splitList(*share),
		export:      splitList(*export),
		raise:       *raise,
		metricsAddr: *metricsAddr,
		sets:        sets,
		styled:      term.IsTerminal(int(os.Stdout.Fd())),
	}

	ctx := context.Background()
	env, err := setup(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *interactive:
		if !opts.styled {
			err = fmt.Errorf("interactive mode needs a terminal")
		} else {
			err = runInteractive(env)
		}
	case *list:
		err = env.list(os.Stdout)
	default:
		err = env.run(os.Stdout, opts)
	}

	if cerr := env.close(ctx); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
