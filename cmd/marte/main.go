// Marte CLI - compiles and runs marte syntax-tree files
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/marte/manifest"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

// options holds the global flags after merging with marte.toml.
type options struct {
	config   string
	verbose  int
	budget   int64
	maxDepth int
	cache    bool
	trace    bool
	set      map[string]bool // flags given on the command line

	m      *manifest.Manifest
	stdout io.Writer
	stderr io.Writer
}

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

func realMain(args []string, stdout, stderr io.Writer) int {
	opts := &options{stdout: stdout, stderr: stderr}

	fs := flag.NewFlagSet("marte", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.config, "config", "", "Directory containing marte.toml (default: search upward from .)")
	fs.IntVar(&opts.verbose, "v", 0, "Log verbosity (0 notice, 1 info, 2 debug)")
	fs.Int64Var(&opts.budget, "budget", 0, "Maximum instructions to dispatch (0 = unlimited)")
	fs.IntVar(&opts.maxDepth, "max-depth", 0, "Maximum call depth")
	fs.BoolVar(&opts.cache, "cache", true, "Read and write the compiled-chunk cache")
	fs.BoolVar(&opts.trace, "trace", false, "Log every dispatched instruction (needs -v 2)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: marte [options] <command> [args...]\n")
		fmt.Fprintf(stderr, "       marte [options] <file> [args...]\n\n")
		fmt.Fprintf(stderr, "Commands:\n")
		fmt.Fprintf(stderr, "  run <file> [args...]        Compile (or load) and run a program\n")
		fmt.Fprintf(stderr, "  compile <tree> -o <out>     Write a compiled image\n")
		fmt.Fprintf(stderr, "  disasm <file>               Print the bytecode listing\n")
		fmt.Fprintf(stderr, "  info <file>                 Summarize a program\n")
		fmt.Fprintf(stderr, "  cache stats|purge [-older d] Inspect or clear the chunk cache\n\n")
		fmt.Fprintf(stderr, "A file is a YAML/JSON syntax tree, a binary image or a CBOR envelope.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  marte prog.yaml 3 4                 # Run with two arguments\n")
		fmt.Fprintf(stderr, "  marte compile prog.yaml -o prog.img # Compile to a binary image\n")
		fmt.Fprintf(stderr, "  marte -budget 1000000 run prog.img  # Run with an instruction budget\n")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	opts.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	if err := opts.loadConfig(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	commonlog.Configure(opts.m.Log.Verbosity, opts.m.LogFile())

	rest := fs.Args()
	if len(rest) == 0 {
		if entry := opts.m.EntryPath(); entry != "" {
			rest = []string{"run", entry}
		} else {
			fs.Usage()
			return 2
		}
	}

	var err error
	switch cmd := rest[0]; cmd {
	case "run":
		err = opts.handleRun(rest[1:])
	case "compile":
		err = opts.handleCompile(rest[1:])
	case "disasm":
		err = opts.handleDisasm(rest[1:])
	case "info":
		err = opts.handleInfo(rest[1:])
	case "cache":
		err = opts.handleCache(rest[1:])
	case "help":
		fs.Usage()
		return 0
	default:
		if isProgramFile(cmd) {
			err = opts.handleRun(rest)
		} else {
			err = fmt.Errorf("unknown command %q", cmd)
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig finds marte.toml and lets explicit flags override it.
func (o *options) loadConfig() error {
	var (
		m   *manifest.Manifest
		err error
	)
	if o.config != "" {
		m, err = manifest.Load(o.config)
	} else {
		m, err = manifest.FindAndLoad(".")
	}
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}
	if m == nil {
		m = manifest.Default()
	}

	if o.set["v"] {
		m.Log.Verbosity = o.verbose
	}
	if o.set["budget"] {
		if o.budget < 0 {
			return fmt.Errorf("-budget must not be negative")
		}
		m.VM.Budget = o.budget
	}
	if o.set["max-depth"] {
		if o.maxDepth <= 0 {
			return fmt.Errorf("-max-depth must be positive")
		}
		m.VM.MaxDepth = o.maxDepth
	}
	if o.set["trace"] {
		m.VM.Trace = o.trace
	}
	if o.set["cache"] {
		m.Cache.Enabled = &o.cache
	}
	o.m = m
	return nil
}

// isProgramFile reports whether arg names something run can load.
func isProgramFile(arg string) bool {
	switch strings.ToLower(filepath.Ext(arg)) {
	case ".yaml", ".yml", ".json", ".img", ".cbor":
		return true
	}
	_, err := os.Stat(arg)
	return err == nil
}
