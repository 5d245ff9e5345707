package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/chazu/marte/vm"
)

// handleRun processes `marte run <file> [args...]`. Each argument binds to
// one entry parameter in order.
func (o *options) handleRun(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("run requires a file")
	}
	ctx := context.Background()
	if t := o.m.VM.Timeout.Duration; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	p, err := o.loadProgram(ctx, args[0])
	if err != nil {
		return err
	}
	log.Infof("loaded %s (%s, cached=%t)", p.path, p.format, p.cached)

	values := make([]vm.Value, len(args)-1)
	for i, a := range args[1:] {
		values[i] = parseArg(a)
	}

	m := vm.New(p.chunk,
		vm.WithMaxDepth(o.m.VM.MaxDepth),
		vm.WithBudget(o.m.VM.Budget),
		vm.WithTrace(o.m.VM.Trace),
	)
	result, err := m.RunContext(ctx, values...)
	if err != nil {
		return describeError(err, p.chunk)
	}
	s := m.Stats()
	log.Infof("dispatched %d instructions, peak depth %d", s.Dispatched, s.PeakDepth)
	fmt.Fprintln(o.stdout, result)
	return nil
}

// parseArg reads a command-line argument as an int, float, bool or null
// literal, falling back to a string.
func parseArg(s string) vm.Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return vm.FromInt(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return vm.FromFloat(f)
	}
	switch s {
	case "true":
		return vm.FromBool(true)
	case "false":
		return vm.FromBool(false)
	case "null":
		return vm.Null
	}
	return vm.FromString(s)
}
