package vm

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ParallelOption configures RunParallel.
type ParallelOption func(*parallelConfig)

type parallelConfig struct {
	limit   int
	machine []Option
}

// WithParallelism bounds the number of machines running at once. Zero or
// negative means unbounded.
func WithParallelism(n int) ParallelOption {
	return func(c *parallelConfig) { c.limit = n }
}

// WithMachineOptions applies opts to every machine RunParallel creates.
func WithMachineOptions(opts ...Option) ParallelOption {
	return func(c *parallelConfig) { c.machine = append(c.machine, opts...) }
}

// RunParallel executes chunk once per argument set, each on its own Machine,
// and returns the results in input order. The first fault cancels the runs
// still in progress and is returned.
func RunParallel(ctx context.Context, chunk *Chunk, argSets [][]Value, opts ...ParallelOption) ([]Value, error) {
	var cfg parallelConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	// Validate once up front so every machine skips it.
	if err := chunk.Validate(); err != nil {
		return nil, &RuntimeError{Kind: InvalidProgram, PC: -1, Msg: err.Error(), Cause: err}
	}

	results := make([]Value, len(argSets))
	g, ctx := errgroup.WithContext(ctx)
	if cfg.limit > 0 {
		g.SetLimit(cfg.limit)
	}
	for i, args := range argSets {
		i, args := i, args
		g.Go(func() error {
			m := New(chunk, cfg.machine...)
			m.validated = true
			m.frameSize = chunk.FrameSize()
			v, err := m.RunContext(ctx, args...)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
