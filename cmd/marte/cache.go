package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/chazu/marte/cache"
	"github.com/dustin/go-humanize"
)

// handleCache processes `marte cache stats` and `marte cache purge [-older d]`.
func (o *options) handleCache(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("cache requires a subcommand: stats or purge")
	}
	ctx := context.Background()
	store, err := cache.Open(o.m.CachePath())
	if err != nil {
		return err
	}
	defer store.Close()

	switch args[0] {
	case "stats":
		st, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(o.stdout, "%s: %s entries, %s\n", store.Path(), humanize.Comma(st.Entries), humanize.Bytes(uint64(st.Bytes)))
		return nil

	case "purge":
		fs := flag.NewFlagSet("purge", flag.ContinueOnError)
		fs.SetOutput(o.stderr)
		older := fs.Duration("older", 0, "Only remove entries older than this")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		var cutoff time.Time
		if *older > 0 {
			cutoff = time.Now().Add(-*older)
		}
		n, err := store.Purge(ctx, cutoff)
		if err != nil {
			return err
		}
		fmt.Fprintf(o.stdout, "Removed %d entries\n", n)
		return nil
	}
	return fmt.Errorf("unknown cache subcommand %q", args[0])
}
