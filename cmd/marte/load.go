package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/marte/ast"
	"github.com/chazu/marte/cache"
	"github.com/chazu/marte/compiler"
	"github.com/chazu/marte/vm"
	"github.com/chazu/marte/vm/dist"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("marte.cli")

// program is a loaded chunk plus where it came from.
type program struct {
	chunk  *vm.Chunk
	path   string
	format string // "tree", "binary" or "cbor"
	size   int    // bytes read from disk
	cached bool   // compiled chunk came from the cache
}

// loadProgram reads a tree file, binary image or CBOR envelope. Tree files
// go through the chunk cache when it is enabled.
func (o *options) loadProgram(ctx context.Context, path string) (*program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	p := &program{path: path, size: len(data)}

	switch {
	case bytes.HasPrefix(data, vm.ImageMagic):
		p.format = "binary"
		p.chunk, err = vm.UnmarshalChunk(data)
		if err != nil {
			return nil, fmt.Errorf("loading image %s: %w", path, err)
		}
		return p, nil

	case strings.EqualFold(filepath.Ext(path), ".cbor"):
		p.format = "cbor"
		env, err := dist.UnmarshalEnvelope(data)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		if p.chunk, err = dist.Open(env); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		return p, nil
	}

	p.format = "tree"
	params := o.m.Compile.Params
	if o.m.CacheEnabled() {
		store, err := cache.Open(o.m.CachePath())
		if err == nil {
			defer store.Close()
			p.chunk, p.cached, err = store.CompileFile(ctx, path, params)
			return p, err
		}
		log.Warningf("compiling without cache: %s", err)
	}

	tree, err := ast.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	p.chunk, err = compiler.Compile(tree, compiler.WithParams(params...))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// describeError adds the source span of a runtime fault when the chunk
// carries one.
func describeError(err error, chunk *vm.Chunk) error {
	var re *vm.RuntimeError
	if chunk == nil || !errors.As(err, &re) || re.PC < 0 {
		return err
	}
	if span, ok := chunk.SpanAt(re.PC); ok && span != (vm.SourceSpan{}) {
		return fmt.Errorf("%w (source %s)", err, span)
	}
	return err
}
