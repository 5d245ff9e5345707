package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/chazu/marte/vm/dist"
	"github.com/dustin/go-humanize"
)

// handleCompile processes `marte compile <tree> -o <out> [-format binary|cbor]`.
func (o *options) handleCompile(args []string) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(o.stderr)
	output := fs.String("o", "", "Output file")
	format := fs.String("format", "binary", "Output format: binary or cbor")

	// Allow the input before or after the flags.
	var input string
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		input, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if input == "" && fs.NArg() > 0 {
		input = fs.Arg(0)
	}
	if input == "" {
		return fmt.Errorf("compile requires a tree file")
	}
	if *output == "" {
		return fmt.Errorf("compile requires -o <output>")
	}

	p, err := o.loadProgram(context.Background(), input)
	if err != nil {
		return err
	}

	var data []byte
	switch *format {
	case "binary":
		data, err = p.chunk.MarshalBinary()
	case "cbor":
		var env *dist.Envelope
		if env, err = dist.Seal(p.chunk); err == nil {
			data, err = dist.MarshalEnvelope(env)
		}
	default:
		return fmt.Errorf("unknown format %q (want binary or cbor)", *format)
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", input, err)
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", *output, err)
	}
	fmt.Fprintf(o.stdout, "Wrote %s (%s, %s)\n", *output, *format, humanize.Bytes(uint64(len(data))))
	return nil
}

// handleDisasm processes `marte disasm <file>`.
func (o *options) handleDisasm(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("disasm requires exactly one file")
	}
	p, err := o.loadProgram(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprint(o.stdout, p.chunk.DisassembleWithName(p.path))
	return nil
}

// handleInfo processes `marte info <file>`.
func (o *options) handleInfo(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("info requires exactly one file")
	}
	p, err := o.loadProgram(context.Background(), args[0])
	if err != nil {
		return err
	}
	c := p.chunk
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%s: %w", p.path, err)
	}
	image, err := c.MarshalBinary()
	if err != nil {
		return err
	}

	fmt.Fprintf(o.stdout, "File:         %s (%s, %s)\n", p.path, p.format, humanize.Bytes(uint64(p.size)))
	fmt.Fprintf(o.stdout, "Instructions: %s\n", humanize.Comma(int64(len(c.Code))))
	fmt.Fprintf(o.stdout, "Constants:    %s\n", humanize.Comma(int64(len(c.Constants))))
	fmt.Fprintf(o.stdout, "Functions:    %d\n", len(c.Functions))
	fmt.Fprintf(o.stdout, "Frame size:   %d registers\n", c.FrameSize())
	fmt.Fprintf(o.stdout, "Entry params: %v\n", c.Functions[0].Params)
	fmt.Fprintf(o.stdout, "Image size:   %s\n", humanize.Bytes(uint64(len(image))))
	if p.format == "tree" {
		fmt.Fprintf(o.stdout, "Cached:       %t\n", p.cached)
	}
	return nil
}
