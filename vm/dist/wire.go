package dist

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math"

	"github.com/chazu/marte/vm"
	"github.com/fxamacker/cbor/v2"
)

// ErrHashMismatch is returned by Open when an envelope's body does not
// hash to its declared hash.
var ErrHashMismatch = errors.New("dist: hash mismatch")

// maxDepth bounds nesting of compound constants.
const maxDepth = 64

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalChunk serializes a compiled chunk to canonical CBOR. Equal chunks
// always produce identical bytes.
func MarshalChunk(c *vm.Chunk) ([]byte, error) {
	w, err := toWire(c)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(w)
}

// UnmarshalChunk deserializes a chunk produced by MarshalChunk. The result
// is not validated; the Machine validates before running.
func UnmarshalChunk(data []byte) (*vm.Chunk, error) {
	var w wireChunk
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("dist: unmarshal chunk: %w", err)
	}
	return fromWire(&w)
}

// Seal encodes c and wraps it in a hashed envelope.
func Seal(c *vm.Chunk) (*Envelope, error) {
	body, err := MarshalChunk(c)
	if err != nil {
		return nil, err
	}
	return &Envelope{Hash: sha256.Sum256(body), Version: WireVersion, Body: body}, nil
}

// Open verifies the envelope's hash and version and decodes its chunk.
func Open(e *Envelope) (*vm.Chunk, error) {
	if e.Version != WireVersion {
		return nil, fmt.Errorf("dist: wire version %d, supported version is %d", e.Version, WireVersion)
	}
	if computed := sha256.Sum256(e.Body); computed != e.Hash {
		return nil, fmt.Errorf("%w: declared %x, computed %x", ErrHashMismatch, e.Hash, computed)
	}
	return UnmarshalChunk(e.Body)
}

// MarshalEnvelope serializes an Envelope to CBOR bytes.
func MarshalEnvelope(e *Envelope) ([]byte, error) {
	return cborEncMode.Marshal(e)
}

// UnmarshalEnvelope deserializes an Envelope from CBOR bytes.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("dist: unmarshal envelope: %w", err)
	}
	return &e, nil
}

func toWire(c *vm.Chunk) (*wireChunk, error) {
	w := &wireChunk{
		Code:      make([]wireInstruction, len(c.Code)),
		Functions: make([]wireFunction, len(c.Functions)),
	}
	for i, in := range c.Code {
		w.Code[i] = wireInstruction{Op: uint8(in.Op), Tag: in.Tag, A: in.A, B: in.B, C: in.C, Addr: in.Addr}
	}
	for i, k := range c.Constants {
		v, err := valueToWire(k, 0)
		if err != nil {
			return nil, fmt.Errorf("dist: constant #%d: %w", i, err)
		}
		w.Constants = append(w.Constants, v)
	}
	for i, fn := range c.Functions {
		if fn.NumRegisters > math.MaxUint16 {
			return nil, fmt.Errorf("dist: function %d: %d registers", i, fn.NumRegisters)
		}
		wf := wireFunction{
			Name:         fn.Name,
			Entry:        fn.Entry,
			NumRegisters: uint16(fn.NumRegisters),
			Params:       fn.Params,
		}
		for _, cp := range fn.Captures {
			wf.Captures = append(wf.Captures, wireCapture{Name: cp.Name, Source: cp.Source})
		}
		w.Functions[i] = wf
	}
	for _, s := range c.Spans {
		w.Spans = append(w.Spans, [2]uint32{uint32(s.Start), uint32(s.End)})
	}
	return w, nil
}

func fromWire(w *wireChunk) (*vm.Chunk, error) {
	c := &vm.Chunk{
		Code:      make([]vm.Instruction, len(w.Code)),
		Constants: make([]vm.Value, len(w.Constants)),
		Functions: make([]*vm.Function, len(w.Functions)),
	}
	for i, in := range w.Code {
		c.Code[i] = vm.Instruction{Op: vm.Opcode(in.Op), Tag: in.Tag, A: in.A, B: in.B, C: in.C, Addr: in.Addr}
	}
	for i, wv := range w.Constants {
		v, err := valueFromWire(wv, 0)
		if err != nil {
			return nil, fmt.Errorf("dist: constant #%d: %w", i, err)
		}
		c.Constants[i] = v
	}
	for i, wf := range w.Functions {
		fn := &vm.Function{
			Name:         wf.Name,
			Entry:        wf.Entry,
			NumRegisters: int(wf.NumRegisters),
			Params:       wf.Params,
		}
		for _, cp := range wf.Captures {
			fn.Captures = append(fn.Captures, vm.Capture{Name: cp.Name, Source: cp.Source})
		}
		c.Functions[i] = fn
	}
	if len(w.Spans) > 0 {
		c.Spans = make([]vm.SourceSpan, len(w.Spans))
		for i, s := range w.Spans {
			c.Spans[i] = vm.SourceSpan{Start: int(s[0]), End: int(s[1])}
		}
	}
	return c, nil
}

func valueToWire(v vm.Value, depth int) (wireValue, error) {
	if depth > maxDepth {
		return wireValue{}, fmt.Errorf("constant nested deeper than %d", maxDepth)
	}
	switch v.Kind() {
	case vm.KindNull:
		return wireValue{Kind: kindNull}, nil
	case vm.KindInt:
		return wireValue{Kind: kindInt, Bits: uint64(v.Int())}, nil
	case vm.KindFloat:
		return wireValue{Kind: kindFloat, Bits: math.Float64bits(v.Float())}, nil
	case vm.KindBool:
		w := wireValue{Kind: kindBool}
		if v.Bool() {
			w.Bits = 1
		}
		return w, nil
	case vm.KindChar:
		return wireValue{Kind: kindChar, Bits: uint64(v.Char())}, nil
	case vm.KindString:
		return wireValue{Kind: kindString, Str: v.Str()}, nil
	case vm.KindTuple, vm.KindVector:
		w := wireValue{Kind: kindTuple}
		var elems []vm.Value
		if v.Kind() == vm.KindVector {
			w.Kind = kindVector
			elems = v.Vector().Elems
		} else {
			elems = v.Tuple()
		}
		for _, e := range elems {
			we, err := valueToWire(e, depth+1)
			if err != nil {
				return wireValue{}, err
			}
			w.Elems = append(w.Elems, we)
		}
		return w, nil
	case vm.KindObject:
		o := v.Object()
		w := wireValue{Kind: kindObject}
		for i, n := 0, o.Len(); i < n; i++ {
			k, e := o.At(i)
			we, err := valueToWire(e, depth+1)
			if err != nil {
				return wireValue{}, err
			}
			w.Keys = append(w.Keys, k)
			w.Elems = append(w.Elems, we)
		}
		return w, nil
	}
	return wireValue{}, fmt.Errorf("cannot encode %s constant", v.Kind())
}

func valueFromWire(w wireValue, depth int) (vm.Value, error) {
	if depth > maxDepth {
		return vm.Null, fmt.Errorf("constant nested deeper than %d", maxDepth)
	}
	switch w.Kind {
	case kindNull:
		return vm.Null, nil
	case kindInt:
		return vm.FromInt(int64(w.Bits)), nil
	case kindFloat:
		return vm.FromFloat(math.Float64frombits(w.Bits)), nil
	case kindBool:
		if w.Bits > 1 {
			return vm.Null, fmt.Errorf("bool value %d", w.Bits)
		}
		return vm.FromBool(w.Bits == 1), nil
	case kindChar:
		if w.Bits > 0x10FFFF {
			return vm.Null, fmt.Errorf("code point %#x", w.Bits)
		}
		return vm.FromChar(rune(w.Bits)), nil
	case kindString:
		return vm.FromString(w.Str), nil
	case kindTuple, kindVector, kindObject:
		if w.Kind == kindObject && len(w.Keys) != len(w.Elems) {
			return vm.Null, fmt.Errorf("object has %d keys and %d values", len(w.Keys), len(w.Elems))
		}
		elems := make([]vm.Value, len(w.Elems))
		for i, we := range w.Elems {
			e, err := valueFromWire(we, depth+1)
			if err != nil {
				return vm.Null, err
			}
			elems[i] = e
		}
		switch w.Kind {
		case kindTuple:
			return vm.NewTuple(elems), nil
		case kindVector:
			return vm.NewVector(elems), nil
		}
		return vm.NewObject(w.Keys, elems), nil
	}
	return vm.Null, fmt.Errorf("unknown constant kind %d", w.Kind)
}
