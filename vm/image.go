package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ImageVersion is the current binary image format version.
// Increment when making incompatible changes to the format.
const ImageVersion uint16 = 1

// ImageMagic starts every binary image.
var ImageMagic = []byte{'M', 'R', 'T', 'E'}

const imageFlagSpans uint16 = 1 << 0

// ---------------------------------------------------------------------------
// Image Error Types
// ---------------------------------------------------------------------------

var (
	ErrInvalidMagic    = errors.New("invalid magic number: expected MRTE")
	ErrVersionMismatch = errors.New("image version mismatch")
	ErrUnexpectedEOF   = errors.New("unexpected end of image data")
	ErrCorruptData     = errors.New("corrupt image data")
)

// Constant tags
const (
	imageTagNull   byte = 0x0
	imageTagInt    byte = 0x1
	imageTagFloat  byte = 0x2
	imageTagBool   byte = 0x3
	imageTagChar   byte = 0x4
	imageTagString byte = 0x5
	imageTagTuple  byte = 0x6
	imageTagVector byte = 0x7
	imageTagObject byte = 0x8
)

// maxConstantDepth bounds nesting of compound constants in an image.
const maxConstantDepth = 64

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

// MarshalBinary encodes the chunk as a binary image.
// Format (big-endian):
//
//	[magic:4] [version:2] [flags:2]
//	[code_len:4] [instructions: code_len * 7]
//	[const_count:4] [constants:...]
//	[func_count:2] [functions:...]
//	[spans: code_len * 8] (if flags has spans)
func (c *Chunk) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 8+len(c.Code)*(InstructionSize+8)+len(c.Constants)*16)

	flags := uint16(0)
	if len(c.Spans) == len(c.Code) && len(c.Spans) > 0 {
		flags |= imageFlagSpans
	}

	buf = append(buf, ImageMagic...)
	buf = binary.BigEndian.AppendUint16(buf, ImageVersion)
	buf = binary.BigEndian.AppendUint16(buf, flags)

	// Code section
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.Code)))
	for _, in := range c.Code {
		buf = appendInstruction(buf, in)
	}

	// Constants
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.Constants)))
	for i, k := range c.Constants {
		var err error
		buf, err = appendConstant(buf, k, 0)
		if err != nil {
			return nil, fmt.Errorf("constant #%d: %w", i, err)
		}
	}

	// Functions
	if len(c.Functions) > math.MaxUint16 {
		return nil, fmt.Errorf("too many functions: %d", len(c.Functions))
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(c.Functions)))
	for _, fn := range c.Functions {
		var err error
		buf, err = appendFunction(buf, fn)
		if err != nil {
			return nil, err
		}
	}

	// Spans
	if flags&imageFlagSpans != 0 {
		for _, s := range c.Spans {
			buf = binary.BigEndian.AppendUint32(buf, uint32(s.Start))
			buf = binary.BigEndian.AppendUint32(buf, uint32(s.End))
		}
	}
	return buf, nil
}

func appendInstruction(buf []byte, in Instruction) []byte {
	return append(buf, byte(in.Op), in.Tag, in.A, in.B, in.C, byte(in.Addr>>8), byte(in.Addr))
}

// DecodeInstruction decodes one 7-byte instruction record.
func DecodeInstruction(b []byte) Instruction {
	return Instruction{
		Op:   Opcode(b[0]),
		Tag:  b[1],
		A:    b[2],
		B:    b[3],
		C:    b[4],
		Addr: binary.BigEndian.Uint16(b[5:7]),
	}
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendConstant(buf []byte, v Value, depth int) ([]byte, error) {
	if depth > maxConstantDepth {
		return nil, fmt.Errorf("constant nested deeper than %d", maxConstantDepth)
	}
	switch v.kind {
	case KindNull:
		return append(buf, imageTagNull), nil
	case KindInt:
		buf = append(buf, imageTagInt)
		return binary.BigEndian.AppendUint64(buf, v.bits), nil
	case KindFloat:
		buf = append(buf, imageTagFloat)
		return binary.BigEndian.AppendUint64(buf, v.bits), nil
	case KindBool:
		return append(buf, imageTagBool, byte(v.bits)), nil
	case KindChar:
		buf = append(buf, imageTagChar)
		return binary.BigEndian.AppendUint32(buf, uint32(v.bits)), nil
	case KindString:
		buf = append(buf, imageTagString)
		return appendString(buf, v.str), nil
	case KindTuple, KindVector:
		tag := imageTagTuple
		if v.kind == KindVector {
			tag = imageTagVector
		}
		elems := elements(v)
		buf = append(buf, tag)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(elems)))
		for _, e := range elems {
			var err error
			if buf, err = appendConstant(buf, e, depth+1); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case KindObject:
		o := v.Object()
		buf = append(buf, imageTagObject)
		buf = binary.BigEndian.AppendUint32(buf, uint32(o.Len()))
		for i, n := 0, o.Len(); i < n; i++ {
			k, e := o.At(i)
			buf = appendString(buf, k)
			var err error
			if buf, err = appendConstant(buf, e, depth+1); err != nil {
				return nil, err
			}
		}
		return buf, nil
	}
	return nil, fmt.Errorf("cannot encode %s constant", v.kind)
}

func appendFunction(buf []byte, fn *Function) ([]byte, error) {
	if len(fn.Params) > math.MaxUint8 || len(fn.Captures) > math.MaxUint8 {
		return nil, fmt.Errorf("function %q: too many params or captures", fn.Name)
	}
	buf = appendString(buf, fn.Name)
	buf = binary.BigEndian.AppendUint16(buf, fn.Entry)
	buf = binary.BigEndian.AppendUint16(buf, uint16(fn.NumRegisters))
	buf = append(buf, byte(len(fn.Params)))
	for _, p := range fn.Params {
		buf = appendString(buf, p)
	}
	buf = append(buf, byte(len(fn.Captures)))
	for _, cp := range fn.Captures {
		buf = appendString(buf, cp.Name)
		buf = append(buf, cp.Source)
	}
	return buf, nil
}

// ---------------------------------------------------------------------------
// Reading
// ---------------------------------------------------------------------------

// imageReader is a cursor over image bytes.
type imageReader struct {
	data   []byte
	offset int
}

func (ir *imageReader) readBytes(n int) ([]byte, error) {
	if n < 0 || ir.offset+n > len(ir.data) {
		return nil, ErrUnexpectedEOF
	}
	b := ir.data[ir.offset : ir.offset+n]
	ir.offset += n
	return b, nil
}

func (ir *imageReader) readByte() (byte, error) {
	b, err := ir.readBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (ir *imageReader) readUint16() (uint16, error) {
	b, err := ir.readBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (ir *imageReader) readUint32() (uint32, error) {
	b, err := ir.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (ir *imageReader) readUint64() (uint64, error) {
	b, err := ir.readBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// readString reads a length-prefixed string: [length:32 | utf8 bytes].
func (ir *imageReader) readString() (string, error) {
	n, err := ir.readUint32()
	if err != nil {
		return "", err
	}
	b, err := ir.readBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readCount reads a uint32 element count and rejects counts that cannot fit
// in the remaining data at minSize bytes per element.
func (ir *imageReader) readCount(minSize int) (int, error) {
	n, err := ir.readUint32()
	if err != nil {
		return 0, err
	}
	if int64(n)*int64(minSize) > int64(len(ir.data)-ir.offset) {
		return 0, ErrUnexpectedEOF
	}
	return int(n), nil
}

// UnmarshalChunk decodes a binary image produced by MarshalBinary. The
// result is structurally decoded but not validated; call Validate (the
// Machine does so before running).
func UnmarshalChunk(data []byte) (*Chunk, error) {
	ir := &imageReader{data: data}

	magic, err := ir.readBytes(len(ImageMagic))
	if err != nil {
		return nil, err
	}
	if string(magic) != string(ImageMagic) {
		return nil, ErrInvalidMagic
	}
	version, err := ir.readUint16()
	if err != nil {
		return nil, err
	}
	if version != ImageVersion {
		return nil, fmt.Errorf("%w: image is version %d, supported version is %d", ErrVersionMismatch, version, ImageVersion)
	}
	flags, err := ir.readUint16()
	if err != nil {
		return nil, err
	}

	c := &Chunk{}

	// Code section
	codeLen, err := ir.readCount(InstructionSize)
	if err != nil {
		return nil, fmt.Errorf("reading code: %w", err)
	}
	c.Code = make([]Instruction, codeLen)
	for i := range c.Code {
		b, err := ir.readBytes(InstructionSize)
		if err != nil {
			return nil, fmt.Errorf("reading instruction %d: %w", i, err)
		}
		c.Code[i] = DecodeInstruction(b)
	}

	// Constants
	constCount, err := ir.readCount(1)
	if err != nil {
		return nil, fmt.Errorf("reading constants: %w", err)
	}
	c.Constants = make([]Value, constCount)
	for i := range c.Constants {
		if c.Constants[i], err = ir.readConstant(0); err != nil {
			return nil, fmt.Errorf("reading constant #%d: %w", i, err)
		}
	}

	// Functions
	funcCount, err := ir.readUint16()
	if err != nil {
		return nil, fmt.Errorf("reading functions: %w", err)
	}
	c.Functions = make([]*Function, funcCount)
	for i := range c.Functions {
		if c.Functions[i], err = ir.readFunction(); err != nil {
			return nil, fmt.Errorf("reading function %d: %w", i, err)
		}
	}

	// Spans
	if flags&imageFlagSpans != 0 {
		c.Spans = make([]SourceSpan, codeLen)
		for i := range c.Spans {
			start, err := ir.readUint32()
			if err != nil {
				return nil, fmt.Errorf("reading span %d: %w", i, err)
			}
			end, err := ir.readUint32()
			if err != nil {
				return nil, fmt.Errorf("reading span %d: %w", i, err)
			}
			c.Spans[i] = SourceSpan{Start: int(start), End: int(end)}
		}
	}

	if ir.offset != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptData, len(data)-ir.offset)
	}
	return c, nil
}

func (ir *imageReader) readConstant(depth int) (Value, error) {
	if depth > maxConstantDepth {
		return Null, fmt.Errorf("%w: constant nested deeper than %d", ErrCorruptData, maxConstantDepth)
	}
	tag, err := ir.readByte()
	if err != nil {
		return Null, err
	}
	switch tag {
	case imageTagNull:
		return Null, nil
	case imageTagInt:
		n, err := ir.readUint64()
		return FromInt(int64(n)), err
	case imageTagFloat:
		n, err := ir.readUint64()
		return FromFloat(math.Float64frombits(n)), err
	case imageTagBool:
		b, err := ir.readByte()
		if err == nil && b > 1 {
			err = fmt.Errorf("%w: bool byte %d", ErrCorruptData, b)
		}
		return FromBool(b == 1), err
	case imageTagChar:
		n, err := ir.readUint32()
		if err == nil && n > 0x10FFFF {
			err = fmt.Errorf("%w: code point %#x", ErrCorruptData, n)
		}
		return FromChar(rune(n)), err
	case imageTagString:
		s, err := ir.readString()
		return FromString(s), err
	case imageTagTuple, imageTagVector:
		n, err := ir.readCount(1)
		if err != nil {
			return Null, err
		}
		elems := make([]Value, n)
		for i := range elems {
			if elems[i], err = ir.readConstant(depth + 1); err != nil {
				return Null, err
			}
		}
		if tag == imageTagVector {
			return NewVector(elems), nil
		}
		return NewTuple(elems), nil
	case imageTagObject:
		n, err := ir.readCount(5)
		if err != nil {
			return Null, err
		}
		o := &Object{}
		for i := 0; i < n; i++ {
			k, err := ir.readString()
			if err != nil {
				return Null, err
			}
			v, err := ir.readConstant(depth + 1)
			if err != nil {
				return Null, err
			}
			o.Set(k, v)
		}
		return FromObject(o), nil
	}
	return Null, fmt.Errorf("%w: unknown constant tag 0x%02X", ErrCorruptData, tag)
}

func (ir *imageReader) readFunction() (*Function, error) {
	fn := &Function{}
	var err error
	if fn.Name, err = ir.readString(); err != nil {
		return nil, err
	}
	if fn.Entry, err = ir.readUint16(); err != nil {
		return nil, err
	}
	regs, err := ir.readUint16()
	if err != nil {
		return nil, err
	}
	fn.NumRegisters = int(regs)

	nParams, err := ir.readByte()
	if err != nil {
		return nil, err
	}
	fn.Params = make([]string, nParams)
	for i := range fn.Params {
		if fn.Params[i], err = ir.readString(); err != nil {
			return nil, err
		}
	}

	nCaptures, err := ir.readByte()
	if err != nil {
		return nil, err
	}
	fn.Captures = make([]Capture, nCaptures)
	for i := range fn.Captures {
		if fn.Captures[i].Name, err = ir.readString(); err != nil {
			return nil, err
		}
		if fn.Captures[i].Source, err = ir.readByte(); err != nil {
			return nil, err
		}
	}
	return fn, nil
}
