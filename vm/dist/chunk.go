// Package dist encodes compiled chunks as canonical CBOR so hosts can ship
// them between processes. An Envelope pairs the encoded chunk with its
// sha256 content hash; the receiver verifies the hash before decoding.
package dist

// Value kinds on the wire. They match the order of vm.Kind but are pinned
// here so the wire format does not move when the VM grows a kind.
const (
	kindNull   uint8 = 0
	kindInt    uint8 = 1
	kindFloat  uint8 = 2
	kindBool   uint8 = 3
	kindChar   uint8 = 4
	kindString uint8 = 5
	kindTuple  uint8 = 6
	kindVector uint8 = 7
	kindObject uint8 = 8
)

// WireVersion is the version of the CBOR chunk layout.
const WireVersion uint8 = 1

// Envelope is the unit of transfer. Hash is the sha256 of Body.
type Envelope struct {
	Hash    [32]byte `cbor:"1,keyasint"`
	Version uint8    `cbor:"2,keyasint"`
	Body    []byte   `cbor:"3,keyasint"` // canonical CBOR of a wireChunk
}

type wireChunk struct {
	Code      []wireInstruction `cbor:"1,keyasint"`
	Constants []wireValue       `cbor:"2,keyasint,omitempty"`
	Functions []wireFunction    `cbor:"3,keyasint"`
	Spans     [][2]uint32       `cbor:"4,keyasint,omitempty"`
}

type wireInstruction struct {
	_    struct{} `cbor:",toarray"`
	Op   uint8
	Tag  uint8
	A    uint8
	B    uint8
	C    uint8
	Addr uint16
}

// wireValue is a tagged constant. Floats travel as their IEEE bits so NaN
// payloads and negative zero survive.
type wireValue struct {
	Kind  uint8       `cbor:"1,keyasint"`
	Bits  uint64      `cbor:"2,keyasint,omitempty"` // int, float, bool, char
	Str   string      `cbor:"3,keyasint,omitempty"`
	Elems []wireValue `cbor:"4,keyasint,omitempty"`
	Keys  []string    `cbor:"5,keyasint,omitempty"`
}

type wireFunction struct {
	Name         string        `cbor:"1,keyasint,omitempty"`
	Entry        uint16        `cbor:"2,keyasint"`
	NumRegisters uint16        `cbor:"3,keyasint"`
	Params       []string      `cbor:"4,keyasint,omitempty"`
	Captures     []wireCapture `cbor:"5,keyasint,omitempty"`
}

type wireCapture struct {
	_      struct{} `cbor:",toarray"`
	Name   string
	Source uint8
}
