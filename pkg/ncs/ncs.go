// Package ncs frames compiled script bytecode and parses the
// compiler's companion debug-symbol files.
package ncs

import (
	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
)

// Format identification.
const (
	Magic   = "NCS "
	Version = "V1.0"
)

// HeaderSize covers the magic, version, the size opcode, and its
// big-endian program-length operand.
const HeaderSize = 13

// sizeOpcode is the mandatory first instruction carrying the total
// program length.
const sizeOpcode = 0x42

// Script is a validated bytecode image.
type Script struct {
	src  resfile.ByteSource
	size uint32
}

// New validates the bytecode framing of src.
func New(src resfile.ByteSource) (*Script, error) {
	const op = "ncs: parse"
	br := resfile.NewReader(src)
	if src.Len() < HeaderSize {
		return nil, resfile.BoundsErr(op, "file of %d bytes is shorter than the %d-byte header", src.Len(), HeaderSize)
	}

	magic, err := br.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	if string(magic) != Magic {
		return nil, resfile.MagicErr(op, Magic, string(magic))
	}
	version, err := br.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	if string(version) != Version {
		return nil, resfile.MagicErr(op, Version, string(version))
	}

	opcode, err := br.ReadU8()
	if err != nil {
		return nil, err
	}
	if opcode != sizeOpcode {
		return nil, resfile.MalformedErr(op, "size opcode %#02x, expected %#02x", opcode, sizeOpcode)
	}

	// The program length is the one big-endian field in the format.
	raw, err := br.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	size := uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])
	if int64(size) != src.Len() {
		return nil, resfile.MalformedErr(op, "declared program length %d, file is %d bytes", size, src.Len())
	}
	return &Script{src: src, size: size}, nil
}

// NewFromBytes validates an in-memory bytecode image.
func NewFromBytes(data []byte) (*Script, error) {
	return New(resfile.NewMemorySource(data))
}

// Size returns the declared total program length.
func (s *Script) Size() uint32 {
	return s.size
}

// Code returns the instruction byte range following the header.
func (s *Script) Code() (resfile.ByteSource, error) {
	return s.src.Section(HeaderSize, s.src.Len()-HeaderSize)
}
