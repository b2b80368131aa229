package resfile

import (
	"encoding/binary"
	"math"

	"golang.org/x/text/encoding/charmap"
)

// ByteReader is a little-endian read cursor over a ByteSource.
// It is not safe for concurrent use; create one reader per goroutine.
type ByteReader struct {
	src ByteSource
	pos int64
}

// NewReader creates a reader positioned at the start of src.
func NewReader(src ByteSource) *ByteReader {
	return &ByteReader{src: src}
}

// NewMemoryReader creates a reader over an in-memory buffer.
func NewMemoryReader(data []byte) *ByteReader {
	return &ByteReader{src: MemorySource(data)}
}

// Source returns the underlying source.
func (r *ByteReader) Source() ByteSource {
	return r.src
}

// Len returns the total length of the underlying source.
func (r *ByteReader) Len() int64 {
	return r.src.Len()
}

// Tell returns the current cursor position.
func (r *ByteReader) Tell() int64 {
	return r.pos
}

// Remaining returns the number of bytes left after the cursor.
func (r *ByteReader) Remaining() int64 {
	return r.src.Len() - r.pos
}

// Seek moves the cursor to the absolute position abs.
func (r *ByteReader) Seek(abs int64) error {
	if abs < 0 || abs > r.src.Len() {
		return BoundsErr("seek", "position %d outside %d-byte source", abs, r.src.Len())
	}
	r.pos = abs
	return nil
}

// Skip advances the cursor by n bytes.
func (r *ByteReader) Skip(n int64) error {
	if n < 0 || r.pos+n < r.pos {
		return BoundsErr("skip", "invalid skip %d at %d", n, r.pos)
	}
	return r.Seek(r.pos + n)
}

// ReadBytes reads the next n bytes. The returned slice aliases the
// source buffer when memory-backed; callers must not modify it.
func (r *ByteReader) ReadBytes(n int64) ([]byte, error) {
	if err := checkRange(r.pos, n, r.src.Len()); err != nil {
		return nil, err
	}
	if b, ok := r.src.Bytes(); ok {
		out := b[r.pos : r.pos+n]
		r.pos += n
		return out, nil
	}
	out := make([]byte, n)
	if _, err := readFullAt(r.src, out, r.pos); err != nil {
		return nil, err
	}
	r.pos += n
	return out, nil
}

// ReadFull fills p from the cursor.
func (r *ByteReader) ReadFull(p []byte) error {
	if err := checkRange(r.pos, int64(len(p)), r.src.Len()); err != nil {
		return err
	}
	if _, err := readFullAt(r.src, p, r.pos); err != nil {
		return err
	}
	r.pos += int64(len(p))
	return nil
}

// ReadU8 reads an unsigned byte.
func (r *ByteReader) ReadU8() (uint8, error) {
	b, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a little-endian uint16.
func (r *ByteReader) ReadU16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian uint32.
func (r *ByteReader) ReadU32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a little-endian uint64.
func (r *ByteReader) ReadU64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadI8 reads a signed byte.
func (r *ByteReader) ReadI8() (int8, error) {
	v, err := r.ReadU8()
	return int8(v), err
}

// ReadI16 reads a little-endian int16.
func (r *ByteReader) ReadI16() (int16, error) {
	v, err := r.ReadU16()
	return int16(v), err
}

// ReadI32 reads a little-endian int32.
func (r *ByteReader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// ReadI64 reads a little-endian int64.
func (r *ByteReader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

// ReadF32 reads a little-endian float32.
func (r *ByteReader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	return math.Float32frombits(v), err
}

// ReadF64 reads a little-endian float64.
func (r *ByteReader) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	return math.Float64frombits(v), err
}

// ReadString reads a fixed-width n-byte field and returns it as a
// string truncated at the first NUL.
func (r *ByteReader) ReadString(n int64) (string, error) {
	b, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	return TrimAtNul(b), nil
}

// TrimAtNul returns b as a string cut at the first NUL byte.
func TrimAtNul(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// DecodeString converts on-disk single-byte text (Windows-1252, the
// encoding all the talk-table era formats use) to UTF-8.
func DecodeString(b []byte) string {
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
