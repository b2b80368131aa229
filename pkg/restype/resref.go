// Package restype provides the resource naming primitives: fixed-width
// case-insensitive resource references and the resource-type registry
// mapping type tags to file extensions.
package restype

import (
	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
)

// Widths of the two resref variants.
const (
	ResRef16Len = 16 // classic resref width
	ResRef32Len = 32 // extended resref width
)

// ResRef16 is a canonicalized resource reference of up to 16
// characters. The zero value is the empty resref. Values are
// comparable; equality is on the canonical (lowercased, NUL-trimmed)
// form.
type ResRef16 struct {
	s string
}

// ResRef32 is a canonicalized resource reference of up to 32
// characters.
type ResRef32 struct {
	s string
}

// canonicalize lowercases ASCII letters and trims trailing NULs.
// Bytes outside [0-9a-z_-] are preserved; the on-disk format is
// tolerant of them. An embedded NUL before the padding is an error.
func canonicalize(b []byte, width int, op string) (string, error) {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	if n > width {
		return "", resfile.MalformedErr(op, "resref %q exceeds %d characters", b[:n], width)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		c := b[i]
		if c == 0 {
			return "", resfile.MalformedErr(op, "resref %q has embedded NUL", b[:n])
		}
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out), nil
}

// NewResRef16 canonicalizes s into a 16-character resref.
func NewResRef16(s string) (ResRef16, error) {
	c, err := canonicalize([]byte(s), ResRef16Len, "resref16")
	if err != nil {
		return ResRef16{}, err
	}
	return ResRef16{s: c}, nil
}

// NewResRef32 canonicalizes s into a 32-character resref.
func NewResRef32(s string) (ResRef32, error) {
	c, err := canonicalize([]byte(s), ResRef32Len, "resref32")
	if err != nil {
		return ResRef32{}, err
	}
	return ResRef32{s: c}, nil
}

// ResRef16FromBytes canonicalizes an on-disk 16-byte field.
func ResRef16FromBytes(b [16]byte) (ResRef16, error) {
	c, err := canonicalize(b[:], ResRef16Len, "resref16")
	if err != nil {
		return ResRef16{}, err
	}
	return ResRef16{s: c}, nil
}

// ResRef32FromBytes canonicalizes an on-disk 32-byte field.
func ResRef32FromBytes(b [32]byte) (ResRef32, error) {
	c, err := canonicalize(b[:], ResRef32Len, "resref32")
	if err != nil {
		return ResRef32{}, err
	}
	return ResRef32{s: c}, nil
}

// String returns the canonical form.
func (r ResRef16) String() string { return r.s }

// String returns the canonical form.
func (r ResRef32) String() string { return r.s }

// IsEmpty reports whether the resref is empty.
func (r ResRef16) IsEmpty() bool { return r.s == "" }

// IsEmpty reports whether the resref is empty.
func (r ResRef32) IsEmpty() bool { return r.s == "" }

// Bytes returns the on-disk 16-byte NUL-padded image.
func (r ResRef16) Bytes() [16]byte {
	var out [16]byte
	copy(out[:], r.s)
	return out
}

// Bytes returns the on-disk 32-byte NUL-padded image.
func (r ResRef32) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], r.s)
	return out
}

// To32 widens a 16-character resref. Always succeeds.
func (r ResRef16) To32() ResRef32 {
	return ResRef32{s: r.s}
}

// To16 narrows a 32-character resref. It fails if the trimmed length
// exceeds 16 characters.
func (r ResRef32) To16() (ResRef16, error) {
	if len(r.s) > ResRef16Len {
		return ResRef16{}, resfile.MalformedErr("resref32", "%q does not fit in 16 characters", r.s)
	}
	return ResRef16{s: r.s}, nil
}
