// Package zippak reads PKZIP archives used as resource repositories.
// The central directory is parsed once; members are decompressed in
// full on open and verified against their recorded CRC.
package zippak

import (
	"bytes"
	"compress/flate"
	"hash/crc32"
	"io"
	"strings"

	"github.com/DataDog/zstd"

	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
)

// Record signatures.
const (
	eocdSignature    = 0x06054b50
	centralSignature = 0x02014b50
	localSignature   = 0x04034b50
)

// Fixed record sizes.
const (
	eocdSize        = 22
	centralFixedLen = 46
	localFixedLen   = 30
)

// eocdScanLimit bounds the end-of-central-directory signature scan:
// the record plus the largest possible trailing comment.
const eocdScanLimit = eocdSize + 0xFFFF

// Compression methods.
const (
	MethodStored  = 0
	MethodDeflate = 8
	MethodZstd    = 93
)

// Entry is one member of the archive.
type Entry struct {
	Name             string
	Method           uint16
	CompressedSize   uint32
	UncompressedSize uint32
	CRC32            uint32

	localOffset uint32
}

// Reader is a parsed archive. It is safe for concurrent use.
type Reader struct {
	src     resfile.ByteSource
	entries []Entry
	index   map[string]int // lowercased, slash-normalized name
}

// normalizeName lowercases a member path and normalizes separators,
// so lookups are case-insensitive.
func normalizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "\\", "/"))
}

// New parses the central directory from src.
func New(src resfile.ByteSource) (*Reader, error) {
	r := &Reader{src: src, index: make(map[string]int)}
	cdOff, cdSize, count, err := findEocd(src)
	if err != nil {
		return nil, err
	}
	if err := r.parseCentralDirectory(cdOff, cdSize, count); err != nil {
		return nil, err
	}
	return r, nil
}

// NewFromBytes parses an in-memory archive image.
func NewFromBytes(data []byte) (*Reader, error) {
	return New(resfile.NewMemorySource(data))
}

// findEocd scans the trailing window of the file for the
// end-of-central-directory record.
func findEocd(src resfile.ByteSource) (cdOff, cdSize uint32, count int, err error) {
	const op = "zip: find directory"
	window := src.Len()
	if window > eocdScanLimit {
		window = eocdScanLimit
	}
	if window < eocdSize {
		return 0, 0, 0, resfile.BoundsErr(op, "file of %d bytes is shorter than the %d-byte end record", src.Len(), eocdSize)
	}
	start := src.Len() - window
	tail := make([]byte, window)
	br := resfile.NewReader(src)
	if err := br.Seek(start); err != nil {
		return 0, 0, 0, err
	}
	if err := br.ReadFull(tail); err != nil {
		return 0, 0, 0, err
	}

	for i := len(tail) - eocdSize; i >= 0; i-- {
		if le32(tail[i:]) != eocdSignature {
			continue
		}
		rec := tail[i:]
		count = int(le16(rec[10:]))
		cdSize = le32(rec[12:])
		cdOff = le32(rec[16:])
		return cdOff, cdSize, count, nil
	}
	return 0, 0, 0, resfile.MagicErr(op, "end-of-central-directory signature", "none in trailing window")
}

func (r *Reader) parseCentralDirectory(cdOff, cdSize uint32, count int) error {
	const op = "zip: read directory"
	end := int64(cdOff) + int64(cdSize)
	if end < int64(cdOff) || end > r.src.Len() {
		return resfile.BoundsErr(op, "directory %d+%d exceeds %d-byte file", cdOff, cdSize, r.src.Len())
	}
	br := resfile.NewReader(r.src)
	if err := br.Seek(int64(cdOff)); err != nil {
		return err
	}

	r.entries = make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		if br.Tell()+centralFixedLen > end {
			return resfile.MalformedErr(op, "entry %d overruns the directory", i)
		}
		rec, err := br.ReadBytes(centralFixedLen)
		if err != nil {
			return err
		}
		if le32(rec) != centralSignature {
			return resfile.MagicErr(op, "central-directory signature", "other record")
		}
		e := Entry{
			Method:           le16(rec[10:]),
			CRC32:            le32(rec[16:]),
			CompressedSize:   le32(rec[20:]),
			UncompressedSize: le32(rec[24:]),
			localOffset:      le32(rec[42:]),
		}
		nameLen := int64(le16(rec[28:]))
		extraLen := int64(le16(rec[30:]))
		commentLen := int64(le16(rec[32:]))
		if br.Tell()+nameLen+extraLen+commentLen > end {
			return resfile.MalformedErr(op, "entry %d name overruns the directory", i)
		}
		name, err := br.ReadBytes(nameLen)
		if err != nil {
			return err
		}
		e.Name = string(name)
		if err := br.Skip(extraLen + commentLen); err != nil {
			return err
		}
		r.index[normalizeName(e.Name)] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	return nil
}

// Entries returns the member directory in central-directory order.
func (r *Reader) Entries() []Entry {
	return r.entries
}

// Contains reports whether the archive holds the named member
// (case-insensitive, slash-normalized).
func (r *Reader) Contains(name string) bool {
	_, ok := r.index[normalizeName(name)]
	return ok
}

// Open decompresses the named member in full and verifies its CRC.
func (r *Reader) Open(name string) ([]byte, error) {
	const op = "zip: open"
	i, ok := r.index[normalizeName(name)]
	if !ok {
		return nil, resfile.NotFoundErr(op, "no member %q", name)
	}
	e := r.entries[i]

	// The local header repeats the name and may carry its own extra
	// block; sizes come from the central directory.
	br := resfile.NewReader(r.src)
	if err := br.Seek(int64(e.localOffset)); err != nil {
		return nil, err
	}
	rec, err := br.ReadBytes(localFixedLen)
	if err != nil {
		return nil, err
	}
	if le32(rec) != localSignature {
		return nil, resfile.MagicErr(op, "local-header signature", "other record")
	}
	nameLen := int64(le16(rec[26:]))
	extraLen := int64(le16(rec[28:]))
	if err := br.Skip(nameLen + extraLen); err != nil {
		return nil, err
	}
	comp, err := br.ReadBytes(int64(e.CompressedSize))
	if err != nil {
		return nil, err
	}

	var data []byte
	switch e.Method {
	case MethodStored:
		data = append([]byte{}, comp...)
	case MethodDeflate:
		fr := flate.NewReader(bytes.NewReader(comp))
		data, err = io.ReadAll(fr)
		fr.Close()
		if err != nil {
			return nil, resfile.MalformedErr(op, "member %q: bad deflate stream: %v", name, err)
		}
	case MethodZstd:
		data, err = zstd.Decompress(nil, comp)
		if err != nil {
			return nil, resfile.MalformedErr(op, "member %q: bad zstandard frame: %v", name, err)
		}
	default:
		return nil, resfile.UnsupportedErr(op, "member %q uses compression method %d", name, e.Method)
	}

	if uint32(len(data)) != e.UncompressedSize {
		return nil, resfile.MalformedErr(op, "member %q inflated to %d, directory declares %d", name, len(data), e.UncompressedSize)
	}
	if crc := crc32.ChecksumIEEE(data); crc != e.CRC32 {
		return nil, resfile.MalformedErr(op, "member %q crc %08x, directory declares %08x", name, crc, e.CRC32)
	}
	return data, nil
}

func le16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
