// Package tlk reads talk tables, the numbered localized-string
// databases the engine resolves StringRefs against.
package tlk

import (
	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
	"github.com/kmsheehan/nwn2dev-public/pkg/restype"
)

// Format identification.
const (
	Magic   = "TLK "
	Version = "V3.0"
)

// HeaderSize is the fixed binary size of the file header.
const HeaderSize = 20

// entrySize is the binary size of one string entry.
const entrySize = 40

// Entry flags.
const (
	// FlagTextPresent must be set for the entry's text to be read.
	FlagTextPresent = 1 << 0
	// FlagSoundPresent marks an attached sound resref.
	FlagSoundPresent = 1 << 1
	// FlagSoundLength marks a valid sound duration.
	FlagSoundLength = 1 << 2
)

// StringRef layout: bit 24 selects the custom table, the low 24 bits
// are the index within the selected table.
const (
	CustomFlag = uint32(1) << 24
	IndexMask  = CustomFlag - 1
)

// Entry is one string entry.
type Entry struct {
	Flags       uint32
	SoundResRef restype.ResRef16
	VolumeVar   uint32
	PitchVar    uint32
	SoundLength float32
	Text        string
}

// Reader is a parsed talk table. It is safe for concurrent use.
type Reader struct {
	src      resfile.ByteSource
	language uint32
	count    uint32
	dataOff  uint32
}

// New parses the talk-table header from src.
func New(src resfile.ByteSource) (*Reader, error) {
	const op = "tlk: read header"
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

	r := &Reader{src: src}
	if r.language, err = br.ReadU32(); err != nil {
		return nil, err
	}
	if r.count, err = br.ReadU32(); err != nil {
		return nil, err
	}
	if r.dataOff, err = br.ReadU32(); err != nil {
		return nil, err
	}

	tableEnd := int64(HeaderSize) + int64(r.count)*entrySize
	if tableEnd > src.Len() {
		return nil, resfile.BoundsErr(op, "entry table of %d exceeds %d-byte file", r.count, src.Len())
	}
	if int64(r.dataOff) > src.Len() {
		return nil, resfile.BoundsErr(op, "string data offset %d exceeds %d-byte file", r.dataOff, src.Len())
	}
	return r, nil
}

// NewFromBytes parses an in-memory talk table.
func NewFromBytes(data []byte) (*Reader, error) {
	return New(resfile.NewMemorySource(data))
}

// Language returns the table's language id.
func (r *Reader) Language() uint32 {
	return r.language
}

// Count returns the number of string entries.
func (r *Reader) Count() int {
	return int(r.count)
}

// Entry reads the full entry at index i.
func (r *Reader) Entry(i uint32) (Entry, error) {
	const op = "tlk: read entry"
	if i >= r.count {
		return Entry{}, resfile.BoundsErr(op, "index %d outside table of %d", i, r.count)
	}
	br := resfile.NewReader(r.src)
	if err := br.Seek(int64(HeaderSize) + int64(i)*entrySize); err != nil {
		return Entry{}, err
	}

	var e Entry
	var err error
	if e.Flags, err = br.ReadU32(); err != nil {
		return Entry{}, err
	}
	var raw [16]byte
	if err = br.ReadFull(raw[:]); err != nil {
		return Entry{}, err
	}
	if e.SoundResRef, err = restype.ResRef16FromBytes(raw); err != nil {
		return Entry{}, err
	}
	if e.VolumeVar, err = br.ReadU32(); err != nil {
		return Entry{}, err
	}
	if e.PitchVar, err = br.ReadU32(); err != nil {
		return Entry{}, err
	}
	strOff, err := br.ReadU32()
	if err != nil {
		return Entry{}, err
	}
	strLen, err := br.ReadU32()
	if err != nil {
		return Entry{}, err
	}
	if e.SoundLength, err = br.ReadF32(); err != nil {
		return Entry{}, err
	}

	if e.Flags&FlagTextPresent != 0 && strLen > 0 {
		start := int64(r.dataOff) + int64(strOff)
		end := start + int64(strLen)
		if end < start || end > r.src.Len() {
			return Entry{}, resfile.BoundsErr(op, "string %d+%d exceeds %d-byte file", start, strLen, r.src.Len())
		}
		if err := br.Seek(start); err != nil {
			return Entry{}, err
		}
		b, err := br.ReadBytes(int64(strLen))
		if err != nil {
			return Entry{}, err
		}
		e.Text = resfile.DecodeString(b)
	}
	return e, nil
}

// String returns the text at index i. Out-of-range indices and
// entries without the text-present flag yield the empty string.
func (r *Reader) String(i uint32) (string, bool) {
	if i >= r.count {
		return "", false
	}
	e, err := r.Entry(i)
	if err != nil {
		return "", false
	}
	return e.Text, true
}

// TalkTable resolves StringRefs against a base table and an optional
// custom table. It satisfies the gff package's StringResolver.
type TalkTable struct {
	base   *Reader
	custom *Reader
}

// NewTalkTable pairs a base table with an optional custom table
// (either may be nil).
func NewTalkTable(base, custom *Reader) *TalkTable {
	return &TalkTable{base: base, custom: custom}
}

// SetCustom installs or replaces the custom table.
func (t *TalkTable) SetCustom(custom *Reader) {
	t.custom = custom
}

// String resolves a StringRef. Bit 24 selects the custom table; the
// low 24 bits index the selected table. A missing table or an
// out-of-range index resolves to ("", false).
func (t *TalkTable) String(ref uint32) (string, bool) {
	table := t.base
	if ref&CustomFlag != 0 {
		table = t.custom
	}
	if table == nil {
		return "", false
	}
	return table.String(ref & IndexMask)
}
