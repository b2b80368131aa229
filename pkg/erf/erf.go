// Package erf reads and writes the flat resource archives the engine
// uses for modules, HAK packs, saves, and premium modules. V1.0
// archives carry 16-character resrefs, V1.1 archives 32-character
// ones.
package erf

import (
	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
	"github.com/kmsheehan/nwn2dev-public/pkg/restype"
)

// HeaderSize is the fixed binary size of the archive header.
const HeaderSize = 160

// Versions.
const (
	V10 = "V1.0" // 16-character resrefs
	V11 = "V1.1" // 32-character resrefs
)

// Key and resource table strides.
const (
	keyEntrySize10    = 24 // resref16 + id u32 + type u16 + pad u16
	keyEntrySize11    = 40 // resref32 + id u32 + type u16 + pad u16
	resourceEntrySize = 8
)

// fileTypes are the accepted content tags.
var fileTypes = map[string]bool{
	"ERF ": true,
	"MOD ": true,
	"HAK ": true,
	"SAV ": true,
	"NWM ": true,
}

// LocalizedText is one language's description string.
type LocalizedText struct {
	Language uint32
	Text     string
}

// Entry describes one archived resource.
type Entry struct {
	ResRef restype.ResRef32
	Type   restype.ResType
	Offset uint32
	Size   uint32
}

type entryKey struct {
	ref restype.ResRef32
	typ restype.ResType
}

// Reader is a parsed archive. It is safe for concurrent use.
type Reader struct {
	src      resfile.ByteSource
	fileType string
	version  string

	buildYear      uint32
	buildDay       uint32
	descriptionRef uint32
	descriptions   []LocalizedText

	entries []Entry
	index   map[entryKey]int
}

// New parses the archive tables from src.
func New(src resfile.ByteSource) (*Reader, error) {
	const op = "erf: read header"
	br := resfile.NewReader(src)
	if src.Len() < HeaderSize {
		return nil, resfile.BoundsErr(op, "file of %d bytes is shorter than the %d-byte header", src.Len(), HeaderSize)
	}

	r := &Reader{src: src}
	magic, err := br.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	r.fileType = string(magic)
	if !fileTypes[r.fileType] {
		return nil, resfile.MagicErr(op, "ERF /MOD /HAK /SAV /NWM ", r.fileType)
	}
	version, err := br.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	r.version = string(version)
	switch r.version {
	case V10, V11:
	case "V2.0", "V2.2", "V3.0":
		// Later revisions add compression and encryption; this
		// library does not carry them.
		return nil, resfile.UnsupportedErr(op, "archive version %s (compressed/encrypted revisions are not supported)", r.version)
	default:
		return nil, resfile.MagicErr(op, V10+" or "+V11, r.version)
	}

	var langCount, locStrSize, entryCount uint32
	var locStrOff, keysOff, resOff uint32
	for _, f := range []*uint32{
		&langCount, &locStrSize, &entryCount,
		&locStrOff, &keysOff, &resOff,
		&r.buildYear, &r.buildDay, &r.descriptionRef,
	} {
		if *f, err = br.ReadU32(); err != nil {
			return nil, err
		}
	}

	if err := r.parseDescriptions(br, langCount, locStrSize, locStrOff); err != nil {
		return nil, err
	}
	if err := r.parseTables(br, entryCount, keysOff, resOff); err != nil {
		return nil, err
	}
	return r, nil
}

// NewFromBytes parses an in-memory archive image.
func NewFromBytes(data []byte) (*Reader, error) {
	return New(resfile.NewMemorySource(data))
}

func (r *Reader) parseDescriptions(br *resfile.ByteReader, count, size, off uint32) error {
	const op = "erf: read descriptions"
	end := int64(off) + int64(size)
	if end < int64(off) || end > r.src.Len() {
		return resfile.BoundsErr(op, "block %d+%d exceeds %d-byte file", off, size, r.src.Len())
	}
	if err := br.Seek(int64(off)); err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		if br.Tell()+8 > end {
			return resfile.MalformedErr(op, "string %d overruns the %d-byte block", i, size)
		}
		lang, err := br.ReadU32()
		if err != nil {
			return err
		}
		length, err := br.ReadU32()
		if err != nil {
			return err
		}
		if br.Tell()+int64(length) > end {
			return resfile.MalformedErr(op, "string %d of %d bytes overruns the %d-byte block", i, length, size)
		}
		b, err := br.ReadBytes(int64(length))
		if err != nil {
			return err
		}
		r.descriptions = append(r.descriptions, LocalizedText{
			Language: lang,
			Text:     resfile.DecodeString(b),
		})
	}
	return nil
}

func (r *Reader) parseTables(br *resfile.ByteReader, count, keysOff, resOff uint32) error {
	const op = "erf: read tables"
	keySize := int64(keyEntrySize10)
	refLen := int64(16)
	if r.version == V11 {
		keySize = keyEntrySize11
		refLen = 32
	}
	keysEnd := int64(keysOff) + int64(count)*keySize
	if keysEnd < int64(keysOff) || keysEnd > r.src.Len() {
		return resfile.BoundsErr(op, "key table %d+%d exceeds %d-byte file", keysOff, count, r.src.Len())
	}
	resEnd := int64(resOff) + int64(count)*resourceEntrySize
	if resEnd < int64(resOff) || resEnd > r.src.Len() {
		return resfile.BoundsErr(op, "resource table %d+%d exceeds %d-byte file", resOff, count, r.src.Len())
	}

	type keyEntry struct {
		ref restype.ResRef32
		typ restype.ResType
		id  uint32
	}
	keys := make([]keyEntry, count)
	if err := br.Seek(int64(keysOff)); err != nil {
		return err
	}
	for i := range keys {
		raw, err := br.ReadBytes(refLen)
		if err != nil {
			return err
		}
		var wide [32]byte
		copy(wide[:], raw)
		if keys[i].ref, err = restype.ResRef32FromBytes(wide); err != nil {
			return err
		}
		if keys[i].id, err = br.ReadU32(); err != nil {
			return err
		}
		typ, err := br.ReadU16()
		if err != nil {
			return err
		}
		keys[i].typ = restype.ResType(typ)
		if err := br.Skip(2); err != nil {
			return err
		}
	}

	r.entries = make([]Entry, count)
	r.index = make(map[entryKey]int, count)
	for i, k := range keys {
		if k.id >= count {
			return resfile.MalformedErr(op, "key %d references resource %d of %d", i, k.id, count)
		}
		if err := br.Seek(int64(resOff) + int64(k.id)*resourceEntrySize); err != nil {
			return err
		}
		off, err := br.ReadU32()
		if err != nil {
			return err
		}
		size, err := br.ReadU32()
		if err != nil {
			return err
		}
		end := int64(off) + int64(size)
		if end < int64(off) || end > r.src.Len() {
			return resfile.BoundsErr(op, "resource %d payload %d+%d exceeds %d-byte file", i, off, size, r.src.Len())
		}
		r.entries[i] = Entry{ResRef: k.ref, Type: k.typ, Offset: off, Size: size}
		r.index[entryKey{k.ref, k.typ}] = i
	}
	return nil
}

// FileType returns the archive's 4-character content tag.
func (r *Reader) FileType() string {
	return r.fileType
}

// Version returns "V1.0" or "V1.1".
func (r *Reader) Version() string {
	return r.version
}

// BuildDate returns the recorded build year (years since 1900) and
// day of year.
func (r *Reader) BuildDate() (year, day uint32) {
	return r.buildYear, r.buildDay
}

// Count returns the number of archived resources.
func (r *Reader) Count() int {
	return len(r.entries)
}

// Entries returns the resource directory in table order.
func (r *Reader) Entries() []Entry {
	return r.entries
}

// DescriptionRef returns the talk-table reference of the description.
func (r *Reader) DescriptionRef() uint32 {
	return r.descriptionRef
}

// Descriptions returns all localized description strings.
func (r *Reader) Descriptions() []LocalizedText {
	return r.descriptions
}

// Description returns the description in the given language, falling
// back to the first present string.
func (r *Reader) Description(language uint32) (string, bool) {
	for _, d := range r.descriptions {
		if d.Language == language {
			return d.Text, true
		}
	}
	if len(r.descriptions) > 0 {
		return r.descriptions[0].Text, true
	}
	return "", false
}

// Contains reports whether the archive holds the resource.
func (r *Reader) Contains(ref restype.ResRef32, typ restype.ResType) bool {
	_, ok := r.index[entryKey{ref, typ}]
	return ok
}

// Open returns a view over the payload of the named resource.
func (r *Reader) Open(ref restype.ResRef32, typ restype.ResType) (resfile.ByteSource, error) {
	i, ok := r.index[entryKey{ref, typ}]
	if !ok {
		return nil, resfile.NotFoundErr("erf: open", "%s.%s not in archive", ref, typ)
	}
	e := r.entries[i]
	return r.src.Section(int64(e.Offset), int64(e.Size))
}
