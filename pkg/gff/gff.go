// Package gff reads the tagged-structure container format used by the
// game's object templates, module metadata, and save data. A file is a
// header plus six cross-referenced tables (structs, fields, labels,
// field data, field indices, list indices); navigation is lazy and
// every table access is bounds-checked.
package gff

import (
	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
)

// Version is the only supported format version.
const Version = "V3.2"

// HeaderSize is the fixed binary size of the file header.
const HeaderSize = 56

// Table entry strides.
const (
	structEntrySize = 12
	fieldEntrySize  = 12
	labelEntrySize  = 16
)

// FieldType identifies the data type of a field.
type FieldType uint32

// Field types, in on-disk numbering.
const (
	TypeByte          FieldType = 0
	TypeChar          FieldType = 1
	TypeWord          FieldType = 2
	TypeShort         FieldType = 3
	TypeDword         FieldType = 4
	TypeInt           FieldType = 5
	TypeDword64       FieldType = 6
	TypeInt64         FieldType = 7
	TypeFloat         FieldType = 8
	TypeDouble        FieldType = 9
	TypeCExoString    FieldType = 10
	TypeResRef        FieldType = 11
	TypeCExoLocString FieldType = 12
	TypeVoid          FieldType = 13
	TypeStruct        FieldType = 14
	TypeList          FieldType = 15
	TypeReserved      FieldType = 16
	TypeVector        FieldType = 17
)

// complex reports whether the type stores its payload outside the
// field entry's 4-byte data slot.
func (t FieldType) complex() bool {
	switch t {
	case TypeDword64, TypeInt64, TypeDouble, TypeCExoString, TypeResRef,
		TypeCExoLocString, TypeVoid, TypeVector:
		return true
	}
	return false
}

type header struct {
	fileType         string
	version          string
	structOffset     uint32
	structCount      uint32
	fieldOffset      uint32
	fieldCount       uint32
	labelOffset      uint32
	labelCount       uint32
	fieldDataOffset  uint32
	fieldDataCount   uint32 // bytes
	fieldIndexOffset uint32
	fieldIndexCount  uint32 // bytes
	listIndexOffset  uint32
	listIndexCount   uint32 // bytes
}

type structEntry struct {
	typeTag      uint32
	dataOrOffset uint32
	fieldCount   uint32
}

type fieldEntry struct {
	typ          FieldType
	labelIndex   uint32
	dataOrOffset uint32
}

// Reader is a parsed GFF file. It is safe for concurrent use; all
// reads are positioned.
type Reader struct {
	src      resfile.ByteSource
	hdr      header
	language Language
	gender   Gender
	tlk      StringResolver
}

// Option configures a Reader.
type Option func(*Reader)

// WithLanguage sets the preferred language and gender for localized
// string resolution.
func WithLanguage(lang Language, gender Gender) Option {
	return func(r *Reader) {
		r.language = lang
		r.gender = gender
	}
}

// WithTalkTable installs a talk-table resolver consulted when a
// localized string carries only a StringRef.
func WithTalkTable(tlk StringResolver) Option {
	return func(r *Reader) {
		r.tlk = tlk
	}
}

// New parses the GFF header from src and validates the table layout.
// The table contents are read lazily per access.
func New(src resfile.ByteSource, opts ...Option) (*Reader, error) {
	r := &Reader{src: src, language: LangEnglish}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.parseHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewFromBytes parses an in-memory GFF image.
func NewFromBytes(data []byte, opts ...Option) (*Reader, error) {
	return New(resfile.NewMemorySource(data), opts...)
}

func (r *Reader) parseHeader() error {
	const op = "gff: read header"
	br := resfile.NewReader(r.src)
	if r.src.Len() < HeaderSize {
		return resfile.BoundsErr(op, "file of %d bytes is shorter than the %d-byte header", r.src.Len(), HeaderSize)
	}

	var err error
	if r.hdr.fileType, err = readTag(br); err != nil {
		return err
	}
	if r.hdr.version, err = readTag(br); err != nil {
		return err
	}
	if r.hdr.version != Version {
		return resfile.MagicErr(op, Version, r.hdr.version)
	}

	fields := []*uint32{
		&r.hdr.structOffset, &r.hdr.structCount,
		&r.hdr.fieldOffset, &r.hdr.fieldCount,
		&r.hdr.labelOffset, &r.hdr.labelCount,
		&r.hdr.fieldDataOffset, &r.hdr.fieldDataCount,
		&r.hdr.fieldIndexOffset, &r.hdr.fieldIndexCount,
		&r.hdr.listIndexOffset, &r.hdr.listIndexCount,
	}
	for _, f := range fields {
		if *f, err = br.ReadU32(); err != nil {
			return err
		}
	}

	fileLen := r.src.Len()
	tables := []struct {
		name   string
		off    uint32
		length int64
	}{
		{"struct", r.hdr.structOffset, int64(r.hdr.structCount) * structEntrySize},
		{"field", r.hdr.fieldOffset, int64(r.hdr.fieldCount) * fieldEntrySize},
		{"label", r.hdr.labelOffset, int64(r.hdr.labelCount) * labelEntrySize},
		{"field data", r.hdr.fieldDataOffset, int64(r.hdr.fieldDataCount)},
		{"field index", r.hdr.fieldIndexOffset, int64(r.hdr.fieldIndexCount)},
		{"list index", r.hdr.listIndexOffset, int64(r.hdr.listIndexCount)},
	}
	for _, tbl := range tables {
		end := int64(tbl.off) + tbl.length
		if end < int64(tbl.off) || end > fileLen {
			return resfile.BoundsErr(op, "%s table %d+%d exceeds %d-byte file", tbl.name, tbl.off, tbl.length, fileLen)
		}
	}

	if r.hdr.structCount == 0 {
		return resfile.MalformedErr(op, "no structs; the root struct is required")
	}
	return nil
}

func readTag(br *resfile.ByteReader) (string, error) {
	b, err := br.ReadBytes(4)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FileType returns the 4-character content tag from the header
// ("IFO ", "ARE ", "GFF ", ...).
func (r *Reader) FileType() string {
	return r.hdr.fileType
}

// Root returns the structure at entry 0.
func (r *Reader) Root() (Struct, error) {
	entry, err := r.structByIndex(0)
	if err != nil {
		return Struct{}, err
	}
	return Struct{r: r, entry: entry}, nil
}

// StructCount returns the number of struct entries in the file.
func (r *Reader) StructCount() int {
	return int(r.hdr.structCount)
}

func (r *Reader) structByIndex(i uint32) (structEntry, error) {
	if i >= r.hdr.structCount {
		return structEntry{}, resfile.BoundsErr("gff: struct", "index %d outside table of %d", i, r.hdr.structCount)
	}
	br := resfile.NewReader(r.src)
	if err := br.Seek(int64(r.hdr.structOffset) + int64(i)*structEntrySize); err != nil {
		return structEntry{}, err
	}
	var e structEntry
	var err error
	if e.typeTag, err = br.ReadU32(); err != nil {
		return structEntry{}, err
	}
	if e.dataOrOffset, err = br.ReadU32(); err != nil {
		return structEntry{}, err
	}
	if e.fieldCount, err = br.ReadU32(); err != nil {
		return structEntry{}, err
	}
	return e, nil
}

func (r *Reader) fieldByIndex(i uint32) (fieldEntry, error) {
	if i >= r.hdr.fieldCount {
		return fieldEntry{}, resfile.BoundsErr("gff: field", "index %d outside table of %d", i, r.hdr.fieldCount)
	}
	br := resfile.NewReader(r.src)
	if err := br.Seek(int64(r.hdr.fieldOffset) + int64(i)*fieldEntrySize); err != nil {
		return fieldEntry{}, err
	}
	var e fieldEntry
	typ, err := br.ReadU32()
	if err != nil {
		return fieldEntry{}, err
	}
	e.typ = FieldType(typ)
	if e.labelIndex, err = br.ReadU32(); err != nil {
		return fieldEntry{}, err
	}
	if e.dataOrOffset, err = br.ReadU32(); err != nil {
		return fieldEntry{}, err
	}
	return e, nil
}

func (r *Reader) labelByIndex(i uint32) (string, error) {
	if i >= r.hdr.labelCount {
		return "", resfile.BoundsErr("gff: label", "index %d outside table of %d", i, r.hdr.labelCount)
	}
	br := resfile.NewReader(r.src)
	if err := br.Seek(int64(r.hdr.labelOffset) + int64(i)*labelEntrySize); err != nil {
		return "", err
	}
	return br.ReadString(labelEntrySize)
}

// fieldIndexAt reads the u32 field index at the given byte offset into
// the field-index array. Offsets are byte offsets, per the published
// format documentation.
func (r *Reader) fieldIndexAt(byteOff int64) (uint32, error) {
	if byteOff < 0 || byteOff+4 > int64(r.hdr.fieldIndexCount) {
		return 0, resfile.BoundsErr("gff: field index", "offset %d outside %d-byte array", byteOff, r.hdr.fieldIndexCount)
	}
	br := resfile.NewReader(r.src)
	if err := br.Seek(int64(r.hdr.fieldIndexOffset) + byteOff); err != nil {
		return 0, err
	}
	return br.ReadU32()
}

// fieldDataReader positions a reader at the given offset into the
// field-data blob after validating that size bytes are available.
func (r *Reader) fieldDataReader(off uint32, size int64) (*resfile.ByteReader, error) {
	end := int64(off) + size
	if end < int64(off) || end > int64(r.hdr.fieldDataCount) {
		return nil, resfile.BoundsErr("gff: field data", "range %d+%d outside %d-byte blob", off, size, r.hdr.fieldDataCount)
	}
	br := resfile.NewReader(r.src)
	if err := br.Seek(int64(r.hdr.fieldDataOffset) + int64(off)); err != nil {
		return nil, err
	}
	return br, nil
}

// listIndicesAt reads the struct-index list at the given byte offset
// into the list-index array.
func (r *Reader) listIndicesAt(byteOff uint32) ([]uint32, error) {
	const op = "gff: list index"
	limit := int64(r.hdr.listIndexCount)
	if int64(byteOff)+4 > limit {
		return nil, resfile.BoundsErr(op, "offset %d outside %d-byte array", byteOff, limit)
	}
	br := resfile.NewReader(r.src)
	if err := br.Seek(int64(r.hdr.listIndexOffset) + int64(byteOff)); err != nil {
		return nil, err
	}
	count, err := br.ReadU32()
	if err != nil {
		return nil, err
	}
	end := int64(byteOff) + 4 + int64(count)*4
	if end > limit {
		return nil, resfile.BoundsErr(op, "list of %d at %d outside %d-byte array", count, byteOff, limit)
	}
	out := make([]uint32, count)
	for i := range out {
		if out[i], err = br.ReadU32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
