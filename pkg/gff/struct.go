package gff

import (
	"math"
	"strings"

	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
	"github.com/kmsheehan/nwn2dev-public/pkg/restype"
)

// Struct is a view over one structure entry. The zero value is not
// usable; obtain structs from Reader.Root and navigate down.
//
// All typed accessors share one contract: (value, true, nil) on
// success; (zero, false, nil) when the field is absent or has a
// different type, so optional fields can be probed; (zero, false, err)
// when the file itself is structurally bad at the accessed range.
type Struct struct {
	r     *Reader
	entry structEntry
}

// Vector is a 3-component float field value.
type Vector struct {
	X, Y, Z float32
}

// TypeTag returns the structure's type tag.
func (s Struct) TypeTag() uint32 {
	return s.entry.typeTag
}

// FieldCount returns the number of fields in the structure.
func (s Struct) FieldCount() int {
	return int(s.entry.fieldCount)
}

// fieldIndexInStruct resolves the i-th member of the struct to a
// global field index. A single-field struct stores the field index
// directly; larger structs store a byte offset into the field-index
// array.
func (s Struct) fieldIndexInStruct(i uint32) (uint32, error) {
	if i >= s.entry.fieldCount {
		return 0, resfile.BoundsErr("gff: struct field", "member %d outside struct of %d", i, s.entry.fieldCount)
	}
	if s.entry.fieldCount == 1 {
		return s.entry.dataOrOffset, nil
	}
	return s.r.fieldIndexAt(int64(s.entry.dataOrOffset) + int64(i)*4)
}

// findField walks the struct's members comparing labels. The compare
// is case-sensitive unless fold is set.
func (s Struct) findField(name string, fold bool) (fieldEntry, bool, error) {
	for i := uint32(0); i < s.entry.fieldCount; i++ {
		idx, err := s.fieldIndexInStruct(i)
		if err != nil {
			return fieldEntry{}, false, err
		}
		entry, err := s.r.fieldByIndex(idx)
		if err != nil {
			return fieldEntry{}, false, err
		}
		label, err := s.r.labelByIndex(entry.labelIndex)
		if err != nil {
			return fieldEntry{}, false, err
		}
		if label == name || (fold && strings.EqualFold(label, name)) {
			return entry, true, nil
		}
	}
	return fieldEntry{}, false, nil
}

// FieldIndex resolves a label (case-sensitive) to the field's member
// position within the struct.
func (s Struct) FieldIndex(name string) (int, bool, error) {
	for i := uint32(0); i < s.entry.fieldCount; i++ {
		idx, err := s.fieldIndexInStruct(i)
		if err != nil {
			return 0, false, err
		}
		entry, err := s.r.fieldByIndex(idx)
		if err != nil {
			return 0, false, err
		}
		label, err := s.r.labelByIndex(entry.labelIndex)
		if err != nil {
			return 0, false, err
		}
		if label == name {
			return int(i), true, nil
		}
	}
	return 0, false, nil
}

// HasField reports whether the struct has a field with the given
// label (case-sensitive).
func (s Struct) HasField(name string) bool {
	_, ok, err := s.findField(name, false)
	return err == nil && ok
}

// FieldType returns the type of the named field.
func (s Struct) FieldType(name string) (FieldType, bool, error) {
	entry, ok, err := s.findField(name, false)
	if err != nil || !ok {
		return 0, false, err
	}
	return entry.typ, true, nil
}

// FieldName returns the label of the i-th field of the struct.
func (s Struct) FieldName(i int) (string, error) {
	idx, err := s.fieldIndexInStruct(uint32(i))
	if err != nil {
		return "", err
	}
	entry, err := s.r.fieldByIndex(idx)
	if err != nil {
		return "", err
	}
	return s.r.labelByIndex(entry.labelIndex)
}

// FieldTypeAt returns the type of the i-th field of the struct.
func (s Struct) FieldTypeAt(i int) (FieldType, error) {
	idx, err := s.fieldIndexInStruct(uint32(i))
	if err != nil {
		return 0, err
	}
	entry, err := s.r.fieldByIndex(idx)
	if err != nil {
		return 0, err
	}
	return entry.typ, nil
}

// FieldByNameFold reports whether a field with the given label exists
// under case-insensitive comparison, and its type. Accessors always
// take the strict path; this is for consumers of files written with
// inconsistent label casing.
func (s Struct) FieldByNameFold(name string) (FieldType, bool, error) {
	entry, ok, err := s.findField(name, true)
	if err != nil || !ok {
		return 0, false, err
	}
	return entry.typ, true, nil
}

// small fetches the inline 4-byte payload of a field of the exact
// given type.
func (s Struct) small(name string, want FieldType) (uint32, bool, error) {
	entry, ok, err := s.findField(name, false)
	if err != nil || !ok {
		return 0, false, err
	}
	if entry.typ != want {
		return 0, false, nil
	}
	return entry.dataOrOffset, true, nil
}

// large positions a reader over the fixed-size field-data payload of a
// field of the exact given type.
func (s Struct) large(name string, want FieldType, size int64) (*resfile.ByteReader, bool, error) {
	entry, ok, err := s.findField(name, false)
	if err != nil || !ok {
		return nil, false, err
	}
	if entry.typ != want {
		return nil, false, nil
	}
	br, err := s.r.fieldDataReader(entry.dataOrOffset, size)
	if err != nil {
		return nil, false, err
	}
	return br, true, nil
}

// Byte reads a BYTE field.
func (s Struct) Byte(name string) (uint8, bool, error) {
	v, ok, err := s.small(name, TypeByte)
	return uint8(v), ok, err
}

// Char reads a CHAR field.
func (s Struct) Char(name string) (int8, bool, error) {
	v, ok, err := s.small(name, TypeChar)
	return int8(v), ok, err
}

// Word reads a WORD field.
func (s Struct) Word(name string) (uint16, bool, error) {
	v, ok, err := s.small(name, TypeWord)
	return uint16(v), ok, err
}

// Short reads a SHORT field.
func (s Struct) Short(name string) (int16, bool, error) {
	v, ok, err := s.small(name, TypeShort)
	return int16(v), ok, err
}

// Dword reads a DWORD field.
func (s Struct) Dword(name string) (uint32, bool, error) {
	return s.small(name, TypeDword)
}

// Int reads an INT field.
func (s Struct) Int(name string) (int32, bool, error) {
	v, ok, err := s.small(name, TypeInt)
	return int32(v), ok, err
}

// Float reads a FLOAT field.
func (s Struct) Float(name string) (float32, bool, error) {
	v, ok, err := s.small(name, TypeFloat)
	return math.Float32frombits(v), ok, err
}

// Dword64 reads a DWORD64 field.
func (s Struct) Dword64(name string) (uint64, bool, error) {
	br, ok, err := s.large(name, TypeDword64, 8)
	if err != nil || !ok {
		return 0, false, err
	}
	v, err := br.ReadU64()
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// Int64 reads an INT64 field.
func (s Struct) Int64(name string) (int64, bool, error) {
	br, ok, err := s.large(name, TypeInt64, 8)
	if err != nil || !ok {
		return 0, false, err
	}
	v, err := br.ReadI64()
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// Double reads a DOUBLE field.
func (s Struct) Double(name string) (float64, bool, error) {
	br, ok, err := s.large(name, TypeDouble, 8)
	if err != nil || !ok {
		return 0, false, err
	}
	v, err := br.ReadF64()
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// Vector reads a VECTOR field (three packed floats).
func (s Struct) Vector(name string) (Vector, bool, error) {
	br, ok, err := s.large(name, TypeVector, 12)
	if err != nil || !ok {
		return Vector{}, false, err
	}
	var v Vector
	if v.X, err = br.ReadF32(); err != nil {
		return Vector{}, false, err
	}
	if v.Y, err = br.ReadF32(); err != nil {
		return Vector{}, false, err
	}
	if v.Z, err = br.ReadF32(); err != nil {
		return Vector{}, false, err
	}
	return v, true, nil
}

// String reads a CEXOSTRING field, decoded from the on-disk single
// byte encoding.
func (s Struct) String(name string) (string, bool, error) {
	entry, ok, err := s.findField(name, false)
	if err != nil || !ok {
		return "", false, err
	}
	if entry.typ != TypeCExoString {
		return "", false, nil
	}
	br, err := s.r.fieldDataReader(entry.dataOrOffset, 4)
	if err != nil {
		return "", false, err
	}
	length, err := br.ReadU32()
	if err != nil {
		return "", false, err
	}
	br, err = s.r.fieldDataReader(entry.dataOrOffset+4, int64(length))
	if err != nil {
		return "", false, err
	}
	b, err := br.ReadBytes(int64(length))
	if err != nil {
		return "", false, err
	}
	return resfile.DecodeString(b), true, nil
}

// ResRef reads a RESREF field.
func (s Struct) ResRef(name string) (restype.ResRef32, bool, error) {
	entry, ok, err := s.findField(name, false)
	if err != nil || !ok {
		return restype.ResRef32{}, false, err
	}
	if entry.typ != TypeResRef {
		return restype.ResRef32{}, false, nil
	}
	br, err := s.r.fieldDataReader(entry.dataOrOffset, 1)
	if err != nil {
		return restype.ResRef32{}, false, err
	}
	length, err := br.ReadU8()
	if err != nil {
		return restype.ResRef32{}, false, err
	}
	br, err = s.r.fieldDataReader(entry.dataOrOffset+1, int64(length))
	if err != nil {
		return restype.ResRef32{}, false, err
	}
	b, err := br.ReadBytes(int64(length))
	if err != nil {
		return restype.ResRef32{}, false, err
	}
	ref, err := restype.NewResRef32(string(b))
	if err != nil {
		return restype.ResRef32{}, false, err
	}
	return ref, true, nil
}

// Void reads a VOID (opaque binary) field.
func (s Struct) Void(name string) ([]byte, bool, error) {
	entry, ok, err := s.findField(name, false)
	if err != nil || !ok {
		return nil, false, err
	}
	if entry.typ != TypeVoid {
		return nil, false, nil
	}
	br, err := s.r.fieldDataReader(entry.dataOrOffset, 4)
	if err != nil {
		return nil, false, err
	}
	length, err := br.ReadU32()
	if err != nil {
		return nil, false, err
	}
	br, err = s.r.fieldDataReader(entry.dataOrOffset+4, int64(length))
	if err != nil {
		return nil, false, err
	}
	b, err := br.ReadBytes(int64(length))
	if err != nil {
		return nil, false, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, true, nil
}

// Struct reads a STRUCT field. The field's data slot is an index into
// the struct array.
func (s Struct) Struct(name string) (Struct, bool, error) {
	v, ok, err := s.small(name, TypeStruct)
	if err != nil || !ok {
		return Struct{}, false, err
	}
	entry, err := s.r.structByIndex(v)
	if err != nil {
		return Struct{}, false, err
	}
	return Struct{r: s.r, entry: entry}, true, nil
}

// List reads a LIST field as a slice of structs. The field's data
// slot is a byte offset into the list-index array.
func (s Struct) List(name string) ([]Struct, bool, error) {
	entry, ok, err := s.findField(name, false)
	if err != nil || !ok {
		return nil, false, err
	}
	if entry.typ != TypeList {
		return nil, false, nil
	}
	indices, err := s.r.listIndicesAt(entry.dataOrOffset)
	if err != nil {
		return nil, false, err
	}
	out := make([]Struct, len(indices))
	for i, idx := range indices {
		se, err := s.r.structByIndex(idx)
		if err != nil {
			return nil, false, err
		}
		out[i] = Struct{r: s.r, entry: se}
	}
	return out, true, nil
}

// ListElement reads the i-th element of a LIST field.
func (s Struct) ListElement(name string, i int) (Struct, bool, error) {
	elems, ok, err := s.List(name)
	if err != nil || !ok {
		return Struct{}, false, err
	}
	if i < 0 || i >= len(elems) {
		return Struct{}, false, resfile.BoundsErr("gff: list", "element %d outside list of %d", i, len(elems))
	}
	return elems[i], true, nil
}

// LocString reads a CEXOLOCSTRING field without resolving it.
func (s Struct) LocString(name string) (LocString, bool, error) {
	entry, ok, err := s.findField(name, false)
	if err != nil || !ok {
		return LocString{}, false, err
	}
	if entry.typ != TypeCExoLocString {
		return LocString{}, false, nil
	}
	ls, err := s.r.readLocString(entry.dataOrOffset)
	if err != nil {
		return LocString{}, false, err
	}
	return ls, true, nil
}

// LocStringText reads a CEXOLOCSTRING field and resolves it to text
// using the reader's language preference and talk table.
func (s Struct) LocStringText(name string) (string, bool, error) {
	ls, ok, err := s.LocString(name)
	if err != nil || !ok {
		return "", false, err
	}
	return ls.Resolve(s.r.language, s.r.gender, s.r.tlk), true, nil
}
