package gff

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
)

// gffBuilder emits byte-exact GFF V3.2 images for tests.
type gffBuilder struct {
	structs      [][3]uint32 // type, dataOrOffset, fieldCount
	fields       [][3]uint32 // type, labelIndex, dataOrOffset
	labels       []string
	fieldData    []byte
	fieldIndices []uint32
	listIndices  []uint32
}

func (b *gffBuilder) label(name string) uint32 {
	for i, l := range b.labels {
		if l == name {
			return uint32(i)
		}
	}
	b.labels = append(b.labels, name)
	return uint32(len(b.labels) - 1)
}

func (b *gffBuilder) addStruct(typeTag, dataOrOffset, fieldCount uint32) uint32 {
	b.structs = append(b.structs, [3]uint32{typeTag, dataOrOffset, fieldCount})
	return uint32(len(b.structs) - 1)
}

func (b *gffBuilder) addField(typ FieldType, name string, dataOrOffset uint32) uint32 {
	b.fields = append(b.fields, [3]uint32{uint32(typ), b.label(name), dataOrOffset})
	return uint32(len(b.fields) - 1)
}

func (b *gffBuilder) addData(data []byte) uint32 {
	off := uint32(len(b.fieldData))
	b.fieldData = append(b.fieldData, data...)
	return off
}

func (b *gffBuilder) addIndices(indices ...uint32) uint32 {
	off := uint32(len(b.fieldIndices) * 4)
	b.fieldIndices = append(b.fieldIndices, indices...)
	return off
}

func (b *gffBuilder) addList(structIndices ...uint32) uint32 {
	off := uint32(len(b.listIndices) * 4)
	b.listIndices = append(b.listIndices, uint32(len(structIndices)))
	b.listIndices = append(b.listIndices, structIndices...)
	return off
}

func (b *gffBuilder) build() []byte {
	structOff := uint32(HeaderSize)
	fieldOff := structOff + uint32(len(b.structs)*structEntrySize)
	labelOff := fieldOff + uint32(len(b.fields)*fieldEntrySize)
	dataOff := labelOff + uint32(len(b.labels)*labelEntrySize)
	fieldIdxOff := dataOff + uint32(len(b.fieldData))
	listIdxOff := fieldIdxOff + uint32(len(b.fieldIndices)*4)

	out := make([]byte, 0, int(listIdxOff)+len(b.listIndices)*4)
	out = append(out, "GFF V3.2"...)
	for _, v := range []uint32{
		structOff, uint32(len(b.structs)),
		fieldOff, uint32(len(b.fields)),
		labelOff, uint32(len(b.labels)),
		dataOff, uint32(len(b.fieldData)),
		fieldIdxOff, uint32(len(b.fieldIndices) * 4),
		listIdxOff, uint32(len(b.listIndices) * 4),
	} {
		out = binary.LittleEndian.AppendUint32(out, v)
	}
	for _, s := range b.structs {
		for _, v := range s {
			out = binary.LittleEndian.AppendUint32(out, v)
		}
	}
	for _, f := range b.fields {
		for _, v := range f {
			out = binary.LittleEndian.AppendUint32(out, v)
		}
	}
	for _, l := range b.labels {
		var raw [labelEntrySize]byte
		copy(raw[:], l)
		out = append(out, raw[:]...)
	}
	out = append(out, b.fieldData...)
	for _, v := range b.fieldIndices {
		out = binary.LittleEndian.AppendUint32(out, v)
	}
	for _, v := range b.listIndices {
		out = binary.LittleEndian.AppendUint32(out, v)
	}
	return out
}

func asInt8(v int8) int8   { return v }
func asInt16(v int16) int16 { return v }
func asInt32(v int32) int32 { return v }
func asInt64(v int64) int64 { return v }

func u32data(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func u64data(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

func exoString(s string) []byte {
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(s)))
	return append(out, s...)
}

func locString(stringRef uint32, subs ...SubString) []byte {
	body := binary.LittleEndian.AppendUint32(nil, stringRef)
	body = binary.LittleEndian.AppendUint32(body, uint32(len(subs)))
	for _, sub := range subs {
		body = binary.LittleEndian.AppendUint32(body, sub.ID)
		body = binary.LittleEndian.AppendUint32(body, uint32(len(sub.Text)))
		body = append(body, sub.Text...)
	}
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(body)))
	return append(out, body...)
}

// buildAllTypes emits a root struct exercising every field type.
func buildAllTypes() []byte {
	b := &gffBuilder{}

	vec := binary.LittleEndian.AppendUint32(nil, math.Float32bits(1))
	vec = binary.LittleEndian.AppendUint32(vec, math.Float32bits(2))
	vec = binary.LittleEndian.AppendUint32(vec, math.Float32bits(3))

	inner := b.addStruct(7, 0, 0) // patched below once its field exists
	elemA := b.addStruct(8, 0, 0)
	elemB := b.addStruct(9, 0, 0)

	rootFields := []uint32{
		b.addField(TypeByte, "AByte", 250),
		b.addField(TypeChar, "AChar", uint32(uint8(asInt8(-3)))),
		b.addField(TypeWord, "AWord", 0xBEEF),
		b.addField(TypeShort, "AShort", uint32(uint16(asInt16(-12345)))),
		b.addField(TypeDword, "ADword", 0xDEADBEEF),
		b.addField(TypeInt, "AnInt", uint32(asInt32(-42))),
		b.addField(TypeFloat, "AFloat", math.Float32bits(1.5)),
		b.addField(TypeDword64, "ADword64", b.addData(u64data(0x1122334455667788))),
		b.addField(TypeInt64, "AnInt64", b.addData(u64data(uint64(asInt64(-987654321012))))),
		b.addField(TypeDouble, "ADouble", b.addData(u64data(math.Float64bits(2.75)))),
		b.addField(TypeVector, "AVector", b.addData(vec)),
		b.addField(TypeCExoString, "AString", b.addData(exoString("Hello, world"))),
		b.addField(TypeResRef, "ARef", b.addData(append([]byte{8}, "NWScript"...))),
		b.addField(TypeCExoLocString, "Mod_Name", b.addData(locString(16777216, SubString{ID: 0, Text: "Hello"}))),
		b.addField(TypeVoid, "ABlob", b.addData(append(u32data(4), 1, 2, 3, 4))),
		b.addField(TypeStruct, "Inner", inner),
		b.addField(TypeList, "Things", b.addList(elemA, elemB)),
	}

	// Single-field structs store the field index inline.
	b.structs[inner] = [3]uint32{7, b.addField(TypeInt, "InnerVal", uint32(int32(99))), 1}
	b.structs[elemA] = [3]uint32{8, b.addField(TypeByte, "Elem", 10), 1}
	b.structs[elemB] = [3]uint32{9, b.addField(TypeByte, "Elem2", 20), 1}

	root := b.addStruct(0xFFFFFFFF, b.addIndices(rootFields...), uint32(len(rootFields)))
	// The root must be entry 0; rebuild with it first.
	b.structs[0], b.structs[root] = b.structs[root], b.structs[0]
	// Swapping moved the inner struct; fix the STRUCT field reference.
	for i, f := range b.fields {
		if FieldType(f[0]) == TypeStruct && f[2] == 0 {
			b.fields[i][2] = root
		}
	}
	return b.build()
}

func mustRoot(t *testing.T, data []byte, opts ...Option) Struct {
	t.Helper()
	r, err := NewFromBytes(data, opts...)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	root, err := r.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	return root
}

func TestAllFieldTypes(t *testing.T) {
	root := mustRoot(t, buildAllTypes())

	if root.FieldCount() != 17 {
		t.Fatalf("field count: got %d, want 17", root.FieldCount())
	}

	t.Run("Small", func(t *testing.T) {
		if v, ok, err := root.Byte("AByte"); err != nil || !ok || v != 250 {
			t.Errorf("Byte: %v %v %v", v, ok, err)
		}
		if v, ok, err := root.Char("AChar"); err != nil || !ok || v != -3 {
			t.Errorf("Char: %v %v %v", v, ok, err)
		}
		if v, ok, err := root.Word("AWord"); err != nil || !ok || v != 0xBEEF {
			t.Errorf("Word: %v %v %v", v, ok, err)
		}
		if v, ok, err := root.Short("AShort"); err != nil || !ok || v != -12345 {
			t.Errorf("Short: %v %v %v", v, ok, err)
		}
		if v, ok, err := root.Dword("ADword"); err != nil || !ok || v != 0xDEADBEEF {
			t.Errorf("Dword: %v %v %v", v, ok, err)
		}
		if v, ok, err := root.Int("AnInt"); err != nil || !ok || v != -42 {
			t.Errorf("Int: %v %v %v", v, ok, err)
		}
		if v, ok, err := root.Float("AFloat"); err != nil || !ok || v != 1.5 {
			t.Errorf("Float: %v %v %v", v, ok, err)
		}
	})

	t.Run("Large", func(t *testing.T) {
		if v, ok, err := root.Dword64("ADword64"); err != nil || !ok || v != 0x1122334455667788 {
			t.Errorf("Dword64: %v %v %v", v, ok, err)
		}
		if v, ok, err := root.Int64("AnInt64"); err != nil || !ok || v != -987654321012 {
			t.Errorf("Int64: %v %v %v", v, ok, err)
		}
		if v, ok, err := root.Double("ADouble"); err != nil || !ok || v != 2.75 {
			t.Errorf("Double: %v %v %v", v, ok, err)
		}
		if v, ok, err := root.Vector("AVector"); err != nil || !ok || v != (Vector{1, 2, 3}) {
			t.Errorf("Vector: %v %v %v", v, ok, err)
		}
		if v, ok, err := root.String("AString"); err != nil || !ok || v != "Hello, world" {
			t.Errorf("String: %q %v %v", v, ok, err)
		}
		if v, ok, err := root.ResRef("ARef"); err != nil || !ok || v.String() != "nwscript" {
			t.Errorf("ResRef: %q %v %v", v, ok, err)
		}
		if v, ok, err := root.Void("ABlob"); err != nil || !ok || len(v) != 4 || v[3] != 4 {
			t.Errorf("Void: %v %v %v", v, ok, err)
		}
	})

	t.Run("Nested", func(t *testing.T) {
		inner, ok, err := root.Struct("Inner")
		if err != nil || !ok {
			t.Fatalf("Struct: %v %v", ok, err)
		}
		if inner.TypeTag() != 7 {
			t.Errorf("inner type: got %d", inner.TypeTag())
		}
		if v, ok, err := inner.Int("InnerVal"); err != nil || !ok || v != 99 {
			t.Errorf("InnerVal: %v %v %v", v, ok, err)
		}

		things, ok, err := root.List("Things")
		if err != nil || !ok {
			t.Fatalf("List: %v %v", ok, err)
		}
		if len(things) != 2 {
			t.Fatalf("list length: got %d", len(things))
		}
		if v, ok, err := things[0].Byte("Elem"); err != nil || !ok || v != 10 {
			t.Errorf("Elem: %v %v %v", v, ok, err)
		}
		second, ok, err := root.ListElement("Things", 1)
		if err != nil || !ok {
			t.Fatalf("ListElement: %v %v", ok, err)
		}
		if v, ok, err := second.Byte("Elem2"); err != nil || !ok || v != 20 {
			t.Errorf("Elem2: %v %v %v", v, ok, err)
		}
	})

	t.Run("LocString", func(t *testing.T) {
		text, ok, err := root.LocStringText("Mod_Name")
		if err != nil || !ok {
			t.Fatalf("LocStringText: %v %v", ok, err)
		}
		if text != "Hello" {
			t.Errorf("resolved text: got %q, want %q", text, "Hello")
		}
		ls, ok, err := root.LocString("Mod_Name")
		if err != nil || !ok {
			t.Fatalf("LocString: %v %v", ok, err)
		}
		if ls.StringRef != 16777216 {
			t.Errorf("StringRef: got %d", ls.StringRef)
		}
	})

	t.Run("ProbeMismatchAndAbsent", func(t *testing.T) {
		if _, ok, err := root.Int("AByte"); ok || err != nil {
			t.Errorf("type mismatch must be (zero, false, nil): %v %v", ok, err)
		}
		if _, ok, err := root.Byte("NoSuchField"); ok || err != nil {
			t.Errorf("absent field must be (zero, false, nil): %v %v", ok, err)
		}
		if root.HasField("abyte") {
			t.Errorf("strict compare must be case-sensitive")
		}
		if i, ok, err := root.FieldIndex("ADword"); err != nil || !ok || i != 4 {
			t.Errorf("FieldIndex: %d %v %v", i, ok, err)
		}
		if typ, ok, err := root.FieldByNameFold("abyte"); err != nil || !ok || typ != TypeByte {
			t.Errorf("fold compare: %v %v %v", typ, ok, err)
		}
	})
}

func TestHeaderValidation(t *testing.T) {
	data := buildAllTypes()

	t.Run("BadVersion", func(t *testing.T) {
		bad := append([]byte{}, data...)
		copy(bad[4:8], "V9.9")
		if _, err := NewFromBytes(bad); !resfile.IsKind(err, resfile.KindBadMagic) {
			t.Errorf("expected bad magic, got %v", err)
		}
	})

	t.Run("TruncatedHeader", func(t *testing.T) {
		if _, err := NewFromBytes(data[:40]); !resfile.IsKind(err, resfile.KindBounds) {
			t.Errorf("expected bounds, got %v", err)
		}
	})

	t.Run("TruncatedAtEveryTableBoundary", func(t *testing.T) {
		// A cut at the start of each of the six tables, or anywhere
		// below the full length that removes table bytes, must fail at
		// open with Bounds.
		cuts := []int{HeaderSize, HeaderSize + 5, len(data) / 2, len(data) - 1}
		for i := 0; i < 6; i++ {
			cuts = append(cuts, int(binary.LittleEndian.Uint32(data[8+8*i:])))
		}
		for _, cut := range cuts {
			if _, err := NewFromBytes(data[:cut]); !resfile.IsKind(err, resfile.KindBounds) {
				t.Errorf("cut at %d: expected bounds, got %v", cut, err)
			}
		}
	})
}

func TestFieldDataBounds(t *testing.T) {
	t.Run("ExactFitSucceeds", func(t *testing.T) {
		b := &gffBuilder{}
		f := b.addField(TypeCExoString, "S", b.addData(exoString("abcd")))
		b.addStruct(0, f, 1)
		root := mustRoot(t, b.build())
		if v, ok, err := root.String("S"); err != nil || !ok || v != "abcd" {
			t.Errorf("exact fit: %q %v %v", v, ok, err)
		}
	})

	t.Run("OneByteOverFails", func(t *testing.T) {
		b := &gffBuilder{}
		// Declared length 5, only 4 bytes of payload in the blob.
		payload := binary.LittleEndian.AppendUint32(nil, 5)
		payload = append(payload, "abcd"...)
		f := b.addField(TypeCExoString, "S", b.addData(payload))
		b.addStruct(0, f, 1)
		root := mustRoot(t, b.build())
		if _, _, err := root.String("S"); !resfile.IsKind(err, resfile.KindBounds) {
			t.Errorf("expected bounds, got %v", err)
		}
	})

	t.Run("LocStringLengthMismatch", func(t *testing.T) {
		b := &gffBuilder{}
		// Declared total 20 but substrings consume 8 + 8 + 2 = 18.
		body := binary.LittleEndian.AppendUint32(nil, NoStringRef)
		body = binary.LittleEndian.AppendUint32(body, 1)
		body = binary.LittleEndian.AppendUint32(body, 0)
		body = binary.LittleEndian.AppendUint32(body, 2)
		body = append(body, "hi"...)
		payload := binary.LittleEndian.AppendUint32(nil, 20)
		payload = append(payload, body...)
		payload = append(payload, 0, 0) // padding the declared length claims
		f := b.addField(TypeCExoLocString, "L", b.addData(payload))
		b.addStruct(0, f, 1)
		root := mustRoot(t, b.build())
		if _, _, err := root.LocString("L"); !resfile.IsKind(err, resfile.KindMalformed) {
			t.Errorf("expected malformed, got %v", err)
		}
	})
}

func TestLocStringResolution(t *testing.T) {
	makeRoot := func(t *testing.T, subs []SubString, ref uint32, opts ...Option) Struct {
		b := &gffBuilder{}
		f := b.addField(TypeCExoLocString, "L", b.addData(locString(ref, subs...)))
		b.addStruct(0, f, 1)
		return mustRoot(t, b.build(), opts...)
	}

	t.Run("PreferredLanguage", func(t *testing.T) {
		subs := []SubString{
			{ID: uint32(LangEnglish)<<1 | uint32(GenderMale), Text: "hello"},
			{ID: uint32(LangGerman)<<1 | uint32(GenderMale), Text: "hallo"},
		}
		root := makeRoot(t, subs, NoStringRef, WithLanguage(LangGerman, GenderMale))
		if v, _, _ := root.LocStringText("L"); v != "hallo" {
			t.Errorf("got %q, want %q", v, "hallo")
		}
	})

	t.Run("FirstSubstringFallback", func(t *testing.T) {
		subs := []SubString{{ID: uint32(LangFrench) << 1, Text: "bonjour"}}
		root := makeRoot(t, subs, NoStringRef, WithLanguage(LangPolish, GenderFemale))
		if v, _, _ := root.LocStringText("L"); v != "bonjour" {
			t.Errorf("got %q, want %q", v, "bonjour")
		}
	})

	t.Run("TalkTableFallback", func(t *testing.T) {
		root := makeRoot(t, nil, 42, WithTalkTable(fakeTlk{42: "from tlk"}))
		if v, _, _ := root.LocStringText("L"); v != "from tlk" {
			t.Errorf("got %q, want %q", v, "from tlk")
		}
	})

	t.Run("EmptyWhenNothingMatches", func(t *testing.T) {
		root := makeRoot(t, nil, NoStringRef)
		if v, ok, err := root.LocStringText("L"); err != nil || !ok || v != "" {
			t.Errorf("got %q %v %v", v, ok, err)
		}
	})
}

type fakeTlk map[uint32]string

func (f fakeTlk) String(ref uint32) (string, bool) {
	s, ok := f[ref]
	return s, ok
}
