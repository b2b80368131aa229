package gff

import (
	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
)

// Language identifies a localization language.
type Language uint32

// Languages, in on-disk numbering.
const (
	LangEnglish            Language = 0
	LangFrench             Language = 1
	LangGerman             Language = 2
	LangItalian            Language = 3
	LangSpanish            Language = 4
	LangPolish             Language = 5
	LangKorean             Language = 128
	LangChineseTraditional Language = 129
	LangChineseSimplified  Language = 130
	LangJapanese           Language = 131
)

// Gender selects between the two substring variants a language may
// carry.
type Gender uint32

const (
	GenderMale   Gender = 0
	GenderFemale Gender = 1
)

// NoStringRef is the sentinel for a locstring with no talk-table
// reference.
const NoStringRef = 0xFFFFFFFF

// SubString is one language variant inside a localized string.
type SubString struct {
	ID   uint32 // (language << 1) | gender
	Text string
}

// Language returns the substring's language.
func (s SubString) Language() Language {
	return Language(s.ID >> 1)
}

// Gender returns the substring's gender.
func (s SubString) Gender() Gender {
	return Gender(s.ID & 1)
}

// LocString is a localized string: a talk-table reference plus zero or
// more embedded per-language substrings.
type LocString struct {
	StringRef  uint32
	SubStrings []SubString
}

// StringResolver resolves a talk-table reference to text. The tlk
// package's TalkTable satisfies it.
type StringResolver interface {
	String(ref uint32) (string, bool)
}

// readLocString parses a CEXOLOCSTRING payload at the given field-data
// offset, verifying the declared total length against the substring
// encodings.
func (r *Reader) readLocString(off uint32) (LocString, error) {
	const op = "gff: locstring"
	br, err := r.fieldDataReader(off, 4)
	if err != nil {
		return LocString{}, err
	}
	total, err := br.ReadU32()
	if err != nil {
		return LocString{}, err
	}
	// total does not include the length field itself.
	br, err = r.fieldDataReader(off+4, int64(total))
	if err != nil {
		return LocString{}, err
	}

	var ls LocString
	if ls.StringRef, err = br.ReadU32(); err != nil {
		return LocString{}, err
	}
	count, err := br.ReadU32()
	if err != nil {
		return LocString{}, err
	}

	consumed := int64(8)
	ls.SubStrings = make([]SubString, 0, count)
	for i := uint32(0); i < count; i++ {
		if consumed+8 > int64(total) {
			return LocString{}, resfile.MalformedErr(op, "substring %d overruns declared length %d", i, total)
		}
		id, err := br.ReadU32()
		if err != nil {
			return LocString{}, err
		}
		length, err := br.ReadU32()
		if err != nil {
			return LocString{}, err
		}
		consumed += 8
		if consumed+int64(length) > int64(total) {
			return LocString{}, resfile.MalformedErr(op, "substring %d of %d bytes overruns declared length %d", i, length, total)
		}
		b, err := br.ReadBytes(int64(length))
		if err != nil {
			return LocString{}, err
		}
		consumed += int64(length)
		ls.SubStrings = append(ls.SubStrings, SubString{ID: id, Text: resfile.DecodeString(b)})
	}
	if consumed != int64(total) {
		return LocString{}, resfile.MalformedErr(op, "declared length %d, substrings consume %d", total, consumed)
	}
	return ls, nil
}

// Resolve returns the best text for the preference: the exact
// language+gender substring, else the first substring, else the talk
// table entry for StringRef, else the empty string.
func (l LocString) Resolve(lang Language, gender Gender, tlk StringResolver) string {
	want := uint32(lang)<<1 | uint32(gender)
	for _, s := range l.SubStrings {
		if s.ID == want {
			return s.Text
		}
	}
	if len(l.SubStrings) > 0 {
		return l.SubStrings[0].Text
	}
	if tlk != nil && l.StringRef != NoStringRef {
		if text, ok := tlk.String(l.StringRef); ok {
			return text
		}
	}
	return ""
}
