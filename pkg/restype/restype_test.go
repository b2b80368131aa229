package restype

import (
	"testing"

	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
)

func TestResRefCanonicalization(t *testing.T) {
	t.Run("Lowercase", func(t *testing.T) {
		a, err := NewResRef16("NWScript")
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		b, err := NewResRef16("nwscript")
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if a != b {
			t.Errorf("case-insensitive equality: %q != %q", a, b)
		}
		if a.String() != "nwscript" {
			t.Errorf("canonical form: got %q", a.String())
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		a, err := NewResRef16("Foo_Bar-9")
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		b, err := NewResRef16(a.String())
		if err != nil {
			t.Fatalf("re-canonicalize: %v", err)
		}
		if a != b {
			t.Errorf("canon(canon(x)) != canon(x): %q vs %q", a, b)
		}
	})

	t.Run("TrailingNulsTrimmed", func(t *testing.T) {
		var raw [16]byte
		copy(raw[:], "Area01")
		r, err := ResRef16FromBytes(raw)
		if err != nil {
			t.Fatalf("from bytes: %v", err)
		}
		if r.String() != "area01" {
			t.Errorf("got %q, want %q", r.String(), "area01")
		}
		img := r.Bytes()
		if resfile.TrimAtNul(img[:]) != "area01" {
			t.Errorf("round-trip image: got %q", img)
		}
	})

	t.Run("EmbeddedNul", func(t *testing.T) {
		var raw [16]byte
		copy(raw[:], "ab\x00cd")
		if _, err := ResRef16FromBytes(raw); !resfile.IsKind(err, resfile.KindMalformed) {
			t.Errorf("expected malformed error, got %v", err)
		}
	})

	t.Run("TooLong", func(t *testing.T) {
		if _, err := NewResRef16("a_name_well_beyond_sixteen"); !resfile.IsKind(err, resfile.KindMalformed) {
			t.Errorf("expected malformed error, got %v", err)
		}
	})

	t.Run("Narrowing", func(t *testing.T) {
		wide, err := NewResRef32("exactly_sixteen_")
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if _, err := wide.To16(); err != nil {
			t.Errorf("16-char narrows: %v", err)
		}

		wide, err = NewResRef32("seventeen_chars__")
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if _, err := wide.To16(); !resfile.IsKind(err, resfile.KindMalformed) {
			t.Errorf("expected malformed error, got %v", err)
		}
	})
}

func TestResTypeRegistry(t *testing.T) {
	t.Run("ExactInverse", func(t *testing.T) {
		for typ, ext := range typeExts {
			if got := ExtToResType(ext); got != typ {
				t.Errorf("ExtToResType(%q): got %v, want %v", ext, got, typ)
			}
		}
	})

	t.Run("CaseAndDot", func(t *testing.T) {
		if got := ExtToResType(".2DA"); got != TwoDA {
			t.Errorf("ExtToResType(.2DA): got %v", got)
		}
		if got := ExtToResType("NSS"); got != Nss {
			t.Errorf("ExtToResType(NSS): got %v", got)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		if got := ExtToResType("nope"); got != Invalid {
			t.Errorf("unknown ext: got %v, want Invalid", got)
		}
		if _, ok := ResTypeToExt(Invalid); ok {
			t.Errorf("Invalid must not map to an extension")
		}
	})
}
