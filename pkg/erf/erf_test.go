package erf

import (
	"bytes"
	"testing"
	"time"

	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
	"github.com/kmsheehan/nwn2dev-public/pkg/restype"
)

// seekableBuffer is a growable in-memory io.WriteSeeker for the writer
// tests.
type seekableBuffer struct {
	data []byte
	pos  int64
}

func (s *seekableBuffer) Write(p []byte) (int, error) {
	for int64(len(s.data)) < s.pos {
		s.data = append(s.data, 0)
	}
	n := copy(s.data[s.pos:], p)
	if n < len(p) {
		s.data = append(s.data, p[n:]...)
	}
	s.pos += int64(len(p))
	return len(p), nil
}

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		s.pos = offset
	case 1:
		s.pos += offset
	case 2:
		s.pos = int64(len(s.data)) + offset
	}
	return s.pos, nil
}

func mustRef(t *testing.T, s string) restype.ResRef32 {
	t.Helper()
	r, err := restype.NewResRef32(s)
	if err != nil {
		t.Fatalf("resref %q: %v", s, err)
	}
	return r
}

func fixedClock() time.Time {
	return time.Date(2008, time.March, 15, 12, 0, 0, 0, time.UTC)
}

func writeArchive(t *testing.T, w *Writer) []byte {
	t.Helper()
	var buf seekableBuffer
	if err := w.WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	return buf.data
}

func TestRoundTrip(t *testing.T) {
	contents := map[string]string{"foo": "bar", "baz": "qux"}

	for _, version := range []string{V10, V11} {
		t.Run(version, func(t *testing.T) {
			w := NewWriter(
				WithFileType("HAK "),
				WithVersion(version),
				WithClock(fixedClock),
				WithDescription(123, LocalizedText{Language: 0, Text: "two files"}),
			)
			for name, data := range contents {
				if err := w.Add(mustRef(t, name), restype.Txt, []byte(data)); err != nil {
					t.Fatalf("add %q: %v", name, err)
				}
			}

			r, err := NewFromBytes(writeArchive(t, w))
			if err != nil {
				t.Fatalf("read back: %v", err)
			}
			if r.Version() != version {
				t.Errorf("version: got %s", r.Version())
			}
			if r.FileType() != "HAK " {
				t.Errorf("file type: got %q", r.FileType())
			}
			if r.Count() != len(contents) {
				t.Fatalf("count: got %d", r.Count())
			}
			for name, data := range contents {
				src, err := r.Open(mustRef(t, name), restype.Txt)
				if err != nil {
					t.Fatalf("open %q: %v", name, err)
				}
				got, err := resfile.ReadAll(src)
				if err != nil {
					t.Fatalf("read %q: %v", name, err)
				}
				if !bytes.Equal(got, []byte(data)) {
					t.Errorf("%q: got %q, want %q", name, got, data)
				}
			}

			if desc, ok := r.Description(0); !ok || desc != "two files" {
				t.Errorf("description: %q %v", desc, ok)
			}
			if r.DescriptionRef() != 123 {
				t.Errorf("description ref: got %d", r.DescriptionRef())
			}
			if year, day := r.BuildDate(); year != 108 || day != uint32(fixedClock().YearDay()-1) {
				t.Errorf("build date: got %d/%d", year, day)
			}
		})
	}
}

func TestWriterRules(t *testing.T) {
	t.Run("DuplicateRejected", func(t *testing.T) {
		w := NewWriter()
		if err := w.Add(mustRef(t, "a"), restype.Txt, []byte("x")); err != nil {
			t.Fatalf("add: %v", err)
		}
		if err := w.Add(mustRef(t, "a"), restype.Txt, []byte("y")); !resfile.IsKind(err, resfile.KindMalformed) {
			t.Errorf("expected malformed, got %v", err)
		}
	})

	t.Run("WideRefForcesV11", func(t *testing.T) {
		w := NewWriter(WithClock(fixedClock))
		if err := w.Add(mustRef(t, "a_resref_well_past_sixteen"), restype.Txt, []byte("x")); err != nil {
			t.Fatalf("add: %v", err)
		}
		r, err := NewFromBytes(writeArchive(t, w))
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		if r.Version() != V11 {
			t.Errorf("version: got %s, want %s", r.Version(), V11)
		}
	})

	t.Run("WideRefRejectedInV10", func(t *testing.T) {
		w := NewWriter(WithVersion(V10))
		if err := w.Add(mustRef(t, "a_resref_well_past_sixteen"), restype.Txt, []byte("x")); err != nil {
			t.Fatalf("add: %v", err)
		}
		var buf seekableBuffer
		if err := w.WriteTo(&buf); !resfile.IsKind(err, resfile.KindMalformed) {
			t.Errorf("expected malformed, got %v", err)
		}
	})

	t.Run("DeterministicOutput", func(t *testing.T) {
		build := func() []byte {
			w := NewWriter(WithClock(fixedClock))
			w.Add(mustRef(t, "zz"), restype.Txt, []byte("1"))
			w.Add(mustRef(t, "aa"), restype.TwoDA, []byte("2"))
			w.Add(mustRef(t, "mm"), restype.Txt, []byte("3"))
			var buf seekableBuffer
			if err := w.WriteTo(&buf); err != nil {
				t.Fatalf("write: %v", err)
			}
			return buf.data
		}
		if !bytes.Equal(build(), build()) {
			t.Errorf("two identical builds differ")
		}
	})

	t.Run("KeysSortedByTypeThenRef", func(t *testing.T) {
		w := NewWriter(WithClock(fixedClock))
		w.Add(mustRef(t, "zz"), restype.Txt, []byte("1"))
		w.Add(mustRef(t, "aa"), restype.TwoDA, []byte("2"))
		w.Add(mustRef(t, "mm"), restype.Txt, []byte("3"))
		r, err := NewFromBytes(writeArchive(t, w))
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		var got []string
		for _, e := range r.Entries() {
			got = append(got, e.ResRef.String())
		}
		want := []string{"mm", "zz", "aa"} // txt(10) before 2da(2017)
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("key order: got %v, want %v", got, want)
			}
		}
	})
}

func TestReaderValidation(t *testing.T) {
	w := NewWriter(WithClock(fixedClock))
	w.Add(mustRef(t, "a"), restype.Txt, []byte("payload"))
	data := writeArchive(t, w)

	t.Run("BadMagic", func(t *testing.T) {
		bad := append([]byte{}, data...)
		copy(bad, "XXX ")
		if _, err := NewFromBytes(bad); !resfile.IsKind(err, resfile.KindBadMagic) {
			t.Errorf("expected bad magic, got %v", err)
		}
	})

	t.Run("CompressedRevisionUnsupported", func(t *testing.T) {
		bad := append([]byte{}, data...)
		copy(bad[4:], "V2.0")
		if _, err := NewFromBytes(bad); !resfile.IsKind(err, resfile.KindUnsupported) {
			t.Errorf("expected unsupported, got %v", err)
		}
	})

	t.Run("TruncatedPayload", func(t *testing.T) {
		if _, err := NewFromBytes(data[:len(data)-1]); !resfile.IsKind(err, resfile.KindBounds) {
			t.Errorf("expected bounds, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		r, err := NewFromBytes(data)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if _, err := r.Open(mustRef(t, "missing"), restype.Txt); !resfile.IsKind(err, resfile.KindNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})
}
