package erf

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
	"github.com/kmsheehan/nwn2dev-public/pkg/restype"
)

// Writer accumulates resources and emits a V1.0 or V1.1 archive.
// Output is deterministic: payloads in insertion order, the key table
// sorted by (type, resref) so consumers may binary-search it.
type Writer struct {
	fileType       string
	version        string
	descriptionRef uint32
	descriptions   []LocalizedText
	now            func() time.Time

	entries []writerEntry
	seen    map[entryKey]bool
}

type writerEntry struct {
	ref  restype.ResRef32
	typ  restype.ResType
	data []byte
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithFileType sets the 4-character content tag ("MOD ", "HAK ", ...).
func WithFileType(tag string) WriterOption {
	return func(w *Writer) {
		w.fileType = tag
	}
}

// WithVersion forces the output version. The default is V1.0, raised
// to V1.1 automatically when any resref exceeds 16 characters.
func WithVersion(version string) WriterOption {
	return func(w *Writer) {
		w.version = version
	}
}

// WithDescription sets the localized description block and its
// talk-table reference.
func WithDescription(ref uint32, texts ...LocalizedText) WriterOption {
	return func(w *Writer) {
		w.descriptionRef = ref
		w.descriptions = texts
	}
}

// WithClock overrides the build-date clock.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		w.now = now
	}
}

// NewWriter creates an empty archive writer.
func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{
		fileType:       "ERF ",
		descriptionRef: 0xFFFFFFFF,
		now:            time.Now,
		seen:           make(map[entryKey]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Add appends a resource. Duplicate (resref, type) pairs are rejected.
func (w *Writer) Add(ref restype.ResRef32, typ restype.ResType, data []byte) error {
	k := entryKey{ref, typ}
	if w.seen[k] {
		return resfile.MalformedErr("erf: add", "duplicate resource %s.%s", ref, typ)
	}
	w.seen[k] = true
	w.entries = append(w.entries, writerEntry{ref: ref, typ: typ, data: data})
	return nil
}

// effectiveVersion returns the output version, inferring it from the
// widest resref when not forced.
func (w *Writer) effectiveVersion() (string, error) {
	if w.version != "" {
		if w.version != V10 && w.version != V11 {
			return "", resfile.UnsupportedErr("erf: write", "version %s", w.version)
		}
		return w.version, nil
	}
	for _, e := range w.entries {
		if len(e.ref.String()) > restype.ResRef16Len {
			return V11, nil
		}
	}
	return V10, nil
}

// WriteTo emits the archive. The key table is written in final form;
// the resource table is written as a zeroed placeholder and rewritten
// with the payload offsets once the payload region has been laid down.
func (w *Writer) WriteTo(dst io.WriteSeeker) error {
	version, err := w.effectiveVersion()
	if err != nil {
		return err
	}
	refLen := 16
	keySize := keyEntrySize10
	if version == V11 {
		refLen = 32
		keySize = keyEntrySize11
	}
	for _, e := range w.entries {
		if len(e.ref.String()) > refLen {
			return resfile.MalformedErr("erf: write", "resref %q does not fit %s", e.ref, version)
		}
	}

	// Key table order: (type, resref). Resource ids keep pointing at
	// insertion-ordered payloads.
	order := make([]int, len(w.entries))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ea, eb := w.entries[order[a]], w.entries[order[b]]
		if ea.typ != eb.typ {
			return ea.typ < eb.typ
		}
		return ea.ref.String() < eb.ref.String()
	})

	locBlock, err := w.encodeDescriptions()
	if err != nil {
		return err
	}

	count := uint32(len(w.entries))
	locOff := uint32(HeaderSize)
	keysOff := locOff + uint32(len(locBlock))
	resOff := keysOff + count*uint32(keySize)

	buildTime := w.now().UTC()
	header := make([]byte, 0, HeaderSize)
	header = append(header, w.fileType...)
	header = append(header, version...)
	for _, v := range []uint32{
		uint32(len(w.descriptions)), uint32(len(locBlock)), count,
		locOff, keysOff, resOff,
		uint32(buildTime.Year() - 1900), uint32(buildTime.YearDay() - 1),
		w.descriptionRef,
	} {
		header = binary.LittleEndian.AppendUint32(header, v)
	}
	header = append(header, make([]byte, HeaderSize-len(header))...)

	if _, err := dst.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := dst.Write(locBlock); err != nil {
		return fmt.Errorf("write descriptions: %w", err)
	}

	// Keys, sorted; resource ids are insertion indices.
	keyBlock := make([]byte, 0, int(count)*keySize)
	for _, idx := range order {
		e := w.entries[idx]
		raw := e.ref.Bytes()
		keyBlock = append(keyBlock, raw[:refLen]...)
		keyBlock = binary.LittleEndian.AppendUint32(keyBlock, uint32(idx))
		keyBlock = binary.LittleEndian.AppendUint16(keyBlock, uint16(e.typ))
		keyBlock = binary.LittleEndian.AppendUint16(keyBlock, 0)
	}
	if _, err := dst.Write(keyBlock); err != nil {
		return fmt.Errorf("write keys: %w", err)
	}

	// Placeholder resource table; offsets are not known until the
	// payload region is written.
	resBlock := make([]byte, count*resourceEntrySize)
	if _, err := dst.Write(resBlock); err != nil {
		return fmt.Errorf("write resource table: %w", err)
	}

	payloadOff := resOff + count*resourceEntrySize
	offsets := make([]uint32, len(w.entries))
	cursor := payloadOff
	for i, e := range w.entries {
		offsets[i] = cursor
		if _, err := dst.Write(e.data); err != nil {
			return fmt.Errorf("write payload %s: %w", e.ref, err)
		}
		cursor += uint32(len(e.data))
	}

	// Fix up the resource table now that offsets are final.
	resBlock = resBlock[:0]
	for i, e := range w.entries {
		resBlock = binary.LittleEndian.AppendUint32(resBlock, offsets[i])
		resBlock = binary.LittleEndian.AppendUint32(resBlock, uint32(len(e.data)))
	}
	if _, err := dst.Seek(int64(resOff), io.SeekStart); err != nil {
		return fmt.Errorf("seek resource table: %w", err)
	}
	if _, err := dst.Write(resBlock); err != nil {
		return fmt.Errorf("rewrite resource table: %w", err)
	}
	if _, err := dst.Seek(int64(cursor), io.SeekStart); err != nil {
		return fmt.Errorf("seek end: %w", err)
	}
	return nil
}

// encodeDescriptions emits the localized string block in the on-disk
// single-byte encoding.
func (w *Writer) encodeDescriptions() ([]byte, error) {
	var out []byte
	enc := charmap.Windows1252.NewEncoder()
	for _, d := range w.descriptions {
		b, err := enc.Bytes([]byte(d.Text))
		if err != nil {
			return nil, resfile.MalformedErr("erf: write", "description for language %d is not encodable", d.Language)
		}
		out = binary.LittleEndian.AppendUint32(out, d.Language)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(b)))
		out = append(out, b...)
	}
	return out, nil
}
