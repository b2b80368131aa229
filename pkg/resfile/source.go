// Package resfile provides the byte-level access primitives shared by
// all resource-file readers: bounded byte sources, a little-endian
// read cursor, and the common error taxonomy.
package resfile

import (
	"io"
)

// ByteSource is a bounded, randomly accessible byte range backed by
// either an in-memory buffer or a file handle. Sources use positioned
// reads only, so a single source is safe for concurrent readers.
type ByteSource interface {
	// Len returns the length of the range in bytes.
	Len() int64
	// ReadAt reads into p starting at off within the range.
	ReadAt(p []byte, off int64) (int, error)
	// Bytes returns the underlying buffer when the source is
	// memory-backed, for zero-copy access.
	Bytes() ([]byte, bool)
	// Section returns a sub-range view [off, off+n) of this source.
	Section(off, n int64) (ByteSource, error)
}

// MemorySource is a ByteSource over an in-memory buffer.
type MemorySource []byte

// NewMemorySource wraps data in a ByteSource.
func NewMemorySource(data []byte) MemorySource {
	return MemorySource(data)
}

// Len returns the buffer length.
func (m MemorySource) Len() int64 {
	return int64(len(m))
}

// ReadAt implements io.ReaderAt over the buffer.
func (m MemorySource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m)) {
		return 0, BoundsErr("memory source", "offset %d outside %d-byte buffer", off, len(m))
	}
	n := copy(p, m[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Bytes returns the buffer itself.
func (m MemorySource) Bytes() ([]byte, bool) {
	return []byte(m), true
}

// Section returns a sub-range of the buffer, zero-copy.
func (m MemorySource) Section(off, n int64) (ByteSource, error) {
	if err := checkRange(off, n, int64(len(m))); err != nil {
		return nil, err
	}
	return MemorySource(m[off : off+n]), nil
}

// FileSource is a ByteSource over a sub-range of an io.ReaderAt,
// typically an *os.File. Reads are positioned, never seek the handle.
type FileSource struct {
	r   io.ReaderAt
	off int64
	n   int64
}

// NewFileSource wraps the range [off, off+n) of r.
func NewFileSource(r io.ReaderAt, off, n int64) (*FileSource, error) {
	if off < 0 || n < 0 {
		return nil, BoundsErr("file source", "negative range %d+%d", off, n)
	}
	if off+n < off {
		return nil, BoundsErr("file source", "range %d+%d overflows", off, n)
	}
	return &FileSource{r: r, off: off, n: n}, nil
}

// Len returns the range length.
func (f *FileSource) Len() int64 {
	return f.n
}

// ReadAt reads into p at off within the range.
func (f *FileSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > f.n {
		return 0, BoundsErr("file source", "offset %d outside %d-byte range", off, f.n)
	}
	if max := f.n - off; int64(len(p)) > max {
		p = p[:max]
	}
	n, err := f.r.ReadAt(p, f.off+off)
	if err != nil && err != io.EOF {
		return n, IoErr("file source", err)
	}
	return n, err
}

// Bytes reports that a file source has no in-memory buffer.
func (f *FileSource) Bytes() ([]byte, bool) {
	return nil, false
}

// Section returns a sub-range view sharing the same handle.
func (f *FileSource) Section(off, n int64) (ByteSource, error) {
	if err := checkRange(off, n, f.n); err != nil {
		return nil, err
	}
	return &FileSource{r: f.r, off: f.off + off, n: n}, nil
}

// ReadAll materializes the full contents of a source. Memory-backed
// sources return their buffer without copying.
func ReadAll(src ByteSource) ([]byte, error) {
	if b, ok := src.Bytes(); ok {
		return b, nil
	}
	buf := make([]byte, src.Len())
	if _, err := readFullAt(src, buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

func readFullAt(src ByteSource, p []byte, off int64) (int, error) {
	total := 0
	for total < len(p) {
		n, err := src.ReadAt(p[total:], off+int64(total))
		total += n
		if total == len(p) {
			return total, nil
		}
		if err == io.EOF {
			return total, BoundsErr("read", "short read: want %d bytes at %d, got %d", len(p), off, total)
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, IoErr("read", io.ErrNoProgress)
		}
	}
	return total, nil
}

// checkRange validates a [off, off+n) window against a total length,
// with overflow-checked arithmetic.
func checkRange(off, n, total int64) error {
	if off < 0 || n < 0 {
		return BoundsErr("range", "negative range %d+%d", off, n)
	}
	end := off + n
	if end < off {
		return BoundsErr("range", "range %d+%d overflows", off, n)
	}
	if end > total {
		return BoundsErr("range", "range %d+%d exceeds length %d", off, n, total)
	}
	return nil
}
