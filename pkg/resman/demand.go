package resman

import (
	"os"

	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
)

// Demand is a scoped acquisition of a resource's bytes. It holds a
// shared view of the provider's byte range until closed. Demands are
// movable but must not be duplicated; close exactly once.
type Demand struct {
	key      Key
	provider string
	src      resfile.ByteSource
	closed   bool
}

// Key returns the demanded resource's key.
func (d *Demand) Key() Key {
	return d.key
}

// ProviderName returns the name of the provider that satisfied the
// demand.
func (d *Demand) ProviderName() string {
	return d.provider
}

// Source returns the byte range.
func (d *Demand) Source() resfile.ByteSource {
	return d.src
}

// Reader returns a fresh read cursor over the byte range.
func (d *Demand) Reader() *resfile.ByteReader {
	return resfile.NewReader(d.src)
}

// Bytes materializes the full contents.
func (d *Demand) Bytes() ([]byte, error) {
	return resfile.ReadAll(d.src)
}

// Len returns the resource length in bytes.
func (d *Demand) Len() int64 {
	return d.src.Len()
}

// Close releases the view. Closing twice is a no-op.
func (d *Demand) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.src = nil
	return nil
}

// DemandPath is a scoped acquisition of a resource as a real
// filesystem path. When the path is a manager-owned temp file it is
// deleted on Close.
type DemandPath struct {
	key    Key
	path   string
	temp   bool
	closed bool
}

// Key returns the demanded resource's key.
func (d *DemandPath) Key() Key {
	return d.key
}

// Path returns the filesystem path. Valid until Close.
func (d *DemandPath) Path() string {
	return d.path
}

// IsTemp reports whether the path is a manager-owned temp file.
func (d *DemandPath) IsTemp() bool {
	return d.temp
}

// Close releases the path, deleting it when temp-owned.
func (d *DemandPath) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.temp {
		if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
			return resfile.IoErr("demand path", err)
		}
	}
	return nil
}
