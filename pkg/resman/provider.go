// Package resman presents a flat (name, type) resource namespace over
// an ordered stack of backing stores: loose directories, flat
// archives, external-index archive pairs, zip repositories, and
// in-memory sets. Earlier (higher-priority) providers shadow later
// ones.
package resman

import (
	"fmt"

	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
	"github.com/kmsheehan/nwn2dev-public/pkg/restype"
)

// Key names a resource: a canonical resref plus its type.
type Key struct {
	Ref  restype.ResRef32
	Type restype.ResType
}

// NewKey builds a key from a raw name and type.
func NewKey(name string, typ restype.ResType) (Key, error) {
	ref, err := restype.NewResRef32(name)
	if err != nil {
		return Key{}, err
	}
	return Key{Ref: ref, Type: typ}, nil
}

// String renders the key as name.ext.
func (k Key) String() string {
	return fmt.Sprintf("%s.%s", k.Ref, k.Type)
}

// Priority classes for the provider stack. Lower values win; within a
// class, earlier registration wins.
type Priority int

const (
	// PriorityDirectory is a caller-supplied working directory.
	PriorityDirectory Priority = iota
	// PriorityCustomTlk is the module's custom talk table.
	PriorityCustomTlk
	// PriorityModule is the module archive itself.
	PriorityModule
	// PriorityHak is the module's HAK pack archives.
	PriorityHak
	// PriorityOverride is the installation's override directory.
	PriorityOverride
	// PriorityBaseKey is the base-game KEY/BIF indexes.
	PriorityBaseKey
	// PriorityBaseZip is the base-game zip repositories.
	PriorityBaseZip
)

// Provider is one backing store in the stack. Implementations must be
// safe for concurrent read use once registered.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string
	// Contains reports whether the provider holds the resource.
	Contains(key Key) bool
	// Open returns a readable view over the resource bytes.
	Open(key Key) (resfile.ByteSource, error)
	// Path returns the real filesystem path of the resource, when the
	// provider has one.
	Path(key Key) (string, bool)
	// Walk visits every resource the provider holds, until fn returns
	// false.
	Walk(fn func(key Key) bool)
	// Close releases the provider's underlying handles.
	Close() error
}
