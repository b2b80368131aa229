// Package keybif reads the external-index archive pair: a KEY file
// cataloging resources spread across many BIF data files, each BIF
// carrying its own variable-resource table.
package keybif

import (
	"strings"

	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
	"github.com/kmsheehan/nwn2dev-public/pkg/restype"
)

// KEY format identification.
const (
	KeyMagic   = "KEY "
	KeyVersion = "V1  "
)

// KeyHeaderSize is the fixed binary size of the KEY header.
const KeyHeaderSize = 64

// Table strides.
const (
	fileEntrySize = 12 // size u32 + name offset u32 + name length u16 + drives u16
	keyEntrySize  = 22 // resref16 + type u16 + resource id u32
)

// Resource-id layout: the top bits select the BIF, the low 20 bits
// the entry within its variable table.
const (
	bifIndexShift = 20
	varIndexMask  = 1<<bifIndexShift - 1
)

// BifRef is one entry of the KEY's file table.
type BifRef struct {
	FileSize uint32
	Filename string // slash-separated, relative to the install root
	Drives   uint16
}

// Location is a resolved resource position: which BIF and which entry
// of its variable table.
type Location struct {
	BifIndex int
	VarIndex uint32
}

type entryKey struct {
	ref restype.ResRef16
	typ restype.ResType
}

// KeyFile is a parsed KEY index.
type KeyFile struct {
	bifs      []BifRef
	index     map[entryKey]Location
	order     []entryKey
	buildYear uint32
	buildDay  uint32
}

// ParseKey reads and validates a KEY file.
func ParseKey(src resfile.ByteSource) (*KeyFile, error) {
	const op = "key: parse"
	br := resfile.NewReader(src)
	if src.Len() < KeyHeaderSize {
		return nil, resfile.BoundsErr(op, "file of %d bytes is shorter than the %d-byte header", src.Len(), KeyHeaderSize)
	}

	magic, err := br.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	if string(magic) != KeyMagic {
		return nil, resfile.MagicErr(op, KeyMagic, string(magic))
	}
	version, err := br.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	if string(version) != KeyVersion {
		return nil, resfile.MagicErr(op, KeyVersion, string(version))
	}

	var bifCount, keyCount, filesOff, keysOff uint32
	k := &KeyFile{}
	for _, f := range []*uint32{
		&bifCount, &keyCount, &filesOff, &keysOff,
		&k.buildYear, &k.buildDay,
	} {
		if *f, err = br.ReadU32(); err != nil {
			return nil, err
		}
	}

	filesEnd := int64(filesOff) + int64(bifCount)*fileEntrySize
	if filesEnd < int64(filesOff) || filesEnd > src.Len() {
		return nil, resfile.BoundsErr(op, "file table %d+%d exceeds %d-byte file", filesOff, bifCount, src.Len())
	}
	keysEnd := int64(keysOff) + int64(keyCount)*keyEntrySize
	if keysEnd < int64(keysOff) || keysEnd > src.Len() {
		return nil, resfile.BoundsErr(op, "key table %d+%d exceeds %d-byte file", keysOff, keyCount, src.Len())
	}

	k.bifs = make([]BifRef, bifCount)
	for i := range k.bifs {
		if err := br.Seek(int64(filesOff) + int64(i)*fileEntrySize); err != nil {
			return nil, err
		}
		if k.bifs[i].FileSize, err = br.ReadU32(); err != nil {
			return nil, err
		}
		nameOff, err := br.ReadU32()
		if err != nil {
			return nil, err
		}
		nameLen, err := br.ReadU16()
		if err != nil {
			return nil, err
		}
		if k.bifs[i].Drives, err = br.ReadU16(); err != nil {
			return nil, err
		}
		if err := br.Seek(int64(nameOff)); err != nil {
			return nil, err
		}
		name, err := br.ReadString(int64(nameLen))
		if err != nil {
			return nil, err
		}
		k.bifs[i].Filename = strings.ReplaceAll(name, "\\", "/")
	}

	k.index = make(map[entryKey]Location, keyCount)
	k.order = make([]entryKey, 0, keyCount)
	if err := br.Seek(int64(keysOff)); err != nil {
		return nil, err
	}
	for i := uint32(0); i < keyCount; i++ {
		var raw [16]byte
		if err := br.ReadFull(raw[:]); err != nil {
			return nil, err
		}
		ref, err := restype.ResRef16FromBytes(raw)
		if err != nil {
			return nil, err
		}
		typ, err := br.ReadU16()
		if err != nil {
			return nil, err
		}
		id, err := br.ReadU32()
		if err != nil {
			return nil, err
		}
		bifIdx := int(id >> bifIndexShift)
		if bifIdx >= len(k.bifs) {
			return nil, resfile.MalformedErr(op, "key %d references bif %d of %d", i, bifIdx, len(k.bifs))
		}
		ek := entryKey{ref, restype.ResType(typ)}
		if _, dup := k.index[ek]; !dup {
			k.index[ek] = Location{BifIndex: bifIdx, VarIndex: id & varIndexMask}
			k.order = append(k.order, ek)
		}
	}
	return k, nil
}

// BifCount returns the number of BIFs the index references.
func (k *KeyFile) BifCount() int {
	return len(k.bifs)
}

// Bif returns the i-th file-table entry.
func (k *KeyFile) Bif(i int) BifRef {
	return k.bifs[i]
}

// Count returns the number of cataloged resources.
func (k *KeyFile) Count() int {
	return len(k.order)
}

// BuildDate returns the recorded build year (years since 1900) and
// day of year.
func (k *KeyFile) BuildDate() (year, day uint32) {
	return k.buildYear, k.buildDay
}

// Lookup resolves a resource to its BIF and variable-table position.
func (k *KeyFile) Lookup(ref restype.ResRef16, typ restype.ResType) (Location, bool) {
	loc, ok := k.index[entryKey{ref, typ}]
	return loc, ok
}

// Walk calls fn for every cataloged resource in key-table order.
func (k *KeyFile) Walk(fn func(ref restype.ResRef16, typ restype.ResType, loc Location) bool) {
	for _, ek := range k.order {
		if !fn(ek.ref, ek.typ, k.index[ek]) {
			return
		}
	}
}
