package keybif

import (
	"bytes"
	"compress/zlib"
	"io"
	"sync"

	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
	"github.com/kmsheehan/nwn2dev-public/pkg/restype"
)

// BIF format identification.
const (
	BifMagic      = "BIFF"
	BifVersion    = "V1  "
	BifcMagic     = "BIFC" // zlib block-compressed variant
	BifcVersion   = "V1.0"
	BifHeaderSize = 20
	varEntrySize  = 16 // id u32 + offset u32 + size u32 + type u32
)

type varEntry struct {
	offset uint32
	size   uint32
	typ    restype.ResType
}

// Bif is a parsed BIF data file.
type Bif struct {
	src  resfile.ByteSource
	vars []varEntry
}

// ParseBif reads and validates a BIF file's variable-resource table.
// A compressed BIFC image is inflated in full first.
func ParseBif(src resfile.ByteSource) (*Bif, error) {
	const op = "bif: parse"
	br := resfile.NewReader(src)
	if src.Len() < 8 {
		return nil, resfile.BoundsErr(op, "file of %d bytes is shorter than the magic", src.Len())
	}
	magic, err := br.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	if string(magic) == BifcMagic {
		inflated, err := inflateBifc(br)
		if err != nil {
			return nil, err
		}
		src = resfile.NewMemorySource(inflated)
		br = resfile.NewReader(src)
		if magic, err = br.ReadBytes(4); err != nil {
			return nil, err
		}
	}
	if string(magic) != BifMagic {
		return nil, resfile.MagicErr(op, BifMagic, string(magic))
	}
	version, err := br.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	if string(version) != BifVersion {
		return nil, resfile.MagicErr(op, BifVersion, string(version))
	}

	var varCount, fixedCount, varOff uint32
	for _, f := range []*uint32{&varCount, &fixedCount, &varOff} {
		if *f, err = br.ReadU32(); err != nil {
			return nil, err
		}
	}
	tableEnd := int64(varOff) + int64(varCount)*varEntrySize
	if tableEnd < int64(varOff) || tableEnd > src.Len() {
		return nil, resfile.BoundsErr(op, "variable table %d+%d exceeds %d-byte file", varOff, varCount, src.Len())
	}

	b := &Bif{src: src, vars: make([]varEntry, varCount)}
	if err := br.Seek(int64(varOff)); err != nil {
		return nil, err
	}
	for i := range b.vars {
		if _, err := br.ReadU32(); err != nil { // entry id
			return nil, err
		}
		if b.vars[i].offset, err = br.ReadU32(); err != nil {
			return nil, err
		}
		if b.vars[i].size, err = br.ReadU32(); err != nil {
			return nil, err
		}
		typ, err := br.ReadU32()
		if err != nil {
			return nil, err
		}
		b.vars[i].typ = restype.ResType(typ)
		end := int64(b.vars[i].offset) + int64(b.vars[i].size)
		if end < int64(b.vars[i].offset) || end > src.Len() {
			return nil, resfile.BoundsErr(op, "resource %d payload %d+%d exceeds %d-byte file", i, b.vars[i].offset, b.vars[i].size, src.Len())
		}
	}
	return b, nil
}

// inflateBifc materializes the BIF image inside a BIFC wrapper: a
// declared uncompressed length followed by (uncompressed, compressed)
// block pairs of zlib data.
func inflateBifc(br *resfile.ByteReader) ([]byte, error) {
	const op = "bif: inflate"
	version, err := br.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	if string(version) != BifcVersion {
		return nil, resfile.MagicErr(op, BifcVersion, string(version))
	}
	total, err := br.ReadU32()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, total)
	for int64(len(out)) < int64(total) {
		blockLen, err := br.ReadU32()
		if err != nil {
			return nil, err
		}
		compLen, err := br.ReadU32()
		if err != nil {
			return nil, err
		}
		comp, err := br.ReadBytes(int64(compLen))
		if err != nil {
			return nil, err
		}
		zr, err := zlib.NewReader(bytes.NewReader(comp))
		if err != nil {
			return nil, resfile.MalformedErr(op, "bad zlib block at %d: %v", len(out), err)
		}
		block, err := io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return nil, resfile.MalformedErr(op, "truncated zlib block at %d: %v", len(out), err)
		}
		if uint32(len(block)) != blockLen {
			return nil, resfile.MalformedErr(op, "block at %d inflated to %d, declared %d", len(out), len(block), blockLen)
		}
		out = append(out, block...)
	}
	if int64(len(out)) != int64(total) {
		return nil, resfile.MalformedErr(op, "inflated %d bytes, declared %d", len(out), total)
	}
	return out, nil
}

// VarCount returns the number of variable resources.
func (b *Bif) VarCount() int {
	return len(b.vars)
}

// Resource returns a view over the payload of variable-table entry i.
func (b *Bif) Resource(i uint32) (resfile.ByteSource, error) {
	if int(i) >= len(b.vars) {
		return nil, resfile.NotFoundErr("bif: resource", "variable entry %d outside table of %d", i, len(b.vars))
	}
	v := b.vars[i]
	return b.src.Section(int64(v.offset), int64(v.size))
}

// OpenBif maps a KEY file-table entry to a readable source for that
// BIF. Set calls it when a BIF is first touched and parses the result.
type OpenBif func(ref BifRef) (resfile.ByteSource, error)

// Set pairs a KEY index with its BIFs, opening each BIF lazily on
// first use. Safe for concurrent use.
type Set struct {
	key  *KeyFile
	open OpenBif

	mu   sync.Mutex
	bifs []*Bif
}

// NewSet creates a Set over a parsed KEY. The open callback maps a
// file-table entry to a readable source for that BIF.
func NewSet(key *KeyFile, open OpenBif) *Set {
	return &Set{
		key:  key,
		open: open,
		bifs: make([]*Bif, key.BifCount()),
	}
}

// Key returns the underlying index.
func (s *Set) Key() *KeyFile {
	return s.key
}

// Contains reports whether the index catalogs the resource.
func (s *Set) Contains(ref restype.ResRef16, typ restype.ResType) bool {
	_, ok := s.key.Lookup(ref, typ)
	return ok
}

// Open resolves a resource to a view over its slice of the owning
// BIF. A key whose variable index is outside the BIF's variable table
// (a fixed resource) reports NotFound.
func (s *Set) Open(ref restype.ResRef16, typ restype.ResType) (resfile.ByteSource, error) {
	loc, ok := s.key.Lookup(ref, typ)
	if !ok {
		return nil, resfile.NotFoundErr("keybif: open", "%s.%s not in index", ref, typ)
	}
	b, err := s.bif(loc.BifIndex)
	if err != nil {
		return nil, err
	}
	if int(loc.VarIndex) >= b.VarCount() {
		return nil, resfile.NotFoundErr("keybif: open", "%s.%s resolves outside the variable table (fixed resources are not supported)", ref, typ)
	}
	return b.Resource(loc.VarIndex)
}

func (s *Set) bif(i int) (*Bif, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bifs[i] != nil {
		return s.bifs[i], nil
	}
	src, err := s.open(s.key.Bif(i))
	if err != nil {
		return nil, err
	}
	b, err := ParseBif(src)
	if err != nil {
		return nil, err
	}
	s.bifs[i] = b
	return b, nil
}
