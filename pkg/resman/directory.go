package resman

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
	"github.com/kmsheehan/nwn2dev-public/pkg/restype"
)

// DirectoryProvider resolves resources against a filesystem directory
// by the <resref>.<ext> naming convention.
type DirectoryProvider struct {
	dir string
}

// NewDirectoryProvider creates a provider over dir.
func NewDirectoryProvider(dir string) (*DirectoryProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, resfile.IoErr("directory provider", err)
	}
	if !info.IsDir() {
		return nil, resfile.MalformedErr("directory provider", "%s is not a directory", dir)
	}
	return &DirectoryProvider{dir: dir}, nil
}

// Name implements Provider.
func (p *DirectoryProvider) Name() string {
	return "dir:" + p.dir
}

// resolve maps a key to an existing file path. The canonical
// lowercase name is tried first; on case-sensitive hosts a directory
// scan picks up other casings.
func (p *DirectoryProvider) resolve(key Key) (string, bool) {
	ext, ok := restype.ResTypeToExt(key.Type)
	if !ok {
		return "", false
	}
	name := key.Ref.String() + "." + ext
	path := filepath.Join(p.dir, name)
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), name) {
			return filepath.Join(p.dir, e.Name()), true
		}
	}
	return "", false
}

// Contains implements Provider.
func (p *DirectoryProvider) Contains(key Key) bool {
	_, ok := p.resolve(key)
	return ok
}

// Open implements Provider.
func (p *DirectoryProvider) Open(key Key) (resfile.ByteSource, error) {
	path, ok := p.resolve(key)
	if !ok {
		return nil, resfile.NotFoundErr("directory provider", "%s not under %s", key, p.dir)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, resfile.IoErr("directory provider", err)
	}
	return resfile.NewMemorySource(data), nil
}

// Path implements Provider. Directory resources always have a real
// path.
func (p *DirectoryProvider) Path(key Key) (string, bool) {
	return p.resolve(key)
}

// Walk implements Provider. Files whose extension is not in the type
// registry are skipped.
func (p *DirectoryProvider) Walk(fn func(key Key) bool) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		typ := restype.ExtToResType(ext)
		if typ == restype.Invalid {
			continue
		}
		ref, err := restype.NewResRef32(strings.TrimSuffix(e.Name(), ext))
		if err != nil {
			continue
		}
		if !fn(Key{Ref: ref, Type: typ}) {
			return
		}
	}
}

// Close implements Provider.
func (p *DirectoryProvider) Close() error {
	return nil
}

// MemoryProvider serves resources from an in-memory map, for
// caller-generated data and tests.
type MemoryProvider struct {
	name string
	data map[Key][]byte
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider(name string) *MemoryProvider {
	return &MemoryProvider{name: name, data: make(map[Key][]byte)}
}

// Put stores a resource, replacing any previous bytes for the key.
func (p *MemoryProvider) Put(key Key, data []byte) {
	p.data[key] = data
}

// Name implements Provider.
func (p *MemoryProvider) Name() string {
	return "mem:" + p.name
}

// Contains implements Provider.
func (p *MemoryProvider) Contains(key Key) bool {
	_, ok := p.data[key]
	return ok
}

// Open implements Provider.
func (p *MemoryProvider) Open(key Key) (resfile.ByteSource, error) {
	data, ok := p.data[key]
	if !ok {
		return nil, resfile.NotFoundErr("memory provider", "%s not in %s", key, p.name)
	}
	return resfile.NewMemorySource(data), nil
}

// Path implements Provider.
func (p *MemoryProvider) Path(Key) (string, bool) {
	return "", false
}

// Walk implements Provider.
func (p *MemoryProvider) Walk(fn func(key Key) bool) {
	for k := range p.data {
		if !fn(k) {
			return
		}
	}
}

// Close implements Provider.
func (p *MemoryProvider) Close() error {
	return nil
}
