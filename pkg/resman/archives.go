package resman

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kmsheehan/nwn2dev-public/pkg/erf"
	"github.com/kmsheehan/nwn2dev-public/pkg/keybif"
	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
	"github.com/kmsheehan/nwn2dev-public/pkg/restype"
	"github.com/kmsheehan/nwn2dev-public/pkg/zippak"
)

// ErfProvider serves resources out of a flat archive.
type ErfProvider struct {
	name   string
	reader *erf.Reader
	file   *os.File // nil for in-memory archives
}

// OpenErfFile opens an archive on disk and wraps it as a provider.
// The file stays open for the provider's lifetime; reads are
// positioned.
func OpenErfFile(path string) (*ErfProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, resfile.IoErr("erf provider", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, resfile.IoErr("erf provider", err)
	}
	src, err := resfile.NewFileSource(f, 0, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	r, err := erf.New(src)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &ErfProvider{name: filepath.Base(path), reader: r, file: f}, nil
}

// NewErfProvider wraps an already-parsed archive.
func NewErfProvider(name string, r *erf.Reader) *ErfProvider {
	return &ErfProvider{name: name, reader: r}
}

// Reader returns the underlying archive.
func (p *ErfProvider) Reader() *erf.Reader {
	return p.reader
}

// Name implements Provider.
func (p *ErfProvider) Name() string {
	return "erf:" + p.name
}

// Contains implements Provider.
func (p *ErfProvider) Contains(key Key) bool {
	return p.reader.Contains(key.Ref, key.Type)
}

// Open implements Provider.
func (p *ErfProvider) Open(key Key) (resfile.ByteSource, error) {
	return p.reader.Open(key.Ref, key.Type)
}

// Path implements Provider. Archived entries have no standalone path.
func (p *ErfProvider) Path(Key) (string, bool) {
	return "", false
}

// Walk implements Provider.
func (p *ErfProvider) Walk(fn func(key Key) bool) {
	for _, e := range p.reader.Entries() {
		if !fn(Key{Ref: e.ResRef, Type: e.Type}) {
			return
		}
	}
}

// Close implements Provider.
func (p *ErfProvider) Close() error {
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// KeyBifProvider serves resources out of a KEY index and its BIFs.
type KeyBifProvider struct {
	name string
	set  *keybif.Set

	mu    sync.Mutex // guards files
	files []*os.File
}

// OpenKeyFile parses the KEY at path and wraps it as a provider. BIF
// paths from the index resolve relative to installDir and open lazily.
func OpenKeyFile(path, installDir string) (*KeyBifProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, resfile.IoErr("keybif provider", err)
	}
	key, err := keybif.ParseKey(resfile.NewMemorySource(data))
	if err != nil {
		return nil, err
	}

	p := &KeyBifProvider{
		name: filepath.Base(path),
	}
	p.set = keybif.NewSet(key, func(ref keybif.BifRef) (resfile.ByteSource, error) {
		f, err := os.Open(filepath.Join(installDir, filepath.FromSlash(ref.Filename)))
		if err != nil {
			return nil, resfile.IoErr("keybif provider", err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, resfile.IoErr("keybif provider", err)
		}
		src, err := resfile.NewFileSource(f, 0, info.Size())
		if err != nil {
			f.Close()
			return nil, err
		}
		p.mu.Lock()
		p.files = append(p.files, f)
		p.mu.Unlock()
		return src, nil
	})
	return p, nil
}

// NewKeyBifProvider wraps an already-built set.
func NewKeyBifProvider(name string, set *keybif.Set) *KeyBifProvider {
	return &KeyBifProvider{name: name, set: set}
}

// Name implements Provider.
func (p *KeyBifProvider) Name() string {
	return "key:" + p.name
}

// narrow converts the stack-wide 32-character key to the index's
// 16-character form; wider names cannot exist in a KEY.
func narrow(key Key) (restype.ResRef16, bool) {
	ref, err := key.Ref.To16()
	if err != nil {
		return restype.ResRef16{}, false
	}
	return ref, true
}

// Contains implements Provider.
func (p *KeyBifProvider) Contains(key Key) bool {
	ref, ok := narrow(key)
	return ok && p.set.Contains(ref, key.Type)
}

// Open implements Provider.
func (p *KeyBifProvider) Open(key Key) (resfile.ByteSource, error) {
	ref, ok := narrow(key)
	if !ok {
		return nil, resfile.NotFoundErr("keybif provider", "%s does not fit a 16-character index", key)
	}
	return p.set.Open(ref, key.Type)
}

// Path implements Provider.
func (p *KeyBifProvider) Path(Key) (string, bool) {
	return "", false
}

// Walk implements Provider.
func (p *KeyBifProvider) Walk(fn func(key Key) bool) {
	p.set.Key().Walk(func(ref restype.ResRef16, typ restype.ResType, _ keybif.Location) bool {
		return fn(Key{Ref: ref.To32(), Type: typ})
	})
}

// Close implements Provider.
func (p *KeyBifProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var lastErr error
	for _, f := range p.files {
		if err := f.Close(); err != nil {
			lastErr = err
		}
	}
	p.files = nil
	return lastErr
}

// ZipProvider serves resources out of a zip repository. Members match
// by basename, so directory layout inside the archive does not
// matter.
type ZipProvider struct {
	name    string
	reader  *zippak.Reader
	file    *os.File
	members map[Key]string
}

// OpenZipFile opens a zip repository on disk and wraps it as a
// provider.
func OpenZipFile(path string) (*ZipProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, resfile.IoErr("zip provider", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, resfile.IoErr("zip provider", err)
	}
	src, err := resfile.NewFileSource(f, 0, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	r, err := zippak.New(src)
	if err != nil {
		f.Close()
		return nil, err
	}
	p := newZipProvider(filepath.Base(path), r)
	p.file = f
	return p, nil
}

// NewZipProvider wraps an already-parsed zip repository.
func NewZipProvider(name string, r *zippak.Reader) *ZipProvider {
	return newZipProvider(name, r)
}

func newZipProvider(name string, r *zippak.Reader) *ZipProvider {
	p := &ZipProvider{name: name, reader: r, members: make(map[Key]string)}
	for _, e := range r.Entries() {
		base := e.Name
		if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
			base = base[i+1:]
		}
		ext := filepath.Ext(base)
		typ := restype.ExtToResType(ext)
		if typ == restype.Invalid {
			continue
		}
		ref, err := restype.NewResRef32(strings.TrimSuffix(base, ext))
		if err != nil {
			continue
		}
		key := Key{Ref: ref, Type: typ}
		if _, dup := p.members[key]; !dup {
			p.members[key] = e.Name
		}
	}
	return p
}

// Name implements Provider.
func (p *ZipProvider) Name() string {
	return "zip:" + p.name
}

// Contains implements Provider.
func (p *ZipProvider) Contains(key Key) bool {
	_, ok := p.members[key]
	return ok
}

// Open implements Provider. The member is decompressed whole.
func (p *ZipProvider) Open(key Key) (resfile.ByteSource, error) {
	member, ok := p.members[key]
	if !ok {
		return nil, resfile.NotFoundErr("zip provider", "%s not in %s", key, p.name)
	}
	data, err := p.reader.Open(member)
	if err != nil {
		return nil, err
	}
	return resfile.NewMemorySource(data), nil
}

// Path implements Provider.
func (p *ZipProvider) Path(Key) (string, bool) {
	return "", false
}

// Walk implements Provider.
func (p *ZipProvider) Walk(fn func(key Key) bool) {
	for k := range p.members {
		if !fn(k) {
			return
		}
	}
}

// Close implements Provider.
func (p *ZipProvider) Close() error {
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
