package resman

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
	"github.com/kmsheehan/nwn2dev-public/pkg/restype"
	"github.com/kmsheehan/nwn2dev-public/pkg/tlk"
)

// Manager owns the provider stack and answers resource demands
// against it. Reads are safe for concurrent use; Register, LoadModule
// and Close require exclusive access.
type Manager struct {
	log     *slog.Logger
	tempDir string
	prefix  string
	counter atomic.Uint64

	mu        sync.RWMutex
	providers []registered
	seq       int

	cacheMu sync.Mutex
	cache   map[cacheKey]resfile.ByteSource

	talk   *tlk.TalkTable
	state  loadState
	module string
}

type registered struct {
	p    Provider
	prio Priority
	seq  int
}

type cacheKey struct {
	seq int
	key Key
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger injects the log sink. The default is slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// WithTempDir sets the directory for materialized temp files. The
// default is the system temp directory.
func WithTempDir(dir string) Option {
	return func(m *Manager) {
		m.tempDir = dir
	}
}

// managerSeq numbers the managers of this process so each gets its own
// temp-file prefix.
var managerSeq atomic.Uint64

// New creates an empty manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		tempDir: os.TempDir(),
		prefix:  fmt.Sprintf("resman%d_%d", os.Getpid(), managerSeq.Add(1)),
		cache:   make(map[cacheKey]resfile.ByteSource),
		talk:    tlk.NewTalkTable(nil, nil),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// Register inserts a provider into the stack. Within a priority
// class, earlier registrations win.
func (m *Manager) Register(p Provider, prio Priority) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.register(p, prio)
}

func (m *Manager) register(p Provider, prio Priority) {
	m.seq++
	m.providers = append(m.providers, registered{p: p, prio: prio, seq: m.seq})
	sort.SliceStable(m.providers, func(a, b int) bool {
		if m.providers[a].prio != m.providers[b].prio {
			return m.providers[a].prio < m.providers[b].prio
		}
		return m.providers[a].seq < m.providers[b].seq
	})
	m.log.Debug("provider registered", "provider", p.Name(), "priority", int(prio))
}

// Providers returns the stack's provider names in search order.
func (m *Manager) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.providers))
	for i, r := range m.providers {
		names[i] = r.p.Name()
	}
	return names
}

// Contains reports whether any provider holds the resource.
func (m *Manager) Contains(key Key) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.providers {
		if r.p.Contains(key) {
			return true
		}
	}
	return false
}

// Open demands a resource by name and type. Providers are searched in
// priority order; the first hit wins.
func (m *Manager) Open(name string, typ restype.ResType) (*Demand, error) {
	key, err := NewKey(name, typ)
	if err != nil {
		return nil, err
	}
	return m.OpenKey(key)
}

// OpenKey demands a resource by key.
func (m *Manager) OpenKey(key Key) (*Demand, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.providers {
		if !r.p.Contains(key) {
			continue
		}
		src, err := m.openCached(r, key)
		if err != nil {
			return nil, err
		}
		return &Demand{key: key, provider: r.p.Name(), src: src}, nil
	}
	return nil, resfile.NotFoundErr("resman: open", "%s not held by any provider", key)
}

// openCached returns the provider's byte range for key, reusing the
// cached view across concurrent demands.
func (m *Manager) openCached(r registered, key Key) (resfile.ByteSource, error) {
	ck := cacheKey{seq: r.seq, key: key}
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if src, ok := m.cache[ck]; ok {
		return src, nil
	}
	src, err := r.p.Open(key)
	if err != nil {
		return nil, err
	}
	m.cache[ck] = src
	return src, nil
}

// OpenAsFile demands a resource as a real filesystem path. When the
// winning provider has no native path, the bytes are materialized
// into a manager-owned temp file that lives until the handle closes.
func (m *Manager) OpenAsFile(name string, typ restype.ResType) (*DemandPath, error) {
	key, err := NewKey(name, typ)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	for _, r := range m.providers {
		if !r.p.Contains(key) {
			continue
		}
		if path, ok := r.p.Path(key); ok {
			m.mu.RUnlock()
			return &DemandPath{key: key, path: path}, nil
		}
		src, err := m.openCached(r, key)
		m.mu.RUnlock()
		if err != nil {
			return nil, err
		}
		return m.materialize(key, src)
	}
	m.mu.RUnlock()
	return nil, resfile.NotFoundErr("resman: open as file", "%s not held by any provider", key)
}

// materialize writes the resource bytes to a fresh temp path. Names
// carry the manager prefix and a monotonic counter so concurrent
// managers never collide.
func (m *Manager) materialize(key Key, src resfile.ByteSource) (*DemandPath, error) {
	data, err := resfile.ReadAll(src)
	if err != nil {
		return nil, err
	}
	ext, ok := restype.ResTypeToExt(key.Type)
	if !ok {
		ext = "res"
	}
	name := fmt.Sprintf("%s_%06d_%s.%s", m.prefix, m.counter.Add(1), key.Ref, ext)
	path := filepath.Join(m.tempDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, resfile.IoErr("resman: materialize", err)
	}
	m.log.Debug("resource materialized", "key", key.String(), "path", path)
	return &DemandPath{key: key, path: path, temp: true}, nil
}

// Walk visits every distinct resource in the stack once, in priority
// order, naming the provider that wins it; shadowed copies held by
// lower providers are skipped.
func (m *Manager) Walk(fn func(key Key, provider string) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[Key]bool)
	for _, r := range m.providers {
		stop := false
		r.p.Walk(func(key Key) bool {
			if seen[key] {
				return true
			}
			seen[key] = true
			if !fn(key, r.p.Name()) {
				stop = true
				return false
			}
			return true
		})
		if stop {
			return
		}
	}
}

// TalkTable returns the manager's talk-table pairing; it resolves
// StringRefs once a module (or at least a base table) is mounted.
func (m *Manager) TalkTable() *tlk.TalkTable {
	return m.talk
}

// TalkString resolves a StringRef through the mounted talk tables.
func (m *Manager) TalkString(ref uint32) (string, bool) {
	return m.talk.String(ref)
}

// Module returns the loaded module's name, when one is loaded.
func (m *Manager) Module() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.module, m.state == stateReady
}

// Close tears down the stack, closing every provider and dropping the
// cache; no new demand is served afterwards. Outstanding demands over
// in-memory bytes stay readable. Demands whose range reads through a
// file the provider opened (an ERF opened from disk, a BIF) fail with
// an Io error once that file is closed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var lastErr error
	for _, r := range m.providers {
		if err := r.p.Close(); err != nil {
			lastErr = err
		}
	}
	m.providers = nil
	m.cache = make(map[cacheKey]resfile.ByteSource)
	m.state = stateInit
	return lastErr
}
