package resman

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/kmsheehan/nwn2dev-public/pkg/gff"
	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
	"github.com/kmsheehan/nwn2dev-public/pkg/restype"
	"github.com/kmsheehan/nwn2dev-public/pkg/tlk"
)

// Profile names everything a module load needs to find on disk. It is
// what a front end decodes from its settings file.
type Profile struct {
	InstallDir  string   `toml:"install_dir"`
	ModulesDir  string   `toml:"modules_dir"`  // default: <install_dir>/modules
	HakDir      string   `toml:"hak_dir"`      // default: <install_dir>/hak
	TlkDir      string   `toml:"tlk_dir"`      // default: <install_dir>/tlk
	OverrideDir string   `toml:"override_dir"` // default: <install_dir>/override
	Module      string   `toml:"module"`
	BaseTlk     string   `toml:"base_tlk"` // default: dialog.tlk
	BaseKeys    []string `toml:"base_keys"`
	BaseZips    []string `toml:"base_zips"`
}

// LoadProfile decodes a profile from a TOML file.
func LoadProfile(path string) (Profile, error) {
	var p Profile
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return Profile{}, resfile.IoErr("resman: load profile", err)
	}
	return p, nil
}

// withDefaults fills the derivable directories.
func (p Profile) withDefaults() Profile {
	if p.ModulesDir == "" {
		p.ModulesDir = filepath.Join(p.InstallDir, "modules")
	}
	if p.HakDir == "" {
		p.HakDir = filepath.Join(p.InstallDir, "hak")
	}
	if p.TlkDir == "" {
		p.TlkDir = filepath.Join(p.InstallDir, "tlk")
	}
	if p.OverrideDir == "" {
		p.OverrideDir = filepath.Join(p.InstallDir, "override")
	}
	if p.BaseTlk == "" {
		p.BaseTlk = "dialog.tlk"
	}
	return p
}

// loadState tracks the module-load state machine.
type loadState int

const (
	stateInit loadState = iota
	stateFindModule
	stateMountModule
	stateReadIfo
	stateMountHaks
	stateMountCustomTlk
	stateMountBaseKeys
	stateReady
)

// ifoData is what module metadata the loader consumes.
type ifoData struct {
	haks      []string
	customTlk string
}

// LoadModule discovers the module archive, reads its metadata, and
// builds the provider stack: module archive, its HAK packs, custom
// talk table, override directory, base KEY indexes and base zips.
// On any failure the stack is restored to its pre-call state.
func (m *Manager) LoadModule(profile Profile) error {
	profile = profile.withDefaults()

	m.mu.Lock()
	defer m.mu.Unlock()

	saved := make([]registered, len(m.providers))
	copy(saved, m.providers)
	savedTalk := *m.talk
	var mounted []Provider

	fail := func(state loadState, err error) error {
		for _, p := range mounted {
			p.Close()
		}
		m.providers = saved
		*m.talk = savedTalk
		m.state = stateInit
		m.log.Error("module load failed", "module", profile.Module, "state", int(state), "err", err)
		return err
	}
	mount := func(p Provider, prio Priority) {
		mounted = append(mounted, p)
		m.register(p, prio)
	}

	// FindModule.
	m.state = stateFindModule
	modPath := filepath.Join(profile.ModulesDir, profile.Module)
	if filepath.Ext(modPath) == "" {
		modPath += ".mod"
	}
	if _, err := os.Stat(modPath); err != nil {
		return fail(stateFindModule, resfile.NotFoundErr("resman: find module", "%s: %v", modPath, err))
	}

	// MountModule.
	m.state = stateMountModule
	modProv, err := OpenErfFile(modPath)
	if err != nil {
		return fail(stateMountModule, err)
	}
	mount(modProv, PriorityModule)

	// ReadIfo.
	m.state = stateReadIfo
	ifo, err := readModuleIfo(modProv)
	if err != nil {
		return fail(stateReadIfo, err)
	}

	// MountHaks.
	m.state = stateMountHaks
	for _, hak := range ifo.haks {
		hakPath := filepath.Join(profile.HakDir, hak)
		if filepath.Ext(hakPath) == "" {
			hakPath += ".hak"
		}
		hakProv, err := OpenErfFile(hakPath)
		if err != nil {
			return fail(stateMountHaks, err)
		}
		mount(hakProv, PriorityHak)
	}
	if _, err := os.Stat(profile.OverrideDir); err == nil {
		dirProv, err := NewDirectoryProvider(profile.OverrideDir)
		if err != nil {
			return fail(stateMountHaks, err)
		}
		mount(dirProv, PriorityOverride)
	}

	// MountCustomTlk.
	m.state = stateMountCustomTlk
	var custom *tlk.Reader
	if ifo.customTlk != "" {
		tlkPath := filepath.Join(profile.TlkDir, ifo.customTlk)
		if filepath.Ext(tlkPath) == "" {
			tlkPath += ".tlk"
		}
		data, err := os.ReadFile(tlkPath)
		if err != nil {
			return fail(stateMountCustomTlk, resfile.IoErr("resman: custom tlk", err))
		}
		if custom, err = tlk.NewFromBytes(data); err != nil {
			return fail(stateMountCustomTlk, err)
		}

		tlkProv := NewMemoryProvider(ifo.customTlk)
		if key, err := NewKey(trimExt(ifo.customTlk), restype.Tlk); err == nil {
			tlkProv.Put(key, data)
			mount(tlkProv, PriorityCustomTlk)
		}
	}

	// MountBaseKeys.
	m.state = stateMountBaseKeys
	var base *tlk.Reader
	baseTlkPath := filepath.Join(profile.InstallDir, profile.BaseTlk)
	if data, err := os.ReadFile(baseTlkPath); err == nil {
		if base, err = tlk.NewFromBytes(data); err != nil {
			return fail(stateMountBaseKeys, err)
		}
	}
	*m.talk = *tlk.NewTalkTable(base, custom)
	for _, keyName := range profile.BaseKeys {
		keyProv, err := OpenKeyFile(filepath.Join(profile.InstallDir, keyName), profile.InstallDir)
		if err != nil {
			return fail(stateMountBaseKeys, err)
		}
		mount(keyProv, PriorityBaseKey)
	}
	for _, zipName := range profile.BaseZips {
		zipProv, err := OpenZipFile(filepath.Join(profile.InstallDir, zipName))
		if err != nil {
			return fail(stateMountBaseKeys, err)
		}
		mount(zipProv, PriorityBaseZip)
	}

	m.state = stateReady
	m.module = profile.Module
	m.log.Info("module loaded", "module", profile.Module, "haks", len(ifo.haks), "providers", len(m.providers))
	return nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

// readModuleIfo pulls the HAK list and custom talk-table name out of
// the module's IFO structure.
func readModuleIfo(p *ErfProvider) (ifoData, error) {
	ref, err := restype.NewResRef32("module")
	if err != nil {
		return ifoData{}, err
	}
	src, err := p.Reader().Open(ref, restype.Ifo)
	if err != nil {
		return ifoData{}, err
	}
	g, err := gff.New(src)
	if err != nil {
		return ifoData{}, err
	}
	root, err := g.Root()
	if err != nil {
		return ifoData{}, err
	}

	var out ifoData
	if list, ok, err := root.List("Mod_HakList"); err != nil {
		return ifoData{}, err
	} else if ok {
		for _, entry := range list {
			if name, ok, err := entry.String("Mod_Hak"); err != nil {
				return ifoData{}, err
			} else if ok && name != "" {
				out.haks = append(out.haks, name)
			}
		}
	} else if name, ok, err := root.String("Mod_Hak"); err != nil {
		return ifoData{}, err
	} else if ok && name != "" {
		// Pre-list modules carry a single HAK name.
		out.haks = append(out.haks, name)
	}

	if name, ok, err := root.String("Mod_CustomTlk"); err != nil {
		return ifoData{}, err
	} else if ok {
		out.customTlk = name
	}
	return out, nil
}
