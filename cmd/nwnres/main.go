// Package main provides a command-line tool for inspecting and
// extracting game resources through the resource manager.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kmsheehan/nwn2dev-public/pkg/gff"
	"github.com/kmsheehan/nwn2dev-public/pkg/resman"
	"github.com/kmsheehan/nwn2dev-public/pkg/restype"
)

var (
	mode        string
	profilePath string
	installDir  string
	moduleName  string
	resName     string
	resExt      string
	outputDir   string
	verbose     bool
)

func init() {
	flag.StringVar(&mode, "mode", "", "Operation mode: list, extract, info")
	flag.StringVar(&profilePath, "profile", "", "Path to a TOML load profile")
	flag.StringVar(&installDir, "install", "", "Installation directory (alternative to -profile)")
	flag.StringVar(&moduleName, "module", "", "Module name to load")
	flag.StringVar(&resName, "name", "", "Resource name for extract mode")
	flag.StringVar(&resExt, "type", "", "Resource extension for extract mode (e.g. 2da)")
	flag.StringVar(&outputDir, "output", ".", "Output directory for extract mode")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if mode == "" {
		flag.Usage()
		return fmt.Errorf("missing -mode")
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	profile, err := loadProfile()
	if err != nil {
		return err
	}

	m := resman.New(resman.WithLogger(logger))
	defer m.Close()
	if err := m.LoadModule(profile); err != nil {
		return fmt.Errorf("load module: %w", err)
	}

	switch mode {
	case "list":
		return runList(m)
	case "extract":
		return runExtract(m)
	case "info":
		return runInfo(m)
	default:
		flag.Usage()
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func loadProfile() (resman.Profile, error) {
	if profilePath != "" {
		profile, err := resman.LoadProfile(profilePath)
		if err != nil {
			return resman.Profile{}, err
		}
		if moduleName != "" {
			profile.Module = moduleName
		}
		return profile, nil
	}
	if installDir == "" || moduleName == "" {
		return resman.Profile{}, fmt.Errorf("need -profile, or -install and -module")
	}
	return resman.Profile{InstallDir: installDir, Module: moduleName}, nil
}

func runList(m *resman.Manager) error {
	count := 0
	m.Walk(func(key resman.Key, provider string) bool {
		fmt.Printf("%-40s %s\n", key, provider)
		count++
		return true
	})
	fmt.Printf("%d resources\n", count)
	return nil
}

func runExtract(m *resman.Manager) error {
	if resName == "" || resExt == "" {
		return fmt.Errorf("extract mode needs -name and -type")
	}
	typ := restype.ExtToResType(resExt)
	if typ == restype.Invalid {
		return fmt.Errorf("unknown resource type %q", resExt)
	}

	d, err := m.Open(resName, typ)
	if err != nil {
		return err
	}
	defer d.Close()
	data, err := d.Bytes()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	outPath := filepath.Join(outputDir, fmt.Sprintf("%s.%s", d.Key().Ref, resExt))
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("%s (%d bytes, via %s)\n", outPath, len(data), d.ProviderName())
	return nil
}

func runInfo(m *resman.Manager) error {
	d, err := m.Open("module", restype.Ifo)
	if err != nil {
		return err
	}
	defer d.Close()

	g, err := gff.New(d.Source(), gff.WithTalkTable(m.TalkTable()))
	if err != nil {
		return err
	}
	root, err := g.Root()
	if err != nil {
		return err
	}

	name, _, err := root.LocStringText("Mod_Name")
	if err != nil {
		return err
	}
	fmt.Printf("Module:      %s\n", name)
	if tag, ok, _ := root.String("Mod_Tag"); ok {
		fmt.Printf("Tag:         %s\n", tag)
	}
	if minGame, ok, _ := root.String("Mod_MinGameVer"); ok {
		fmt.Printf("Min version: %s\n", minGame)
	}
	if entry, ok, _ := root.ResRef("Mod_Entry_Area"); ok {
		fmt.Printf("Entry area:  %s\n", entry)
	}
	if list, ok, _ := root.List("Mod_HakList"); ok {
		for _, h := range list {
			if hak, ok, _ := h.String("Mod_Hak"); ok {
				fmt.Printf("HAK:         %s\n", hak)
			}
		}
	}
	if custom, ok, _ := root.String("Mod_CustomTlk"); ok && custom != "" {
		fmt.Printf("Custom TLK:  %s\n", custom)
	}

	fmt.Println("Providers:")
	for _, p := range m.Providers() {
		fmt.Printf("  %s\n", p)
	}
	return nil
}
