// Package manifest handles quadra.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/quadra/memory"
	"github.com/chazu/quadra/optimizer"
)

// FileName is the name of the project configuration file.
const FileName = "quadra.toml"

// Manifest represents a quadra.toml project configuration.
type Manifest struct {
	Project   Project         `toml:"project"`
	Source    Source          `toml:"source"`
	Memory    MemoryConfig    `toml:"memory"`
	Optimizer OptimizerConfig `toml:"optimizer"`
	VM        VMConfig        `toml:"vm"`
	Image     ImageConfig     `toml:"image"`
	Server    ServerConfig    `toml:"server"`

	// Dir is the directory containing the quadra.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures transcript locations.
type Source struct {
	Dirs  []string `toml:"dirs"`
	Entry string   `toml:"entry"`
}

// MemoryConfig sets arena capacities in cells. Zero keeps the default.
type MemoryConfig struct {
	Global uint32 `toml:"global"`
	Local  uint32 `toml:"local"`
	Temp   uint32 `toml:"temp"`
	Stack  uint32 `toml:"stack"`
}

// OptimizerConfig selects optimizer passes.
type OptimizerConfig struct {
	Enabled         bool `toml:"enabled"`
	JumpThreading   bool `toml:"jump-threading"`
	ConstantFolding bool `toml:"constant-folding"`
	MaxRounds       int  `toml:"max-rounds"`
}

// VMConfig configures execution.
type VMConfig struct {
	MaxSteps uint64   `toml:"max-steps"`
	Profile  bool     `toml:"profile"`
	Natives  []string `toml:"natives"` // allowed natives; empty allows all
}

// ImageConfig configures image output and the compile cache.
type ImageConfig struct {
	Output string `toml:"output"`
	Cache  string `toml:"cache"`
}

// ServerConfig configures quadra serve.
type ServerConfig struct {
	Listen   string `toml:"listen"`
	MaxSteps uint64 `toml:"max-steps"`
}

// Default returns the configuration used when no quadra.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults(toml.MetaData{})
	return m
}

// Load parses a quadra.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	if err := Validate(data); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults(md)
	return &m, nil
}

// applyDefaults fills in values the file left out. Booleans that default
// to true are only defaulted when the key is absent.
func (m *Manifest) applyDefaults(md toml.MetaData) {
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if !md.IsDefined("optimizer", "enabled") {
		m.Optimizer.Enabled = true
	}
	if !md.IsDefined("optimizer", "jump-threading") {
		m.Optimizer.JumpThreading = true
	}
	if !md.IsDefined("optimizer", "constant-folding") {
		m.Optimizer.ConstantFolding = true
	}
	if m.Optimizer.MaxRounds == 0 {
		m.Optimizer.MaxRounds = optimizer.DefaultMaxRounds
	}
	if m.Image.Cache == "" {
		m.Image.Cache = filepath.Join(".quadra", "images.db")
	}
	if m.Server.Listen == "" {
		m.Server.Listen = "127.0.0.1:7411"
	}
}

// FindAndLoad walks up from startDir to find a quadra.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.Path(d))
	}
	return paths
}

// EntryPath returns the path of the entry transcript, or "" if none is set.
func (m *Manifest) EntryPath() string {
	if m.Source.Entry == "" {
		return ""
	}
	if len(m.Source.Dirs) > 0 {
		return filepath.Join(m.Path(m.Source.Dirs[0]), m.Source.Entry)
	}
	return m.Path(m.Source.Entry)
}

// Path resolves p against the project directory.
func (m *Manifest) Path(p string) string {
	if filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// CachePath returns the path of the image cache database.
func (m *Manifest) CachePath() string {
	return m.Path(m.Image.Cache)
}

// MemoryOptions converts the memory section.
func (m *Manifest) MemoryOptions() memory.Options {
	var opts memory.Options
	opts.Capacity[memory.Global] = m.Memory.Global
	opts.Capacity[memory.Local] = m.Memory.Local
	opts.Capacity[memory.Temp] = m.Memory.Temp
	opts.Capacity[memory.Stack] = m.Memory.Stack
	return opts
}

// OptimizerOptions converts the optimizer section.
func (m *Manifest) OptimizerOptions() optimizer.Options {
	return optimizer.Options{
		JumpThreading:   m.Optimizer.JumpThreading,
		ConstantFolding: m.Optimizer.ConstantFolding,
		MaxRounds:       m.Optimizer.MaxRounds,
	}
}
