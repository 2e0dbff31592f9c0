// Package config loads gctrail.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"gctrail/internal/console"
	"gctrail/internal/trace"
)

// FileName is the name searched for by Find.
const FileName = "gctrail.toml"

// Defaults.
const (
	DefaultMissDump = 128
	DefaultReserve  = 1 << 16
)

// Config is the resolved configuration.
type Config struct {
	Path     string   `toml:"-"` // empty when no file was found
	Recorder Recorder `toml:"recorder"`
	Index    Index    `toml:"index"`
	Output   Output   `toml:"output"`
}

// Recorder configures the flight recorder.
type Recorder struct {
	Capacity    int `toml:"capacity"`
	MessageSize int `toml:"message_size"`
	MissDump    int `toml:"miss_dump"` // entries dumped when a parent is missing
}

// Index configures the reachability index.
type Index struct {
	Reserve int `toml:"reserve"`
}

// Output configures console output.
type Output struct {
	Color string `toml:"color"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Recorder: Recorder{
			Capacity:    trace.DefaultCapacity,
			MessageSize: trace.DefaultMessageSize,
			MissDump:    DefaultMissDump,
		},
		Index:  Index{Reserve: DefaultReserve},
		Output: Output{Color: "auto"},
	}
}

// Find searches startDir and its parents for gctrail.toml.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover returns the configuration found from startDir upwards, or the
// defaults when there is none.
func Discover(startDir string) (Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// Load reads path on top of the defaults. Keys not present keep their
// default value; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.Recorder.Capacity <= 0:
		return fmt.Errorf("[recorder].capacity must be positive, got %d", c.Recorder.Capacity)
	case c.Recorder.MessageSize <= 0:
		return fmt.Errorf("[recorder].message_size must be positive, got %d", c.Recorder.MessageSize)
	case c.Recorder.MissDump < 0:
		return fmt.Errorf("[recorder].miss_dump must not be negative, got %d", c.Recorder.MissDump)
	case c.Index.Reserve < 0:
		return fmt.Errorf("[index].reserve must not be negative, got %d", c.Index.Reserve)
	}
	if _, err := console.ParseColorMode(c.Output.Color); err != nil {
		return fmt.Errorf("[output].color: %w", err)
	}
	return nil
}
