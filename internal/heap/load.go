package heap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrSchemaMismatch is returned when a packed snapshot was written by an
// incompatible version.
var ErrSchemaMismatch = errors.New("snapshot schema mismatch")

// Load reads a heap from path. Files ending in .toml are parsed as text;
// anything else is treated as a packed snapshot.
func Load(path string) (*Heap, error) {
	var (
		snap *Snapshot
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		snap, err = loadTOML(path)
	default:
		snap, err = loadPacked(path)
	}
	if err != nil {
		return nil, err
	}
	h, err := Build(snap)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

func loadTOML(path string) (*Snapshot, error) {
	var snap Snapshot
	meta, err := toml.DecodeFile(path, &snap)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	snap.Schema = snapshotSchema
	return &snap, nil
}

// DecodeTOML parses a snapshot from TOML text.
func DecodeTOML(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	meta, err := toml.NewDecoder(r).Decode(&snap)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	snap.Schema = snapshotSchema
	return &snap, nil
}

func loadPacked(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	snap, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

// Decode reads a packed snapshot.
func Decode(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
		return nil, err
	}
	if snap.Schema != snapshotSchema {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrSchemaMismatch, snap.Schema, snapshotSchema)
	}
	return &snap, nil
}

// Encode writes snap in packed form.
func Encode(w io.Writer, snap *Snapshot) error {
	out := *snap
	out.Schema = snapshotSchema
	return msgpack.NewEncoder(w).Encode(&out)
}

// Save packs snap into path, replacing it atomically.
func Save(path string, snap *Snapshot) (err error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	if err = Encode(f, snap); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
