// Package manifest loads capability registrations and struct declarations
// from a TOML file. It is the batch-checker front door; a host compiler
// embedding the engine feeds it declarations directly instead.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"ouro/internal/source"
)

const FileName = "ouro.toml"

// Digest identifies manifest content for cache keying.
type Digest [32]byte

// Capability is one caller-asserted stable-deref registration.
type Capability struct {
	Type  string `toml:"type"`
	Kind  string `toml:"kind"`
	Clone bool   `toml:"clone"` // the type offers a duplicate/clone operation
}

// Field is one ordered field declaration.
type Field struct {
	Name  string   `toml:"name"`
	Type  string   `toml:"type"`
	Binds string   `toml:"binds"` // lifetime name this field introduces
	Uses  []string `toml:"uses"`  // lifetime names the field's type consumes
}

// Struct is one struct declaration with ordered fields.
type Struct struct {
	Name   string  `toml:"name"`
	Fields []Field `toml:"field"`
}

// Config mirrors the TOML layout.
type Config struct {
	Capabilities []Capability `toml:"capability"`
	Structs      []Struct     `toml:"struct"`
}

// Manifest is a loaded declaration file.
type Manifest struct {
	Path   string
	FileID source.FileID
	Config Config
	Digest Digest
}

// Find walks up from startDir looking for an ouro.toml.
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

// Load reads and decodes a manifest from disk, registering its content in
// fs so diagnostics can point into the file.
func Load(path string, fs *source.FileSet) (*Manifest, error) {
	id, err := fs.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return decode(path, id, fs)
}

// Parse decodes manifest content held in memory (tests, stdin).
func Parse(name string, content []byte, fs *source.FileSet) (*Manifest, error) {
	id := fs.AddVirtual(name, content)
	return decode(name, id, fs)
}

func decode(path string, id source.FileID, fs *source.FileSet) (*Manifest, error) {
	f := fs.Get(id)
	var cfg Config
	if _, err := toml.Decode(string(f.Content), &cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	return &Manifest{
		Path:   path,
		FileID: id,
		Config: cfg,
		Digest: Digest(f.Hash),
	}, nil
}

// SpanOf locates the first occurrence of needle inside the manifest file,
// for diagnostics. Declarations are data, not syntax, so a textual anchor
// is as precise as it gets.
func (m *Manifest) SpanOf(fs *source.FileSet, needle string) source.Span {
	f := fs.Get(m.FileID)
	off := bytes.Index(f.Content, []byte(needle))
	if off < 0 {
		return source.Span{File: m.FileID}
	}
	return source.Span{
		File:  m.FileID,
		Start: uint32(off),
		End:   uint32(off + len(needle)),
	}
}
