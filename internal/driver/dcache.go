package driver

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"ouro/internal/manifest"
	"ouro/internal/source"
)

// Current schema version - increment when CachePayload format changes
const schemaCacheVersion uint16 = 1

// SchemaCache хранит результаты валидации по дайджесту манифеста на диске.
// Thread-safe for concurrent access.
type SchemaCache struct {
	mu  sync.RWMutex
	dir string
}

// CachedLifetime is one serialized dependency edge set.
type CachedLifetime struct {
	Name       string
	Def        uint32
	Dependents []uint32
}

// CachedStruct is one serialized validation outcome.
type CachedStruct struct {
	Name         string
	Valid        bool
	DropSequence []uint32
	Lifetimes    []CachedLifetime
}

// CachePayload stores validated schema metadata for fast re-checking.
type CachePayload struct {
	// Schema version for safe invalidation when format changes
	Schema   uint16
	Manifest string
	Structs  []CachedStruct
}

// OpenSchemaCache initializes and returns a schema cache at the standard
// location.
func OpenSchemaCache(app string) (*SchemaCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, app)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &SchemaCache{dir: dir}, nil
}

// OpenSchemaCacheAt places the cache in an explicit directory (tests).
func OpenSchemaCacheAt(dir string) (*SchemaCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &SchemaCache{dir: dir}, nil
}

func (c *SchemaCache) pathFor(key manifest.Digest) string {
	hexKey := hex.EncodeToString(key[:])
	// Подкаталог "schemas" — для удобства читаемости/очистки.
	return filepath.Join(c.dir, "schemas", hexKey+".mp")
}

// Put serializes and writes a payload to the disk cache.
func (c *SchemaCache) Put(key manifest.Digest, payload *CachePayload) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	payload.Schema = schemaCacheVersion

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(payload); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(f.Name(), p)
}

// Get reads and deserializes a payload from the disk cache. Returns false
// when there is no entry or the entry's format version is stale.
func (c *SchemaCache) Get(key manifest.Digest, out *CachePayload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	p := c.pathFor(key)
	// #nosec G304 -- path derives from a content digest
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := msgpack.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("schema cache decode: %w", err)
	}
	if out.Schema != schemaCacheVersion {
		return false, nil
	}
	return true, nil
}

// BuildPayload converts a check run into its cacheable form.
func BuildPayload(m *manifest.Manifest, in *source.Interner, results []CheckResult) *CachePayload {
	payload := &CachePayload{
		Schema:   schemaCacheVersion,
		Manifest: m.Path,
		Structs:  make([]CachedStruct, 0, len(results)),
	}
	for _, r := range results {
		cs := CachedStruct{Name: r.Struct, Valid: r.Schema != nil}
		if r.Schema != nil {
			cs.DropSequence = make([]uint32, len(r.Schema.DropSequence))
			for i, idx := range r.Schema.DropSequence {
				cs.DropSequence[i] = uint32(idx)
			}
			for _, dep := range r.Schema.Deps() {
				cl := CachedLifetime{
					Name: in.MustLookup(dep.Name),
					Def:  uint32(dep.Def),
				}
				for _, d := range dep.Dependents {
					cl.Dependents = append(cl.Dependents, uint32(d))
				}
				cs.Lifetimes = append(cs.Lifetimes, cl)
			}
		}
		payload.Structs = append(payload.Structs, cs)
	}
	return payload
}
