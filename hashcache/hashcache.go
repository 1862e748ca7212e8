// Package hashcache persists one hash bit vector per (image, hash type) next to
// the image it was computed from.
//
// Artifacts are never invalidated: editing an image in place leaves its cached
// hash stale until the artifact is deleted.
package hashcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"

	"vismatch/types"
)

// Extension is the trailing extension of every cache artifact
const Extension = ".hash"

// ErrMiss is returned by Load when no artifact exists
var ErrMiss = errors.New("hashcache: miss")

// CorruptError reports an artifact that exists but cannot be used
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("hashcache: corrupt artifact %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// IsCorrupt reports whether err is a *CorruptError
func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}

// record is the on-disk shape of a hash, kept apart from types.BitVector so the
// persisted format does not follow changes to the in-memory type
type record struct {
	Bits []bool `msgpack:"bits"`
}

// Stats counts cache outcomes since creation
type Stats struct {
	Hits    int64
	Misses  int64
	Corrupt int64
	Stores  int64
}

// Cache reads and writes hash artifacts. It keeps no entries in memory
type Cache struct {
	// bits returns the expected vector length for a hash type
	bits func(types.HashType) int

	hits    atomic.Int64
	misses  atomic.Int64
	corrupt atomic.Int64
	stores  atomic.Int64
}

// New creates a cache. bits reports the expected vector length per hash type;
// artifacts of any other length are treated as corrupt
func New(bits func(types.HashType) int) *Cache {
	return &Cache{bits: bits}
}

// Path derives the artifact path for an image and hash type
func Path(imagePath string, t types.HashType) string {
	return imagePath + "." + t.Suffix() + Extension
}

// Load reads the cached hash for imagePath
func (c *Cache) Load(imagePath string, t types.HashType) (types.HashEntry, error) {
	path := Path(imagePath, t)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.misses.Add(1)
			return types.HashEntry{}, ErrMiss
		}
		return types.HashEntry{}, fmt.Errorf("hashcache: read %s: %w", path, err)
	}

	var rec record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		c.corrupt.Add(1)
		return types.HashEntry{}, &CorruptError{Path: path, Err: err}
	}
	if want := c.bits(t); len(rec.Bits) != want {
		c.corrupt.Add(1)
		return types.HashEntry{}, &CorruptError{
			Path: path,
			Err:  fmt.Errorf("got %d bits, want %d", len(rec.Bits), want),
		}
	}

	c.hits.Add(1)
	return types.HashEntry{Image: imagePath, Hash: types.BitVector(rec.Bits)}, nil
}

// Store writes entry's hash for imagePath, replacing any previous artifact.
// The artifact is written to a temporary file and renamed into place
func (c *Cache) Store(imagePath string, entry types.HashEntry, t types.HashType) error {
	if want := c.bits(t); len(entry.Hash) != want {
		return fmt.Errorf("hashcache: refusing to store %d bits for %s, want %d", len(entry.Hash), t, want)
	}

	data, err := msgpack.Marshal(&record{Bits: entry.Hash})
	if err != nil {
		return fmt.Errorf("hashcache: encode: %w", err)
	}

	path := Path(imagePath, t)
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("hashcache: write %s: %w", path, err)
	}
	c.stores.Add(1)
	return nil
}

// Stats returns a snapshot of the counters
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Corrupt: c.corrupt.Load(),
		Stores:  c.stores.Load(),
	}
}

func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
