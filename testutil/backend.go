// Package testutil provides an in-memory hashing backend for tests that must
// not depend on OpenCV.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"

	"vismatch/imagehash"
	"vismatch/types"
)

// Image is a decoded fake image: its payload is the hash itself
type Image struct {
	Bits types.BitVector
}

// Backend decodes files whose content is a string of 0/1 characters. The
// perceptual hash is the bit string itself, the difference hash its reverse
type Backend struct {
	N int

	// OnHash runs before every Hash call when set
	OnHash func()

	Decodes atomic.Int64
	Hashes  atomic.Int64
	Closes  atomic.Int64
}

var _ imagehash.Backend[Image] = (*Backend)(nil)

// NewBackend returns a backend producing n-bit hashes
func NewBackend(n int) *Backend {
	return &Backend{N: n}
}

func (b *Backend) DecodeFile(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, &imagehash.DecodeError{Source: path, Err: err}
	}
	img, err := b.Decode(data)
	if err != nil {
		return Image{}, &imagehash.DecodeError{Source: path, Err: err}
	}
	return img, nil
}

func (b *Backend) Decode(data []byte) (Image, error) {
	b.Decodes.Add(1)
	v, err := types.ParseBitVector(string(bytes.TrimSpace(data)))
	if err != nil {
		return Image{}, &imagehash.DecodeError{Source: "payload", Err: err}
	}
	if len(v) != b.N {
		return Image{}, &imagehash.DecodeError{Source: "payload", Err: fmt.Errorf("got %d bits, want %d", len(v), b.N)}
	}
	return Image{Bits: v}, nil
}

func (b *Backend) Hash(img Image, t types.HashType) (types.BitVector, error) {
	if b.OnHash != nil {
		b.OnHash()
	}
	b.Hashes.Add(1)
	out := img.Bits.Clone()
	if t == types.HashDifference {
		slices.Reverse(out)
	}
	return out, nil
}

func (b *Backend) Close(Image) { b.Closes.Add(1) }

func (b *Backend) Bits(types.HashType) int { return b.N }

// Bits builds an n-bit vector whose first d bits are set
func Bits(n, d int) types.BitVector {
	v := make(types.BitVector, n)
	for i := 0; i < d && i < n; i++ {
		v[i] = true
	}
	return v
}

// WriteImage writes a fake image file containing v
func WriteImage(t testing.TB, dir, name string, v types.BitVector) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(v.String()), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteProject creates root/name and fills it with the given images
func WriteProject(t testing.TB, root, name string, images map[string]types.BitVector) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	for img, v := range images {
		WriteImage(t, dir, img, v)
	}
	return dir
}

// Names returns the base names of the entries' images
func Names[E interface{ types.HashEntry | types.DistEntry }](entries []E) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		switch v := any(e).(type) {
		case types.HashEntry:
			out = append(out, filepath.Base(v.Image))
		case types.DistEntry:
			out = append(out, filepath.Base(v.Image))
		}
	}
	return out
}
