package hashcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"vismatch/types"
)

func fixedBits(types.HashType) int { return 64 }

func testVector(seed int) types.BitVector {
	v := make(types.BitVector, 64)
	for i := range v {
		v[i] = (i*7+seed)%3 == 0
	}
	return v
}

func TestPathPerHashType(t *testing.T) {
	d := Path("/p/a.jpg", types.HashDifference)
	p := Path("/p/a.jpg", types.HashPerceptual)

	assert.Equal(t, "/p/a.jpg.dhash.hash", d)
	assert.Equal(t, "/p/a.jpg.phash.hash", p)
	assert.NotEqual(t, d, p)
	assert.Equal(t, d, Path("/p/a.jpg", types.HashDifference), "derivation must be deterministic")
}

func TestStoreLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "a.jpg")
	c := New(fixedBits)

	want := testVector(1)
	require.NoError(t, c.Store(img, types.HashEntry{Image: img, Hash: want}, types.HashPerceptual))

	got, err := c.Load(img, types.HashPerceptual)
	require.NoError(t, err)
	assert.Equal(t, img, got.Image)
	assert.Equal(t, want, got.Hash)
	assert.Len(t, got.Hash, 64)

	assert.Equal(t, Stats{Hits: 1, Stores: 1}, c.Stats())
}

func TestHashTypesCoexist(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "a.jpg")
	c := New(fixedBits)

	require.NoError(t, c.Store(img, types.HashEntry{Image: img, Hash: testVector(1)}, types.HashDifference))
	require.NoError(t, c.Store(img, types.HashEntry{Image: img, Hash: testVector(2)}, types.HashPerceptual))

	d, err := c.Load(img, types.HashDifference)
	require.NoError(t, err)
	p, err := c.Load(img, types.HashPerceptual)
	require.NoError(t, err)

	assert.Equal(t, testVector(1), d.Hash)
	assert.Equal(t, testVector(2), p.Hash)
}

func TestLoadMiss(t *testing.T) {
	c := New(fixedBits)
	_, err := c.Load(filepath.Join(t.TempDir(), "missing.jpg"), types.HashPerceptual)
	assert.ErrorIs(t, err, ErrMiss)
	assert.False(t, IsCorrupt(err))
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestLoadCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data func(t *testing.T) []byte
	}{
		{
			name: "empty file",
			data: func(*testing.T) []byte { return nil },
		},
		{
			name: "garbage",
			data: func(*testing.T) []byte { return []byte{0xc1, 0xff, 0x00} },
		},
		{
			name: "wrong bit length",
			data: func(t *testing.T) []byte {
				b, err := msgpack.Marshal(&record{Bits: make([]bool, 16)})
				require.NoError(t, err)
				return b
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := filepath.Join(t.TempDir(), "a.jpg")
			require.NoError(t, os.WriteFile(Path(img, types.HashPerceptual), tt.data(t), 0644))

			c := New(fixedBits)
			_, err := c.Load(img, types.HashPerceptual)
			require.Error(t, err)
			assert.True(t, IsCorrupt(err))
			assert.NotErrorIs(t, err, ErrMiss)
			assert.Equal(t, int64(1), c.Stats().Corrupt)
		})
	}
}

func TestStoreOverwritesCorruptArtifact(t *testing.T) {
	img := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(Path(img, types.HashDifference), nil, 0644))

	c := New(fixedBits)
	require.NoError(t, c.Store(img, types.HashEntry{Image: img, Hash: testVector(3)}, types.HashDifference))

	got, err := c.Load(img, types.HashDifference)
	require.NoError(t, err)
	assert.Equal(t, testVector(3), got.Hash)
}

func TestStoreRejectsWrongLength(t *testing.T) {
	img := filepath.Join(t.TempDir(), "a.jpg")
	c := New(fixedBits)

	err := c.Store(img, types.HashEntry{Image: img, Hash: make(types.BitVector, 10)}, types.HashDifference)
	require.Error(t, err)

	_, statErr := os.Stat(Path(img, types.HashDifference))
	assert.True(t, os.IsNotExist(statErr), "no artifact may be written")
}

func TestStoreFailureLeavesNoArtifact(t *testing.T) {
	img := filepath.Join(t.TempDir(), "missing-dir", "a.jpg")
	c := New(fixedBits)

	err := c.Store(img, types.HashEntry{Image: img, Hash: testVector(0)}, types.HashPerceptual)
	require.Error(t, err)

	_, err = c.Load(img, types.HashPerceptual)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "a.jpg")
	c := New(fixedBits)
	require.NoError(t, c.Store(img, types.HashEntry{Image: img, Hash: testVector(0)}, types.HashPerceptual))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.jpg.phash.hash", entries[0].Name())
}
