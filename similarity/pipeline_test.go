package similarity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vismatch/hashcache"
	"vismatch/imagehash"
	"vismatch/indexer"
	"vismatch/registry"
	"vismatch/testutil"
	"vismatch/types"
	"vismatch/workerpool"
)

const bits = 16

type fixture struct {
	root     string
	backend  *testutil.Backend
	registry *registry.Registry
	pool     *workerpool.Pool
	pipeline *Pipeline[testutil.Image]
}

func newFixture(t *testing.T, workers int) *fixture {
	t.Helper()
	f := &fixture{root: t.TempDir(), backend: testutil.NewBackend(bits)}
	ix := indexer.New[testutil.Image](f.backend, hashcache.New(f.backend.Bits))
	f.registry = registry.New(f.root, types.HashPerceptual, ix)
	f.pool = workerpool.New(workers)
	t.Cleanup(f.pool.Close)
	f.pipeline = New[testutil.Image](f.registry, f.backend, f.pool)
	return f
}

func (f *fixture) load(t *testing.T) {
	t.Helper()
	_, err := f.registry.Load(context.Background())
	require.NoError(t, err)
}

func TestCompareInProjectRanksProject(t *testing.T) {
	f := newFixture(t, 2)
	testutil.WriteProject(t, f.root, "cats", map[string]types.BitVector{
		"a.png": testutil.Bits(bits, 5),
		"b.png": testutil.Bits(bits, 2),
		"c.png": testutil.Bits(bits, 7),
		"d.png": testutil.Bits(bits, 9),
	})
	f.load(t)

	ranked, err := f.pipeline.CompareInProject(context.Background(), testutil.Image{Bits: testutil.Bits(bits, 0)}, "cats")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.png", "a.png", "c.png", "d.png"}, testutil.Names(ranked))
	assert.Equal(t, []float64{2, 5, 7, 9}, distances(ranked))
}

func TestCompareInProjectKeepsTieOrder(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.registry.Put("p", types.ProjectHashList{
		{Image: "A", Hash: testutil.Bits(bits, 5)},
		{Image: "B", Hash: testutil.Bits(bits, 2)},
		{Image: "C", Hash: testutil.Bits(bits, 2)},
		{Image: "D", Hash: testutil.Bits(bits, 9)},
	})
	require.NoError(t, err)

	ranked, err := f.pipeline.CompareInProject(context.Background(), testutil.Image{Bits: testutil.Bits(bits, 0)}, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "A", "D"}, testutil.Names(ranked))
}

func TestCompareUnknownProject(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.pipeline.CompareInProject(context.Background(), testutil.Image{Bits: testutil.Bits(bits, 0)}, "nope")
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Zero(t, f.backend.Hashes.Load())
}

func TestCompareBytesDecodeErrorNotDispatched(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.registry.Put("p", types.ProjectHashList{{Image: "a", Hash: testutil.Bits(bits, 1)}})
	require.NoError(t, err)

	_, err = f.pipeline.CompareBytes(context.Background(), []byte("not a picture"), "p")
	assert.ErrorIs(t, err, imagehash.ErrDecode)
	assert.Zero(t, f.backend.Hashes.Load())
}

func TestCompareBytesReleasesQuery(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.registry.Put("p", types.ProjectHashList{{Image: "a", Hash: testutil.Bits(bits, 1)}})
	require.NoError(t, err)

	ranked, err := f.pipeline.CompareBytes(context.Background(), []byte(testutil.Bits(bits, 3).String()), "p")
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, float64(2), ranked[0].Distance)
	assert.Equal(t, int64(1), f.backend.Closes.Load())

	_, err = f.pipeline.CompareBytes(context.Background(), []byte(testutil.Bits(bits, 3).String()), "missing")
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Equal(t, int64(2), f.backend.Closes.Load())
}

func TestCompareFile(t *testing.T) {
	f := newFixture(t, 1)
	testutil.WriteProject(t, f.root, "p", map[string]types.BitVector{
		"x.png": testutil.Bits(bits, 4),
	})
	f.load(t)
	query := testutil.WriteImage(t, t.TempDir(), "q.png", testutil.Bits(bits, 1))

	ranked, err := f.pipeline.CompareFile(context.Background(), query, "p")
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, float64(3), ranked[0].Distance)
}

func TestCompareConcurrentRequests(t *testing.T) {
	f := newFixture(t, 4)
	images := make(map[string]types.BitVector)
	for i := range bits {
		images[fmt.Sprintf("img%02d.png", i)] = testutil.Bits(bits, i)
	}
	testutil.WriteProject(t, f.root, "big", images)
	f.load(t)

	const requests = 32
	var wg sync.WaitGroup
	errs := make([]error, requests)
	results := make([][]types.DistEntry, requests)
	for i := range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q := testutil.Image{Bits: testutil.Bits(bits, i%bits)}
			results[i], errs[i] = f.pipeline.CompareInProject(context.Background(), q, "big")
		}()
	}
	wg.Wait()

	for i := range requests {
		require.NoError(t, errs[i])
		assert.Len(t, results[i], bits)
		assert.True(t, slices.IsSortedFunc(results[i], types.CompareDist))
		assert.Zero(t, results[i][0].Distance)
	}
}

func TestCompareWorkerPanic(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.registry.Put("p", types.ProjectHashList{{Image: "a", Hash: testutil.Bits(bits, 1)}})
	require.NoError(t, err)
	f.backend.OnHash = func() { panic("boom") }

	_, err = f.pipeline.CompareInProject(context.Background(), testutil.Image{Bits: testutil.Bits(bits, 0)}, "p")

	var werr *WorkerError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "p", werr.Project)
	assert.ErrorIs(t, err, ErrWorkerFailure)
	assert.ErrorIs(t, err, workerpool.ErrTaskPanic)

	f.backend.OnHash = nil
	ranked, err := f.pipeline.CompareInProject(context.Background(), testutil.Image{Bits: testutil.Bits(bits, 0)}, "p")
	require.NoError(t, err)
	assert.Len(t, ranked, 1)
}

func TestCompareDeadline(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.registry.Put("p", types.ProjectHashList{{Image: "a", Hash: testutil.Bits(bits, 1)}})
	require.NoError(t, err)

	release := make(chan struct{})
	f.backend.OnHash = func() { <-release }
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = f.pipeline.CompareBytes(ctx, []byte(testutil.Bits(bits, 0).String()), "p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrWorkerFailure))
}

func TestCompareZeroByteCacheArtifact(t *testing.T) {
	f := newFixture(t, 1)
	dir := testutil.WriteProject(t, f.root, "p", map[string]types.BitVector{
		"a.png": testutil.Bits(bits, 3),
	})
	artifact := hashcache.Path(filepath.Join(dir, "a.png"), types.HashPerceptual)
	require.NoError(t, os.WriteFile(artifact, nil, 0644))
	f.load(t)

	ranked, err := f.pipeline.CompareInProject(context.Background(), testutil.Image{Bits: testutil.Bits(bits, 0)}, "p")
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, float64(3), ranked[0].Distance)

	info, err := os.Stat(artifact)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestCompareLengthMismatch(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.registry.Put("p", types.ProjectHashList{{Image: "a", Hash: testutil.Bits(bits/2, 1)}})
	require.NoError(t, err)

	_, err = f.pipeline.CompareInProject(context.Background(), testutil.Image{Bits: testutil.Bits(bits, 0)}, "p")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrWorkerFailure))
}
