package metric

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vismatch/types"
)

func randomVector(r *rand.Rand, n int) types.BitVector {
	v := make(types.BitVector, n)
	for i := range v {
		v[i] = r.Intn(2) == 1
	}
	return v
}

func TestHammingBounds(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for _, bits := range []int{1, 8, 64, 256} {
		h := NewHamming(bits)
		for i := 0; i < 100; i++ {
			a := randomVector(r, bits)
			b := randomVector(r, bits)

			d, err := h.Dist(a, b)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, d, 0.0)
			assert.LessOrEqual(t, d, float64(bits))

			self, err := h.Dist(a, a)
			require.NoError(t, err)
			assert.Equal(t, 0.0, self)

			back, err := h.Dist(b, a)
			require.NoError(t, err)
			assert.Equal(t, d, back, "distance must be symmetric")

			n, err := h.NormalizedDist(a, b)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, n, 0.0)
			assert.LessOrEqual(t, n, 1.0)
		}
	}
}

func TestHammingKnownValues(t *testing.T) {
	a, _ := types.ParseBitVector("10110000")
	b, _ := types.ParseBitVector("10011001")

	d, err := NewHamming(8).Dist(a, b)
	require.NoError(t, err)
	assert.Equal(t, 4.0, d)

	inv := make(types.BitVector, 8)
	for i := range a {
		inv[i] = !a[i]
	}
	d, err = NewHamming(8).Dist(a, inv)
	require.NoError(t, err)
	assert.Equal(t, 8.0, d)
}

func TestHammingLengthMismatch(t *testing.T) {
	a := make(types.BitVector, 64)
	b := make(types.BitVector, 63)

	_, err := NewHamming(64).Dist(a, b)
	require.Error(t, err)

	var lm *ErrLengthMismatch
	require.ErrorAs(t, err, &lm)
	assert.Equal(t, 64, lm.Left)
	assert.Equal(t, 63, lm.Right)

	_, err = NewHamming(64).NormalizedDist(a, b)
	assert.ErrorAs(t, err, &lm)
}

func TestRangeClipAndNormalize(t *testing.T) {
	r := Range{Lo: 0, Hi: 64}

	tests := []struct {
		in   float64
		clip float64
		norm float64
	}{
		{in: -5, clip: 0, norm: 0},
		{in: 0, clip: 0, norm: 0},
		{in: 16, clip: 16, norm: 0.25},
		{in: 64, clip: 64, norm: 1},
		{in: 100, clip: 64, norm: 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.clip, r.Clip(tt.in))
		n, err := r.Normalize(tt.in)
		require.NoError(t, err)
		assert.InDelta(t, tt.norm, n, 1e-12)
	}
}

func TestNormalizeMonotonic(t *testing.T) {
	r := Range{Lo: 2, Hi: 10}
	prev := -1.0
	for v := -3.0; v <= 15; v += 0.5 {
		n, err := r.Normalize(v)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, prev)
		prev = n
	}
}

func TestNormalizeDegenerateRange(t *testing.T) {
	_, err := Range{Lo: 3, Hi: 3}.Normalize(3)
	assert.ErrorIs(t, err, ErrDegenerateRange)
}

func TestNew(t *testing.T) {
	m, err := New(KindHamming, 64)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.Min())
	assert.Equal(t, 64.0, m.Max())

	_, err = New(KindHamming, 0)
	assert.Error(t, err)

	_, err = New(Kind(99), 64)
	assert.Error(t, err)
	assert.Equal(t, "Unknown(99)", Kind(99).String())
}
