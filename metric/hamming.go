package metric

import "vismatch/types"

// Hamming counts differing bit positions between equal-length vectors.
// Its range is [0, Bits]
type Hamming struct {
	Range
	Bits int
}

// NewHamming returns a Hamming metric for vectors of the given length
func NewHamming(bits int) *Hamming {
	return &Hamming{
		Range: Range{Lo: 0, Hi: float64(bits)},
		Bits:  bits,
	}
}

// Dist returns the number of positions where a and b differ
func (h *Hamming) Dist(a, b types.BitVector) (float64, error) {
	n, err := HammingCount(a, b)
	return float64(n), err
}

// NormalizedDist returns Dist scaled into [0, 1]
func (h *Hamming) NormalizedDist(a, b types.BitVector) (float64, error) {
	d, err := h.Dist(a, b)
	if err != nil {
		return 0, err
	}
	return h.Normalize(d)
}

// HammingCount is the raw Hamming distance
func HammingCount(a, b types.BitVector) (int, error) {
	if len(a) != len(b) {
		return 0, &ErrLengthMismatch{Left: len(a), Right: len(b)}
	}
	n := 0
	for i := range a {
		if a[i] != b[i] {
			n++
		}
	}
	return n, nil
}
