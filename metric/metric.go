// Package metric defines bounded distance functions over hash bit vectors.
//
// Callers depend on the three capabilities only:
//
//	Distance      Dist(a, b)
//	BoundedRange  Min, Max, Clip, Normalize
//	BoundedMetric both of the above plus NormalizedDist
//
// so a new hash/metric pair is added by implementing BoundedMetric and
// registering a Kind, without touching the similarity pipeline.
package metric

import (
	"errors"
	"fmt"

	"vismatch/types"
)

// ErrDegenerateRange is returned by Normalize when Max equals Min
var ErrDegenerateRange = errors.New("metric: degenerate range, max equals min")

// ErrLengthMismatch indicates two hash vectors of different length were compared
type ErrLengthMismatch struct {
	Left  int
	Right int
}

func (e *ErrLengthMismatch) Error() string {
	return fmt.Sprintf("metric: length mismatch: %d vs %d bits", e.Left, e.Right)
}

// Distance measures the distance between two hash values
type Distance interface {
	Dist(a, b types.BitVector) (float64, error)
}

// BoundedRange declares the achievable distance range
type BoundedRange interface {
	Min() float64
	Max() float64
	Clip(v float64) float64
	Normalize(v float64) (float64, error)
}

// BoundedMetric combines Distance and BoundedRange
type BoundedMetric interface {
	Distance
	BoundedRange
	NormalizedDist(a, b types.BitVector) (float64, error)
}

// Range is a closed interval [Lo, Hi] implementing BoundedRange
type Range struct {
	Lo float64
	Hi float64
}

func (r Range) Min() float64 { return r.Lo }

func (r Range) Max() float64 { return r.Hi }

// Clip bounds v into [Lo, Hi]
func (r Range) Clip(v float64) float64 {
	return max(min(v, r.Hi), r.Lo)
}

// Normalize maps v into [0, 1]
func (r Range) Normalize(v float64) (float64, error) {
	if r.Hi == r.Lo {
		return 0, ErrDegenerateRange
	}
	return (r.Clip(v) - r.Lo) / (r.Hi - r.Lo), nil
}

// Kind enumerates the built-in metrics
type Kind int

const (
	KindHamming Kind = iota
)

func (k Kind) String() string {
	switch k {
	case KindHamming:
		return "Hamming"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// New returns the metric of the given kind for hashes of the given bit length
func New(k Kind, bits int) (BoundedMetric, error) {
	if bits <= 0 {
		return nil, fmt.Errorf("metric: invalid bit length %d", bits)
	}
	switch k {
	case KindHamming:
		return NewHamming(bits), nil
	default:
		return nil, fmt.Errorf("metric: unsupported kind %v", k)
	}
}
