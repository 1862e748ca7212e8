package types

import (
	"cmp"
	"fmt"
	"strings"
)

// HashType selects the perceptual hash algorithm and the cache artifact it is stored in
type HashType int

const (
	// HashDifference compares neighbouring pixels of a downscaled grayscale image (dHash)
	HashDifference HashType = iota
	// HashPerceptual thresholds the low frequencies of a DCT against their median (pHash)
	HashPerceptual
)

// String returns the canonical name of the hash type
func (t HashType) String() string {
	switch t {
	case HashDifference:
		return "difference"
	case HashPerceptual:
		return "perceptual"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Suffix returns the short tag used in cache artifact names
func (t HashType) Suffix() string {
	switch t {
	case HashDifference:
		return "dhash"
	case HashPerceptual:
		return "phash"
	default:
		return fmt.Sprintf("hash%d", int(t))
	}
}

// Valid reports whether t is a known hash type
func (t HashType) Valid() bool {
	return t == HashDifference || t == HashPerceptual
}

// HashTypes lists every known hash type
func HashTypes() []HashType {
	return []HashType{HashDifference, HashPerceptual}
}

// ParseHashType accepts both the long and the short names
func ParseHashType(s string) (HashType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "difference", "dhash", "diff":
		return HashDifference, nil
	case "perceptual", "phash":
		return HashPerceptual, nil
	default:
		return 0, fmt.Errorf("unknown hash type %q", s)
	}
}

// BitVector is a fixed-length hash fingerprint
type BitVector []bool

// Clone returns an independent copy of v
func (v BitVector) Clone() BitVector {
	if v == nil {
		return nil
	}
	out := make(BitVector, len(v))
	copy(out, v)
	return out
}

// String renders the vector as a string of 0 and 1 characters
func (v BitVector) String() string {
	var b strings.Builder
	b.Grow(len(v))
	for _, bit := range v {
		if bit {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// ParseBitVector is the inverse of BitVector.String
func ParseBitVector(s string) (BitVector, error) {
	v := make(BitVector, len(s))
	for i, c := range s {
		switch c {
		case '0':
		case '1':
			v[i] = true
		default:
			return nil, fmt.Errorf("invalid bit %q at %d", c, i)
		}
	}
	return v, nil
}

// HashEntry is the hash of one project image
type HashEntry struct {
	Image string
	Hash  BitVector
}

// ProjectHashList holds a project's entries in directory enumeration order
type ProjectHashList []HashEntry

// DistEntry is the distance between a query and one project image
type DistEntry struct {
	Image    string
	Distance float64
	// Score is Distance normalized into [0, 1] by the metric's bounds
	Score float64
}

// CompareDist orders entries by distance only. NaN sorts before every number
// instead of breaking the ordering
func CompareDist(a, b DistEntry) int {
	return cmp.Compare(a.Distance, b.Distance)
}
