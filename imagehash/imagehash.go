// Package imagehash declares the contract between the index/compare engine and
// the image backend that decodes images and computes perceptual hashes.
package imagehash

import (
	"errors"
	"fmt"

	"vismatch/types"
)

// ErrDecode marks failures to parse an image payload or file
var ErrDecode = errors.New("image decode failed")

// DecodeError wraps a decode failure for one source
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// Backend decodes images of type I and hashes them.
//
// Implementations must be safe for concurrent use; Hash is CPU bound and is
// only ever called from worker goroutines
type Backend[I any] interface {
	// DecodeFile loads an image from disk
	DecodeFile(path string) (I, error)
	// Decode parses an encoded image payload
	Decode(data []byte) (I, error)
	// Hash computes the bit vector of img for the given hash type
	Hash(img I, t types.HashType) (types.BitVector, error)
	// Close releases resources held by img
	Close(img I)
	// Bits returns the vector length produced for t
	Bits(t types.HashType) int
}

// VerifyFile decodes path with b and releases the image again. It fails with
// a *DecodeError when the file is not an image b can read
func VerifyFile[I any](b Backend[I], path string) error {
	img, err := b.DecodeFile(path)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			return err
		}
		return &DecodeError{Source: path, Err: err}
	}
	b.Close(img)
	return nil
}
