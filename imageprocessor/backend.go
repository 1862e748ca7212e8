package imageprocessor

import (
	"errors"
	"fmt"
	"log/slog"

	"gocv.io/x/gocv"

	"vismatch/imagehash"
	"vismatch/logging"
	"vismatch/types"
)

// Options configures the hash geometry
type Options struct {
	Width  int
	Height int
	Filter imagehash.ResizeFilter
	Logger *slog.Logger
}

// Backend hashes images with OpenCV
type Backend struct {
	loaders *ImageLoaderRegistry
	width   int
	height  int
	filter  imagehash.ResizeFilter
}

var _ imagehash.Backend[gocv.Mat] = (*Backend)(nil)

// NewBackend creates the OpenCV backend. Close releases its loaders
func NewBackend(opts Options) (*Backend, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("hash size must be positive, got %dx%d", opts.Width, opts.Height)
	}
	return &Backend{
		loaders: NewImageLoaderRegistry(logging.OrDiscard(opts.Logger)),
		width:   opts.Width,
		height:  opts.Height,
		filter:  opts.Filter,
	}, nil
}

// DecodeFile loads path as grayscale with the loader registered for its extension
func (b *Backend) DecodeFile(path string) (gocv.Mat, error) {
	img, err := b.loaders.LoadImage(path)
	if err != nil {
		return gocv.NewMat(), &imagehash.DecodeError{Source: path, Err: err}
	}
	return img, nil
}

// Decode parses an encoded image payload as grayscale
func (b *Backend) Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), &imagehash.DecodeError{Source: "payload", Err: errors.New("empty payload")}
	}
	img, err := gocv.IMDecode(data, gocv.IMReadGrayScale)
	if err != nil {
		return gocv.NewMat(), &imagehash.DecodeError{Source: "payload", Err: err}
	}
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), &imagehash.DecodeError{Source: "payload", Err: errors.New("unrecognized image data")}
	}
	return img, nil
}

// Hash computes the difference or perceptual hash of img
func (b *Backend) Hash(img gocv.Mat, t types.HashType) (types.BitVector, error) {
	switch t {
	case types.HashDifference:
		return DifferenceHash(img, b.width, b.height, b.filter)
	case types.HashPerceptual:
		return PerceptualHash(img, b.width, b.height, b.filter)
	default:
		return nil, fmt.Errorf("unsupported hash type %s", t)
	}
}

// Close releases img
func (b *Backend) Close(img gocv.Mat) {
	img.Close()
}

// Bits is width×height for both hash types
func (b *Backend) Bits(types.HashType) int {
	return b.width * b.height
}

// Shutdown stops helper processes started by the loaders
func (b *Backend) Shutdown() error {
	return b.loaders.Close()
}
