package imageprocessor

import (
	"errors"
	"image"
	"slices"

	"gocv.io/x/gocv"

	"vismatch/imagehash"
	"vismatch/types"
)

var errEmptyImage = errors.New("cannot compute hash for empty image")

func interpolation(f imagehash.ResizeFilter) gocv.InterpolationFlags {
	switch f {
	case imagehash.FilterNearest:
		return gocv.InterpolationNearestNeighbor
	case imagehash.FilterLinear:
		return gocv.InterpolationLinear
	case imagehash.FilterCubic:
		return gocv.InterpolationCubic
	case imagehash.FilterLanczos:
		return gocv.InterpolationLanczos4
	default:
		return gocv.InterpolationArea
	}
}

// grayscaleResized downsizes img to size and converts it to one channel.
// The caller closes the result
func grayscaleResized(img gocv.Mat, size image.Point, filter imagehash.ResizeFilter) gocv.Mat {
	resized := gocv.NewMat()
	gocv.Resize(img, &resized, size, 0, 0, interpolation(filter))

	if resized.Channels() == 1 {
		return resized
	}
	defer resized.Close()

	gray := gocv.NewMat()
	code := gocv.ColorBGRToGray
	if resized.Channels() == 4 {
		code = gocv.ColorBGRAToGray
	}
	gocv.CvtColor(resized, &gray, code)
	return gray
}

// DifferenceHash compares every pixel of a (width+1)×height grayscale
// thumbnail with its right neighbour. Bit y*width+x is set when the
// brightness increases
func DifferenceHash(img gocv.Mat, width, height int, filter imagehash.ResizeFilter) (types.BitVector, error) {
	if img.Empty() {
		return nil, errEmptyImage
	}

	gray := grayscaleResized(img, image.Point{X: width + 1, Y: height}, filter)
	defer gray.Close()

	bits := make(types.BitVector, 0, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			bits = append(bits, gray.GetUCharAt(y, x) < gray.GetUCharAt(y, x+1))
		}
	}
	return bits, nil
}

// PerceptualHash takes the DCT of a 4width×4height grayscale thumbnail and
// sets a bit for every coefficient of the top-left width×height block that is
// at least the block's median
func PerceptualHash(img gocv.Mat, width, height int, filter imagehash.ResizeFilter) (types.BitVector, error) {
	if img.Empty() {
		return nil, errEmptyImage
	}

	gray := grayscaleResized(img, image.Point{X: 4 * width, Y: 4 * height}, filter)
	defer gray.Close()

	floatImg := gocv.NewMat()
	defer floatImg.Close()
	gray.ConvertTo(&floatImg, gocv.MatTypeCV32F)

	dct := gocv.NewMat()
	defer dct.Close()
	gocv.DCT(floatImg, &dct, 0)
	if dct.Empty() {
		return nil, errors.New("dct produced no output")
	}

	lowFreq := dct.Region(image.Rect(0, 0, width, height))
	defer lowFreq.Close()

	values := make([]float32, 0, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			values = append(values, lowFreq.GetFloatAt(y, x))
		}
	}

	median := calculateMedian(values)
	bits := make(types.BitVector, len(values))
	for i, v := range values {
		bits[i] = v >= median
	}
	return bits, nil
}

// calculateMedian returns the median of values without modifying them
func calculateMedian(values []float32) float32 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case n%2 == 0:
		return (sorted[n/2-1] + sorted[n/2]) / 2
	default:
		return sorted[n/2]
	}
}
