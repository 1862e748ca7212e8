package imageprocessor

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/barasher/go-exiftool"
	"gocv.io/x/gocv"
)

// ImageLoader loads one image file as a grayscale matrix
type ImageLoader interface {
	LoadImage(path string) (gocv.Mat, error)
}

// StandardImageLoader reads formats OpenCV decodes natively
type StandardImageLoader struct{}

// NewStandardImageLoader creates a loader for JPEG, PNG, TIFF and friends
func NewStandardImageLoader() *StandardImageLoader {
	return &StandardImageLoader{}
}

func (l *StandardImageLoader) LoadImage(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), fmt.Errorf("opencv could not read %s", path)
	}
	return img, nil
}

// previewTags lists the embedded previews to try, largest first
var previewTags = []string{
	"LargestImagePreview",
	"PreviewImage",
	"JpgFromRaw",
	"OtherImage",
	"ThumbnailImage",
}

const binaryPrefix = "base64:"

// RawPreviewLoader decodes the embedded JPEG preview of camera RAW files
type RawPreviewLoader struct {
	et *exiftool.Exiftool
}

// NewRawPreviewLoader starts an exiftool process. It fails when the exiftool
// binary is not installed
func NewRawPreviewLoader() (*RawPreviewLoader, error) {
	et, err := exiftool.NewExiftool(
		exiftool.ExtractAllBinaryMetadata(),
		exiftool.Buffer(make([]byte, 128*1024), 64*1024*1024),
	)
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	return &RawPreviewLoader{et: et}, nil
}

func (l *RawPreviewLoader) LoadImage(path string) (gocv.Mat, error) {
	infos := l.et.ExtractMetadata(path)
	if len(infos) == 0 {
		return gocv.NewMat(), fmt.Errorf("no metadata extracted from %s", path)
	}
	info := infos[0]
	if info.Err != nil {
		return gocv.NewMat(), info.Err
	}

	for _, tag := range previewTags {
		raw, err := info.GetString(tag)
		if errors.Is(err, exiftool.ErrKeyNotFound) || !strings.HasPrefix(raw, binaryPrefix) {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(raw, binaryPrefix))
		if err != nil {
			continue
		}
		img, err := gocv.IMDecode(data, gocv.IMReadGrayScale)
		if err != nil {
			continue
		}
		if img.Empty() {
			img.Close()
			continue
		}
		return img, nil
	}
	return gocv.NewMat(), fmt.Errorf("no usable preview in %s", path)
}

// Close stops the exiftool process
func (l *RawPreviewLoader) Close() error {
	return l.et.Close()
}
