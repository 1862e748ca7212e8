package formats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsImageFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"photo.jpg", true},
		{"photo.JPEG", true},
		{"/a/b/scan.tiff", true},
		{"IMG_0001.CR3", true},
		{"notes.txt", false},
		{"photo.jpg.phash.hash", false},
		{"noext", false},
		{"._photo.jpg", false},
		{"/a/cats/.upload-123.png", false},
		{"/a/.cats/photo.png", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsImageFile(tt.path), tt.path)
	}
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, FormatPNG, FormatOf("x.PNG"))
	assert.Equal(t, FormatRAW, FormatOf("x.raf"))
	assert.Equal(t, FormatUnknown, FormatOf("x.doc"))
}

func TestIsRawFormat(t *testing.T) {
	assert.True(t, IsRawFormat("a.nef"))
	assert.True(t, IsRawFormat("a.DNG"))
	assert.False(t, IsRawFormat("a.jpg"))
}

func TestSupportedExtensionsSorted(t *testing.T) {
	exts := SupportedExtensions()
	assert.IsIncreasing(t, exts)
	assert.Contains(t, exts, ".webp")
}
