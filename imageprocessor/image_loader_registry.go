package imageprocessor

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"vismatch/formats"
	"vismatch/logging"
)

// ImageLoaderRegistry maps file extensions to loaders
type ImageLoaderRegistry struct {
	loaders       map[string]ImageLoader
	defaultLoader ImageLoader
	closers       []io.Closer
	mutex         sync.RWMutex
}

// NewImageLoaderRegistry registers the standard loader for every supported
// extension and, when exiftool is available, the RAW preview loader for RAW
// extensions
func NewImageLoaderRegistry(logger *slog.Logger) *ImageLoaderRegistry {
	logger = logging.OrDiscard(logger)
	r := &ImageLoaderRegistry{
		loaders: make(map[string]ImageLoader),
	}

	standard := NewStandardImageLoader()
	r.defaultLoader = standard

	var raw ImageLoader = standard
	if rl, err := NewRawPreviewLoader(); err != nil {
		logger.Warn("RAW previews unavailable, falling back to OpenCV", "error", err)
	} else {
		raw = rl
		r.closers = append(r.closers, rl)
		logger.Debug("registered exiftool RAW preview loader")
	}

	for _, ext := range formats.SupportedExtensions() {
		if formats.IsRawFormat(ext) {
			r.RegisterLoader(ext, raw)
		} else {
			r.RegisterLoader(ext, standard)
		}
	}
	return r
}

// RegisterLoader registers a loader for a file extension
func (r *ImageLoaderRegistry) RegisterLoader(ext string, loader ImageLoader) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.loaders[strings.ToLower(ext)] = loader
}

// GetLoader returns the loader for path, or the default loader
func (r *ImageLoaderRegistry) GetLoader(path string) ImageLoader {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if loader, ok := r.loaders[strings.ToLower(filepath.Ext(path))]; ok {
		return loader
	}
	return r.defaultLoader
}

// LoadImage loads path with its registered loader
func (r *ImageLoaderRegistry) LoadImage(path string) (gocv.Mat, error) {
	loader := r.GetLoader(path)
	if loader == nil {
		return gocv.NewMat(), fmt.Errorf("no suitable loader found for: %s", path)
	}
	return loader.LoadImage(path)
}

// Close releases loaders holding external processes
func (r *ImageLoaderRegistry) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var firstErr error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.closers = nil
	return firstErr
}
