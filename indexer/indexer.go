// Package indexer builds the hash list of one project directory, reusing cached
// hashes and computing the missing ones.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"vismatch/formats"
	"vismatch/hashcache"
	"vismatch/imagehash"
	"vismatch/logging"
	"vismatch/types"
)

// Stats summarizes one BuildIndex run
type Stats struct {
	Members  int // candidate image files found
	Cached   int // hashes served from cache
	Computed int // hashes computed on miss or corruption
	Skipped  int // members that failed to decode or hash
	Duration time.Duration
}

// Indexer computes project hash lists with a hashing backend for images of type I
type Indexer[I any] struct {
	backend  imagehash.Backend[I]
	cache    *hashcache.Cache
	logger   *slog.Logger
	classify func(path string) bool
}

// Option configures an Indexer
type Option[I any] func(*Indexer[I])

// WithClassifier replaces the image file classifier
func WithClassifier[I any](fn func(path string) bool) Option[I] {
	return func(ix *Indexer[I]) { ix.classify = fn }
}

// WithLogger sets the logger
func WithLogger[I any](l *slog.Logger) Option[I] {
	return func(ix *Indexer[I]) { ix.logger = l }
}

// New creates an indexer
func New[I any](backend imagehash.Backend[I], cache *hashcache.Cache, opts ...Option[I]) *Indexer[I] {
	ix := &Indexer[I]{
		backend:  backend,
		cache:    cache,
		classify: formats.IsImageFile,
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.logger = logging.OrDiscard(ix.logger)
	return ix
}

// BuildIndex returns the hash list of projectPath in directory order
func (ix *Indexer[I]) BuildIndex(ctx context.Context, projectPath string, t types.HashType) (types.ProjectHashList, error) {
	list, _, err := ix.BuildIndexStats(ctx, projectPath, t)
	return list, err
}

// BuildIndexStats is BuildIndex plus a summary of cache usage
func (ix *Indexer[I]) BuildIndexStats(ctx context.Context, projectPath string, t types.HashType) (types.ProjectHashList, Stats, error) {
	start := time.Now()
	var stats Stats

	info, err := os.Stat(projectPath)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to access project path %s: %w", projectPath, err)
	}
	if !info.IsDir() {
		return nil, stats, fmt.Errorf("project path %s is not a directory", projectPath)
	}

	dirEntries, err := os.ReadDir(projectPath)
	if err != nil {
		return nil, stats, fmt.Errorf("error reading project folder %s: %w", projectPath, err)
	}

	list := make(types.ProjectHashList, 0, len(dirEntries))
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		if de.IsDir() {
			continue
		}
		path := filepath.Join(projectPath, de.Name())
		if !ix.classify(path) {
			continue
		}
		stats.Members++

		entry, source, err := ix.hashMember(path, t)
		logging.LogImageProcessed(ix.logger, path, source, err)
		if err != nil {
			stats.Skipped++
			continue
		}
		if source == "cache" {
			stats.Cached++
		} else {
			stats.Computed++
		}
		list = append(list, entry)
	}

	stats.Duration = time.Since(start)
	ix.logger.Info("project indexed",
		"path", projectPath,
		"hash_type", t.String(),
		"entries", len(list),
		"cached", stats.Cached,
		"computed", stats.Computed,
		"skipped", stats.Skipped,
		"duration", stats.Duration,
	)
	return list, stats, nil
}

// HashFile returns the hash of a single image, from cache when possible
func (ix *Indexer[I]) HashFile(path string, t types.HashType) (types.HashEntry, error) {
	entry, _, err := ix.hashMember(path, t)
	return entry, err
}

func (ix *Indexer[I]) hashMember(path string, t types.HashType) (types.HashEntry, string, error) {
	entry, err := ix.cache.Load(path, t)
	switch {
	case err == nil:
		return entry, "cache", nil
	case errors.Is(err, hashcache.ErrMiss):
	case hashcache.IsCorrupt(err):
		ix.logger.Warn("corrupt hash cache, recomputing", "path", path, "error", err)
	default:
		ix.logger.Warn("hash cache unreadable, recomputing", "path", path, "error", err)
	}

	img, err := ix.backend.DecodeFile(path)
	if err != nil {
		return types.HashEntry{}, "", err
	}
	defer ix.backend.Close(img)

	hash, err := ix.backend.Hash(img, t)
	if err != nil {
		return types.HashEntry{}, "", fmt.Errorf("hash %s: %w", path, err)
	}

	entry = types.HashEntry{Image: path, Hash: hash}
	if err := ix.cache.Store(path, entry, t); err != nil {
		ix.logger.Warn("failed to store hash cache", "path", path, "error", err)
	}
	return entry, "computed", nil
}
