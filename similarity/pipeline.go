// Package similarity ranks the images of a project by their hash distance to a
// query image.
//
// The request goroutine only resolves the project and waits; decoding the
// query happens before dispatch and every hash or distance computation runs
// on the worker pool.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"vismatch/imagehash"
	"vismatch/logging"
	"vismatch/metric"
	"vismatch/registry"
	"vismatch/types"
	"vismatch/workerpool"
)

// Pipeline compares query images of type I against registered projects
type Pipeline[I any] struct {
	registry *registry.Registry
	backend  imagehash.Backend[I]
	pool     *workerpool.Pool
	kind     metric.Kind
	logger   *slog.Logger
}

// Option configures a Pipeline
type Option[I any] func(*Pipeline[I])

// WithMetric selects the distance metric
func WithMetric[I any](k metric.Kind) Option[I] {
	return func(p *Pipeline[I]) { p.kind = k }
}

// WithLogger sets the logger
func WithLogger[I any](l *slog.Logger) Option[I] {
	return func(p *Pipeline[I]) { p.logger = l }
}

// New creates a pipeline. The pool is shared and not closed by the pipeline
func New[I any](reg *registry.Registry, backend imagehash.Backend[I], pool *workerpool.Pool, opts ...Option[I]) *Pipeline[I] {
	p := &Pipeline[I]{
		registry: reg,
		backend:  backend,
		pool:     pool,
		kind:     metric.KindHamming,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.OrDiscard(p.logger)
	return p
}

// CompareInProject ranks every image of project by distance to query. The
// caller keeps ownership of query and must not release it before this returns;
// if ctx ends first, the late result is dropped and query is no longer used
func (p *Pipeline[I]) CompareInProject(ctx context.Context, query I, project string) ([]types.DistEntry, error) {
	return p.compare(ctx, query, project, func() {})
}

// CompareBytes decodes payload and ranks project against it. Decode failures
// are returned before any work is dispatched
func (p *Pipeline[I]) CompareBytes(ctx context.Context, payload []byte, project string) ([]types.DistEntry, error) {
	img, err := p.backend.Decode(payload)
	if err != nil {
		return nil, err
	}
	return p.compare(ctx, img, project, func() { p.backend.Close(img) })
}

// CompareFile decodes the image at path and ranks project against it
func (p *Pipeline[I]) CompareFile(ctx context.Context, path string, project string) ([]types.DistEntry, error) {
	img, err := p.backend.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return p.compare(ctx, img, project, func() { p.backend.Close(img) })
}

// compare calls release exactly once, after the query image is no longer used
func (p *Pipeline[I]) compare(ctx context.Context, query I, project string, release func()) ([]types.DistEntry, error) {
	start := time.Now()

	proj, err := p.registry.Get(project)
	if err != nil {
		release()
		return nil, err
	}
	entries := proj.Entries
	hashType := p.registry.HashType()

	m, err := metric.New(p.kind, p.backend.Bits(hashType))
	if err != nil {
		release()
		return nil, err
	}

	// Whoever claims the query first owns its release: the task when it
	// starts, or this goroutine when the task was skipped or abandoned
	var claimed atomic.Bool
	ranked, err := workerpool.Do(ctx, p.pool, func() ([]types.DistEntry, error) {
		if !claimed.CompareAndSwap(false, true) {
			return nil, context.Canceled
		}
		defer release()

		qhash, err := p.backend.Hash(query, hashType)
		if err != nil {
			return nil, fmt.Errorf("hash query: %w", err)
		}
		return Rank(m, qhash, entries)
	})
	if claimed.CompareAndSwap(false, true) {
		release()
	}

	if err != nil {
		switch {
		case errors.Is(err, workerpool.ErrTaskPanic), errors.Is(err, workerpool.ErrClosed):
			err = &WorkerError{Project: project, Err: err}
			p.logger.Error("comparison failed", "project", project, "error", err)
		case ctx.Err() != nil:
			p.logger.Warn("comparison abandoned", "project", project, "error", err)
		}
		return nil, err
	}

	p.logger.Debug("calculation task done",
		"project", project,
		"entries", len(ranked),
		"duration", time.Since(start),
	)
	return ranked, nil
}

// Metric returns the bounded metric used for the registry's hash type
func (p *Pipeline[I]) Metric() (metric.BoundedMetric, error) {
	return metric.New(p.kind, p.backend.Bits(p.registry.HashType()))
}
