package main

import (
	"fmt"
	"log/slog"

	"gocv.io/x/gocv"

	"vismatch/config"
	"vismatch/hashcache"
	"vismatch/imageprocessor"
	"vismatch/indexer"
	"vismatch/logging"
	"vismatch/registry"
	"vismatch/signalhandler"
)

// app holds the components every command shares
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	backend  *imageprocessor.Backend
	cache    *hashcache.Cache
	registry *registry.Registry
}

func newApp(configFlag string) (*app, error) {
	cfg, err := config.Load(config.Path(configFlag))
	if err != nil {
		return nil, err
	}

	logger, err := logging.Setup(cfg.Logging())
	if err != nil {
		return nil, err
	}

	// The only fatal condition: without a root there is nothing to serve
	if err := registry.EnsureRoot(cfg.Root); err != nil {
		logging.Close()
		return nil, fmt.Errorf("project root: %w", err)
	}

	backend, err := imageprocessor.NewBackend(imageprocessor.Options{
		Width:  cfg.HashWidth,
		Height: cfg.HashHeight,
		Filter: cfg.Filter(),
		Logger: logger,
	})
	if err != nil {
		logging.Close()
		return nil, err
	}

	cache := hashcache.New(backend.Bits)
	ix := indexer.New[gocv.Mat](backend, cache, indexer.WithLogger[gocv.Mat](logger))
	reg := registry.New(cfg.Root, cfg.Hash(), ix,
		registry.WithLogger(logger),
		registry.WithParallelism(signalhandler.Workers(cfg.Workers)),
	)

	logger.Debug("configuration loaded",
		"root", cfg.Root,
		"hash_type", cfg.Hash().String(),
		"hash_size", fmt.Sprintf("%dx%d", cfg.HashWidth, cfg.HashHeight),
		"resize_filter", cfg.Filter().String(),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		backend:  backend,
		cache:    cache,
		registry: reg,
	}, nil
}

func (a *app) Close() error {
	defer logging.Close()
	return a.backend.Shutdown()
}
