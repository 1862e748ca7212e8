package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"vismatch/api"
	"vismatch/imagehash"
	"vismatch/imageprocessor"
	"vismatch/signalhandler"
	"vismatch/similarity"
	"vismatch/watcher"
	"vismatch/workerpool"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Index every project and serve comparisons over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalhandler.NotifyContext(cmd.Context())
			defer stop()

			if _, err := a.registry.Load(ctx); err != nil {
				return err
			}

			pool := workerpool.New(signalhandler.Workers(a.cfg.Workers))
			defer pool.Close()
			a.logger.Info("worker pool started", "workers", pool.Size())

			pipeline := similarity.New[gocv.Mat](a.registry, a.backend, pool,
				similarity.WithLogger[gocv.Mat](a.logger))

			if a.cfg.Watch {
				w, err := watcher.New(a.cfg.Root, a.registry, watcher.Config{
					DebounceDuration: a.cfg.WatchDebounce,
					Logger:           a.logger,
				})
				if err != nil {
					return err
				}
				defer w.Close()
				a.logger.Info("watching project root", "root", a.cfg.Root)
			}

			verify := func(path string) error { return imagehash.VerifyFile[gocv.Mat](a.backend, path) }
			server := api.NewServer(a.registry, pipeline, imageprocessor.DecodeBase64, verify,
				api.WithLogger(a.logger),
				api.WithWorkerPool(pool),
				api.WithAnnotator(imageprocessor.EncodeBase64PNG),
				api.WithCompareTimeout(a.cfg.CompareTimeout),
				api.WithRateLimit(a.cfg.RateLimit),
				api.WithMaxBodyBytes(a.cfg.MaxBodyBytes),
			)
			err = server.ListenAndServe(ctx, a.cfg.Listen)
			if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
