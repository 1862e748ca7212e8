package main

import (
	"time"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"vismatch/scanner"
	"vismatch/signalhandler"
	"vismatch/similarity"
	"vismatch/workerpool"
)

func newSearchCmd(configPath *string) *cobra.Command {
	var (
		top       int
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "search <project> <image>",
		Short: "Rank a project's images by similarity to an image file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, image := args[0], args[1]

			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalhandler.NotifyContext(cmd.Context())
			defer stop()

			if _, err := a.registry.Refresh(ctx, project); err != nil {
				return err
			}

			pool := workerpool.New(1)
			defer pool.Close()
			pipeline := similarity.New[gocv.Mat](a.registry, a.backend, pool,
				similarity.WithLogger[gocv.Mat](a.logger))

			start := time.Now()
			ranked, err := pipeline.CompareFile(ctx, image, project)
			if err != nil {
				return err
			}
			if threshold >= 0 {
				ranked = similarity.Within(ranked, threshold)
			}
			if ranked, err = similarity.TopK(ranked, top); err != nil {
				return err
			}

			scanner.PrintMatches(cmd.OutOrStdout(), project, ranked, time.Since(start))
			return nil
		},
	}
	cmd.Flags().IntVarP(&top, "top", "k", 10, "number of matches to print")
	cmd.Flags().Float64Var(&threshold, "threshold", -1, "only print matches with a normalized score at or below this value")
	return cmd
}
