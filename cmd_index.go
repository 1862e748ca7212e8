package main

import (
	"time"

	"github.com/spf13/cobra"

	"vismatch/registry"
	"vismatch/scanner"
	"vismatch/signalhandler"
)

func newIndexCmd(configPath *string) *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Hash every project image and refresh the cache artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalhandler.NotifyContext(cmd.Context())
			defer stop()

			out := cmd.OutOrStdout()
			survey, err := scanner.CountFiles(a.cfg.Root, a.cfg.Hash())
			if err != nil {
				return err
			}
			scanner.PrintStartupInfo(out, survey)

			var report registry.LoadReport
			if project != "" {
				start := time.Now()
				if _, err := a.registry.Refresh(ctx, project); err != nil {
					return err
				}
				report = registry.LoadReport{Loaded: []string{project}, Duration: time.Since(start)}
			} else if report, err = a.registry.Load(ctx); err != nil {
				return err
			}

			scanner.PrintCompletionStats(out, a.registry, report, a.cache.Stats())
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "index a single project")
	return cmd
}
