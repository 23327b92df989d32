package main

import (
	"github.com/spf13/cobra"

	"dreamloop/internal/daemonrun"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run the ingest daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Ingest(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.MetricsBind, "metrics-bind", "", "Address for the prometheus listener (overrides metrics.bind)")
	return cmd
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.ServeOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the output directory as a ping-pong frame loop over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Serve(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Bind, "bind", "", "HTTP listen address (overrides frames.bind)")
	cmd.Flags().Float64Var(&opts.FPS, "fps", 0, "Frames per second pulled for clients (overrides frames.fps)")
	return cmd
}
