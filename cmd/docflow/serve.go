package main

import (
	"github.com/spf13/cobra"

	"github.com/randalmurphal/docflow/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook HTTP server",
		Long:  "Receives tracker webhooks, classifies ticket transitions, and serves signed review artifact links.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *deps) error {
				links, _ := linkConfig(d.cfg)
				srv := server.New(server.Config{
					Addr:          d.cfg.Server.Addr,
					WebhookSecret: d.cfg.Server.WebhookSecret,
					Links:         links,
				}, d.pipeline, d.contents, d.logger)

				d.logger.Info("starting webhook server", "addr", d.cfg.Server.Addr)
				return srv.Run()
			})
		},
	}
}
