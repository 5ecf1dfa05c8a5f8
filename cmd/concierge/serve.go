package main

import (
	"github.com/spf13/cobra"

	"concierge-ai/internal/adapter/gateway"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(a.cfg.Gateway.Tokens) == 0 {
				a.log.Warn("gateway has no tokens configured, every request will be rejected")
			}
			srv := gateway.NewServer(a.supervisor, gateway.NewStaticTokenAuth(a.cfg.Gateway.Tokens), a.cfg.Gateway, a.log)
			if err := srv.Start(ctx); err != nil {
				return err
			}
			a.log.Info("shutdown complete")
			return nil
		},
	}
}
