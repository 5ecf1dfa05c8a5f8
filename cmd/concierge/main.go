package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// configPath is the --config flag shared by every subcommand.
var configPath string

func init() {
	// Load .env if present; missing file is fine.
	_ = godotenv.Load()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "concierge",
		Short: "Routes requests to document and movie agents behind a permission oracle",
		Long: `concierge classifies each request and hands it to a specialised agent.
Every tool an agent calls is checked against the permission oracle first.

Configuration is read from --config (default ./config.yaml), then
CONCIERGE_* environment variables. A .env file in the working directory
is loaded before anything else.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "config file path")

	root.AddCommand(newServeCmd())
	root.AddCommand(newAskCmd())
	root.AddCommand(newClassifyCmd())
	root.AddCommand(newEncryptCmd())
	root.AddCommand(newAuditCmd())
	return root
}
