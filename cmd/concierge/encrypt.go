package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"concierge-ai/internal/infra/config"
)

func newEncryptCmd() *cobra.Command {
	var passphrase string

	cmd := &cobra.Command{
		Use:   "encrypt <value>",
		Short: "Encrypt a secret for use as an enc: config value",
		Long: `Encrypt a secret with the config passphrase. Paste the output into
config.yaml; it is decrypted at load time when CONCIERGE_CONFIG_KEY is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				passphrase = os.Getenv(config.ConfigKeyEnv)
			}
			if passphrase == "" {
				return fmt.Errorf("no passphrase: set %s or pass --key", config.ConfigKeyEnv)
			}
			enc, err := config.EncryptValue(args[0], passphrase)
			if err != nil {
				return fmt.Errorf("encrypt: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), config.SecretPrefix+enc)
			return nil
		},
	}
	cmd.Flags().StringVar(&passphrase, "key", "", "passphrase (default $CONCIERGE_CONFIG_KEY)")
	return cmd
}
