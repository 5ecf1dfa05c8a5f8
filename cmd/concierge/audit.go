package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/config"
	"concierge-ai/internal/security"
)

func newAuditCmd() *cobra.Command {
	var (
		eventType string
		actor     string
		since     time.Duration
		last      int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print audit trail events",
		Long: `Print events from the audit trail named by audit.path, oldest first,
one JSON object per line. Filters combine.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			var cutoff time.Time
			if since > 0 {
				cutoff = time.Now().Add(-since)
			}
			events, err := security.ReadAuditTrail(cfg.Audit.Path, func(ev domain.AuditEvent) bool {
				switch {
				case eventType != "" && string(ev.Type) != eventType:
					return false
				case actor != "" && ev.Actor != actor:
					return false
				case !cutoff.IsZero() && ev.Timestamp.Before(cutoff):
					return false
				}
				return true
			})
			if err != nil {
				return fmt.Errorf("read audit trail: %w", err)
			}
			if last > 0 && len(events) > last {
				events = events[len(events)-last:]
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			for _, ev := range events {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "only events of this type (routing, access, access_denied, access_error, tool_exec)")
	cmd.Flags().StringVar(&actor, "actor", "", "only events for this identity")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this, e.g. 24h")
	cmd.Flags().IntVarP(&last, "last", "n", 0, "print at most the last n matching events")
	return cmd
}
