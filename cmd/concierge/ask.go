package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/middleware"
)

func newAskCmd() *cobra.Command {
	var identity string
	var verbose bool

	cmd := &cobra.Command{
		Use:   `ask --as <identity> "message"`,
		Short: "Route one message and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx = domain.ContextWithRequestID(ctx, middleware.NewRequestID())
			answer, err := a.supervisor.Route(ctx, domain.Identity(identity), userHistory(args))
			if err != nil {
				return explainRouteError(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, answer.Text)
			if verbose {
				fmt.Fprintf(out, "\n[route=%s status=%s steps=%d]\n", answer.Route, answer.Status, answer.Steps)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "as", "", "identity the request acts as")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print route, status and step count")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   `classify "message"`,
		Short: "Print the routing decision for a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			decision, err := a.supervisor.Classify(ctx, userHistory(args))
			if err != nil {
				return explainRouteError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), decision)
			return nil
		},
	}
}

// userHistory turns CLI args into a one-message conversation.
func userHistory(args []string) []domain.Message {
	return []domain.Message{{Role: domain.RoleUser, Content: strings.Join(args, " ")}}
}

// explainRouteError adds a hint for failures the user can act on.
func explainRouteError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("interrupted")
	case domain.IsRetryableError(err):
		return fmt.Errorf("%w (%s, temporary: retry shortly)", err, domain.ErrorCodeOf(err))
	default:
		return err
	}
}
