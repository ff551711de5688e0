package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var tenantID string
	var since uint64
	var fromStart bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow a tenant's pipeline events",
		Long: "Streams pipeline events for a tenant as they happen. By default only\n" +
			"new events are shown; use --all to replay retained history first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(tenantID) == "" {
				return errors.New("--tenant is required")
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			err = client.StreamEvents(cmd.Context(), tenantID, since, fromStart, func(frame eventFrame) {
				fmt.Fprintln(out, renderEventLine(frame, colorize))
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant whose events to follow")
	cmd.Flags().Uint64Var(&since, "since", 0, "Replay events after this sequence number")
	cmd.Flags().BoolVar(&fromStart, "all", false, "Replay all retained events before following")
	return cmd
}

func renderEventLine(frame eventFrame, colorize bool) string {
	label := strings.ToUpper(frame.Type)
	line := fmt.Sprintf("[%-7s] %s", label, frame.Message)
	if !colorize {
		return line
	}
	switch frame.Type {
	case "success":
		return ansiGreen + line + ansiReset
	case "error":
		return ansiRed + line + ansiReset
	default:
		return line
	}
}
