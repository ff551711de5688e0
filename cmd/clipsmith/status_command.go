package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			runningKind := statusError
			runningMsg := "stopped"
			if status.Running {
				runningKind = statusOK
				runningMsg = fmt.Sprintf("pid %d", status.PID)
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", runningKind, runningMsg, colorize))
			fmt.Fprintln(out, renderStatusLine("Queue DB", statusInfo, status.QueueDBPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Inbox depth", statusInfo, fmt.Sprintf("%d", status.InboxDepth), colorize))

			queueKind := statusOK
			if status.Queue.Failed > 0 {
				queueKind = statusWarn
			}
			queueMsg := fmt.Sprintf("%d pending, %d active, %d completed, %d failed",
				status.Queue.Pending, status.Queue.Active, status.Queue.Completed, status.Queue.Failed)
			fmt.Fprintln(out, renderStatusLine("Queue", queueKind, queueMsg, colorize))
			return nil
		},
	}
}
