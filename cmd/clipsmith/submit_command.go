package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "submit URL",
		Short: "Submit a source video for clipping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(tenantID) == "" {
				return errors.New("--tenant is required")
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			clipID, err := client.Submit(cmd.Context(), tenantID, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submitted clip %s\n", clipID)
			fmt.Fprintf(out, "Follow progress with `clipsmith events --tenant %s`\n", tenantID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant the clip belongs to")
	return cmd
}
