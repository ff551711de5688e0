package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clipsmith/internal/logging"
	"clipsmith/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Manage clip workspaces",
	}

	stagingCmd.AddCommand(newStagingCleanCommand(ctx))

	return stagingCmd
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var tenantID string
	var clipID string
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove clip workspaces from the staging directory",
		Long: "Removes staged intermediates. With --tenant and --clip a single clip's\n" +
			"workspace is removed; otherwise every workspace untouched for longer\n" +
			"than --older-than is swept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			root := strings.TrimSpace(cfg.Paths.StagingDir)
			if root == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Staging directory not configured")
				return nil
			}
			out := cmd.OutOrStdout()

			if clipID != "" || tenantID != "" {
				if clipID == "" || tenantID == "" {
					return errors.New("--tenant and --clip must be used together")
				}
				if err := staging.RemoveClip(root, tenantID, clipID); err != nil {
					return fmt.Errorf("remove clip workspace: %w", err)
				}
				fmt.Fprintf(out, "Removed workspace for clip %s\n", clipID)
				return nil
			}

			result := staging.CleanStale(root, olderThan, logging.NewNop())
			if len(result.Errors) > 0 {
				fmt.Fprintf(out, "Removed %d workspaces, %d errors\n", len(result.Removed), len(result.Errors))
				for _, e := range result.Errors {
					fmt.Fprintf(out, "  Error: %s: %v\n", e.Path, e.Error)
				}
				return nil
			}
			fmt.Fprintf(out, "Removed %d workspaces\n", len(result.Removed))
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant owning the clip workspace")
	cmd.Flags().StringVar(&clipID, "clip", "", "Clip whose workspace to remove")
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "Sweep workspaces untouched for this long")
	return cmd
}
