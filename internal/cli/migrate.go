package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.deps.Migrate == nil {
				return errors.New("identityctl: migrations not configured")
			}
			if err := opts.deps.Migrate(cmd.Context(), opts.configPath); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
