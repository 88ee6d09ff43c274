package cli

import (
	"github.com/spf13/cobra"

	"github.com/viralforge/storefront-identity/internal/application"
)

func newSessionCmd(opts *rootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show the session view of the acting token",
		Long: `Resolves the token the way every request transport does. Without a token the
view is anonymous. With --watch the command keeps printing each new view until
the session ends or the command is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(svc *application.Service) error {
				if !watch {
					view, err := svc.ResolveSession(cmd.Context(), opts.bearerToken())
					if err != nil {
						return err
					}
					return renderSession(cmd.OutOrStdout(), view)
				}
				views, err := svc.WatchSession(cmd.Context(), opts.bearerToken())
				if err != nil {
					return err
				}
				for view := range views {
					if err := renderSession(cmd.OutOrStdout(), view); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "follow session changes")
	return cmd
}
