package cli

import (
	"github.com/spf13/cobra"

	"github.com/viralforge/storefront-identity/internal/application"
)

func newAdminCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator privileges",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "toggle [user-id]",
		Short:   "Grant or revoke administrator privileges",
		Long:    "Flips the administrator flag of a user. The last administrator cannot be demoted.",
		Example: "identityctl admin toggle 3f1c... --token $ADMIN_TOKEN",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(svc *application.Service) error {
				caller, err := opts.caller(cmd, svc)
				if err != nil {
					return err
				}
				profile, err := svc.ToggleAdmin(cmd.Context(), caller, args[0])
				if err != nil {
					return err
				}
				if profile.IsAdmin {
					printSuccess(cmd.OutOrStdout(), "%s is now an administrator", profile.ID)
				} else {
					printSuccess(cmd.OutOrStdout(), "%s is no longer an administrator", profile.ID)
				}
				return nil
			})
		},
	})
	return cmd
}
