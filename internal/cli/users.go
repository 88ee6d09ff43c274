package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/viralforge/storefront-identity/internal/application"
	"github.com/viralforge/storefront-identity/internal/domain"
)

func newUsersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect and delete users",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show [user-id]",
		Short: "Show a user's profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(svc *application.Service) error {
				caller, err := opts.caller(cmd, svc)
				if err != nil {
					return err
				}
				profile, err := svc.GetProfile(cmd.Context(), caller, args[0])
				if err != nil {
					return err
				}
				return renderProfile(cmd.OutOrStdout(), application.ToProfileResponse(profile))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "delete [user-id]",
		Aliases: []string{"rm"},
		Short:   "Delete a user's identity and profile",
		Long: `Deletes the identity at the provider, then the profile. Re-running the command
after a partial failure finishes the cleanup.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(svc *application.Service) error {
				caller, err := opts.caller(cmd, svc)
				if err != nil {
					return err
				}
				receipt, err := svc.DeleteUser(cmd.Context(), caller, args[0])
				if errors.Is(err, domain.ErrPartialDeletion) {
					printWarning(cmd.OutOrStdout(), "identity %s deleted but its profile remains; re-run to finish cleanup", receipt.TargetID)
				}
				if err != nil {
					return err
				}
				switch receipt.Outcome {
				case domain.DeletionOutcomeAlreadyDeleted:
					printSuccess(cmd.OutOrStdout(), "%s was already deleted", receipt.TargetID)
				case domain.DeletionOutcomeOrphanCleaned:
					printSuccess(cmd.OutOrStdout(), "%s: removed leftover profile", receipt.TargetID)
				default:
					printSuccess(cmd.OutOrStdout(), "%s deleted", receipt.TargetID)
				}
				return nil
			})
		},
	})
	return cmd
}
