package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/viralforge/storefront-identity/internal/application"
	"github.com/viralforge/storefront-identity/internal/domain"
)

const tokenEnv = "IDENTITYCTL_TOKEN"

// Dependencies lets the command tree open the service without knowing how it
// is wired. Open returns the service and a closer for its connections.
type Dependencies struct {
	Open    func(ctx context.Context, configPath string) (*application.Service, io.Closer, error)
	Migrate func(ctx context.Context, configPath string) error
}

type rootOptions struct {
	configPath string
	token      string
	deps       Dependencies
}

// NewRootCommand builds the identityctl command tree.
func NewRootCommand(deps Dependencies) *cobra.Command {
	opts := &rootOptions{deps: deps}
	root := &cobra.Command{
		Use:   "identityctl",
		Short: "Operate the storefront identity service",
		Long: `identityctl runs identity operations directly against the service's stores.
Every privileged command acts as the session behind --token (or IDENTITYCTL_TOKEN),
so the same authorization rules apply as over HTTP.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "configs/default.yaml", "path to the service config file")
	root.PersistentFlags().StringVar(&opts.token, "token", "", "bearer token of the acting user (also IDENTITYCTL_TOKEN)")

	root.AddCommand(newSessionCmd(opts))
	root.AddCommand(newAdminCmd(opts))
	root.AddCommand(newUsersCmd(opts))
	root.AddCommand(newMigrateCmd(opts))
	return root
}

// Execute runs identityctl and exits non-zero on failure.
func Execute(deps Dependencies) {
	if err := NewRootCommand(deps).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (o *rootOptions) bearerToken() string {
	if token := strings.TrimSpace(o.token); token != "" {
		return token
	}
	return strings.TrimSpace(os.Getenv(tokenEnv))
}

// withService opens the service for one command and closes it afterwards.
func (o *rootOptions) withService(cmd *cobra.Command, fn func(svc *application.Service) error) error {
	if o.deps.Open == nil {
		return errors.New("identityctl: no service configured")
	}
	svc, closer, err := o.deps.Open(cmd.Context(), o.configPath)
	if err != nil {
		return fmt.Errorf("open identity service: %w", err)
	}
	defer func() {
		if closer != nil {
			_ = closer.Close()
		}
	}()
	return fn(svc)
}

// caller resolves the acting session. Privileged commands refuse to run
// without a token instead of acting as anonymous.
func (o *rootOptions) caller(cmd *cobra.Command, svc *application.Service) (domain.SessionView, error) {
	token := o.bearerToken()
	if token == "" {
		return domain.SessionView{}, fmt.Errorf("authentication required: pass --token or set %s", tokenEnv)
	}
	return svc.ResolveSession(cmd.Context(), token)
}
