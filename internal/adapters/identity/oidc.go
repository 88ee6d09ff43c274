package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/viralforge/storefront-identity/internal/domain"
)

// OIDCVerifier checks ID tokens issued by an external OpenID provider.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier runs discovery against issuer. It fails when the provider
// cannot be reached, which the caller turns into a failed identity backend.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string, timeout time.Duration) (*OIDCVerifier, error) {
	if issuer == "" || clientID == "" {
		return nil, fmt.Errorf("oidc issuer and client id are required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery %s: %w", issuer, err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

func newOIDCVerifier(verifier *oidc.IDTokenVerifier) *OIDCVerifier {
	return &OIDCVerifier{verifier: verifier}
}

type idTokenClaims struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (domain.Identity, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	var claims idTokenClaims
	if err := token.Claims(&claims); err != nil {
		return domain.Identity{}, fmt.Errorf("%w: decode claims: %v", domain.ErrUnauthenticated, err)
	}
	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}
	return domain.Identity{
		SubjectID:   token.Subject,
		Email:       strings.ToLower(claims.Email),
		DisplayName: name,
	}, nil
}
