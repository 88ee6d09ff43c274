package identity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/viralforge/storefront-identity/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// AdminAPIConfig points at the provider's user administration API.
type AdminAPIConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

// AdminAPIClient deletes users through the provider's admin REST API,
// authenticating with a client-credentials token.
type AdminAPIClient struct {
	baseURL string
	http    *http.Client
}

func NewAdminAPIClient(ctx context.Context, cfg AdminAPIConfig) (*AdminAPIClient, error) {
	if cfg.BaseURL == "" || cfg.TokenURL == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("missing identity admin api base url, token url or client id")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse admin api base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	base := &http.Client{Timeout: cfg.Timeout}
	client := cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	client.Timeout = cfg.Timeout
	return &AdminAPIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    client,
	}, nil
}

// DeleteIdentity maps a 404 to domain.ErrNotFound so retries are idempotent.
func (c *AdminAPIClient) DeleteIdentity(ctx context.Context, subjectID string) error {
	endpoint := c.baseURL + "/users/" + url.PathEscape(subjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity admin api: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("identity admin api: delete %s returned %d: %s", subjectID, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
