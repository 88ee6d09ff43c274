package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaultsWithMemoryStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "storefront-identity", cfg.ServiceID)
	require.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	require.Equal(t, IdentityModeLocal, cfg.IdentityMode)
	require.Equal(t, 10*time.Second, cfg.ResolveTimeout)
	require.Equal(t, 3, cfg.CleanupRetryAttempts)
	require.True(t, cfg.FirstUserAdmin)
	require.Equal(t, "identity.deleted", cfg.KafkaTopicIdentityDeleted)
	require.Equal(t, 3, cfg.ConsumerAttempts)
	require.Equal(t, 500*time.Millisecond, cfg.ConsumerRetryDelay)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
service:
  id: identity-test
  http_port: 8181
dependencies:
  store_driver: memory
  kafka_brokers: [" kafka-1:9092 ", ""]
identity:
  mode: oidc
  oidc:
    issuer_url: https://id.example.com
    client_id: storefront
access:
  first_user_admin: false
  bootstrap_admin_emails: [ops@example.com]
`)
	t.Setenv("HTTP_PORT", "9191")
	t.Setenv("SESSION_RESOLVE_TIMEOUT_MS", "1500")
	t.Setenv("BOOTSTRAP_ADMIN_EMAILS", "a@example.com, b@example.com,")
	t.Setenv("CONSUMER_HANDLER_ATTEMPTS", "5")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "identity-test", cfg.ServiceID)
	require.Equal(t, 9191, cfg.HTTPPort)
	require.Equal(t, IdentityModeOIDC, cfg.IdentityMode)
	require.Equal(t, "https://id.example.com", cfg.OIDCIssuerURL)
	require.Equal(t, []string{"kafka-1:9092"}, cfg.KafkaBrokers)
	require.False(t, cfg.FirstUserAdmin)
	require.Equal(t, 1500*time.Millisecond, cfg.ResolveTimeout)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.BootstrapAdminEmails)
	require.Equal(t, 5, cfg.ConsumerAttempts)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "postgres without url",
			env:  map[string]string{"STORE_DRIVER": "postgres"},
			want: "missing DB_URL/POSTGRES_URL",
		},
		{
			name: "unknown store driver",
			env:  map[string]string{"STORE_DRIVER": "sqlite"},
			want: `unsupported STORE_DRIVER "sqlite"`,
		},
		{
			name: "unknown identity mode",
			env:  map[string]string{"STORE_DRIVER": "memory", "IDENTITY_MODE": "saml"},
			want: `unsupported IDENTITY_MODE "saml"`,
		},
		{
			name: "local mode without keys",
			env:  map[string]string{"STORE_DRIVER": "memory", "JWT_ALLOW_EPHEMERAL": "false"},
			want: "missing JWT_PRIVATE_KEY_PEM or JWT_PUBLIC_KEY_PEM",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
			require.EqualError(t, err, tc.want)
		})
	}
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "service: [unterminated")
	_, err := LoadConfig(path)
	require.ErrorContains(t, err, "parse config file")
}
