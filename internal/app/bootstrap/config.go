package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	IdentityModeLocal = "local"
	IdentityModeOIDC  = "oidc"
)

// Config is the resolved runtime configuration shared by the api, worker and
// identityctl binaries.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	StoreDriver string
	DatabaseURL string
	MaxDBConns  int32
	RedisURL    string

	IdentityMode string

	JWTPrivateKeyPEM  string
	JWTPublicKeyPEM   string
	JWTKeyID          string
	JWTIssuer         string
	AllowEphemeralJWT bool
	BcryptCost        int
	TokenTTL          time.Duration

	OIDCIssuerURL        string
	OIDCClientID         string
	OIDCHTTPTimeout      time.Duration
	AdminAPIBaseURL      string
	AdminAPITokenURL     string
	AdminAPIClientID     string
	AdminAPIClientSecret string
	AdminAPIScopes       []string

	ResolveTimeout       time.Duration
	LookupRetryInitial   time.Duration
	LookupRetryMax       time.Duration
	CleanupRetryAttempts int
	CleanupRetryDelay    time.Duration
	SessionCacheTTL      time.Duration
	RevocationTTL        time.Duration
	FirstUserAdmin       bool
	BootstrapAdminEmails []string

	KafkaBrokers                 []string
	KafkaConsumerGroup           string
	KafkaTopicIdentityRegistered string
	KafkaTopicIdentityDeleted    string
	KafkaTopicAdminToggled       string
	KafkaTopicOperatorAlert      string

	OutboxPollInterval   time.Duration
	OutboxBatchSize      int
	OutboxClaimTTL       time.Duration
	OutboxMaxRetries     int
	ConsumerPollInterval time.Duration
	ConsumerAttempts     int
	ConsumerRetryDelay   time.Duration
}

// configFile mirrors configs/default.yaml.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		StoreDriver        string   `yaml:"store_driver"`
		PostgresURL        string   `yaml:"postgres_url"`
		RedisURL           string   `yaml:"redis_url"`
		KafkaBrokers       []string `yaml:"kafka_brokers"`
		KafkaConsumerGroup string   `yaml:"kafka_consumer_group"`
	} `yaml:"dependencies"`
	Topics struct {
		IdentityRegistered string `yaml:"identity_registered"`
		IdentityDeleted    string `yaml:"identity_deleted"`
		AdminToggled       string `yaml:"admin_toggled"`
		OperatorAlert      string `yaml:"operator_alert"`
	} `yaml:"topics"`
	Identity struct {
		Mode string `yaml:"mode"`
		JWT  struct {
			KeyID  string `yaml:"key_id"`
			Issuer string `yaml:"issuer"`
		} `yaml:"jwt"`
		OIDC struct {
			IssuerURL string `yaml:"issuer_url"`
			ClientID  string `yaml:"client_id"`
		} `yaml:"oidc"`
		AdminAPI struct {
			BaseURL  string   `yaml:"base_url"`
			TokenURL string   `yaml:"token_url"`
			ClientID string   `yaml:"client_id"`
			Scopes   []string `yaml:"scopes"`
		} `yaml:"admin_api"`
	} `yaml:"identity"`
	Access struct {
		FirstUserAdmin       *bool    `yaml:"first_user_admin"`
		BootstrapAdminEmails []string `yaml:"bootstrap_admin_emails"`
	} `yaml:"access"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:                    "storefront-identity",
		HTTPPort:                     8080,
		GRPCPort:                     9090,
		StoreDriver:                  StoreDriverPostgres,
		MaxDBConns:                   20,
		IdentityMode:                 IdentityModeLocal,
		JWTKeyID:                     "storefront-identity-key-1",
		JWTIssuer:                    "storefront-identity",
		AllowEphemeralJWT:            true,
		BcryptCost:                   12,
		TokenTTL:                     12 * time.Hour,
		OIDCHTTPTimeout:              8 * time.Second,
		ResolveTimeout:               10 * time.Second,
		LookupRetryInitial:           100 * time.Millisecond,
		LookupRetryMax:               2 * time.Second,
		CleanupRetryAttempts:         3,
		CleanupRetryDelay:            200 * time.Millisecond,
		SessionCacheTTL:              30 * time.Second,
		RevocationTTL:                24 * time.Hour,
		FirstUserAdmin:               true,
		KafkaConsumerGroup:           "storefront-identity",
		KafkaTopicIdentityRegistered: "identity.registered",
		KafkaTopicIdentityDeleted:    "identity.deleted",
		KafkaTopicAdminToggled:       "profile.admin_toggled",
		KafkaTopicOperatorAlert:      "operator.alert",
		OutboxPollInterval:           2 * time.Second,
		OutboxBatchSize:              100,
		OutboxClaimTTL:               30 * time.Second,
		OutboxMaxRetries:             5,
		ConsumerPollInterval:         time.Second,
		ConsumerAttempts:             3,
		ConsumerRetryDelay:           500 * time.Millisecond,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		applyFile(&cfg, f)
	}

	cfg.ServiceID = envOrDefault("SERVICE_ID", cfg.ServiceID)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(envOrDefault("STORE_DRIVER", cfg.StoreDriver)))
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)

	cfg.IdentityMode = strings.ToLower(strings.TrimSpace(envOrDefault("IDENTITY_MODE", cfg.IdentityMode)))
	cfg.JWTPrivateKeyPEM = envOrDefault("JWT_PRIVATE_KEY_PEM", cfg.JWTPrivateKeyPEM)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.JWTKeyID = envOrDefault("JWT_KEY_ID", cfg.JWTKeyID)
	cfg.JWTIssuer = envOrDefault("JWT_ISSUER", cfg.JWTIssuer)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.TokenTTL = time.Duration(envInt("TOKEN_EXPIRY_MINUTES", int(cfg.TokenTTL.Minutes()))) * time.Minute

	cfg.OIDCIssuerURL = envOrDefault("OIDC_ISSUER_URL", cfg.OIDCIssuerURL)
	cfg.OIDCClientID = envOrDefault("OIDC_CLIENT_ID", cfg.OIDCClientID)
	cfg.OIDCHTTPTimeout = time.Duration(envInt("OIDC_HTTP_TIMEOUT_SECONDS", int(cfg.OIDCHTTPTimeout.Seconds()))) * time.Second
	cfg.AdminAPIBaseURL = envOrDefault("IDENTITY_ADMIN_API_URL", cfg.AdminAPIBaseURL)
	cfg.AdminAPITokenURL = envOrDefault("IDENTITY_ADMIN_TOKEN_URL", cfg.AdminAPITokenURL)
	cfg.AdminAPIClientID = envOrDefault("IDENTITY_ADMIN_CLIENT_ID", cfg.AdminAPIClientID)
	cfg.AdminAPIClientSecret = envOrDefault("IDENTITY_ADMIN_CLIENT_SECRET", cfg.AdminAPIClientSecret)
	cfg.AdminAPIScopes = envCSV("IDENTITY_ADMIN_SCOPES", cfg.AdminAPIScopes)

	cfg.ResolveTimeout = time.Duration(envInt("SESSION_RESOLVE_TIMEOUT_MS", int(cfg.ResolveTimeout.Milliseconds()))) * time.Millisecond
	cfg.LookupRetryInitial = time.Duration(envInt("PROFILE_LOOKUP_RETRY_INITIAL_MS", int(cfg.LookupRetryInitial.Milliseconds()))) * time.Millisecond
	cfg.LookupRetryMax = time.Duration(envInt("PROFILE_LOOKUP_RETRY_MAX_MS", int(cfg.LookupRetryMax.Milliseconds()))) * time.Millisecond
	cfg.CleanupRetryAttempts = envInt("DELETION_CLEANUP_RETRIES", cfg.CleanupRetryAttempts)
	cfg.CleanupRetryDelay = time.Duration(envInt("DELETION_CLEANUP_RETRY_DELAY_MS", int(cfg.CleanupRetryDelay.Milliseconds()))) * time.Millisecond
	cfg.SessionCacheTTL = time.Duration(envInt("SESSION_CACHE_TTL_SECONDS", int(cfg.SessionCacheTTL.Seconds()))) * time.Second
	cfg.RevocationTTL = time.Duration(envInt("TOKEN_REVOCATION_TTL_MINUTES", int(cfg.RevocationTTL.Minutes()))) * time.Minute
	cfg.FirstUserAdmin = envBool("FIRST_USER_ADMIN", cfg.FirstUserAdmin)
	cfg.BootstrapAdminEmails = envCSV("BOOTSTRAP_ADMIN_EMAILS", cfg.BootstrapAdminEmails)

	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaConsumerGroup = envOrDefault("KAFKA_CONSUMER_GROUP", cfg.KafkaConsumerGroup)
	cfg.KafkaTopicIdentityRegistered = envOrDefault("KAFKA_TOPIC_IDENTITY_REGISTERED", cfg.KafkaTopicIdentityRegistered)
	cfg.KafkaTopicIdentityDeleted = envOrDefault("KAFKA_TOPIC_IDENTITY_DELETED", cfg.KafkaTopicIdentityDeleted)
	cfg.KafkaTopicAdminToggled = envOrDefault("KAFKA_TOPIC_ADMIN_TOGGLED", cfg.KafkaTopicAdminToggled)
	cfg.KafkaTopicOperatorAlert = envOrDefault("KAFKA_TOPIC_OPERATOR_ALERT", cfg.KafkaTopicOperatorAlert)

	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)
	cfg.ConsumerPollInterval = time.Duration(envInt("CONSUMER_POLL_MS", int(cfg.ConsumerPollInterval.Milliseconds()))) * time.Millisecond
	cfg.ConsumerAttempts = envInt("CONSUMER_HANDLER_ATTEMPTS", cfg.ConsumerAttempts)
	cfg.ConsumerRetryDelay = time.Duration(envInt("CONSUMER_RETRY_DELAY_MS", int(cfg.ConsumerRetryDelay.Milliseconds()))) * time.Millisecond

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, f configFile) {
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Dependencies.StoreDriver != "" {
		cfg.StoreDriver = f.Dependencies.StoreDriver
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = trimNonEmpty(f.Dependencies.KafkaBrokers)
	}
	if f.Dependencies.KafkaConsumerGroup != "" {
		cfg.KafkaConsumerGroup = f.Dependencies.KafkaConsumerGroup
	}
	if f.Topics.IdentityRegistered != "" {
		cfg.KafkaTopicIdentityRegistered = f.Topics.IdentityRegistered
	}
	if f.Topics.IdentityDeleted != "" {
		cfg.KafkaTopicIdentityDeleted = f.Topics.IdentityDeleted
	}
	if f.Topics.AdminToggled != "" {
		cfg.KafkaTopicAdminToggled = f.Topics.AdminToggled
	}
	if f.Topics.OperatorAlert != "" {
		cfg.KafkaTopicOperatorAlert = f.Topics.OperatorAlert
	}
	if f.Identity.Mode != "" {
		cfg.IdentityMode = f.Identity.Mode
	}
	if f.Identity.JWT.KeyID != "" {
		cfg.JWTKeyID = f.Identity.JWT.KeyID
	}
	if f.Identity.JWT.Issuer != "" {
		cfg.JWTIssuer = f.Identity.JWT.Issuer
	}
	if f.Identity.OIDC.IssuerURL != "" {
		cfg.OIDCIssuerURL = f.Identity.OIDC.IssuerURL
	}
	if f.Identity.OIDC.ClientID != "" {
		cfg.OIDCClientID = f.Identity.OIDC.ClientID
	}
	if f.Identity.AdminAPI.BaseURL != "" {
		cfg.AdminAPIBaseURL = f.Identity.AdminAPI.BaseURL
	}
	if f.Identity.AdminAPI.TokenURL != "" {
		cfg.AdminAPITokenURL = f.Identity.AdminAPI.TokenURL
	}
	if f.Identity.AdminAPI.ClientID != "" {
		cfg.AdminAPIClientID = f.Identity.AdminAPI.ClientID
	}
	if len(f.Identity.AdminAPI.Scopes) > 0 {
		cfg.AdminAPIScopes = trimNonEmpty(f.Identity.AdminAPI.Scopes)
	}
	if f.Access.FirstUserAdmin != nil {
		cfg.FirstUserAdmin = *f.Access.FirstUserAdmin
	}
	if len(f.Access.BootstrapAdminEmails) > 0 {
		cfg.BootstrapAdminEmails = trimNonEmpty(f.Access.BootstrapAdminEmails)
	}
}

// validate rejects settings the runtime cannot start with. OIDC settings are
// not checked here: an unusable provider yields a failed identity backend and
// the API still serves readiness and anonymous sessions.
func (c Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("missing DB_URL/POSTGRES_URL")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.IdentityMode {
	case IdentityModeLocal:
		if (c.JWTPrivateKeyPEM == "" || c.JWTPublicKeyPEM == "") && !c.AllowEphemeralJWT {
			return fmt.Errorf("missing JWT_PRIVATE_KEY_PEM or JWT_PUBLIC_KEY_PEM")
		}
	case IdentityModeOIDC:
	default:
		return fmt.Errorf("unsupported IDENTITY_MODE %q", c.IdentityMode)
	}
	if c.CleanupRetryAttempts < 0 {
		return fmt.Errorf("DELETION_CLEANUP_RETRIES must not be negative")
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	items := trimNonEmpty(strings.Split(raw, ","))
	if len(items) == 0 {
		return fallback
	}
	return items
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
