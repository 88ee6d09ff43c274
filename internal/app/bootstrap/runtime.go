package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/viralforge/storefront-identity/internal/adapters/cache"
	eventadapter "github.com/viralforge/storefront-identity/internal/adapters/events"
	grpcadapter "github.com/viralforge/storefront-identity/internal/adapters/grpc"
	httpadapter "github.com/viralforge/storefront-identity/internal/adapters/http"
	identityadapter "github.com/viralforge/storefront-identity/internal/adapters/identity"
	"github.com/viralforge/storefront-identity/internal/adapters/memory"
	"github.com/viralforge/storefront-identity/internal/adapters/postgres"
	"github.com/viralforge/storefront-identity/internal/adapters/security"
	"github.com/viralforge/storefront-identity/internal/application"
	"github.com/viralforge/storefront-identity/internal/ports"
)

// ServiceRuntime holds the wired application service and its workers, without
// any network listeners. identityctl uses it directly.
type ServiceRuntime struct {
	cfg      Config
	logger   *slog.Logger
	service  *application.Service
	signer   *security.JWTSigner
	outbox   *eventadapter.OutboxWorker
	consumer *eventadapter.ConsumerWorker
	closers  []func() error
}

type stores struct {
	profiles   ports.ProfileRepository
	identities ports.IdentityRecordRepository
	outbox     ports.OutboxRepository
}

type caches struct {
	sessions    ports.SessionViewCache
	revocations ports.TokenRevocationStore
	changes     ports.IdentityChangeBus
}

// NewLogger builds the JSON logger and installs it as the slog default.
func NewLogger(cfg Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)
	return logger
}

func NewServiceRuntime(ctx context.Context, cfg Config, logger *slog.Logger) (*ServiceRuntime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &ServiceRuntime{cfg: cfg, logger: logger}

	st, err := rt.openStores(ctx)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	cc, err := rt.openCaches(ctx)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	backend, err := rt.identityBackend(ctx, st.identities)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	publisher := rt.eventPublisher(ctx)
	alerts := eventadapter.NewAlertPublisher(publisher)

	rt.service = application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:          cfg.ServiceID,
			ResolveTimeout:       cfg.ResolveTimeout,
			LookupRetryInitial:   cfg.LookupRetryInitial,
			LookupRetryMax:       cfg.LookupRetryMax,
			CleanupRetryAttempts: cfg.CleanupRetryAttempts,
			CleanupRetryDelay:    cfg.CleanupRetryDelay,
			SessionCacheTTL:      cfg.SessionCacheTTL,
			RevocationTTL:        cfg.RevocationTTL,
			FirstUserAdmin:       cfg.FirstUserAdmin,
			BootstrapAdminEmails: cfg.BootstrapAdminEmails,
		},
		Profiles:    st.profiles,
		Outbox:      st.outbox,
		Identity:    backend,
		Revocations: cc.revocations,
		Sessions:    cc.sessions,
		Changes:     cc.changes,
		Alerts:      alerts,
	})

	rt.outbox = eventadapter.NewOutboxWorker(logger, st.outbox, publisher, cfg.OutboxPollInterval, cfg.OutboxBatchSize, cfg.OutboxClaimTTL, cfg.OutboxMaxRetries)
	rt.consumer = eventadapter.NewConsumerWorker(logger, rt.eventConsumer(ctx), map[string]eventadapter.HandlerFunc{
		cfg.KafkaTopicIdentityRegistered: rt.service.HandleIdentityRegistered,
		cfg.KafkaTopicIdentityDeleted:    rt.service.HandleIdentityDeleted,
	}, eventadapter.ConsumerWorkerConfig{
		PollInterval: cfg.ConsumerPollInterval,
		Attempts:     cfg.ConsumerAttempts,
		RetryDelay:   cfg.ConsumerRetryDelay,
		Alerts:       alerts,
	})
	return rt, nil
}

func (r *ServiceRuntime) Service() *application.Service {
	return r.service
}

// Close releases connections in reverse order of opening.
func (r *ServiceRuntime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *ServiceRuntime) openStores(ctx context.Context) (stores, error) {
	if r.cfg.StoreDriver == StoreDriverMemory {
		r.logger.WarnContext(ctx, "using in-memory stores; data is lost on restart")
		outbox := memory.NewOutboxStore()
		return stores{
			profiles:   memory.NewProfileStore(outbox),
			identities: memory.NewIdentityStore(),
			outbox:     outbox,
		}, nil
	}

	db, err := postgres.Connect(ctx, r.cfg.DatabaseURL, r.cfg.MaxDBConns)
	if err != nil {
		return stores{}, err
	}
	r.closers = append(r.closers, func() error { return postgres.Close(db) })
	if err := postgres.RunMigrations(ctx, db); err != nil {
		return stores{}, fmt.Errorf("run migrations: %w", err)
	}
	repos := postgres.NewRepositories(db)
	return stores{
		profiles:   repos.Profiles,
		identities: repos.Identities,
		outbox:     repos.Outbox,
	}, nil
}

// openCaches uses redis when configured. The in-memory fallbacks only share
// state inside one process.
func (r *ServiceRuntime) openCaches(ctx context.Context) (caches, error) {
	if r.cfg.RedisURL == "" {
		r.logger.WarnContext(ctx, "REDIS_URL not set; session cache, revocations and change feed are process-local")
		return caches{
			sessions:    memory.NewSessionCache(),
			revocations: memory.NewRevocationStore(),
			changes:     memory.NewChangeBus(),
		}, nil
	}
	client, err := cacheadapter.Connect(ctx, r.cfg.RedisURL)
	if err != nil {
		return caches{}, err
	}
	r.closers = append(r.closers, client.Close)
	return caches{
		sessions:    cacheadapter.NewRedisSessionViewCache(client),
		revocations: cacheadapter.NewRedisTokenRevocationStore(client),
		changes:     cacheadapter.NewRedisIdentityChangeBus(client, r.logger),
	}, nil
}

// identityBackend initializes the configured provider. In oidc mode an
// unreachable provider yields a failed backend instead of an error so the
// process still starts and reports why.
func (r *ServiceRuntime) identityBackend(ctx context.Context, records ports.IdentityRecordRepository) (ports.IdentityBackend, error) {
	if r.cfg.IdentityMode == IdentityModeOIDC {
		verifier, err := identityadapter.NewOIDCVerifier(ctx, r.cfg.OIDCIssuerURL, r.cfg.OIDCClientID, r.cfg.OIDCHTTPTimeout)
		if err != nil {
			return r.failedBackend(ctx, err), nil
		}
		admin, err := identityadapter.NewAdminAPIClient(ctx, identityadapter.AdminAPIConfig{
			BaseURL:      r.cfg.AdminAPIBaseURL,
			TokenURL:     r.cfg.AdminAPITokenURL,
			ClientID:     r.cfg.AdminAPIClientID,
			ClientSecret: r.cfg.AdminAPIClientSecret,
			Scopes:       r.cfg.AdminAPIScopes,
			Timeout:      r.cfg.OIDCHTTPTimeout,
		})
		if err != nil {
			return r.failedBackend(ctx, err), nil
		}
		return ports.InitializedBackend(admin, verifier, nil), nil
	}

	signer, err := security.NewJWTSigner(r.cfg.JWTKeyID, r.cfg.JWTIssuer, r.cfg.JWTPrivateKeyPEM, r.cfg.JWTPublicKeyPEM)
	if err != nil {
		if !r.cfg.AllowEphemeralJWT {
			return ports.IdentityBackend{}, fmt.Errorf("init jwt signer: %w", err)
		}
		r.logger.WarnContext(ctx, "using ephemeral JWT keys for local/dev runtime")
		signer, err = security.NewEphemeralJWTSigner(r.cfg.JWTKeyID, r.cfg.JWTIssuer)
		if err != nil {
			return ports.IdentityBackend{}, fmt.Errorf("init ephemeral jwt signer: %w", err)
		}
	}
	r.signer = signer
	provider := identityadapter.NewLocalProvider(records, security.NewBcryptHasher(r.cfg.BcryptCost), signer, r.cfg.TokenTTL, r.logger)
	return ports.InitializedBackend(provider, provider, provider), nil
}

func (r *ServiceRuntime) failedBackend(ctx context.Context, err error) ports.IdentityBackend {
	r.logger.ErrorContext(ctx, "identity provider failed to initialize",
		"module", "bootstrap",
		"layer", "app",
		"operation", "init_identity_backend",
		"outcome", "failure",
		"identity_mode", r.cfg.IdentityMode,
		"error", err,
	)
	return ports.FailedBackend(err)
}

func (r *ServiceRuntime) eventPublisher(ctx context.Context) ports.EventPublisher {
	if len(r.cfg.KafkaBrokers) == 0 {
		return eventadapter.NewLoggingPublisher(r.logger)
	}
	publisher, err := eventadapter.NewKafkaPublisher(r.cfg.KafkaBrokers, map[string]string{
		application.EventTypeIdentityRegistered: r.cfg.KafkaTopicIdentityRegistered,
		application.EventTypeIdentityDeleted:    r.cfg.KafkaTopicIdentityDeleted,
		application.EventTypeAdminToggled:       r.cfg.KafkaTopicAdminToggled,
		eventadapter.EventTypeOperatorAlert:     r.cfg.KafkaTopicOperatorAlert,
	})
	if err != nil {
		r.logger.WarnContext(ctx, "kafka publisher disabled, using logging publisher", "error", err)
		return eventadapter.NewLoggingPublisher(r.logger)
	}
	r.closers = append(r.closers, publisher.Close)
	return publisher
}

// eventConsumer subscribes to identity lifecycle topics only when identities
// live in an external provider. A local provider emits those events itself.
func (r *ServiceRuntime) eventConsumer(ctx context.Context) eventadapter.Consumer {
	if len(r.cfg.KafkaBrokers) == 0 || r.cfg.IdentityMode != IdentityModeOIDC {
		return eventadapter.NewNoopConsumer()
	}
	consumer, err := eventadapter.NewKafkaConsumer(r.cfg.KafkaBrokers, r.cfg.KafkaConsumerGroup, []string{
		r.cfg.KafkaTopicIdentityRegistered,
		r.cfg.KafkaTopicIdentityDeleted,
	})
	if err != nil {
		r.logger.WarnContext(ctx, "kafka consumer disabled, using noop consumer", "error", err)
		return eventadapter.NewNoopConsumer()
	}
	r.closers = append(r.closers, consumer.Close)
	return consumer
}

// Migrate applies the embedded schema. It is a no-op for the memory driver.
func Migrate(ctx context.Context, cfg Config) error {
	if cfg.StoreDriver != StoreDriverPostgres {
		return nil
	}
	db, err := postgres.Connect(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		return err
	}
	defer func() { _ = postgres.Close(db) }()
	return postgres.RunMigrations(ctx, db)
}

// Runtime is the api/worker process: a ServiceRuntime plus its listeners.
type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	core       *ServiceRuntime
	httpServer *http.Server
	grpcServer *grpc.Server
	healthSrv  *health.Server
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := NewLogger(cfg)
	logger.InfoContext(ctx, "bootstrapping storefront identity service",
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"store_driver", cfg.StoreDriver,
		"identity_mode", cfg.IdentityMode,
	)

	core, err := NewServiceRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var opts []httpadapter.HandlerOption
	if core.signer != nil {
		opts = append(opts, httpadapter.WithKeySource(core.signer))
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(httpadapter.NewHandler(core.service, opts...)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	servingStatus := healthpb.HealthCheckResponse_SERVING
	if !core.service.IdentityStatus().Ready {
		servingStatus = healthpb.HealthCheckResponse_NOT_SERVING
	}
	healthSrv.SetServingStatus("", servingStatus)
	grpcadapter.Register(grpcServer, grpcadapter.NewIdentityInternalServer(core.service))

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		core:       core,
		httpServer: httpServer,
		grpcServer: grpcServer,
		healthSrv:  healthSrv,
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		_ = r.core.Close()
		return fmt.Errorf("listen gRPC: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", lis.Addr().String())
		if err := r.grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r.healthSrv.Shutdown()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	if err := r.core.Close(); err != nil {
		r.logger.Warn("close runtime", "error", err)
	}
	return runErr
}

// RunWorker relays the outbox and consumes identity lifecycle events.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		if err := r.core.Close(); err != nil {
			r.logger.Warn("close runtime", "error", err)
		}
	}()

	r.logger.Info("worker started", "consumer_topics", r.core.consumer.Topics())
	errCh := make(chan error, 2)
	go func() {
		if err := r.core.outbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("outbox worker: %w", err)
		}
	}()
	go func() {
		if err := r.core.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("consumer worker: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}
