package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"paperroom/pkg/secrets"

	"paperroom/internal/onboarding"
	"paperroom/internal/platform/config"
	"paperroom/internal/platform/database"
	"paperroom/internal/platform/health"
	"paperroom/internal/platform/logger"
	provisioningHandler "paperroom/internal/provisioning/handler"
	"paperroom/internal/provisioning/metrics"
	"paperroom/internal/provisioning/migrate"
	"paperroom/internal/provisioning/providers"
	"paperroom/internal/provisioning/providers/clients"
	"paperroom/internal/provisioning/seed"
	provisioningService "paperroom/internal/provisioning/service"
	"paperroom/internal/provisioning/tracer"
	inviteStore "paperroom/internal/tenant/store/invite"
	tenantStore "paperroom/internal/tenant/store/tenant"
	httptransport "paperroom/internal/transport/http"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("production").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment)

	log.Info("initializing paperroom",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"provider", cfg.Provider,
	)

	vault, err := secrets.NewVault(cfg.VaultSecret)
	if err != nil {
		log.Error("invalid vault secret", "error", err)
		os.Exit(1)
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("control-plane database unavailable", "error", err)
		os.Exit(1)
	}

	var (
		tenants      provisioningService.TenantStore
		invites      provisioningService.InviteStore
		sessions     provisioningService.OnboardingStore
		countTenants func(context.Context) (int, error)
	)
	if pool != nil {
		defer pool.Close() //nolint:errcheck

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := pool.Migrate(ctx); err != nil {
			cancel()
			log.Error("control-plane migration failed", "error", err)
			os.Exit(1)
		}
		cancel()

		pgTenants := tenantStore.NewPostgres(pool.DB())
		tenants = pgTenants
		countTenants = pgTenants.Count
		invites = inviteStore.NewPostgres(pool.DB())
		sessions = onboarding.NewPostgresStore(pool.DB())
	} else {
		log.Warn("no DATABASE_URL configured, using in-memory stores")
		memTenants := tenantStore.NewInMemory()
		tenants = memTenants
		countTenants = memTenants.Count
		invites = inviteStore.NewInMemory()
		sessions = onboarding.NewInMemoryStore()
	}

	var managed *providers.Managed
	if cfg.Managed.Configured() {
		managed = providers.NewManaged(
			clients.NewManagedAPI(cfg.Managed.APIURL, cfg.Managed.APIKey, cfg.Managed.OrgID, cfg.Managed.Region),
		)
	}
	var iac *providers.IaC
	if cfg.IaC.Configured() {
		iac = providers.NewIaC(
			clients.NewIaCAPI(cfg.IaC.APIURL, cfg.IaC.ServiceAccountJSON, cfg.IaC.Project, cfg.IaC.Region),
			providers.IaCConfig{
				SharedInstance:    cfg.IaC.SharedInstance,
				SharedInstanceRef: cfg.IaC.SharedInstanceRef,
			},
		)
	}
	factory := providers.NewFactory(cfg.Provider, providers.Credentials{
		ManagedConfigured: cfg.Managed.Configured(),
		IaCConfigured:     cfg.IaC.Configured(),
	}, managed, iac, log)

	runner := migrate.New(migrate.NewSQLExecutor(),
		migrate.WithMaxAttempts(cfg.Migration.MaxAttempts),
		migrate.WithRetryDelay(cfg.Migration.RetryDelay),
		migrate.WithAttemptTimeout(cfg.Migration.AttemptTimeout),
		migrate.WithLogger(log),
	)
	seeder := seed.New(seed.NewPgxSessions(), log)

	metrics.RegisterTenantGauge(prometheus.DefaultRegisterer, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := countTenants(ctx)
		if err != nil {
			log.Warn("could not count tenants for metrics", "error", err)
			return 0
		}
		return float64(n)
	})

	svc := provisioningService.NewService(
		tenants, invites, sessions, factory, runner, seeder, vault,
		provisioningService.WithLogger(log),
		provisioningService.WithTracer(tracer.NewOTel()),
		provisioningService.WithMetrics(metrics.New()),
		provisioningService.WithInviteSigning([]byte(cfg.InviteSigningKey), cfg.InviteTTL),
	)

	healthHandler := health.New(cfg.Environment)
	if pool != nil {
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
	}

	router := httptransport.NewRouter(
		provisioningHandler.New(svc, log),
		healthHandler,
		log,
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("starting http server", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
