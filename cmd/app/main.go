// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"velvet-metal/internal/config"
	"velvet-metal/internal/domain/model"
	"velvet-metal/internal/domain/ports/adapter"
	"velvet-metal/internal/infra/adapters/identity"
	"velvet-metal/internal/infra/adapters/music"
	"velvet-metal/internal/infra/adapters/storage"
	"velvet-metal/internal/infra/api"
	pg "velvet-metal/internal/infra/db/postgres"
	"velvet-metal/internal/infra/i18n"
	"velvet-metal/internal/infra/logging"
	"velvet-metal/internal/infra/metrics"
	"velvet-metal/internal/infra/preview"
	red "velvet-metal/internal/infra/redis"
	"velvet-metal/internal/infra/sched"
	"velvet-metal/internal/infra/security"
	"velvet-metal/internal/infra/web"
	"velvet-metal/internal/infra/worker"
	"velvet-metal/internal/usecase"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set through -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, no PII redaction)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		logging.Global.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Token sealing ----
	var sealer pg.TokenSealer
	if cfg.Security.EncryptionKey != "" {
		ts, err := security.NewTokenSealer(cfg.Security.EncryptionKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("token sealer")
		}
		sealer = ts
	} else if cfg.Runtime.Dev {
		logger.Warn().Msg("security.encryption_key empty; storing service tokens unencrypted")
		sealer = security.PlainSealer{}
	} else {
		logger.Fatal().Msg("security.encryption_key is required outside dev mode")
	}

	// ---- Repositories ----
	tierRepo := pg.NewTierRepoCacheDecorator(pg.NewTierRepo(pool), redisClient, cfg.Redis.TTL, logger)
	profileRepo := pg.NewProfileRepo(pool)
	connRepo := pg.NewConnectionRepo(pool, sealer)
	stateRepo := red.NewRegistrationStateRepo(redisClient, cfg.Wizard.StepTTL)

	// ---- Adapters ----
	identityClient, err := identity.NewGoTrueClient(cfg.Identity.URL, cfg.Identity.APIKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("identity client")
	}
	storageClient, err := storage.NewRESTStorage(cfg.Storage.URL, cfg.Storage.ServiceKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage client")
	}
	connectors, err := music.NewConnectors(cfg.Connectors, cfg.HTTP.BaseURL)
	switch {
	case music.IsNoConnectors(err):
		logger.Warn().Msg("no music connectors configured; the wizard cannot be completed until one is")
		connectors = map[model.Service]adapter.MusicConnector{}
	case err != nil:
		logger.Fatal().Err(err).Msg("music connectors")
	}

	// ---- Workers ----
	jobs := worker.NewPool(cfg.Workers.Count, logger)
	jobs.Start(ctx)
	defer jobs.Stop()

	previews := preview.NewStore(cfg.Wizard.PreviewTTL, 0)
	auth := web.NewAuthManager(cfg.HTTP.SessionSecret, cfg.HTTP.SecureCookies, cfg.HTTP.CookieDomain, cfg.HTTP.SessionTTL)

	// ---- Use cases ----
	tierUC := usecase.NewTierUseCase(tierRepo, logger)
	regUC := usecase.NewRegistrationUseCase(
		identityClient,
		storageClient,
		profileRepo,
		previews,
		red.NewRateLimiter(redisClient),
		usecase.RegistrationConfig{
			AvatarBucket:    cfg.Storage.AvatarBucket,
			SignupRateLimit: cfg.Wizard.SignupRateLimit,
			SignupWindow:    cfg.Wizard.SignupWindow,
			Dev:             cfg.Runtime.Dev,
		},
		logger,
	)
	connUC := usecase.NewConnectionUseCase(connRepo, connectors, auth, pg.NewTxManager(pool), jobs, red.NewLocker(redisClient), logger)
	wizUC := usecase.NewWizardUseCase(
		stateRepo,
		profileRepo,
		regUC,
		tierUC,
		connUC,
		previews,
		usecase.WizardConfig{AvatarMaxBytes: cfg.Wizard.AvatarMaxBytes},
		logger,
	)

	// ---- Background sweeper ----
	sweeper := sched.NewSyncSweeper(cfg.Workers.SweepInterval, cfg.Workers.StaleSyncAfter, connUC, logger)
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("sync sweeper stopped")
		}
	}()

	// ---- HTTP ----
	templates, err := web.NewTemplates(nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("templates")
	}
	handlers := web.NewHandlers(
		wizUC,
		tierUC,
		connUC,
		previews,
		auth,
		templates,
		i18n.MustDefault(),
		web.HandlersConfig{
			PollInterval:   cfg.Wizard.PollInterval,
			AvatarMaxBytes: cfg.Wizard.AvatarMaxBytes,
		},
		logger,
	)
	apiServer := api.NewServer(tierUC, logger,
		api.HealthCheck{Name: "postgres", Check: pool.Ping},
		api.HealthCheck{Name: "redis", Check: redisClient.Ping},
	)
	srv := web.NewServer(
		web.ServerConfig{
			Addr:         cfg.HTTP.Addr,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		},
		handlers,
		apiServer,
		logger,
		map[string]http.Handler{"/metrics": promhttp.Handler()},
	)

	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Str("version", version).Msg("HTTP server listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
