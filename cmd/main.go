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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"festpass/cmd/buildCFG"
	"festpass/internal/api/api"
	"festpass/internal/auth"
	"festpass/internal/catalog"
	rabbitReader "festpass/internal/consumerWorker"
	"festpass/internal/mailer"
	"festpass/internal/metrics"
	"festpass/internal/model"
	"festpass/internal/pass"
	"festpass/internal/payment"
	"festpass/internal/rabbit"
	"festpass/internal/ratelimit"
	"festpass/internal/repo"
	"festpass/internal/service"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	configPath := os.Getenv("FESTPASS_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg := config.New()
	if err := cfg.Load(configPath, "", "FESTPASS"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}

	serverCfg := buildCFG.BuildServerConfig(cfg, &log)
	razorpayCfg, err := buildCFG.BuildRazorpayConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("payment gateway config")
	}
	authCfg, err := buildCFG.BuildAuthConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("auth config")
	}
	limitCfg, err := buildCFG.BuildRateLimitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("rate limit config")
	}
	passCfg, err := buildCFG.BuildPassConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("pass config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	repository := openRepository(cfg, &log)

	if seedPath := buildCFG.BuildCatalogSeedPath(cfg); seedPath != "" {
		f, err := catalog.FromFile(seedPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load catalog seed")
		}
		if err := catalog.Seed(ctx, repository, f, &log); err != nil {
			log.Fatal().Err(err).Msg("failed to seed catalog")
		}
	}
	if err := bootstrapAdmin(ctx, repository, authCfg, &log); err != nil {
		log.Fatal().Err(err).Msg("failed to create bootstrap admin")
	}

	limiter := ratelimit.New(openLimiterStore(cfg, limitCfg, &log),
		ratelimit.WithWindow(limitCfg.Window),
		ratelimit.WithQuota(limitCfg.Quota),
		ratelimit.WithFailOpen(limitCfg.FailOpen),
		ratelimit.WithLogger(&log),
		ratelimit.WithMetrics(m),
	)

	gateway, err := payment.NewRazorpay(razorpayCfg.KeyID, razorpayCfg.KeySecret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create payment gateway client")
	}
	signer, err := payment.NewSigner(razorpayCfg.KeySecret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create payment signer")
	}

	opts := []service.Option{
		service.WithMetrics(m),
		service.WithCurrency(razorpayCfg.Currency),
		service.WithKeyID(gateway.KeyID()),
		service.WithPassRetryDelay(passCfg.RetryDelay),
	}

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}
	var rmq *rabbit.Client
	if rabbitCfg.URL != "" {
		rmq, err = rabbit.NewRabbit(rabbitCfg)
		if err != nil {
			log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rmq.Close()
		opts = append(opts, service.WithPublisher(rmq))
	}

	serviceInstance := service.NewService(repository, gateway, signer, pass.New(passCfg.Options), &log, opts...)

	var reader *rabbitReader.Reader
	if rmq != nil {
		notifier := mailer.New(buildCFG.BuildMailConfig(cfg), &log)
		if !notifier.Enabled() {
			log.Warn().Msg("mail.host not set, confirmation emails disabled")
		}
		reader = rabbitReader.NewReader(rmq, serviceInstance, notifier, &log, m)
		if err := reader.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start job reader")
		}
	}

	tokens, err := auth.NewTokenService(authCfg.SigningKey, authCfg.Issuer, authCfg.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token service")
	}
	app := api.NewRouters(&api.Routers{
		Service:        serviceInstance,
		Auth:           auth.NewAuthenticator(repository, tokens),
		Limiter:        limiter,
		Gatherer:       registry,
		AllowedOrigins: serverCfg.AllowedOrigins,
		Log:            &log,
		Mode:           serverCfg.Mode,
	})

	srv := &http.Server{
		Addr:              ":" + serverCfg.Port,
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal")
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Msgf("Error shutting down server: %v", err)
	}
	if reader != nil {
		reader.Stop()
	}
	log.Info().Msg("Shutdown complete")
}

// openRepository connects to Postgres and applies migrations. Without a DSN
// the portal runs on the in-memory repository.
func openRepository(cfg *config.Config, log *zerolog.Logger) repo.Repository {
	masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build DB config")
	}
	if masterDSN == "" {
		log.Warn().Msg("db.master_dsn not set, using in-memory storage")
		return repo.NewMemory()
	}

	db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
	if err != nil {
		log.Fatal().Msgf("failed to connect to DB: %v", err)
	}
	repository, err := repo.NewPostgres(db, log)
	if err != nil {
		log.Fatal().Msgf("failed to initialize repository: %v", err)
	}
	log.Info().Msg("Database connected successfully")

	if err := repository.MigrateUp(buildCFG.BuildMigrationsPath(cfg)); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("Migrations applied successfully")
	return repository
}

func openLimiterStore(cfg *config.Config, lc buildCFG.RateLimitConfig, log *zerolog.Logger) ratelimit.Store {
	if lc.Backend != "redis" {
		return ratelimit.NewMemoryStore()
	}
	rc := buildCFG.BuildRedisConfig(cfg)
	if rc.Addr == "" {
		log.Fatal().Msg("ratelimit.backend is redis but redis.addr is not set")
	}
	client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// the limiter applies its fail policy per request
		log.Warn().Err(err).Msg("redis ping failed")
	}
	return ratelimit.NewRedisStore(client)
}

func bootstrapAdmin(ctx context.Context, store repo.Repository, ac buildCFG.AuthConfig, log *zerolog.Logger) error {
	if ac.BootstrapAdminEmail == "" || ac.BootstrapAdminPassword == "" {
		return nil
	}
	_, err := store.GetStaffByEmail(ctx, ac.BootstrapAdminEmail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	hash, err := auth.HashPassword(ac.BootstrapAdminPassword)
	if err != nil {
		return err
	}
	admin := &model.Staff{Email: ac.BootstrapAdminEmail, Name: "Administrator", Role: model.RoleAdmin, PasswordHash: hash}
	if err := store.UpsertStaff(ctx, admin); err != nil {
		return err
	}
	log.Info().Str("email", admin.Email).Msg("bootstrap admin created")
	return nil
}
