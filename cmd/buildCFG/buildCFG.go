package buildCFG

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"festpass/internal/mailer"
	"festpass/internal/pass"
	"festpass/internal/rabbit"
)

// Source is the subset of *config.Config the builders read.
type Source interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
}

type ServerConfig struct {
	Port            string
	Mode            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	Currency  string
}

type RateLimitConfig struct {
	Window   time.Duration
	Quota    int
	FailOpen bool
	// Backend is "memory" or "redis".
	Backend string
}

type AuthConfig struct {
	SigningKey             string
	Issuer                 string
	TokenTTL               time.Duration
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

type PassConfig struct {
	Options    pass.Options
	RetryDelay time.Duration
}

func BuildServerConfig(cfg Source, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
		log.Warn().Msgf("server.port not set, using %s", port)
	}
	mode := cfg.GetString("server.mode")
	if mode == "" {
		mode = "release"
	}
	return ServerConfig{
		Port:            port,
		Mode:            mode,
		AllowedOrigins:  splitList(cfg.GetString("server.allowed_origins")),
		ShutdownTimeout: duration(cfg, log, "server.shutdown_timeout", 10*time.Second),
	}
}

// BuildDBConfig returns an empty master DSN when no database is configured;
// the caller then runs on the in-memory repository.
func BuildDBConfig(cfg Source, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	master := cfg.GetString("db.master_dsn")
	slaves := splitList(cfg.GetString("db.slave_dsns"))
	if master == "" && len(slaves) > 0 {
		return "", nil, nil, errors.New("db.slave_dsns set without db.master_dsn")
	}

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("db.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("db.max_idle_conns"),
		ConnMaxLifetime: duration(cfg, log, "db.conn_max_lifetime", 30*time.Minute),
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 20
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	return master, slaves, opts, nil
}

func BuildMigrationsPath(cfg Source) string {
	if p := cfg.GetString("db.migrations_path"); p != "" {
		return p
	}
	return "migrations/postgres"
}

func BuildRedisConfig(cfg Source) RedisConfig {
	return RedisConfig{
		Addr:     cfg.GetString("redis.addr"),
		Password: cfg.GetString("redis.password"),
		DB:       cfg.GetInt("redis.db"),
	}
}

// BuildRabbitConfig returns a zero URL when RabbitMQ is not configured.
func BuildRabbitConfig(cfg Source, log *zerolog.Logger) (rabbit.Config, error) {
	rc := rabbit.Config{
		URL:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
		Prefetch: cfg.GetInt("rabbit.prefetch"),
		Delayed:  cfg.GetBool("rabbit.delayed"),
	}
	if rc.URL == "" {
		log.Warn().Msg("rabbit.url not set, background jobs disabled")
		return rc, nil
	}
	if rc.Exchange == "" || rc.Queue == "" {
		return rc, errors.New("rabbit.exchange and rabbit.queue are required")
	}
	if !rc.Delayed {
		log.Warn().Msg("rabbit.delayed is off, job retries are redelivered without backoff")
	}
	return rc, nil
}

func BuildRazorpayConfig(cfg Source) (RazorpayConfig, error) {
	rc := RazorpayConfig{
		KeyID:     cfg.GetString("razorpay.key_id"),
		KeySecret: cfg.GetString("razorpay.key_secret"),
		Currency:  cfg.GetString("razorpay.currency"),
	}
	if rc.KeyID == "" || rc.KeySecret == "" {
		return rc, errors.New("razorpay.key_id and razorpay.key_secret are required")
	}
	if rc.Currency == "" {
		rc.Currency = "INR"
	}
	return rc, nil
}

func BuildRateLimitConfig(cfg Source, log *zerolog.Logger) (RateLimitConfig, error) {
	rl := RateLimitConfig{
		Window:   duration(cfg, log, "ratelimit.window", 15*time.Minute),
		Quota:    cfg.GetInt("ratelimit.quota"),
		FailOpen: true,
		Backend:  strings.ToLower(cfg.GetString("ratelimit.backend")),
	}
	if cfg.GetString("ratelimit.fail_open") != "" {
		rl.FailOpen = cfg.GetBool("ratelimit.fail_open")
	}
	if rl.Quota <= 0 {
		rl.Quota = 10
	}
	switch rl.Backend {
	case "":
		rl.Backend = "memory"
	case "memory", "redis":
	default:
		return rl, fmt.Errorf("unknown ratelimit.backend %q", rl.Backend)
	}
	return rl, nil
}

func BuildAuthConfig(cfg Source, log *zerolog.Logger) (AuthConfig, error) {
	ac := AuthConfig{
		SigningKey:             cfg.GetString("auth.jwt_signing_key"),
		Issuer:                 cfg.GetString("auth.issuer"),
		TokenTTL:               duration(cfg, log, "auth.token_ttl", 12*time.Hour),
		BootstrapAdminEmail:    cfg.GetString("auth.bootstrap_admin_email"),
		BootstrapAdminPassword: cfg.GetString("auth.bootstrap_admin_password"),
	}
	if ac.SigningKey == "" {
		return ac, errors.New("auth.jwt_signing_key is required")
	}
	if ac.Issuer == "" {
		ac.Issuer = "festpass"
	}
	return ac, nil
}

func BuildMailConfig(cfg Source) mailer.Config {
	return mailer.Config{
		Host:      cfg.GetString("mail.host"),
		Port:      cfg.GetInt("mail.port"),
		Username:  cfg.GetString("mail.username"),
		Password:  cfg.GetString("mail.password"),
		From:      cfg.GetString("mail.from"),
		PortalURL: cfg.GetString("mail.portal_url"),
	}
}

func BuildPassConfig(cfg Source, log *zerolog.Logger) (PassConfig, error) {
	opts := pass.DefaultOptions()
	if size := cfg.GetInt("pass.size"); size > 0 {
		opts.Size = size
	}
	if cfg.GetString("pass.border") != "" {
		opts.Border = cfg.GetBool("pass.border")
	}
	if raw := cfg.GetString("pass.foreground"); raw != "" {
		c, err := pass.ParseHexColor(raw)
		if err != nil {
			return PassConfig{}, fmt.Errorf("pass.foreground: %w", err)
		}
		opts.Foreground = c
	}
	if raw := cfg.GetString("pass.background"); raw != "" {
		c, err := pass.ParseHexColor(raw)
		if err != nil {
			return PassConfig{}, fmt.Errorf("pass.background: %w", err)
		}
		opts.Background = c
	}
	return PassConfig{
		Options:    opts,
		RetryDelay: duration(cfg, log, "pass.retry_delay", 30*time.Second),
	}, nil
}

func BuildCatalogSeedPath(cfg Source) string {
	return cfg.GetString("catalog.seed_file")
}

func duration(cfg Source, log *zerolog.Logger, key string, def time.Duration) time.Duration {
	raw := cfg.GetString(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", raw).Msgf("invalid duration, using %s", def)
		return def
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
