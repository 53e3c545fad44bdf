package buildCFG

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"eventsphere/internal/mailer"
)

type ServerConfig struct {
	Port    string
	GinMode string
}

type RabbitConfig struct {
	Url                   string
	Exchange              string
	Queue                 string
	ReconcileDelaySeconds int
	MaxReconcileAttempts  int
}

type AuthConfig struct {
	Secret string
	Issuer string
}

type ProofConfig struct {
	Timeout time.Duration
	Size    int
}

type MigrationConfig struct {
	Dir                string
	RollbackOnShutdown bool
}

func stringOr(cfg *config.Config, key, def string) string {
	if v := cfg.GetString(key); v != "" {
		return v
	}
	return def
}

func intOr(cfg *config.Config, key string, def int) int {
	if v := cfg.GetInt(key); v > 0 {
		return v
	}
	return def
}

func durationOr(cfg *config.Config, key string, def time.Duration) time.Duration {
	if v := cfg.GetDuration(key); v > 0 {
		return v
	}
	return def
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	sc := ServerConfig{
		Port:    stringOr(cfg, "server.port", "8080"),
		GinMode: stringOr(cfg, "server.gin_mode", "release"),
	}
	log.Info().Str("port", sc.Port).Str("gin_mode", sc.GinMode).Msg("server config loaded")
	return sc
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	master := cfg.GetString("db.master_dsn")
	if master == "" {
		return "", nil, nil, errors.New("db.master_dsn is required")
	}
	slaves := cfg.GetStringSlice("db.slave_dsns")
	opts := &dbpg.Options{
		MaxOpenConns:    intOr(cfg, "db.max_open_conns", 20),
		MaxIdleConns:    intOr(cfg, "db.max_idle_conns", 5),
		ConnMaxLifetime: durationOr(cfg, "db.conn_max_lifetime", 30*time.Minute),
	}
	log.Info().Int("slaves", len(slaves)).Int("max_open_conns", opts.MaxOpenConns).Msg("db config loaded")
	return master, slaves, opts, nil
}

func BuildMigrationConfig(cfg *config.Config) MigrationConfig {
	return MigrationConfig{
		Dir:                stringOr(cfg, "db.migrations_dir", "migrations/postgres"),
		RollbackOnShutdown: cfg.GetBool("db.rollback_on_shutdown"),
	}
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Url:                   cfg.GetString("rabbit.url"),
		Exchange:              stringOr(cfg, "rabbit.exchange", "eventsphere.reconcile"),
		Queue:                 stringOr(cfg, "rabbit.queue", "registration-reconcile"),
		ReconcileDelaySeconds: intOr(cfg, "rabbit.reconcile_delay_seconds", 30),
		MaxReconcileAttempts:  intOr(cfg, "rabbit.max_reconcile_attempts", 5),
	}
	if rc.Url == "" {
		return RabbitConfig{}, errors.New("rabbit.url is required")
	}
	log.Info().Str("exchange", rc.Exchange).Str("queue", rc.Queue).Msg("rabbit config loaded")
	return rc, nil
}

func BuildAuthConfig(cfg *config.Config) (AuthConfig, error) {
	ac := AuthConfig{
		Secret: cfg.GetString("auth.jwt_secret"),
		Issuer: stringOr(cfg, "auth.issuer", "eventsphere"),
	}
	if ac.Secret == "" {
		return AuthConfig{}, errors.New("auth.jwt_secret is required")
	}
	return ac, nil
}

func BuildProofConfig(cfg *config.Config) ProofConfig {
	return ProofConfig{
		Timeout: durationOr(cfg, "proof.timeout", 5*time.Second),
		Size:    intOr(cfg, "proof.size", 256),
	}
}

func BuildIdentityCacheTTL(cfg *config.Config) time.Duration {
	return durationOr(cfg, "identity.cache_ttl", 5*time.Minute)
}

func BuildMailerConfig(cfg *config.Config) mailer.Config {
	return mailer.Config{
		Host:      cfg.GetString("mailer.smtp_host"),
		Port:      stringOr(cfg, "mailer.smtp_port", "587"),
		From:      cfg.GetString("mailer.from"),
		Password:  cfg.GetString("mailer.password"),
		Operators: cfg.GetStringSlice("mailer.operators"),
	}
}
