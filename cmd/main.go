package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"eventsphere/cmd/buildCFG"
	"eventsphere/internal/api/api"
	"eventsphere/internal/auth"
	rabbitReader "eventsphere/internal/consumerWorker"
	"eventsphere/internal/identity"
	"eventsphere/internal/mailer"
	"eventsphere/internal/proof"
	"eventsphere/internal/rabbit"
	"eventsphere/internal/repo"
	"eventsphere/internal/service"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	cfg := config.New()
	if err := cfg.Load("config.yaml", "", ""); err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)

	masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build DB config")
	}
	db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to DB")
	}
	log.Info().Msg("Database connected successfully")

	repository, err := repo.NewRepository(db, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize repository")
	}
	migrationCfg := buildCFG.BuildMigrationConfig(cfg)
	if err := repository.MigrateUp(migrationCfg.Dir); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}
	rmq, err := rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.Queue)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	authCfg, err := buildCFG.BuildAuthConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load auth config")
	}
	verifier := auth.NewJWTManager(authCfg.Secret, 24*time.Hour, authCfg.Issuer)

	proofCfg := buildCFG.BuildProofConfig(cfg)
	proofs := proof.WithTimeout(proof.NewQRGenerator(proofCfg.Size), proofCfg.Timeout)
	directory := identity.NewDirectory(repository, buildCFG.BuildIdentityCacheTTL(cfg))

	registrations := service.NewRegistrationService(repository, proofs, directory, &log,
		service.WithReconcileQueue(rmq, rabbitCfg.ReconcileDelaySeconds))
	events := service.NewEventService(repository, &log)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	reader := rabbitReader.NewReader(rmq, registrations, mailer.New(buildCFG.BuildMailerConfig(cfg), &log),
		rabbitReader.Options{
			MaxAttempts:  rabbitCfg.MaxReconcileAttempts,
			DelaySeconds: rabbitCfg.ReconcileDelaySeconds,
		}, &log)
	reader.Start(workerCtx)

	app := api.NewRouters(&api.Routers{
		Events:        events,
		Registrations: registrations,
		Verifier:      verifier,
		Log:           &log,
		GinMode:       serverCfg.GinMode,
	})

	srv := &http.Server{
		Addr:              ":" + serverCfg.Port,
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Str("signal", sig.String()).Msg("initiating shutdown")
	case err := <-serverErrChan:
		log.Error().Err(err).Msg("server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down server")
	}

	cancelWorkers()
	reader.Stop()

	if migrationCfg.RollbackOnShutdown {
		log.Warn().Msg("rolling back migrations")
		if err := repository.MigrateDown(migrationCfg.Dir); err != nil {
			log.Error().Err(err).Msg("failed to rollback migrations")
		}
	}
	log.Info().Msg("Shutdown complete")
}
