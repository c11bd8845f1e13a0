package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hospital/appointment-scheduling/internal/appointment"
	"github.com/hospital/appointment-scheduling/internal/config"
	"github.com/hospital/appointment-scheduling/internal/db"
	"github.com/hospital/appointment-scheduling/internal/logging"
	"github.com/hospital/appointment-scheduling/internal/metrics"
	redisclient "github.com/hospital/appointment-scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("prod", "info", "delay-worker")
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, "delay-worker")
	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Msg("delay worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.DBMaxConns, cfg.DBMinConns)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	svc := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL),
		cfg,
		appointment.WithLogger(logger),
		appointment.WithMetrics(metrics.New()),
	)

	runOnce(rootCtx, logger, svc)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping delay worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, logger, svc)
		}
	}
}

func runOnce(ctx context.Context, logger zerolog.Logger, svc *appointment.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.SweepDelayed(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("delay sweep failed")
		return
	}
	logger.Debug().Int("delayed", n).Dur("took", time.Since(start)).Msg("delay run complete")
}
