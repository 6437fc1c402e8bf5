package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"proof-leaderboard/config"
	"proof-leaderboard/db"
	"proof-leaderboard/leaderboard"
	"proof-leaderboard/logger"
	"proof-leaderboard/proof"
	"proof-leaderboard/prover"
	"proof-leaderboard/repository"
)

// app holds the wired components shared by every command
type app struct {
	cfg      *config.Config
	ldb      *db.LevelDB
	registry *prometheus.Registry
	jobs     *repository.ProofRepository
	board    *leaderboard.Service
	poller   *proof.Poller
}

// setup loads config, starts logging, opens the store and wires the poller
func setup(path string, interval bool) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if err := logger.InitLogger(logger.Options{
		File:       cfg.Log.AppLogFile,
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Stdout:     cfg.Log.Stdout,
	}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	ldb, err := db.NewLevelDB(cfg.LevelDB.Path)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", cfg.LevelDB.Path, err)
	}

	outputs := proof.DefaultOutputs()
	buckets, err := leaderboard.NewBuckets(proof.DerivedBuckets(outputs))
	if err != nil {
		ldb.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	jobs := repository.NewProofRepository(ldb)
	board := leaderboard.NewService(repository.NewLeaderboardRepository(ldb), buckets)

	client := prover.NewHTTPClient(cfg.Prover, &http.Client{})
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "leaderboard",
		Subsystem: "prover",
		Name:      "breaker_state",
		Help:      "Proving service circuit breaker state (0 closed, 1 open, 2 half-open).",
	}, func() float64 { return float64(client.Breaker().State()) })

	opts := proof.PollerOptions{Concurrency: cfg.Poller.Concurrency}
	if interval && cfg.Poller.Enabled {
		opts.Interval = cfg.Poller.Interval
	}
	poller := proof.NewPoller(
		jobs,
		client,
		proof.NewValidator(proof.SignerKey{X: cfg.Signer.PubKeyX, Y: cfg.Signer.PubKeyY}),
		proof.NewAggregator(jobs, board, outputs),
		proof.NewMetrics(reg),
		opts,
	)

	logger.Logger.Info("Service components ready",
		zap.String("leveldb", cfg.LevelDB.Path),
		zap.String("prover", cfg.Prover.BaseURL),
		zap.Duration("poll_interval", opts.Interval),
		zap.Int("poll_concurrency", opts.Concurrency))

	return &app{cfg: cfg, ldb: ldb, registry: reg, jobs: jobs, board: board, poller: poller}, nil
}

func (a *app) close() {
	if err := a.ldb.Close(); err != nil {
		logger.Logger.Warn("Failed to close leveldb", zap.Error(err))
	}
	logger.Logger.Sync()
}
