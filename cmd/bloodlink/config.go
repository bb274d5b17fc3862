package main

import (
	"context"
	"fmt"

	"bloodlink/internal/matching"
	"bloodlink/internal/store"
	"bloodlink/internal/workflow"
	"bloodlink/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func loadConfig(c *cli.Context) (*types.Config, error) {
	cfg := new(types.Config)
	if err := envconfig.Process(c.String("env-prefix"), cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("set %s_DATABASE_URL", c.String("env-prefix"))
	}

	if cfg.ServerPort == 0 {
		cfg.ServerPort = 8080
	}

	if cfg.ReadTimeoutSec == 0 {
		cfg.ReadTimeoutSec = 10
	}

	if cfg.WriteTimeoutSec == 0 {
		cfg.WriteTimeoutSec = 15
	}

	return cfg, nil
}

func loadAWSConfig(ctx context.Context) (aws.Config, error) {
	config, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}

	return config, nil
}

func newLogger(cfg *types.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).WithField("log_level", cfg.LogLevel).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// newOrchestrator wires the matching workflow on top of pool. serve, seed
// and candidates all drive the same orchestrator.
func newOrchestrator(pool *pgxpool.Pool, logger *logrus.Logger) *workflow.Orchestrator {
	matchStore := store.NewMatchStore(pool)
	emitter := workflow.NewEmitter(store.NewNotificationRepository(pool), logger)
	machine := workflow.NewMachine(matchStore, emitter, logger)
	finder := matching.NewFinder(matchStore, logger)

	return workflow.NewOrchestrator(machine, finder, matchStore, logger)
}
