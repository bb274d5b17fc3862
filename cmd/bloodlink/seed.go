package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"bloodlink/internal/db"
	"bloodlink/internal/seed"
	"bloodlink/internal/store"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var seedCommand = &cli.Command{
	Name:  "seed",
	Usage: "Seed the database with demo users, donors and requests",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "requests",
			Usage: "Number of demo blood requests to create",
			Value: 10,
		},
		&cli.BoolFlag{
			Name:  "reset",
			Usage: "Delete previously seeded requests first",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctx := context.Background()
		logger := newLogger(cfg)

		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		logrus.Info("Connected to database")

		orchestrator := newOrchestrator(pool, logger)

		logrus.Info("Seeding users...")
		if err := seed.SeedUsers(ctx, store.NewUserRepository(pool)); err != nil {
			return fmt.Errorf("failed to seed users: %w", err)
		}

		logrus.Info("Seeding donors...")
		if err := seed.SeedDonors(ctx, store.NewDonorRepository(pool), orchestrator); err != nil {
			return fmt.Errorf("failed to seed donors: %w", err)
		}

		logrus.Info("Seeding requests...")
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		err = seed.SeedRequests(ctx, pool, store.NewBloodRequestRepository(pool), orchestrator, rng, c.Int("requests"), c.Bool("reset"))
		if err != nil {
			return fmt.Errorf("failed to seed requests: %w", err)
		}

		logrus.Info("Seed data loaded successfully")

		return nil
	},
}
