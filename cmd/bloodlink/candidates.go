package main

import (
	"context"
	"fmt"

	"bloodlink/internal/db"
	"bloodlink/internal/matching"
	"bloodlink/internal/workflow"

	"github.com/k0kubun/pp/v3"
	"github.com/urfave/cli/v2"
)

var candidatesCommand = &cli.Command{
	Name:  "candidates",
	Usage: "Print the ranked donor candidates for a blood request",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "request",
			Aliases:  []string{"r"},
			Usage:    "Blood request id",
			Required: true,
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of candidates, 0 for all",
			Value:   20,
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

		// Operators act with admin rights.
		seq, err := newOrchestrator(pool, logger).FindCandidates(ctx, c.String("request"), workflow.Actor{IsAdmin: true})
		if err != nil {
			return err
		}

		candidates := matching.Take(seq, c.Int("limit"))
		if len(candidates) == 0 {
			fmt.Println("no eligible donors")
			return nil
		}

		printer := pp.New()
		printer.SetColoringEnabled(false)
		for i, candidate := range candidates {
			fmt.Printf("#%d %s\n", i+1, candidate.Tier)
			printer.Println(candidate)
		}

		return nil
	},
}
