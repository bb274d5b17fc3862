package main

import (
	"fmt"

	"bloodlink/internal/utils"

	"github.com/urfave/cli/v2"
)

var nanoidCommand = &cli.Command{
	Name:  "nanoid",
	Usage: "Generate entity ids for fixtures and manual inserts",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"c"},
			Usage:   "Number of IDs to generate",
			Value:   1,
		},
		&cli.IntFlag{
			Name:  "size",
			Usage: "ID length",
			Value: utils.NanoidSize,
		},
	},
	Action: func(c *cli.Context) error {
		for range c.Int("count") {
			fmt.Println(utils.NanoIDSize(c.Int("size")))
		}
		return nil
	},
}
