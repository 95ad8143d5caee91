package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/usp/cmd/app/commands"
	"github.com/allisson/usp/internal/app"
	"github.com/allisson/usp/internal/config"
)

func getSealCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "init-seal",
			Usage: "Initialize the vault and print the key shares",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "shares",
					Aliases: []string{"s"},
					Value:   5,
					Usage:   "Number of key shares to generate",
				},
				&cli.IntFlag{
					Name:    "threshold",
					Aliases: []string{"t"},
					Value:   3,
					Usage:   "Number of shares required to unseal",
				},
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				sealUseCase, err := container.SealUseCase()
				if err != nil {
					return err
				}

				// Seal operations record audit entries.
				if err := container.StartAuditWriter(); err != nil {
					return err
				}

				return commands.RunInitSeal(
					ctx,
					sealUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					int(cmd.Int("shares")),
					int(cmd.Int("threshold")),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "seal-status",
			Usage: "Show the vault seal state",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				sealUseCase, err := container.SealUseCase()
				if err != nil {
					return err
				}

				return commands.RunSealStatus(
					ctx,
					sealUseCase,
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "rekey",
			Usage: "Re-split the master key under new share parameters",
			Flags: []cli.Flag{
				&cli.StringSliceFlag{
					Name:     "share",
					Required: true,
					Usage:    "Current key share (repeat until the quorum is met)",
				},
				&cli.IntFlag{
					Name:    "shares",
					Aliases: []string{"s"},
					Value:   5,
					Usage:   "Number of new key shares to generate",
				},
				&cli.IntFlag{
					Name:    "threshold",
					Aliases: []string{"t"},
					Value:   3,
					Usage:   "Number of new shares required to unseal",
				},
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				sealUseCase, err := container.SealUseCase()
				if err != nil {
					return err
				}

				// Seal operations record audit entries.
				if err := container.StartAuditWriter(); err != nil {
					return err
				}

				return commands.RunRekey(
					ctx,
					sealUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.StringSlice("share"),
					int(cmd.Int("shares")),
					int(cmd.Int("threshold")),
					cmd.String("format"),
				)
			},
		},
	}
}
