package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/usp/cmd/app/commands"
	"github.com/allisson/usp/internal/app"
	"github.com/allisson/usp/internal/config"
)

func getPamCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "rotate-due-accounts",
			Usage: "Rotate privileged accounts whose schedule is due",
			Flags: []cli.Flag{
				&cli.StringSliceFlag{
					Name:     "share",
					Required: true,
					Usage:    "Key share to unseal the vault (repeat until the quorum is met)",
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

				rotationUseCase, err := container.RotationUseCase()
				if err != nil {
					return err
				}

				// Rotation records audit entries.
				if err := container.StartAuditWriter(); err != nil {
					return err
				}

				return commands.RunRotateDueAccounts(
					ctx,
					sealUseCase,
					rotationUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.StringSlice("share"),
				)
			},
		},
	}
}
