package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/usp/cmd/app/commands"
	"github.com/allisson/usp/internal/app"
	authUseCase "github.com/allisson/usp/internal/auth/usecase"
	"github.com/allisson/usp/internal/config"
)

func getAuthCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-user",
			Usage: "Provision a new user account",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "username",
					Aliases:  []string{"u"},
					Required: true,
					Usage:    "Unique login name",
				},
				&cli.StringFlag{
					Name:     "email",
					Aliases:  []string{"e"},
					Required: true,
					Usage:    "Email address",
				},
				&cli.StringFlag{
					Name:     "password",
					Aliases:  []string{"p"},
					Required: true,
					Usage:    "Initial password",
				},
				&cli.StringFlag{
					Name:    "name",
					Aliases: []string{"n"},
					Value:   "",
					Usage:   "Display name",
				},
				&cli.StringFlag{
					Name:  "given-name",
					Value: "",
					Usage: "Given name",
				},
				&cli.StringFlag{
					Name:  "family-name",
					Value: "",
					Usage: "Family name",
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

				userUseCase, err := container.UserUseCase()
				if err != nil {
					return err
				}

				// User provisioning records audit entries.
				if err := container.StartAuditWriter(); err != nil {
					return err
				}

				return commands.RunCreateUser(
					ctx,
					userUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					authUseCase.CreateUserInput{
						Username:   cmd.String("username"),
						Name:       cmd.String("name"),
						Email:      cmd.String("email"),
						GivenName:  cmd.String("given-name"),
						FamilyName: cmd.String("family-name"),
						Password:   cmd.String("password"),
					},
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "clean-expired-sessions",
			Usage: "Delete expired sessions and stale MFA challenges",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				useCase, err := container.AuthUseCase()
				if err != nil {
					return err
				}

				if err := container.StartAuditWriter(); err != nil {
					return err
				}

				return commands.RunCleanExpiredSessions(
					ctx,
					useCase,
					container.Logger(),
					commands.DefaultIO().Writer,
				)
			},
		},
	}
}
