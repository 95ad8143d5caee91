package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	authUseCase "github.com/allisson/usp/internal/auth/usecase"
)

// RunCreateUser provisions a new user account. The password is hashed with
// argon2id before storage and never echoed back.
//
// Requirements: Database must be migrated and accessible.
func RunCreateUser(
	ctx context.Context,
	userUseCase authUseCase.UserUseCase,
	logger *slog.Logger,
	writer io.Writer,
	input authUseCase.CreateUserInput,
	format string,
) error {
	logger.Info("creating user", slog.String("username", input.Username))

	user, err := userUseCase.Create(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	if format == "json" {
		if err := outputCreateUserJSON(writer, user.ID.String(), user.Username, user.Email); err != nil {
			return fmt.Errorf("failed to output JSON: %w", err)
		}
	} else {
		outputCreateUserText(writer, user.ID.String(), user.Username, user.Email)
	}

	logger.Info("user created", slog.String("user_id", user.ID.String()))
	return nil
}

// outputCreateUserText outputs the created user in human-readable text format.
func outputCreateUserText(writer io.Writer, id, username, email string) {
	_, _ = fmt.Fprintf(writer, "User Created\n")
	_, _ = fmt.Fprintf(writer, "============\n\n")
	_, _ = fmt.Fprintf(writer, "ID:       %s\n", id)
	_, _ = fmt.Fprintf(writer, "Username: %s\n", username)
	_, _ = fmt.Fprintf(writer, "Email:    %s\n", email)
}

// outputCreateUserJSON outputs the created user in JSON format for machine consumption.
func outputCreateUserJSON(writer io.Writer, id, username, email string) error {
	result := map[string]interface{}{
		"id":       id,
		"username": username,
		"email":    email,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	_, _ = fmt.Fprintln(writer, string(jsonBytes))
	return nil
}
