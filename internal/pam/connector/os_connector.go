package connector

import (
	"context"

	apperrors "github.com/allisson/usp/internal/errors"
	pamService "github.com/allisson/usp/internal/pam/service"
)

// RemoteExecutor runs a command on a managed host as a given identity.
// Implementations wrap SSH, WinRM, or an agent channel; stdin carries
// secrets so they never appear on a command line.
type RemoteExecutor interface {
	Run(ctx context.Context, target Target, password string, command string, stdin string) (string, error)
}

// ExecConnector rotates OS account passwords through a RemoteExecutor.
// The command builders return (command, stdin) pairs per platform.
type ExecConnector struct {
	executor  RemoteExecutor
	generator *pamService.PasswordGenerator
	verifyCmd func(target Target) (string, string)
	rotateCmd func(target Target, next string) (string, string)
}

// NewLinuxConnector rotates local Linux users with chpasswd over the
// executor channel.
func NewLinuxConnector(executor RemoteExecutor, generator *pamService.PasswordGenerator) *ExecConnector {
	return &ExecConnector{
		executor:  executor,
		generator: generator,
		verifyCmd: func(_ Target) (string, string) {
			return "true", ""
		},
		rotateCmd: func(target Target, next string) (string, string) {
			return "chpasswd", target.Username + ":" + next + "\n"
		},
	}
}

// NewSSHConnector is the Linux connector under a different platform label:
// ssh-keyed accounts still carry a password credential rotated the same way.
func NewSSHConnector(executor RemoteExecutor, generator *pamService.PasswordGenerator) *ExecConnector {
	return NewLinuxConnector(executor, generator)
}

// NewWindowsConnector rotates local Windows users with net user through
// the executor channel; the password travels on stdin.
func NewWindowsConnector(executor RemoteExecutor, generator *pamService.PasswordGenerator) *ExecConnector {
	return &ExecConnector{
		executor:  executor,
		generator: generator,
		verifyCmd: func(_ Target) (string, string) {
			return "whoami", ""
		},
		rotateCmd: func(target Target, next string) (string, string) {
			return `$p = [Console]::In.ReadLine(); net user ` + target.Username + ` "$p"`, next + "\n"
		},
	}
}

func (c *ExecConnector) Verify(ctx context.Context, target Target, password string) error {
	if !identifierPattern.MatchString(target.Username) {
		return apperrors.Wrapf(apperrors.ErrInvalidInput, "invalid username %q", target.Username)
	}

	command, stdin := c.verifyCmd(target)
	if _, err := c.executor.Run(ctx, target, password, command, stdin); err != nil {
		return classifyExternal(err)
	}
	return nil
}

func (c *ExecConnector) Rotate(ctx context.Context, target Target, current, next string) error {
	if !identifierPattern.MatchString(target.Username) {
		return apperrors.Wrapf(apperrors.ErrInvalidInput, "invalid username %q", target.Username)
	}

	command, stdin := c.rotateCmd(target, next)
	if _, err := c.executor.Run(ctx, target, current, command, stdin); err != nil {
		return classifyExternal(err)
	}
	return nil
}

func (c *ExecConnector) Generate() (string, error) {
	return c.generator.Generate()
}

// CredentialClient manages credentials held by an external provider, such
// as IAM console passwords. Implementations wrap the provider's SDK; tests
// use deterministic fakes.
type CredentialClient interface {
	// VerifyCredential checks that the given secret is valid for the user.
	VerifyCredential(ctx context.Context, username, secret string) error
	// SetCredential replaces the user's secret with the given value.
	SetCredential(ctx context.Context, username, secret string) error
}

// ClientConnector rotates provider-held credentials (the aws-iam platform)
// through a CredentialClient.
type ClientConnector struct {
	client    CredentialClient
	generator *pamService.PasswordGenerator
}

// NewAwsIamConnector wires the aws-iam connector over the given client.
func NewAwsIamConnector(client CredentialClient, generator *pamService.PasswordGenerator) *ClientConnector {
	return &ClientConnector{client: client, generator: generator}
}

func (c *ClientConnector) Verify(ctx context.Context, target Target, password string) error {
	if err := c.client.VerifyCredential(ctx, target.Username, password); err != nil {
		return classifyExternal(err)
	}
	return nil
}

func (c *ClientConnector) Rotate(ctx context.Context, target Target, _, next string) error {
	if err := c.client.SetCredential(ctx, target.Username, next); err != nil {
		return classifyExternal(err)
	}
	return nil
}

func (c *ClientConnector) Generate() (string, error) {
	return c.generator.Generate()
}
