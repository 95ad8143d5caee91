// Package connector implements per-platform credential operations for the
// rotation engine. A connector can verify a credential, rotate it, and
// generate a replacement satisfying the platform's complexity rules.
package connector

import (
	"context"
	"sync"

	apperrors "github.com/allisson/usp/internal/errors"
	pamDomain "github.com/allisson/usp/internal/pam/domain"
)

// Target carries the connection coordinates of one privileged account.
// Passwords travel separately so they never end up in logged structs.
type Target struct {
	Platform pamDomain.Platform
	Username string
	Host     string
	Port     uint
	Database string
}

// Connector is one platform's credential operations. Implementations must
// never log plaintext passwords.
type Connector interface {
	// Verify authenticates with the given password and fails when the
	// platform rejects it.
	Verify(ctx context.Context, target Target, password string) error

	// Rotate changes the target's password from current to next. The
	// rotation engine calls Rotate(next, current) to revert.
	Rotate(ctx context.Context, target Target, current, next string) error

	// Generate produces a fresh password meeting the platform's rules.
	Generate() (string, error)
}

// Registry maps platforms to their connectors.
type Registry struct {
	mutex      sync.RWMutex
	connectors map[pamDomain.Platform]Connector
}

// NewRegistry creates an empty connector registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[pamDomain.Platform]Connector)}
}

// Register binds a connector to a platform, replacing any previous one.
func (r *Registry) Register(platform pamDomain.Platform, connector Connector) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.connectors[platform] = connector
}

// Get returns the connector for a platform, or ErrNotSupported when no
// connector was registered for it.
func (r *Registry) Get(platform pamDomain.Platform) (Connector, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	connector, ok := r.connectors[platform]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotSupported, "no connector for platform %q", platform)
	}
	return connector, nil
}
