// Package domain defines the authorization model: roles, permissions, and
// attribute-based access policies evaluated on every operation.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is a named bundle of permissions.
type Role struct {
	ID          uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
}

// Permission grants an action on a resource pattern. Patterns match path
// segments; a trailing "*" segment matches any suffix and "*" alone matches
// everything.
type Permission struct {
	ID       uuid.UUID
	Resource string
	Action   string
}

// Allows reports whether this permission covers the resource/action pair.
func (p *Permission) Allows(resource, action string) bool {
	if p.Action != "*" && p.Action != action {
		return false
	}
	return MatchResource(p.Resource, resource)
}

// MatchResource matches a resource against a pattern, segment by segment.
func MatchResource(pattern, resource string) bool {
	if pattern == "*" {
		return true
	}

	patternParts := strings.Split(pattern, "/")
	resourceParts := strings.Split(resource, "/")

	for i, part := range patternParts {
		if part == "*" && i == len(patternParts)-1 {
			return true
		}
		if i >= len(resourceParts) || (part != "*" && part != resourceParts[i]) {
			return false
		}
	}

	return len(patternParts) == len(resourceParts)
}
