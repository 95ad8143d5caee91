package domain

import (
	"context"

	"github.com/google/uuid"
)

// Actor identifies the principal performing an operation, carried through
// request context so every layer can attribute audit entries.
type Actor struct {
	Type      ActorType
	ID        uuid.UUID
	Name      string
	IPAddress string
	UserAgent string
}

type actorKey struct{}

// WithActor returns a context carrying the given actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor set by WithActor, or a system actor
// when none is present (background jobs, CLI commands).
func ActorFromContext(ctx context.Context) Actor {
	if actor, ok := ctx.Value(actorKey{}).(Actor); ok {
		return actor
	}
	return Actor{Type: ActorSystem}
}

// Apply copies the actor's fields onto an entry.
func (a Actor) Apply(entry *Entry) {
	entry.ActorType = a.Type
	entry.ActorID = a.ID
	entry.ActorName = a.Name
	entry.IPAddress = a.IPAddress
	entry.UserAgent = a.UserAgent
}
