// Package actor identifies who performed a pantry change: a household
// member authenticated by bearer token, or one of the service's own
// background sources.
package actor

import (
	"context"
	"fmt"
)

// Actor is the entity performing an action
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	// System marks service-originated actions (recognition, expiry scans)
	System bool `json:"system,omitempty"`
}

// String returns a representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "anonymous"
	}
	if a.System {
		return "system:" + a.ID
	}
	if a.Email != "" {
		return fmt.Sprintf("%s (%s)", a.ID, a.Email)
	}
	return a.ID
}

type contextKey string

const actorContextKey contextKey = "actor"

// FromContext returns the actor attached to ctx, or nil
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, _ := ctx.Value(actorContextKey).(*Actor)
	return a
}

// WithActor attaches a to ctx
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// ID returns the id of the actor attached to ctx, or "" when there is none
func ID(ctx context.Context) string {
	if a := FromContext(ctx); a != nil {
		return a.ID
	}
	return ""
}

// System returns an actor standing for a background source of the service
func System(source string) *Actor {
	return &Actor{ID: source, Name: source, System: true}
}

// IsSystem reports whether the actor is a background source. A missing
// actor counts as the system.
func (a *Actor) IsSystem() bool {
	return a == nil || a.System
}
