package capability

import (
	"context"
	"errors"

	"github.com/lodgekit/extensions/internal/audit"
)

// ErrForbidden is the fixed denial returned for every failed capability
// check. It carries no detail about the capability or the actor so denied
// callers learn nothing about the gate they hit.
var ErrForbidden = errors.New("forbidden")

// Actor identifies the authenticated caller of a guarded operation.
type Actor struct {
	ID   string
	Role string
}

// IdentityProvider resolves the current actor from the request context.
// The second return is false when the request is unauthenticated.
type IdentityProvider interface {
	Current(ctx context.Context) (Actor, bool)
}

// IdentityFunc adapts a function to the IdentityProvider interface.
type IdentityFunc func(ctx context.Context) (Actor, bool)

// Current calls the wrapped function.
func (f IdentityFunc) Current(ctx context.Context) (Actor, bool) {
	return f(ctx)
}

// Authorizer gates operations behind capabilities using the static registry
// and the current actor identity.
type Authorizer struct {
	registry *Registry
	identity IdentityProvider
	sink     audit.Sink
}

// NewAuthorizer builds an Authorizer. The audit sink may be nil.
func NewAuthorizer(registry *Registry, identity IdentityProvider, sink audit.Sink) *Authorizer {
	return &Authorizer{registry: registry, identity: identity, sink: sink}
}

// Authorize allows or denies the current actor for the named capability.
// An empty capability means the operation is public and always passes,
// regardless of actor state. A declared capability with an empty role list
// admits any authenticated actor. Every denial is recorded to the audit
// sink and surfaces as ErrForbidden.
func (a *Authorizer) Authorize(ctx context.Context, capability string) error {
	if capability == "" {
		return nil
	}

	actor, ok := a.currentActor(ctx)
	if !ok {
		a.deny(capability, Actor{})
		return ErrForbidden
	}

	roles, exists := a.registry.Roles(capability)
	if !exists {
		a.deny(capability, actor)
		return ErrForbidden
	}

	// An explicitly empty role list opens the capability to any
	// authenticated actor.
	if len(roles) == 0 {
		return nil
	}

	for _, role := range roles {
		if role == actor.Role {
			return nil
		}
	}

	a.deny(capability, actor)
	return ErrForbidden
}

func (a *Authorizer) currentActor(ctx context.Context) (Actor, bool) {
	if a == nil || a.identity == nil {
		return Actor{}, false
	}
	return a.identity.Current(ctx)
}

func (a *Authorizer) deny(capability string, actor Actor) {
	if a == nil || a.sink == nil {
		return
	}
	a.sink.Record(audit.Event{
		Kind:   audit.KindAuthorizationDeny,
		Actor:  actor.ID,
		Detail: "capability " + capability,
	})
}
