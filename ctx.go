package lifecycle

import (
	"context"

	"github.com/goliatone/go-router"
)

var actorCtxKey = &contextKey{"actor"}
var principalCtxKey = &contextKey{"principal"}

type contextKey struct {
	name string
}

// WithActorContext sets the ActorRef in the given context
func WithActorContext(r context.Context, actor ActorRef) context.Context {
	return context.WithValue(r, actorCtxKey, actor)
}

// ActorFromContext finds the transition actor from the context.
func ActorFromContext(ctx context.Context) (ActorRef, bool) {
	raw, ok := ctx.Value(actorCtxKey).(ActorRef)
	return raw, ok
}

// WithPrincipalContext sets the authenticated principal id in the given context
func WithPrincipalContext(r context.Context, principalID string) context.Context {
	return context.WithValue(r, principalCtxKey, principalID)
}

// PrincipalFromContext extracts the authenticated principal id from the
// standard context
func PrincipalFromContext(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(principalCtxKey).(string)
	return raw, ok
}

// PrincipalFromRouterContext extracts the principal id stored by the
// session middleware from the router context
func PrincipalFromRouterContext(ctx router.Context) (string, bool) {
	raw := ctx.Locals(PrincipalLocalsKey)
	if raw == nil {
		return "", false
	}
	principal, ok := raw.(string)
	return principal, ok
}
