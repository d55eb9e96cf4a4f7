package lifecycle_test

import (
	"context"
	"testing"

	lifecycle "github.com/spaportal/go-lifecycle"
	"github.com/stretchr/testify/assert"
)

func TestActorContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	_, ok := lifecycle.ActorFromContext(ctx)
	assert.False(t, ok)

	actor := lifecycle.ActorRef{ID: "admin-1", Type: "admin"}
	ctx = lifecycle.WithActorContext(ctx, actor)

	got, ok := lifecycle.ActorFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, actor, got)
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	_, ok := lifecycle.PrincipalFromContext(ctx)
	assert.False(t, ok)

	ctx = lifecycle.WithPrincipalContext(ctx, "admin-1")

	principal, ok := lifecycle.PrincipalFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "admin-1", principal)
}

func TestPrincipalFromRouterContext(t *testing.T) {
	mockCtx := new(MockContext)
	mockCtx.On("Locals", lifecycle.PrincipalLocalsKey).Return("admin-1")

	principal, ok := lifecycle.PrincipalFromRouterContext(mockCtx)
	assert.True(t, ok)
	assert.Equal(t, "admin-1", principal)

	empty := new(MockContext)
	empty.On("Locals", lifecycle.PrincipalLocalsKey).Return(nil)

	_, ok = lifecycle.PrincipalFromRouterContext(empty)
	assert.False(t, ok)
}
