package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatic(t *testing.T) {
	id, ok := Static{UserID: "u1", Role: RoleUser}.Current(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "u1", id.UserID)

	_, ok = Static{}.Current(context.Background())
	assert.False(t, ok)
}

func TestContextProvider(t *testing.T) {
	var p Provider = ContextProvider{}

	_, ok := p.Current(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "admin-1", Role: RoleAdmin})
	id, ok := p.Current(ctx)
	assert.True(t, ok)
	assert.Equal(t, Identity{UserID: "admin-1", Role: RoleAdmin}, id)
}
