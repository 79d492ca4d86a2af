// Package identity answers "who is the current authenticated caller".
package identity

import "context"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Identity struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// Provider resolves the current identity. ok is false when nobody is signed in.
type Provider interface {
	Current(ctx context.Context) (id Identity, ok bool)
}

// Static always reports the same identity. An empty UserID means anonymous.
type Static Identity

func (s Static) Current(context.Context) (Identity, bool) {
	if s.UserID == "" {
		return Identity{}, false
	}
	return Identity(s), true
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, false
	}
	return id, true
}

// ContextProvider reads the identity placed on the request context by the
// auth middleware.
type ContextProvider struct{}

func (ContextProvider) Current(ctx context.Context) (Identity, bool) {
	return FromContext(ctx)
}
