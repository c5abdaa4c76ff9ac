package auth

import "context"

type payloadContextKey struct{}
type userContextKey struct{}

// ContextWithPayload attaches the verified session payload to the context.
func ContextWithPayload(ctx context.Context, p Payload) context.Context {
	return context.WithValue(ctx, payloadContextKey{}, p)
}

// PayloadFromContext returns the session payload stored by the access gate.
func PayloadFromContext(ctx context.Context) (Payload, bool) {
	if ctx == nil {
		return Payload{}, false
	}
	p, ok := ctx.Value(payloadContextKey{}).(Payload)
	return p, ok
}

// ContextWithUser attaches the resolved acting user.
func ContextWithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userContextKey{}, &u)
}

// UserFromContext returns the user attached by the identity resolver.
func UserFromContext(ctx context.Context) (User, bool) {
	if ctx == nil {
		return User{}, false
	}
	u, ok := ctx.Value(userContextKey{}).(*User)
	if !ok || u == nil {
		return User{}, false
	}
	return *u, true
}

// UserIDFromContext prefers the resolved user and falls back to the token subject.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if u, ok := UserFromContext(ctx); ok {
		return u.ID, true
	}
	if p, ok := PayloadFromContext(ctx); ok && p.Subject != "" {
		return p.Subject, true
	}
	return "", false
}
