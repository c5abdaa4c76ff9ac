package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// User is a persisted account able to sign in.
type User struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"org_id,omitempty"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	Gender       string    `json:"gender,omitempty"`
	Active       bool      `json:"active"`
	SuperUser    bool      `json:"super_user"`
	StaffUser    bool      `json:"staff_user"`
	APIToken     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserReader is the lookup surface the identity resolver needs.
type UserReader interface {
	GetUser(ctx context.Context, id string) (User, error)
}

// Resolver maps verified session payloads to active users.
type Resolver struct {
	users UserReader
	cache RoleCache
}

// NewResolver builds a resolver. cache may be nil, which disables role checks.
func NewResolver(users UserReader, cache RoleCache) (*Resolver, error) {
	if users == nil {
		return nil, errors.New("auth: user reader is required")
	}
	return &Resolver{users: users, cache: cache}, nil
}

// Resolve loads the user named by the token subject.
func (r *Resolver) Resolve(ctx context.Context, p Payload) (User, error) {
	u, err := r.users.GetUser(ctx, p.Subject)
	if errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("%w: Invalid user", ErrForbidden)
	}
	if err != nil {
		return User{}, fmt.Errorf("resolve user %s: %w", p.Subject, err)
	}
	if !u.Active {
		return User{}, ErrInactiveUser
	}
	return u, nil
}

// RoleCurrent reports whether the token role still matches the user's role.
// Without a cache the token is trusted as issued.
func (r *Resolver) RoleCurrent(ctx context.Context, p Payload) (bool, error) {
	if r.cache == nil {
		return true, nil
	}
	role, ok, err := r.cache.Get(ctx, p.Subject)
	if err != nil {
		return false, err
	}
	if !ok {
		u, err := r.users.GetUser(ctx, p.Subject)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		role = RoleOf(u)
		if !u.Active {
			role = ""
		}
		if err := r.cache.Set(ctx, p.Subject, role); err != nil {
			return false, err
		}
	}
	return role == p.Role, nil
}
