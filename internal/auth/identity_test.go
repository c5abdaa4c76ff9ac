package auth

import (
	"context"
	"errors"
	"testing"
)

type failingReader struct{ err error }

func (f failingReader) GetUser(context.Context, string) (User, error) { return User{}, f.err }

func TestResolver(t *testing.T) {
	store := newStubUserStore(
		User{ID: "active", Active: true},
		User{ID: "inactive"},
	)
	r, err := NewResolver(store, nil)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	ctx := context.Background()

	u, err := r.Resolve(ctx, Payload{Subject: "active"})
	if err != nil || u.ID != "active" {
		t.Fatalf("Resolve active: %+v %v", u, err)
	}
	if _, err := r.Resolve(ctx, Payload{Subject: "ghost"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for unknown user, got %v", err)
	}
	if _, err := r.Resolve(ctx, Payload{Subject: "inactive"}); !errors.Is(err, ErrInactiveUser) {
		t.Fatalf("expected ErrInactiveUser, got %v", err)
	}

	boom := errors.New("connection reset")
	r2, _ := NewResolver(failingReader{err: boom}, nil)
	_, err = r2.Resolve(ctx, Payload{Subject: "x"})
	if !errors.Is(err, boom) || errors.Is(err, ErrForbidden) {
		t.Fatalf("infrastructure errors must propagate distinctly, got %v", err)
	}
}

func TestResolverRoleCurrent(t *testing.T) {
	store := newStubUserStore(User{ID: "u1", Active: true, StaffUser: true})
	cache := &memRoleCache{roles: map[string]Role{}}
	r, _ := NewResolver(store, cache)
	ctx := context.Background()

	ok, err := r.RoleCurrent(ctx, Payload{Subject: "u1", Role: RoleOrgStaff})
	if err != nil || !ok {
		t.Fatalf("expected current role, got %v %v", ok, err)
	}
	if cache.roles["u1"] != RoleOrgStaff {
		t.Fatalf("role was not cached: %v", cache.roles)
	}

	ok, err = r.RoleCurrent(ctx, Payload{Subject: "u1", Role: RoleSuperAdmin})
	if err != nil || ok {
		t.Fatalf("stale role must be reported, got %v %v", ok, err)
	}

	noCache, _ := NewResolver(store, nil)
	if ok, _ := noCache.RoleCurrent(ctx, Payload{Subject: "u1", Role: RoleSuperAdmin}); !ok {
		t.Fatalf("without cache the token role is trusted")
	}
}
