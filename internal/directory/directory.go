// Package directory resolves responsible-party identifiers to users with a
// deliverable email address.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nhle/quality-escalation/internal/model"
	"github.com/nhle/quality-escalation/internal/store"
)

var (
	// ErrUserNotFound is returned when neither the id nor the email matches.
	ErrUserNotFound = errors.New("user not found")

	// ErrNoEmail is returned when the user exists but has no address.
	ErrNoEmail = errors.New("user has no email address")
)

// Users is the part of the store the resolver reads.
type Users interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// Resolver looks users up by id first, then by email.
type Resolver struct {
	users Users
}

// New creates a resolver over users.
func New(users Users) *Resolver {
	return &Resolver{users: users}
}

// Resolve returns the user for idOrEmail. The returned user always has a
// non-empty Email.
func (r *Resolver) Resolve(ctx context.Context, idOrEmail string) (*model.User, error) {
	key := strings.TrimSpace(idOrEmail)
	if key == "" {
		return nil, fmt.Errorf("resolving empty identifier: %w", ErrUserNotFound)
	}

	u, err := r.users.GetUserByID(ctx, key)
	if errors.Is(err, store.ErrNotFound) && strings.Contains(key, "@") {
		u, err = r.users.GetUserByEmail(ctx, key)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("resolving %q: %w", key, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", key, err)
	}

	if strings.TrimSpace(u.Email) == "" {
		return nil, fmt.Errorf("resolving %q: %w", key, ErrNoEmail)
	}
	return u, nil
}
