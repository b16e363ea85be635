// Package identity carries the resolved caller identity through a request.
// Token issuance lives elsewhere; this package only decodes and injects.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Role is the caller's side of the marketplace.
type Role string

const (
	RoleBrand   Role = "brand"
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
)

var ErrNoIdentity = errors.New("no_identity")

// Identity is the resolved {id, role} pair every operation receives.
type Identity struct {
	ID   snowflake.ID
	Role Role
}

func (i Identity) IsBrand() bool   { return i.Role == RoleBrand }
func (i Identity) IsCreator() bool { return i.Role == RoleCreator }
func (i Identity) IsAdmin() bool   { return i.Role == RoleAdmin }

// ParseRole normalizes a role claim.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleBrand:
		return RoleBrand, true
	case RoleCreator:
		return RoleCreator, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, error) {
	if ctx == nil {
		return Identity{}, ErrNoIdentity
	}
	id, ok := ctx.Value(contextKey{}).(Identity)
	if !ok || id.ID == 0 {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}
