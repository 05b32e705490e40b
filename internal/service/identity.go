package service

import (
	"context"
	"errors"

	"github.com/iliyamo/igotyouboo-api/internal/model"
	"github.com/iliyamo/igotyouboo-api/internal/repository"
	"github.com/iliyamo/igotyouboo-api/internal/utils"
)

// ResolvedIdentity is the live identity behind a token.
type ResolvedIdentity struct {
	UserID   string
	Username string
	RoleID   string
	RoleName string
	User     model.User // stored record, used to re-mint the token
}

// IdentityResolver turns a raw token into a ResolvedIdentity, checking it
// against the current store contents.
type IdentityResolver struct {
	codec *utils.TokenCodec
	users repository.UserStore
	roles repository.RoleStore
}

func NewIdentityResolver(codec *utils.TokenCodec, users repository.UserStore, roles repository.RoleStore) *IdentityResolver {
	return &IdentityResolver{codec: codec, users: users, roles: roles}
}

// Resolve verifies raw, re-fetches the user it names and rejects it if the
// stored password hash has changed since issue.  The role name comes from
// the stored record so role changes apply immediately.
func (r *IdentityResolver) Resolve(ctx context.Context, raw string) (ResolvedIdentity, error) {
	if raw == "" {
		return ResolvedIdentity{}, ErrNoToken
	}
	claim, err := r.codec.ExtractClaim(raw)
	if err != nil {
		return ResolvedIdentity{}, err
	}

	u, err := r.users.FindUserByID(ctx, claim.UserID)
	if err != nil {
		return ResolvedIdentity{}, err
	}
	if u.PasswordHash != claim.PasswordHash {
		return ResolvedIdentity{}, ErrStaleCredential
	}

	roleName, err := roleNameOf(ctx, r.roles, u.RoleID)
	if err != nil {
		return ResolvedIdentity{}, err
	}
	return ResolvedIdentity{
		UserID:   u.ID,
		Username: u.Username,
		RoleID:   u.RoleID,
		RoleName: roleName,
		User:     *u,
	}, nil
}

// roleNameOf resolves id to a name.  Users without a role, or whose role no
// longer exists, get an empty name and hold no privileges.
func roleNameOf(ctx context.Context, roles repository.RoleStore, id string) (string, error) {
	if id == "" {
		return "", nil
	}
	name, err := roles.FindRoleNameByID(ctx, id)
	if errors.Is(err, repository.ErrRoleNotFound) {
		return "", nil
	}
	return name, err
}
