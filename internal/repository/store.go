package repository

import (
	"context"

	"github.com/iliyamo/igotyouboo-api/internal/model"
)

// UserStore is the user half of the persistence boundary.  Lookups of absent
// users return ErrUserNotFound; uniqueness violations on username or email
// return *ValidationError.
type UserStore interface {
	FindUserByUsername(ctx context.Context, username string) (*model.User, error)
	FindUserByID(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	CreateUser(ctx context.Context, u model.User) (*model.User, error)
	UpdateUserByID(ctx context.Context, id string, patch model.UserPatch) (*model.User, error)
	DeleteUserByID(ctx context.Context, id string) (*model.User, error)
}

// RoleStore resolves roles in both directions.
type RoleStore interface {
	FindRoleIDByName(ctx context.Context, name string) (string, error)
	FindRoleNameByID(ctx context.Context, id string) (string, error)
}

// Store is implemented by every backend selected through STORE_DRIVER.
type Store interface {
	UserStore
	RoleStore
	// EnsureRoles inserts any of roles whose name is not yet stored.
	EnsureRoles(ctx context.Context, roles []model.Role) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	// Driver names the backend for health output.
	Driver() string
}
