package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/igotyouboo-api/internal/metrics"
	"github.com/iliyamo/igotyouboo-api/internal/model"
	"github.com/iliyamo/igotyouboo-api/internal/queue"
	"github.com/iliyamo/igotyouboo-api/internal/repository"
	"github.com/iliyamo/igotyouboo-api/internal/utils"
)

// RegisterInput is the body of POST /account/newUser.
type RegisterInput struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	Username       string `json:"username"`
	Pronouns       string `json:"pronouns"`
	ProfilePicture string `json:"profilePicture"`
}

// UpdateInput is the body of PATCH /account/:authorId.  Absent fields are
// left unchanged.  Role is given by name.
type UpdateInput struct {
	Email          *string `json:"email"`
	Password       *string `json:"password"`
	Username       *string `json:"username"`
	Pronouns       *string `json:"pronouns"`
	ProfilePicture *string `json:"profilePicture"`
	Role           *string `json:"role"`
}

// AccountService implements account registration, sign-in and maintenance.
type AccountService struct {
	users       repository.UserStore
	roles       repository.RoleStore
	hasher      utils.PasswordHasher
	codec       *utils.TokenCodec
	events      Publisher
	validate    *validator.Validate
	defaultRole string
}

func NewAccountService(users repository.UserStore, roles repository.RoleStore, hasher utils.PasswordHasher,
	codec *utils.TokenCodec, events Publisher, defaultRole string) *AccountService {
	if events == nil {
		events = NopPublisher{}
	}
	if defaultRole == "" {
		defaultRole = model.RoleSuperstar
	}
	return &AccountService{
		users:       users,
		roles:       roles,
		hasher:      hasher,
		codec:       codec,
		events:      events,
		validate:    newValidator(),
		defaultRole: defaultRole,
	}
}

// IssueToken mints an access token for the stored user u.
func (s *AccountService) IssueToken(u model.User) (utils.AccessToken, error) {
	tok, err := s.codec.Issue(model.ClaimFor(u))
	if err != nil {
		return utils.AccessToken{}, err
	}
	metrics.TokensIssued.Inc()
	return tok, nil
}

// TokenTTL is the lifetime of tokens from IssueToken.
func (s *AccountService) TokenTTL() time.Duration { return s.codec.TTL() }

// RoleName resolves a role id; unknown or empty ids give "".
func (s *AccountService) RoleName(ctx context.Context, roleID string) (string, error) {
	return roleNameOf(ctx, s.roles, roleID)
}

// Register validates in, stores a new user with the default role and a
// hashed password, and returns it with its role name.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.User, string, error) {
	if err := validateUser(s.validate, userRules{Email: in.Email, Password: in.Password, Username: in.Username}); err != nil {
		return nil, "", err
	}

	roleID, err := s.roles.FindRoleIDByName(ctx, s.defaultRole)
	if err != nil {
		return nil, "", fmt.Errorf("default role %q: %w", s.defaultRole, err)
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, "", err
	}
	pic := in.ProfilePicture
	if pic == "" {
		pic = model.DefaultProfilePicture
	}

	u, err := s.users.CreateUser(ctx, model.User{
		Username:       in.Username,
		Email:          in.Email,
		PasswordHash:   hash,
		Pronouns:       in.Pronouns,
		ProfilePicture: pic,
		RoleID:         roleID,
	})
	if err != nil {
		return nil, "", err
	}
	log.Ctx(ctx).Info().Str("user_id", u.ID).Str("username", u.Username).Msg("account registered")
	publishEvent(ctx, s.events, queue.NewAccountEvent(queue.EventAccountRegistered, u.ID, u.Username, ""))
	return u, s.defaultRole, nil
}

// Login checks a username/password pair and returns the stored user and its
// role name.
func (s *AccountService) Login(ctx context.Context, username, password string) (*model.User, string, error) {
	if username == "" || password == "" {
		return nil, "", ErrMissingCredentials
	}
	u, err := s.users.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, "", err
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return nil, "", ErrIncorrectPassword
	}
	roleName, err := s.RoleName(ctx, u.RoleID)
	if err != nil {
		return nil, "", err
	}
	return u, roleName, nil
}

// Get returns the public view of the user called username.
func (s *AccountService) Get(ctx context.Context, username string) (model.PublicUser, error) {
	u, err := s.users.FindUserByUsername(ctx, username)
	if err != nil {
		return model.PublicUser{}, err
	}
	name, err := s.RoleName(ctx, u.RoleID)
	if err != nil {
		return model.PublicUser{}, err
	}
	return u.Public(name), nil
}

// ByID returns the stored user with id.
func (s *AccountService) ByID(ctx context.Context, id string) (*model.User, error) {
	return s.users.FindUserByID(ctx, id)
}

// List returns every user with role names populated.
func (s *AccountService) List(ctx context.Context) ([]model.PublicUser, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	names := map[string]string{}
	out := make([]model.PublicUser, 0, len(users))
	for _, u := range users {
		name, ok := names[u.RoleID]
		if !ok {
			if name, err = s.RoleName(ctx, u.RoleID); err != nil {
				return nil, err
			}
			names[u.RoleID] = name
		}
		out = append(out, u.Public(name))
	}
	return out, nil
}

// Update applies in to the user targetID on behalf of actor.  A new password
// is hashed, which invalidates tokens issued before the change.  Changing
// the role requires the Admin role.
func (s *AccountService) Update(ctx context.Context, actor ResolvedIdentity, targetID string, in UpdateInput) (*model.User, error) {
	current, err := s.users.FindUserByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	rules := userRules{Email: current.Email, Password: current.PasswordHash, Username: current.Username}
	patch := model.UserPatch{Pronouns: in.Pronouns, ProfilePicture: in.ProfilePicture}
	if in.Email != nil {
		rules.Email = *in.Email
		patch.Email = in.Email
	}
	if in.Username != nil {
		rules.Username = *in.Username
		patch.Username = in.Username
	}
	if in.Password != nil {
		rules.Password = *in.Password
	}
	if err := validateUser(s.validate, rules); err != nil {
		return nil, err
	}

	if in.Password != nil {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, err
		}
		patch.PasswordHash = &hash
	}
	if in.Role != nil {
		if actor.RoleName != model.RoleAdmin {
			return nil, ErrNotAuthorised
		}
		roleID, err := s.roles.FindRoleIDByName(ctx, *in.Role)
		if err != nil {
			if errors.Is(err, repository.ErrRoleNotFound) {
				return nil, repository.NewValidationError("User", "role", fmt.Sprintf("%s is not a known role", *in.Role))
			}
			return nil, err
		}
		patch.RoleID = &roleID
	}

	u, err := s.users.UpdateUserByID(ctx, targetID, patch)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Str("user_id", u.ID).Str("actor_id", actor.UserID).Msg("account updated")
	publishEvent(ctx, s.events, queue.NewAccountEvent(queue.EventAccountUpdated, u.ID, u.Username, actor.UserID))
	return u, nil
}

// Delete removes the user targetID and returns the removed record.
func (s *AccountService) Delete(ctx context.Context, actor ResolvedIdentity, targetID string) (*model.User, error) {
	u, err := s.users.DeleteUserByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Str("user_id", u.ID).Str("actor_id", actor.UserID).Msg("account deleted")
	publishEvent(ctx, s.events, queue.NewAccountEvent(queue.EventAccountDeleted, u.ID, u.Username, actor.UserID))
	return u, nil
}
