package repository

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/iliyamo/igotyouboo-api/internal/model"
)

// MemoryStore keeps users and roles in process memory.  It backs
// STORE_DRIVER=memory for local development and serves as the store double
// in tests.  Returned users are copies; callers cannot mutate stored state.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID uint64
	users  map[string]model.User
	roles  map[string]model.Role
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]model.User),
		roles: make(map[string]model.Role),
	}
}

func (s *MemoryStore) Driver() string { return "memory" }

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) newID() string {
	s.nextID++
	return strconv.FormatUint(s.nextID, 10)
}

func (s *MemoryStore) FindUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryStore) FindUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// ListUsers returns users ordered by ID.
func (s *MemoryStore) ListUsers(context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.ParseUint(out[i].ID, 10, 64)
		b, _ := strconv.ParseUint(out[j].ID, 10, 64)
		return a < b
	})
	return out, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, u model.User) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique("", u.Username, u.Email); err != nil {
		return nil, err
	}
	u.ID = s.newID()
	s.users[u.ID] = u
	return &u, nil
}

func (s *MemoryStore) UpdateUserByID(_ context.Context, id string, patch model.UserPatch) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	username, email := u.Username, u.Email
	if patch.Username != nil {
		username = *patch.Username
	}
	if patch.Email != nil {
		email = *patch.Email
	}
	if err := s.checkUnique(id, username, email); err != nil {
		return nil, err
	}
	applyPatch(&u, patch)
	s.users[id] = u
	return &u, nil
}

func (s *MemoryStore) DeleteUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	delete(s.users, id)
	return &u, nil
}

// checkUnique must be called with the write lock held.
func (s *MemoryStore) checkUnique(selfID, username, email string) error {
	for id, other := range s.users {
		if id == selfID {
			continue
		}
		if other.Username == username {
			return duplicateError("username", username)
		}
		if other.Email == email {
			return duplicateError("email", email)
		}
	}
	return nil
}

func (s *MemoryStore) FindRoleIDByName(_ context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, r := range s.roles {
		if r.Name == name {
			return id, nil
		}
	}
	return "", ErrRoleNotFound
}

func (s *MemoryStore) FindRoleNameByID(_ context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return "", ErrRoleNotFound
	}
	return r.Name, nil
}

func (s *MemoryStore) EnsureRoles(_ context.Context, roles []model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range roles {
		exists := false
		for _, have := range s.roles {
			if have.Name == r.Name {
				exists = true
				break
			}
		}
		if !exists {
			r.ID = s.newID()
			s.roles[r.ID] = r
		}
	}
	return nil
}

// applyPatch copies the non-nil fields of p onto u.
func applyPatch(u *model.User, p model.UserPatch) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.Pronouns != nil {
		u.Pronouns = *p.Pronouns
	}
	if p.ProfilePicture != nil {
		u.ProfilePicture = *p.ProfilePicture
	}
	if p.RoleID != nil {
		u.RoleID = *p.RoleID
	}
}
