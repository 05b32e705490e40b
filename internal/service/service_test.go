package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/igotyouboo-api/internal/model"
	"github.com/iliyamo/igotyouboo-api/internal/queue"
	"github.com/iliyamo/igotyouboo-api/internal/repository"
	"github.com/iliyamo/igotyouboo-api/internal/utils"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.AccountEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.AccountEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	store    *repository.MemoryStore
	codec    *utils.TokenCodec
	accounts *AccountService
	resolver *IdentityResolver
	events   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	require.NoError(t, store.EnsureRoles(context.Background(), model.DefaultRoles))

	c, err := utils.NewCipher("enc-key", "enc-iv", "enc-salt")
	require.NoError(t, err)
	codec, err := utils.NewTokenCodec("jwt-secret", c, utils.DefaultTokenTTL)
	require.NoError(t, err)

	events := &recordingPublisher{}
	return &fixture{
		store:    store,
		codec:    codec,
		accounts: NewAccountService(store, store, utils.NewPasswordHasher(bcrypt.MinCost), codec, events, model.RoleSuperstar),
		resolver: NewIdentityResolver(codec, store, store),
		events:   events,
	}
}

// register creates a user with password "pw-<username>".
func (f *fixture) register(t *testing.T, username string) *model.User {
	t.Helper()
	u, _, err := f.accounts.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "pw-" + username,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) promote(t *testing.T, u *model.User) {
	t.Helper()
	adminID, err := f.store.FindRoleIDByName(context.Background(), model.RoleAdmin)
	require.NoError(t, err)
	_, err = f.store.UpdateUserByID(context.Background(), u.ID, model.UserPatch{RoleID: &adminID})
	require.NoError(t, err)
}

func (f *fixture) token(t *testing.T, u *model.User) string {
	t.Helper()
	stored, err := f.store.FindUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	tok, err := f.accounts.IssueToken(*stored)
	require.NoError(t, err)
	return tok.Token
}
