package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rbx-valuation-api/internal/model"
	"rbx-valuation-api/internal/repository"
	"rbx-valuation-api/internal/secret"
)

type staticProfiles map[int64]*model.PublicProfile

func (p staticProfiles) FetchPublicProfile(ctx context.Context, userID int64) (*model.PublicProfile, error) {
	if prof, ok := p[userID]; ok {
		return prof, nil
	}
	return nil, repository.ErrNotFound
}

func newTestAccounts(t *testing.T, vault *secret.Vault) (*AccountService, *repository.AccountStore) {
	t.Helper()
	kv, err := repository.NewSQLiteKV(filepath.Join(t.TempDir(), "accounts.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	store := repository.NewAccountStore(kv)
	profiles := staticProfiles{42: {ID: 42, Name: "builder", DisplayName: "Builder"}}
	return NewAccountService(store, vault, profiles, nil), store
}

func TestLinkStoresEncryptedCookie(t *testing.T) {
	ctx := context.Background()
	vault := newTestVault(t)
	svc, store := newTestAccounts(t, vault)

	acc, err := svc.Link(ctx, "bot-1", 42, "SECRET")
	require.NoError(t, err)
	assert.Equal(t, "builder", acc.Username)
	assert.True(t, acc.HasCookie)

	enc, err := store.GetCookie(ctx, "bot-1", 42)
	require.NoError(t, err)
	assert.NotContains(t, enc, "SECRET")

	cookie, err := svc.Cookie(ctx, "bot-1", 42)
	require.NoError(t, err)
	assert.Equal(t, "SECRET", cookie)

	accounts, err := svc.Accounts(ctx, "bot-1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	events, err := svc.Events(ctx, "bot-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "link", events[0].Kind)
}

func TestLinkUnknownUser(t *testing.T) {
	svc, _ := newTestAccounts(t, newTestVault(t))
	_, err := svc.Link(context.Background(), "bot-1", 7, "")
	assert.Error(t, err)
}

func TestUnreadableCookieIsDropped(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestAccounts(t, newTestVault(t))

	_, err := svc.Link(ctx, "bot-1", 42, "SECRET")
	require.NoError(t, err)

	// a key rotation that drops the old key makes the cookie unreadable
	svc.vault = newTestVault(t)

	_, err = svc.Cookie(ctx, "bot-1", 42)
	assert.ErrorIs(t, err, ErrAuthRequired)

	_, err = store.GetCookie(ctx, "bot-1", 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	acc, err := store.GetAccount(ctx, "bot-1", 42)
	require.NoError(t, err)
	assert.False(t, acc.HasCookie)

	enc, err := svc.EncryptedCookie(ctx, "bot-1", 42)
	require.NoError(t, err)
	assert.Empty(t, enc)
}

func TestUnlink(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestAccounts(t, newTestVault(t))

	_, err := svc.Link(ctx, "bot-1", 42, "SECRET")
	require.NoError(t, err)
	require.NoError(t, svc.Unlink(ctx, "bot-1", 42))

	_, err = store.GetCookie(ctx, "bot-1", 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, svc.Unlink(ctx, "bot-1", 42), repository.ErrNotFound)

	_, err = svc.Cookie(ctx, "bot-1", 42)
	assert.ErrorIs(t, err, ErrAuthRequired)
}
