package account

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := OpenBadgerStore("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBadgerStore_CreateAndGet(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	// Given a stored account
	req.NoError(store.Create(Account{Username: "alice", PasswordHash: "hash", CreatedAt: created}))

	// When it is read back
	got, err := store.Get("alice")

	// Then every field survives
	req.NoError(err)
	req.Equal("alice", got.Username)
	req.Equal("hash", got.PasswordHash)
	req.True(created.Equal(got.CreatedAt))
}

func TestBadgerStore_CreateDuplicate(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	req.NoError(store.Create(Account{Username: "alice", PasswordHash: "first"}))
	req.ErrorIs(store.Create(Account{Username: "alice", PasswordHash: "second"}), ErrUserExists)

	got, err := store.Get("alice")
	req.NoError(err)
	req.Equal("first", got.PasswordHash)
}

func TestBadgerStore_GetMissing(t *testing.T) {
	_, err := newTestStore(t).Get("nobody")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestBadgerStore_Usernames(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	names, err := store.Usernames()
	req.NoError(err)
	req.Empty(names)

	for _, name := range []string{"carol", "alice", "bob"} {
		req.NoError(store.Create(Account{Username: name}))
	}

	names, err = store.Usernames()
	req.NoError(err)
	req.Equal([]string{"alice", "bob", "carol"}, names)
}
