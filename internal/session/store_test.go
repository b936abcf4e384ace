package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/mastofy/internal/errors"
	"github.com/kimhsiao/mastofy/internal/kv"
	"github.com/kimhsiao/mastofy/internal/models"
)

func TestOpen_empty(t *testing.T) {
	s, err := Open(kv.NewMemory())
	require.NoError(t, err)

	_, ok := s.Get()
	assert.False(t, ok, "no record means logged out")
}

func TestSetPersistsNormalizedInstance(t *testing.T) {
	store := kv.NewMemory()
	s, err := Open(store)
	require.NoError(t, err)

	require.NoError(t, s.Set(models.Session{AccessToken: "tok", Instance: "https://social.example/"}))

	sess, ok := s.Get()
	require.True(t, ok)
	assert.Equal(t, "social.example", sess.Instance)

	raw, found, err := store.Get(StorageKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"accessToken":"tok","instance":"social.example"}`, raw)

	reopened, err := Open(store)
	require.NoError(t, err)
	got, ok := reopened.Current()
	require.True(t, ok)
	assert.Equal(t, models.Session{AccessToken: "tok", Instance: "social.example"}, got)
}

func TestSetRejectsIncompleteSession(t *testing.T) {
	s, err := Open(kv.NewMemory())
	require.NoError(t, err)

	err = s.Set(models.Session{Instance: "social.example"})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestClear(t *testing.T) {
	store := kv.NewMemory()
	s, err := Open(store)
	require.NoError(t, err)
	require.NoError(t, s.Set(models.Session{AccessToken: "tok", Instance: "social.example"}))

	require.NoError(t, s.Clear())

	_, ok := s.Get()
	assert.False(t, ok)
	_, found, _ := store.Get(StorageKey)
	assert.False(t, found)
}

func TestOpen_corruptRecord(t *testing.T) {
	store := kv.NewMemory()
	require.NoError(t, store.Set(StorageKey, "{not json"))

	s, err := Open(store)
	require.NoError(t, err)
	_, ok := s.Get()
	assert.False(t, ok)
}

func TestEncryptedToken(t *testing.T) {
	store := kv.NewMemory()
	s, err := Open(store, WithEncryptionKey("secret"))
	require.NoError(t, err)
	require.NoError(t, s.Set(models.Session{AccessToken: "tok", Instance: "social.example"}))

	raw, _, _ := store.Get(StorageKey)
	assert.NotContains(t, raw, `"tok"`)
	assert.True(t, strings.Contains(raw, sealedPrefix))

	reopened, err := Open(store, WithEncryptionKey("secret"))
	require.NoError(t, err)
	sess, ok := reopened.Get()
	require.True(t, ok)
	assert.Equal(t, "tok", sess.AccessToken)

	// Without the key the sealed token cannot be used.
	locked, err := Open(store)
	require.NoError(t, err)
	_, ok = locked.Get()
	assert.False(t, ok)
}
