// Package session persists the credentials of the logged-in account.
package session

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/kimhsiao/mastofy/internal/crypto"
	"github.com/kimhsiao/mastofy/internal/errors"
	"github.com/kimhsiao/mastofy/internal/kv"
	"github.com/kimhsiao/mastofy/internal/logging"
	"github.com/kimhsiao/mastofy/internal/models"
)

// StorageKey is the key the session record is stored under.
const StorageKey = "mastofy_auth"

// sealedPrefix marks an access token encrypted at rest.
const sealedPrefix = "enc:"

// Store holds the current session and keeps it in sync with storage.
type Store struct {
	kv            kv.Store
	encryptionKey string

	mu      sync.RWMutex
	current models.Session
}

// Option configures a Store.
type Option func(*Store)

// WithEncryptionKey seals the access token with key before writing it.
func WithEncryptionKey(key string) Option {
	return func(s *Store) {
		s.encryptionKey = key
	}
}

// Open loads the persisted session, if any. An unreadable record is treated
// as logged out.
func Open(store kv.Store, opts ...Option) (*Store, error) {
	s := &Store{kv: store}
	for _, opt := range opts {
		opt(s)
	}

	raw, ok, err := store.Get(StorageKey)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorage, "failed to load session", err)
	}
	if !ok {
		return s, nil
	}

	var record models.Session
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		logging.Warn("Discarding unreadable session record", map[string]interface{}{"error": err.Error()})
		return s, nil
	}

	token, err := s.open(record.AccessToken)
	if err != nil {
		logging.Warn("Discarding session with unreadable token", map[string]interface{}{"error": err.Error()})
		return s, nil
	}
	record.AccessToken = token
	s.current = record

	return s, nil
}

// Get returns the current session and whether it is usable.
func (s *Store) Get() (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.current.Valid()
}

// Current implements the gateway's session source.
func (s *Store) Current() (models.Session, bool) {
	return s.Get()
}

// Set replaces the session. The instance is normalized before storage.
func (s *Store) Set(sess models.Session) error {
	sess.Instance = models.NormalizeInstanceURL(sess.Instance)
	sess.AccessToken = strings.TrimSpace(sess.AccessToken)
	if !sess.Valid() {
		return errors.New(errors.ErrValidation, "session requires an access token and an instance")
	}

	record := sess
	sealed, err := s.seal(sess.AccessToken)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to encrypt access token", err)
	}
	record.AccessToken = sealed

	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to encode session", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Set(StorageKey, string(data)); err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to save session", err)
	}
	s.current = sess

	logging.Info("Session saved", map[string]interface{}{"instance": sess.Instance})
	return nil
}

// Clear logs out: the in-memory and persisted session are both removed.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Remove(StorageKey); err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to remove session", err)
	}
	s.current = models.Session{}
	return nil
}

func (s *Store) seal(token string) (string, error) {
	if s.encryptionKey == "" {
		return token, nil
	}
	sealed, err := crypto.EncryptString(token, s.encryptionKey)
	if err != nil {
		return "", err
	}
	return sealedPrefix + sealed, nil
}

func (s *Store) open(token string) (string, error) {
	if !strings.HasPrefix(token, sealedPrefix) {
		return token, nil
	}
	if s.encryptionKey == "" {
		return "", crypto.ErrInvalidKey
	}
	return crypto.DecryptString(strings.TrimPrefix(token, sealedPrefix), s.encryptionKey)
}
