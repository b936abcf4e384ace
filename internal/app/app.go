// Package app opens storage and wires the client components together.
package app

import (
	"github.com/kimhsiao/mastofy/internal/compose"
	"github.com/kimhsiao/mastofy/internal/config"
	"github.com/kimhsiao/mastofy/internal/db"
	"github.com/kimhsiao/mastofy/internal/deck"
	"github.com/kimhsiao/mastofy/internal/errors"
	"github.com/kimhsiao/mastofy/internal/kv"
	"github.com/kimhsiao/mastofy/internal/layout"
	"github.com/kimhsiao/mastofy/internal/logging"
	"github.com/kimhsiao/mastofy/internal/mastodon"
	"github.com/kimhsiao/mastofy/internal/session"
	"github.com/kimhsiao/mastofy/internal/timeline"
)

// App holds the components of one client process.
type App struct {
	Config   *config.Config
	Sessions *session.Store
	Layout   *layout.Store
	Gateway  *mastodon.Client
	Auth     *mastodon.Authenticator
	Deck     *deck.Deck
	Composer *compose.Composer

	closers []func() error
}

// Option configures an App.
type Option func(*options)

type options struct {
	gatewayOpts []mastodon.Option
	listener    deck.Listener
}

// WithGatewayOptions passes extra options to the gateway client.
func WithGatewayOptions(opts ...mastodon.Option) Option {
	return func(o *options) {
		o.gatewayOpts = append(o.gatewayOpts, opts...)
	}
}

// WithDeckListener registers a listener for column state changes.
func WithDeckListener(fn deck.Listener) Option {
	return func(o *options) {
		o.listener = fn
	}
}

// Open opens the SQLite store in cfg.DataDir and builds the App on it.
func Open(cfg *config.Config, opts ...Option) (*App, error) {
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorage, "failed to open database", err)
	}
	store := db.NewKVStore(database)

	a, err := New(cfg, store, opts...)
	if err != nil {
		store.Close()
		database.Close()
		return nil, err
	}
	a.closers = append(a.closers, store.Close, database.Close)

	logging.Debug("Storage opened", map[string]interface{}{"data_dir": cfg.DataDir})
	return a, nil
}

// New builds the App on an existing key-value store.
func New(cfg *config.Config, store kv.Store, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var sessionOpts []session.Option
	if cfg.TokenKey != "" {
		sessionOpts = append(sessionOpts, session.WithEncryptionKey(cfg.TokenKey))
	}
	sessions, err := session.Open(store, sessionOpts...)
	if err != nil {
		return nil, err
	}

	columns, err := layout.Open(store)
	if err != nil {
		return nil, err
	}

	gatewayOpts := append([]mastodon.Option{
		mastodon.WithTimeout(cfg.RequestTimeout),
		mastodon.WithPageLimit(cfg.PageLimit),
	}, o.gatewayOpts...)
	gateway := mastodon.NewClient(sessions, gatewayOpts...)

	var deckOpts []deck.Option
	if o.listener != nil {
		deckOpts = append(deckOpts, deck.WithListener(o.listener))
	}
	d := deck.New(columns, gateway, &timeline.Config{
		Interval: cfg.PollInterval,
		Timeout:  cfg.PollInterval,
	}, deckOpts...)

	composer := compose.New(gateway,
		compose.WithMaxImageDimension(cfg.MaxImageDimension),
		compose.WithPostedHook(d.PrependLocal),
	)

	return &App{
		Config:   cfg,
		Sessions: sessions,
		Layout:   columns,
		Gateway:  gateway,
		Auth:     mastodon.NewAuthenticator(gateway, mastodon.NewCredentialCache(cfg.CredentialTTL, mastodon.WithCredentialStore(store))),
		Deck:     d,
		Composer: composer,
	}, nil
}

// Close stops polling and releases storage.
func (a *App) Close() error {
	a.Deck.Stop()

	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
