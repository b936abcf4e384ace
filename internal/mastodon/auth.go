package mastodon

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	gomastodon "github.com/mattn/go-mastodon"
	"golang.org/x/oauth2"

	"github.com/kimhsiao/mastofy/internal/errors"
	"github.com/kimhsiao/mastofy/internal/kv"
	"github.com/kimhsiao/mastofy/internal/logging"
	"github.com/kimhsiao/mastofy/internal/models"
)

const (
	// ClientName is the application name registered with instances.
	ClientName = "Mastofy"
	// RedirectURI makes the instance display the code instead of redirecting.
	RedirectURI = "urn:ietf:wg:oauth:2.0:oob"
	// DefaultCredentialTTL bounds how long a registration stays usable.
	DefaultCredentialTTL = time.Hour

	appKeyPrefix = "mastofy_app_"
)

// Scopes requested at registration and authorization.
var Scopes = []string{"read", "write", "follow", "push"}

// AppKey is the storage key of the registration for a normalized instance.
func AppKey(instance string) string {
	return appKeyPrefix + instance
}

// storedCredentials is the persisted form of a registration.
type storedCredentials struct {
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	RegisteredAt time.Time `json:"registered_at"`
}

// CredentialCache holds application credentials between the registration and
// code exchange steps, keyed by normalized instance. With a backing store the
// registration outlives the process, so the code can be exchanged by a later
// run.
type CredentialCache struct {
	ttl   time.Duration
	cache *ttlcache.Cache[string, models.AppCredentials]
	store kv.Store
}

// CacheOption configures a CredentialCache.
type CacheOption func(*CredentialCache)

// WithCredentialStore persists registrations in store.
func WithCredentialStore(store kv.Store) CacheOption {
	return func(c *CredentialCache) {
		c.store = store
	}
}

// NewCredentialCache creates a cache whose entries expire after ttl.
func NewCredentialCache(ttl time.Duration, opts ...CacheOption) *CredentialCache {
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}
	c := &CredentialCache{
		ttl: ttl,
		cache: ttlcache.New[string, models.AppCredentials](
			ttlcache.WithTTL[string, models.AppCredentials](ttl),
			ttlcache.WithDisableTouchOnHit[string, models.AppCredentials](),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put stores credentials for instance, replacing any earlier registration.
func (c *CredentialCache) Put(instance string, creds models.AppCredentials) error {
	key := models.NormalizeInstanceURL(instance)
	c.cache.Set(key, creds, ttlcache.DefaultTTL)
	if c.store == nil {
		return nil
	}

	data, err := json.Marshal(storedCredentials{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RegisteredAt: time.Now(),
	})
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to encode application credentials", err)
	}
	if err := c.store.Set(AppKey(key), string(data)); err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to save application credentials", err)
	}
	return nil
}

// Get returns the unexpired credentials for instance.
func (c *CredentialCache) Get(instance string) (models.AppCredentials, bool) {
	key := models.NormalizeInstanceURL(instance)
	if item := c.cache.Get(key); item != nil && !item.IsExpired() {
		return item.Value(), true
	}
	if c.store == nil {
		return models.AppCredentials{}, false
	}

	value, ok, err := c.store.Get(AppKey(key))
	if err != nil {
		logging.Error("Failed to read application credentials", err, map[string]interface{}{"instance": key})
		return models.AppCredentials{}, false
	}
	if !ok {
		return models.AppCredentials{}, false
	}

	var stored storedCredentials
	if err := json.Unmarshal([]byte(value), &stored); err != nil || stored.ClientID == "" {
		logging.Warn("Ignoring unreadable application credentials", map[string]interface{}{"instance": key})
		return models.AppCredentials{}, false
	}

	remaining := c.ttl - time.Since(stored.RegisteredAt)
	if remaining <= 0 {
		if err := c.store.Remove(AppKey(key)); err != nil {
			logging.Error("Failed to drop expired application credentials", err, map[string]interface{}{"instance": key})
		}
		return models.AppCredentials{}, false
	}

	creds := models.AppCredentials{ClientID: stored.ClientID, ClientSecret: stored.ClientSecret}
	c.cache.Set(key, creds, remaining)
	return creds, true
}

// Authenticator drives the out-of-band OAuth login against an instance.
type Authenticator struct {
	client      *Client
	credentials *CredentialCache
}

// NewAuthenticator creates an Authenticator that reuses client's transport.
func NewAuthenticator(client *Client, credentials *CredentialCache) *Authenticator {
	if credentials == nil {
		credentials = NewCredentialCache(DefaultCredentialTTL)
	}
	return &Authenticator{client: client, credentials: credentials}
}

// AuthorizationURL registers the application with instance and returns the
// page where the user approves access and obtains a code.
func (a *Authenticator) AuthorizationURL(ctx context.Context, instance string) (string, error) {
	instance = models.NormalizeInstanceURL(instance)
	if instance == "" {
		return "", errors.New(errors.ErrValidation, "instance is required")
	}

	var app *gomastodon.Application
	err := call(ctx, nil, func(ctx context.Context) error {
		var err error
		app, err = gomastodon.RegisterApp(ctx, &gomastodon.AppConfig{
			Client:       *a.client.HTTPClient(),
			Server:       a.client.BaseURL(instance),
			ClientName:   ClientName,
			RedirectURIs: RedirectURI,
			Scopes:       strings.Join(Scopes, " "),
		})
		return err
	})
	if err != nil {
		return "", err
	}
	if app == nil || app.ClientID == "" || app.ClientSecret == "" {
		return "", errors.Remote("Failed to get authorization URL", nil)
	}

	creds := models.AppCredentials{ClientID: app.ClientID, ClientSecret: app.ClientSecret}
	if err := a.credentials.Put(instance, creds); err != nil {
		return "", err
	}

	logging.Info("Application registered", map[string]interface{}{"instance": instance})
	return a.oauthConfig(instance, creds).AuthCodeURL(""), nil
}

// ExchangeCode trades an authorization code for a session. The instance must
// have a registration from AuthorizationURL that has not expired.
func (a *Authenticator) ExchangeCode(ctx context.Context, instance, code string) (models.Session, error) {
	instance = models.NormalizeInstanceURL(instance)
	code = strings.TrimSpace(code)
	if instance == "" || code == "" {
		return models.Session{}, errors.New(errors.ErrValidation, "instance and authorization code are required")
	}

	creds, ok := a.credentials.Get(instance)
	if !ok {
		return models.Session{}, errors.New(errors.ErrCredentialsMissing,
			"Application credentials not found. Please try connecting to the instance again.")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client.HTTPClient())
	token, err := a.oauthConfig(instance, creds).Exchange(ctx, code)
	if err != nil {
		return models.Session{}, errors.Remote("failed to obtain access token", err)
	}

	logging.Info("Access token obtained", map[string]interface{}{"instance": instance})
	return models.Session{AccessToken: token.AccessToken, Instance: instance}, nil
}

func (a *Authenticator) oauthConfig(instance string, creds models.AppCredentials) *oauth2.Config {
	base := a.client.BaseURL(instance)
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  RedirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "/oauth/authorize",
			TokenURL:  base + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}
