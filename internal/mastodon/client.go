// Package mastodon is the gateway to a Mastodon-compatible server: feeds,
// posting, media upload, reactions and application registration. Calls go
// through github.com/mattn/go-mastodon; this package adds session lookup,
// error classification and conversion to the client's models.
package mastodon

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gomastodon "github.com/mattn/go-mastodon"

	"github.com/kimhsiao/mastofy/internal/errors"
	"github.com/kimhsiao/mastofy/internal/logging"
	"github.com/kimhsiao/mastofy/internal/models"
)

const (
	defaultHTTPTimeout        = 30 * time.Second
	defaultHTTPConnectTimeout = 5 * time.Second
	defaultHTTPTLSTimeout     = 5 * time.Second

	// DefaultPageLimit is the number of items requested per feed page.
	DefaultPageLimit = 20
	// DefaultUserAgent identifies the client to the server.
	DefaultUserAgent = "mastofy/1.0"

	maxErrorBody = 64 << 10
)

// SessionProvider supplies the credentials used for authenticated calls.
type SessionProvider interface {
	Current() (models.Session, bool)
}

// Client performs authenticated calls against the session's instance.
type Client struct {
	sessions   SessionProvider
	httpClient *http.Client
	timeout    time.Duration
	scheme     string
	pageLimit  int
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its transport is wrapped, not
// replaced.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithScheme sets the URL scheme used to reach instances (default https).
func WithScheme(scheme string) Option {
	return func(c *Client) {
		c.scheme = scheme
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithPageLimit sets the number of items requested per feed page.
func WithPageLimit(n int) Option {
	return func(c *Client) {
		c.pageLimit = n
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHTTPConnectTimeout,
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHTTPTLSTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHTTPTimeout,
	}
}

// NewClient creates a gateway reading credentials from sessions.
func NewClient(sessions SessionProvider, opts ...Option) *Client {
	c := &Client{
		sessions:  sessions,
		scheme:    "https",
		pageLimit: DefaultPageLimit,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = defaultClient()
	}
	hc := *c.httpClient
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = &transport{base: base, userAgent: c.userAgent}
	c.httpClient = &hc
	return c
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// BaseURL returns the root URL of an instance.
func (c *Client) BaseURL(instance string) string {
	return c.scheme + "://" + models.NormalizeInstanceURL(instance)
}

// session returns the current session or an AUTH_REQUIRED error.
func (c *Client) session() (models.Session, error) {
	if c.sessions == nil {
		return models.Session{}, errors.New(errors.ErrAuthRequired, "not logged in")
	}
	sess, ok := c.sessions.Current()
	if !ok {
		return models.Session{}, errors.New(errors.ErrAuthRequired, "not logged in")
	}
	return sess, nil
}

// api returns a go-mastodon client bound to the current session.
func (c *Client) api() (*gomastodon.Client, error) {
	sess, err := c.session()
	if err != nil {
		return nil, err
	}

	mc := gomastodon.NewClient(&gomastodon.Config{
		Server:      c.BaseURL(sess.Instance),
		AccessToken: sess.AccessToken,
	})
	mc.Client = *c.httpClient
	return mc, nil
}

// pagination is the page requested for every feed.
func (c *Client) pagination() *gomastodon.Pagination {
	if c.pageLimit <= 0 {
		return nil
	}
	return &gomastodon.Pagination{Limit: int64(c.pageLimit)}
}

// call runs fn with a context that records the HTTP exchange, and converts
// its error to an AppError.
func call(ctx context.Context, ex *exchange, fn func(ctx context.Context) error) error {
	if ex == nil {
		ex = &exchange{}
	}
	if err := fn(context.WithValue(ctx, exchangeKey{}, ex)); err != nil {
		return ex.classify(err)
	}
	return nil
}

type exchangeKey struct{}

// exchange carries per-call request additions to the transport and the
// response status and server message back from it.
type exchange struct {
	header http.Header
	// query holds defaults for parameters the request does not carry.
	query url.Values

	status  int
	message string
}

// feedExchange asks for the configured page size.
func (c *Client) feedExchange() *exchange {
	ex := &exchange{}
	if c.pageLimit > 0 {
		ex.query = url.Values{"limit": {strconv.Itoa(c.pageLimit)}}
	}
	return ex
}

// classify converts a go-mastodon error using what the transport saw.
func (ex *exchange) classify(err error) error {
	switch {
	case ex.status == 0:
		if stderrors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return errors.Remote("request timed out", err)
		}
		return errors.Remote("request failed", err)
	case ex.status == http.StatusUnauthorized:
		return errors.Wrap(errors.ErrAuthRequired, ex.message, fmt.Errorf("HTTP %d: %w", ex.status, err))
	case ex.status != http.StatusOK:
		return errors.Remote(ex.message, fmt.Errorf("HTTP %d: %w", ex.status, err))
	}
	return errors.Remote("malformed response", err)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

// transport adds the User-Agent and per-call headers, logs each request and
// records the outcome in the call's exchange.
type transport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ex, _ := req.Context().Value(exchangeKey{}).(*exchange)

	req = req.Clone(req.Context())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	if ex != nil {
		for k, vs := range ex.header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if len(ex.query) > 0 {
			q := req.URL.Query()
			for k, vs := range ex.query {
				if q.Get(k) == "" {
					q[k] = vs
				}
			}
			req.URL.RawQuery = q.Encode()
		}
	}

	started := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	logging.Debug("Gateway request", map[string]interface{}{
		"method":      req.Method,
		"path":        req.URL.Path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(started).Milliseconds(),
	})

	if ex != nil {
		ex.status = resp.StatusCode
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
			resp.Body = io.NopCloser(bytes.NewReader(body))
			ex.message = errorMessage(resp.StatusCode, body)
		}
	}
	return resp, nil
}

// errorMessage returns the server's error text, or a generic one when the
// body carries none.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	message := ""
	if json.Unmarshal(body, &payload) == nil {
		message = payload.Error
		if payload.ErrorDescription != "" {
			message = payload.ErrorDescription
		}
	}
	if message = strings.TrimSpace(message); message == "" {
		message = fmt.Sprintf("server returned %d %s", status, http.StatusText(status))
	}
	return message
}
