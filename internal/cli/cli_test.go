package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/mastofy/internal/app"
	"github.com/kimhsiao/mastofy/internal/config"
	"github.com/kimhsiao/mastofy/internal/mastodon"
)

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func statusJSON(id, createdAt string, favourited bool, favourites int, reblogged bool, reblogs int) string {
	return fmt.Sprintf(`{"id": %q, "content": "<p>post %s</p>", "created_at": %q,
		"account": {"id": "a1", "username": "alice", "acct": "alice@social.example", "display_name": "Alice"},
		"favourited": %t, "favourites_count": %d, "reblogged": %t, "reblogs_count": %d}`,
		id, id, createdAt, favourited, favourites, reblogged, reblogs)
}

// fakeInstance is a minimal Mastodon server holding one reactable status.
type fakeInstance struct {
	t *testing.T

	mu         sync.Mutex
	favourited bool
	favourites int
	reblogged  bool
	reblogs    int
	posted     []url.Values
	uploads    int
	clients    map[string]string // client id -> secret
}

// registrations returns how many times the application was registered.
func (f *fakeInstance) registrations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func newFakeInstance(t *testing.T) (*fakeInstance, string) {
	f := &fakeInstance{t: t, favourites: 5, reblogs: 1, clients: make(map[string]string)}
	mux := http.NewServeMux()

	// Each registration is a new client; the authorize page shows the code
	// "code-for-<client id>", which only that client may exchange.
	mux.HandleFunc("/api/v1/apps", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		id := fmt.Sprintf("client-%d", len(f.clients)+1)
		f.clients[id] = "secret-" + id
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, `{"client_id": "`+id+`", "client_secret": "secret-`+id+`"}`)
	})
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseForm()) {
			return
		}
		id := r.PostForm.Get("client_id")
		f.mu.Lock()
		secret, known := f.clients[id]
		f.mu.Unlock()
		if !known || secret != r.PostForm.Get("client_secret") || r.PostForm.Get("code") != "code-for-"+id {
			writeJSON(w, http.StatusBadRequest, `{"error": "invalid_grant"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"access_token": "at-1", "token_type": "Bearer"}`)
	})

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer at-1" {
				writeJSON(w, http.StatusUnauthorized, `{"error": "The access token is invalid"}`)
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("/api/v1/timelines/home", authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, "["+
			statusJSON("s2", "2024-05-01T12:05:00Z", false, 0, false, 0)+","+
			statusJSON("s1", "2024-05-01T12:00:00Z", f.favourited, f.favourites, f.reblogged, f.reblogs)+"]")
	}))
	mux.HandleFunc("/api/v1/notifications", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[]`)
	}))
	mux.HandleFunc("/api/v1/statuses/s1/", authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch strings.TrimPrefix(r.URL.Path, "/api/v1/statuses/s1/") {
		case "favourite":
			f.favourited, f.favourites = true, f.favourites+1
		case "unfavourite":
			f.favourited, f.favourites = false, f.favourites-1
		case "reblog":
			f.reblogged, f.reblogs = true, f.reblogs+1
			inner := statusJSON("s1", "2024-05-01T12:00:00Z", f.favourited, f.favourites, f.reblogged, f.reblogs)
			writeJSON(w, http.StatusOK, `{"id": "w1", "created_at": "2024-05-01T13:00:00Z", "account": {"id": "me"}, "reblog": `+inner+`}`)
			return
		case "unreblog":
			f.reblogged, f.reblogs = false, f.reblogs-1
		default:
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, statusJSON("s1", "2024-05-01T12:00:00Z", f.favourited, f.favourites, f.reblogged, f.reblogs))
	}))
	media := authed(func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		file.Close()
		f.mu.Lock()
		f.uploads++
		id := fmt.Sprintf("m%d", f.uploads)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, `{"id": "`+id+`", "preview_url": "https://files.example/`+id+`.png"}`)
	})
	mux.HandleFunc("/api/v1/media", media)
	mux.HandleFunc("/api/v2/media", media)
	mux.HandleFunc("/api/v1/statuses", authed(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseForm()) {
			return
		}
		f.mu.Lock()
		f.posted = append(f.posted, r.PostForm)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, statusJSON("p1", "2024-05-01T14:00:00Z", false, 0, false, 0))
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, strings.TrimPrefix(srv.URL, "http://")
}

// harness runs commands against a private data directory.
type harness struct {
	t          *testing.T
	configPath string
	dataDir    string
}

type result struct {
	stdout string
	stderr string
	err    error
}

// response mirrors CLIResponse with the payload left undecoded.
type response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, name := range []string{
		"DATA_DIR", "POLL_INTERVAL", "REQUEST_TIMEOUT", "PAGE_LIMIT",
		"LOG_LEVEL", "MAX_IMAGE_DIMENSION", "CREDENTIAL_TTL", "TOKEN_KEY",
	} {
		t.Setenv(config.EnvPrefix+name, "")
	}

	h := &harness{
		t:          t,
		configPath: filepath.Join(dir, "config.yaml"),
		dataDir:    filepath.Join(dir, "data"),
	}
	content := fmt.Sprintf("data_dir: %q\nlog_level: error\n", h.dataDir)
	require.NoError(t, os.WriteFile(h.configPath, []byte(content), 0o600))
	return h
}

func (h *harness) runWithInput(stdin string, args ...string) result {
	h.t.Helper()
	opts := &RootOptions{
		Open: func(cfg *config.Config, appOpts ...app.Option) (*app.App, error) {
			appOpts = append(appOpts, app.WithGatewayOptions(mastodon.WithScheme("http")))
			return app.Open(cfg, appOpts...)
		},
	}

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(opts)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", h.configPath}, args...))

	err := cmd.Execute()
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func (h *harness) run(args ...string) result {
	h.t.Helper()
	return h.runWithInput("", args...)
}

// runJSON runs a command with --format json and decodes the last envelope.
func (h *harness) runJSON(args ...string) (response, error) {
	h.t.Helper()
	res := h.run(append([]string{"--format", "json"}, args...)...)

	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	var resp response
	require.NoError(h.t, json.Unmarshal([]byte(lines[len(lines)-1]), &resp), res.stdout)
	return resp, res.err
}

var clientIDPattern = regexp.MustCompile(`client_id=([^&\s]+)`)

// clientID extracts the client id from the authorization page a login printed.
func clientID(t *testing.T, output string) string {
	t.Helper()
	m := clientIDPattern.FindStringSubmatch(output)
	require.NotNil(t, m, "no authorization URL in %q", output)
	return m[1]
}

// login registers with instance in one run and finishes with --code in a
// second one.
func (h *harness) login(instance string) {
	h.t.Helper()
	res := h.run("login", instance)
	require.NoError(h.t, res.err, res.stderr)

	res = h.run("login", instance, "--code", "code-for-"+clientID(h.t, res.stderr))
	require.NoError(h.t, res.err, res.stderr)
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "mastofy", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"login"}, {"logout"}, {"timeline"}, {"watch"}, {"post"}, {"fav"}, {"boost"},
		{"columns", "list"}, {"columns", "add"}, {"columns", "remove"},
		{"columns", "move"}, {"columns", "pin"}, {"reset"},
	}

	for _, path := range commands {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestInvalidFormat(t *testing.T) {
	h := newHarness(t)
	res := h.run("--format", "xml", "columns", "list")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "invalid format")
}

func TestColumnsLifecycle(t *testing.T) {
	h := newHarness(t)

	resp, err := h.runJSON("columns", "list")
	require.NoError(t, err)
	var columns []columnView
	require.NoError(t, json.Unmarshal(resp.Data, &columns))
	require.Len(t, columns, 2)
	assert.Equal(t, "home", string(columns[0].Type))
	assert.Equal(t, "notifications", string(columns[1].Type))

	res := h.run("columns", "add", "hashtag", "--hashtag", "#golang")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `Added column "#golang"`)

	resp, err = h.runJSON("columns", "add", "hashtag")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)

	require.NoError(t, h.run("columns", "move", "3", "1").err)
	require.NoError(t, h.run("columns", "pin", "1").err)

	resp, err = h.runJSON("columns", "list")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(resp.Data, &columns))
	require.Len(t, columns, 3)
	assert.Equal(t, "golang", columns[0].Hashtag)
	assert.True(t, columns[0].Pinned)
	assert.Equal(t, "home", string(columns[1].Type))

	res = h.run("columns", "move", "1", "9")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "VALIDATION_ERROR")

	res = h.run("columns", "remove", columns[0].ID)
	require.Error(t, res.err, "non-interactive removal needs --yes")
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))

	require.NoError(t, h.run("columns", "remove", "--yes", columns[0].ID).err)

	res = h.run("columns", "list")
	require.NoError(t, res.err)
	assert.NotContains(t, res.stdout, "#golang")
	assert.Contains(t, res.stdout, "Home")

	res = h.run("columns", "pin", "no-such-column")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "NOT_FOUND")
}

func TestTimelineRequiresLogin(t *testing.T) {
	h := newHarness(t)

	resp, err := h.runJSON("timeline")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "AUTH_REQUIRED", resp.Error.Code)
}

func TestLoginTimelineAndReactions(t *testing.T) {
	server, instance := newFakeInstance(t)
	h := newHarness(t)

	res := h.runWithInput("wrong-code\n", "login", instance)
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "REMOTE_ERROR")

	res = h.runWithInput("code-for-client-2\n", "login", instance)
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stderr, "/oauth/authorize")
	assert.Contains(t, res.stdout, "Logged in to "+instance)
	require.NoError(t, h.run("logout").err)

	res = h.run("login", instance)
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "--code")
	pending := clientID(t, res.stderr)
	assert.Equal(t, "client-3", pending)

	res = h.run("login", "https://"+instance+"/", "--code", "code-for-"+pending)
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "Logged in to "+instance)
	assert.Equal(t, 3, server.registrations(), "--code reuses the stored registration")

	res = h.run("timeline", "home")
	require.Error(t, res.err, "column ids, not types")

	res = h.run("timeline")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "== Home ==")
	assert.Less(t, strings.Index(res.stdout, "post s2"), strings.Index(res.stdout, "post s1"))

	resp, err := h.runJSON("fav", "s1")
	require.NoError(t, err)
	var status struct {
		ID              string `json:"id"`
		Favourited      bool   `json:"favourited"`
		FavouritesCount int    `json:"favouritesCount"`
		Reblogged       bool   `json:"reblogged"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	assert.Equal(t, "s1", status.ID)
	assert.True(t, status.Favourited)
	assert.Equal(t, 6, status.FavouritesCount)

	res = h.run("fav", "s1")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Removed favourite from s1 (5 favourites)")

	resp, err = h.runJSON("boost", "s1")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	assert.Equal(t, "s1", status.ID, "the boost wrapper is unwrapped")
	assert.True(t, status.Reblogged)

	res = h.run("fav", "missing")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "NOT_FOUND")

	server.mu.Lock()
	assert.True(t, server.reblogged)
	assert.False(t, server.favourited)
	server.mu.Unlock()

	res = h.run("logout")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Logged out of "+instance)

	resp, err = h.runJSON("timeline")
	require.Error(t, err)
	assert.Equal(t, "AUTH_REQUIRED", resp.Error.Code)
}

func TestPost(t *testing.T) {
	server, instance := newFakeInstance(t)
	h := newHarness(t)
	h.login(instance)

	res := h.run("post")
	require.Error(t, res.err, "text is required")

	image := filepath.Join(t.TempDir(), "photo.gif")
	require.NoError(t, os.WriteFile(image, []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"), 0o600))

	res = h.run("post", "hello", "world", "--media", image)
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "Posted p1")

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.Equal(t, 1, server.uploads)
	require.Len(t, server.posted, 1)
	assert.Equal(t, "hello world", server.posted[0].Get("status"))
	assert.Equal(t, []string{"m1"}, server.posted[0]["media_ids[]"])
}

func TestPost_missingMediaFile(t *testing.T) {
	_, instance := newFakeInstance(t)
	h := newHarness(t)
	h.login(instance)

	res := h.run("post", "hi", "--media", filepath.Join(t.TempDir(), "nope.png"))
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
}

func TestWatch(t *testing.T) {
	_, instance := newFakeInstance(t)
	h := newHarness(t)
	h.login(instance)

	res := h.run("watch", "--duration", "1s")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "== Home ==")
	assert.Contains(t, res.stdout, "post s1")
	assert.Contains(t, res.stdout, "Stopped after 2 item(s)")
	assert.Less(t, strings.Index(res.stdout, "post s1"), strings.Index(res.stdout, "post s2"),
		"new items are printed oldest first")
}

func TestLogin_codeWithoutRegistration(t *testing.T) {
	server, instance := newFakeInstance(t)
	h := newHarness(t)

	resp, err := h.runJSON("login", instance, "--code", "code-for-client-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "CREDENTIALS_MISSING", resp.Error.Code)
	assert.Zero(t, server.registrations())
}

func TestReset(t *testing.T) {
	_, instance := newFakeInstance(t)
	h := newHarness(t)
	h.login(instance)
	require.NoError(t, h.run("columns", "add", "hashtag", "--hashtag", "golang").err)

	res := h.run("reset")
	require.Error(t, res.err, "non-interactive reset needs --yes")
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))

	resp, err := h.runJSON("columns", "list")
	require.NoError(t, err)
	var columns []columnView
	require.NoError(t, json.Unmarshal(resp.Data, &columns))
	assert.Len(t, columns, 3, "refused reset keeps the layout")

	resp, err = h.runJSON("reset", "--yes")
	require.NoError(t, err)
	var data struct {
		Reset         bool `json:"reset"`
		SchemaVersion int  `json:"schemaVersion"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.True(t, data.Reset)
	assert.Equal(t, 1, data.SchemaVersion)

	resp, err = h.runJSON("columns", "list")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(resp.Data, &columns))
	require.Len(t, columns, 2)
	assert.Equal(t, "home", string(columns[0].Type))

	resp, err = h.runJSON("timeline")
	require.Error(t, err)
	assert.Equal(t, "AUTH_REQUIRED", resp.Error.Code)
}
