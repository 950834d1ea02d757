//go:build integration

// Package integration runs the gamerules binary against a real git remote and
// a fake speedrun.com API.
package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/schaermu/gamerules/internal/testutil"
)

const defaultTimeout = 5 * time.Minute

// Call is one request received by the fake API
type Call struct {
	Method string
	Body   gjson.Result
}

// FakeAPI serves the speedrun.com methods gamerules uses from the shared
// game data fixture
type FakeAPI struct {
	srv *httptest.Server

	mu       sync.Mutex
	gameData []byte
	session  string
	audit    string
	calls    []Call
}

func newFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()

	f := &FakeAPI{
		gameData: testutil.ReadFixture(t, "game_data.json"),
		session: `{"session": {"signedIn": true, "user": {"id": "user0001", "name": "Alice"},
			"gameModeratorList": [{"gameId": "game0001", "userId": "user0001", "level": 1}]}}`,
		audit: `{"auditLogList": [{"id": "a1", "eventType": "category-updated", "actorId": "user0001", "gameId": "game0001"}],
			"userList": [{"id": "user0001", "name": "Alice"}]}`,
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

// BaseURL is the value for api.base_url
func (f *FakeAPI) BaseURL() string {
	return f.srv.URL + "/api/v2"
}

func (f *FakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	method := strings.TrimPrefix(r.URL.Path, "/api/v2/")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: method, Body: gjson.ParseBytes(body)})

	if c, err := r.Cookie("PHPSESSID"); err != nil || c.Value == "" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"not signed in"}`)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "GetSession":
		_, _ = io.WriteString(w, f.session)
	case "GetGameData":
		_, _ = w.Write(f.gameData)
	case "GetGameSettings":
		settings := `{"settings": {"rules": ""}}`
		settings, _ = sjson.Set(settings, "settings.rules", gjson.GetBytes(f.gameData, "game.rules").String())
		_, _ = io.WriteString(w, settings)
	case "GetAuditLogList":
		_, _ = io.WriteString(w, f.audit)
	case "PutGameSettings", "PutCategoryUpdate", "PutLevelUpdate", "PutVariableUpdate":
		_, _ = io.WriteString(w, `{}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"unknown method"}`)
	}
}

// SetGameData edits the served game data at a gjson path
func (f *FakeAPI) SetGameData(t *testing.T, path string, value any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := sjson.SetBytes(f.gameData, path, value)
	if err != nil {
		t.Fatalf("set game data %s: %v", path, err)
	}
	f.gameData = data
}

// Calls returns the recorded calls with the given method name
func (f *FakeAPI) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Call
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets the recorded calls
func (f *FakeAPI) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Harness holds a built gamerules binary, a bare rules remote and the fake API
type Harness struct {
	t      *testing.T
	dir    string
	binary string
	Remote string
	API    *FakeAPI
	Config string
}

// NewHarness builds the binary and prepares a seeded remote
func NewHarness(ctx context.Context, t *testing.T) *Harness {
	t.Helper()

	h := &Harness{t: t, dir: t.TempDir()}
	h.binary = filepath.Join(h.dir, "gamerules")
	h.Remote = filepath.Join(h.dir, "remote.git")
	h.API = newFakeAPI(t)

	root, err := testutil.ProjectRoot()
	if err != nil {
		t.Fatalf("get project root: %v", err)
	}

	build := exec.CommandContext(ctx, "go", "build", "-o", h.binary, "./cmd/gamerules")
	build.Dir = root
	build.Stdout = &testWriter{t: t, prefix: "[build] "}
	build.Stderr = &testWriter{t: t, prefix: "[build] "}
	if err := build.Run(); err != nil {
		t.Fatalf("go build: %v", err)
	}

	h.Git(ctx, h.dir, "init", "--bare", "-b", "main", h.Remote)

	seed := h.Clone(ctx, "seed")
	if err := os.WriteFile(filepath.Join(seed, "README.md"), []byte("rules mirror\n"), 0644); err != nil {
		t.Fatalf("write readme: %v", err)
	}
	h.Git(ctx, seed, "add", "README.md")
	h.Git(ctx, seed, "commit", "-m", "Initial commit")
	h.Git(ctx, seed, "push", "origin", "HEAD:main")

	h.Config = filepath.Join(h.dir, "config.yaml")
	config := fmt.Sprintf(`game_id: "game0001"
api:
  base_url: %q
paths:
  repo_dir: %q
  state_dir: %q
git:
  remote_url: %q
  ref: main
push:
  max_concurrency: 2
`, h.API.BaseURL(), filepath.Join(h.dir, "work"), filepath.Join(h.dir, "state"), h.Remote)
	if err := os.WriteFile(h.Config, []byte(config), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return h
}

// Run executes the binary with the harness config and returns its output
func (h *Harness) Run(ctx context.Context, args ...string) (string, error) {
	h.t.Helper()

	args = append([]string{"--config", h.Config, "--log-level", "debug"}, args...)
	cmd := exec.CommandContext(ctx, h.binary, args...)
	cmd.Env = append(os.Environ(), "PHPSESSID=integration-session", "GAME_ID=")

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	h.t.Logf("gamerules %s\n%s", strings.Join(args[4:], " "), out.String())
	return out.String(), err
}

// MustRun runs the binary and fails the test on a non-zero exit
func (h *Harness) MustRun(ctx context.Context, args ...string) string {
	h.t.Helper()
	out, err := h.Run(ctx, args...)
	if err != nil {
		h.t.Fatalf("gamerules %v failed: %v", args, err)
	}
	return out
}

// Clone makes a fresh clone of the remote under name
func (h *Harness) Clone(ctx context.Context, name string) string {
	h.t.Helper()
	dir := filepath.Join(h.dir, name)
	h.Git(ctx, h.dir, "clone", h.Remote, dir)
	h.Git(ctx, dir, "config", "user.email", "editor@example.com")
	h.Git(ctx, dir, "config", "user.name", "Rules Editor")
	return dir
}

// Git runs git in dir and returns trimmed stdout
func (h *Harness) Git(ctx context.Context, dir string, args ...string) string {
	h.t.Helper()
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		h.t.Fatalf("git %v failed: %v\nstderr: %s", args, err, stderr.String())
	}
	return strings.TrimSpace(stdout.String())
}

// CommitCount returns the number of commits on the remote's main branch
func (h *Harness) CommitCount(ctx context.Context) string {
	h.t.Helper()
	return h.Git(ctx, h.Remote, "rev-list", "--count", "main")
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
