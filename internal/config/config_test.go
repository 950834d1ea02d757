package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/gamerules/internal/speedrun"
)

// clearEnv makes sure the overlay variables of the host do not leak into tests
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PHPSESSID", "")
	t.Setenv("GAME_ID", "")
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func validConfig() Config {
	return Config{
		GameID:    "game0001",
		SessionID: "session",
		Paths: PathsConfig{
			RepoDir:  "/absolute/repo",
			StateDir: "/absolute/state",
		},
		Push: PushConfig{MaxConcurrency: 4},
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	sessionFile := writeFile(t, dir, "session", "  abcdef  \n")

	content := `
service: speedrun.com
variants:
  main_game: "game0001"
  rom_hack: "game0002"

api:
  session_file: "` + sessionFile + `"
  timeout: 10s

paths:
  repo_dir: "/srv/rules"
  state_dir: "/var/lib/gamerules"

git:
  remote_url: "git@github.com:test/rules.git"
  ssh_key_file: "/home/user/.ssh/key"

push:
  max_concurrency: 2
`
	cfg, err := Load(writeFile(t, dir, "config.yaml", content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SessionID != "abcdef" {
		t.Errorf("expected session id abcdef, got %q", cfg.SessionID)
	}
	if cfg.API.Timeout != 10*time.Second {
		t.Errorf("expected timeout 10s, got %s", cfg.API.Timeout)
	}
	if cfg.API.BaseURL != speedrun.DefaultBaseURL {
		t.Errorf("expected default base url, got %s", cfg.API.BaseURL)
	}
	if cfg.Push.MaxConcurrency != 2 {
		t.Errorf("expected max concurrency 2, got %d", cfg.Push.MaxConcurrency)
	}
	if cfg.AuthMethod() != "ssh" {
		t.Errorf("expected ssh auth, got %s", cfg.AuthMethod())
	}

	targets := cfg.Targets()
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if targets[0].Folder != "Rom Hack" || targets[0].GameID != "game0002" {
		t.Errorf("unexpected first target: %+v", targets[0])
	}
	if targets[1].Folder != "Main Game" || targets[1].GameID != "game0001" {
		t.Errorf("unexpected second target: %+v", targets[1])
	}
}

func TestLoad_EnvironmentOverlay(t *testing.T) {
	t.Setenv("PHPSESSID", "from-env")
	t.Setenv("GAME_ID", "envgame1")
	dir := t.TempDir()
	sessionFile := writeFile(t, dir, "session", "from-file")

	content := `
game_id: "filegame"
api:
  session_file: "` + sessionFile + `"
paths:
  repo_dir: "/srv/rules"
  state_dir: "/var/lib/gamerules"
`
	cfg, err := Load(writeFile(t, dir, "config.yaml", content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SessionID != "from-env" {
		t.Errorf("expected PHPSESSID to win, got %q", cfg.SessionID)
	}
	if cfg.GameID != "envgame1" {
		t.Errorf("expected GAME_ID to win, got %q", cfg.GameID)
	}
	targets := cfg.Targets()
	if len(targets) != 1 || targets[0].Folder != DefaultTargetFolder {
		t.Errorf("unexpected targets: %+v", targets)
	}
}

func TestLoad_GameIDEnvIgnoredWithVariants(t *testing.T) {
	clearEnv(t)
	t.Setenv("PHPSESSID", "session")
	t.Setenv("GAME_ID", "envgame1")
	dir := t.TempDir()

	content := `
variants:
  main_game: "game0001"
  modded: "game0003"
paths:
  repo_dir: "/srv/rules"
  state_dir: "/var/lib/gamerules"
`
	cfg, err := Load(writeFile(t, dir, "config.yaml", content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.GameID != "" {
		t.Errorf("expected GAME_ID to be ignored, got %q", cfg.GameID)
	}
	if targets := cfg.Targets(); len(targets) != 2 {
		t.Errorf("expected both variant targets, got %+v", targets)
	}
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	if _, err := Load(writeFile(t, dir, "bad.yaml", "game_id: [")); err == nil {
		t.Error("expected error for malformed yaml")
	}

	noSession := `
game_id: "game0001"
paths:
  repo_dir: "/srv/rules"
  state_dir: "/var/lib/gamerules"
`
	_, err := Load(writeFile(t, dir, "nosession.yaml", noSession))
	if err == nil || !strings.Contains(err.Error(), "session id") {
		t.Errorf("expected session id error, got %v", err)
	}

	missingSessionFile := noSession + "api:\n  session_file: \"" + filepath.Join(dir, "nope") + "\"\n"
	if _, err := Load(writeFile(t, dir, "nofile.yaml", missingSessionFile)); err == nil {
		t.Error("expected error for missing session file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name: "valid variants",
			mutate: func(c *Config) {
				c.GameID = ""
				c.Variants = map[string]string{"dlc": "game0002", "category_extensions": "game0003"}
			},
		},
		{
			name:    "no game",
			mutate:  func(c *Config) { c.GameID = "" },
			wantErr: "one of game_id or variants",
		},
		{
			name:    "game id and variants",
			mutate:  func(c *Config) { c.Variants = map[string]string{"dlc": "x"} },
			wantErr: "mutually exclusive",
		},
		{
			name: "unknown variant",
			mutate: func(c *Config) {
				c.GameID = ""
				c.Variants = map[string]string{"sequel": "x"}
			},
			wantErr: "unknown variant",
		},
		{
			name: "empty variant id",
			mutate: func(c *Config) {
				c.GameID = ""
				c.Variants = map[string]string{"modded": ""}
			},
			wantErr: "variants.modded",
		},
		{
			name:    "missing session",
			mutate:  func(c *Config) { c.SessionID = "" },
			wantErr: "session id",
		},
		{
			name:    "missing repo dir",
			mutate:  func(c *Config) { c.Paths.RepoDir = "" },
			wantErr: "paths.repo_dir is required",
		},
		{
			name:    "relative state dir",
			mutate:  func(c *Config) { c.Paths.StateDir = "relative/state" },
			wantErr: "absolute",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Push.MaxConcurrency = 0 },
			wantErr: "max_concurrency",
		},
		{
			name: "both ssh key and https token set",
			mutate: func(c *Config) {
				c.Git.RemoteURL = "git@github.com:test/rules.git"
				c.Git.SSHKeyFile = "/key"
				c.Git.HTTPSTokenFile = "/token"
			},
			wantErr: "only one of",
		},
		{
			name: "ssh key with https remote",
			mutate: func(c *Config) {
				c.Git.RemoteURL = "https://github.com/test/rules.git"
				c.Git.SSHKeyFile = "/key"
			},
			wantErr: "SSH scheme",
		},
		{
			name: "https token with ssh remote",
			mutate: func(c *Config) {
				c.Git.RemoteURL = "git@github.com:test/rules.git"
				c.Git.HTTPSTokenFile = "/token"
			},
			wantErr: "HTTPS scheme",
		},
		{
			name: "serve without remote",
			mutate: func(c *Config) {
				c.Serve = ServeConfig{Enabled: true, ListenAddr: ":8787", GitHubWebhookSecretFile: "/secret"}
			},
			wantErr: "git.remote_url",
		},
		{
			name: "serve without secret",
			mutate: func(c *Config) {
				c.Git.RemoteURL = "https://github.com/test/rules.git"
				c.Serve = ServeConfig{Enabled: true, ListenAddr: ":8787"}
			},
			wantErr: "github_webhook_secret_file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	if cfg.Service != "speedrun.com" {
		t.Errorf("expected default service, got %s", cfg.Service)
	}
	if cfg.API.UserAgent != speedrun.DefaultUserAgent {
		t.Errorf("expected default user agent, got %s", cfg.API.UserAgent)
	}
	if cfg.Git.Ref != "main" {
		t.Errorf("expected default ref main, got %s", cfg.Git.Ref)
	}
	if cfg.Git.AuthorName != "github-actions[bot]" {
		t.Errorf("expected bot author, got %s", cfg.Git.AuthorName)
	}
	if cfg.Push.MaxConcurrency != 4 {
		t.Errorf("expected default concurrency 4, got %d", cfg.Push.MaxConcurrency)
	}
}

func TestTargets_Order(t *testing.T) {
	cfg := Config{Variants: map[string]string{}}
	for i := len(Variants) - 1; i >= 0; i-- {
		cfg.Variants[Variants[i].Key] = "id-" + Variants[i].Key
	}

	targets := cfg.Targets()
	if len(targets) != 9 {
		t.Fatalf("expected 9 targets, got %d", len(targets))
	}
	want := []string{
		"Rom Hack", "Modded", "Fan Game", "Pre Release", "DLC",
		"Main Game", "Mini Game", "Custom Server", "Category Extensions",
	}
	for i, tgt := range targets {
		if tgt.Folder != want[i] {
			t.Errorf("target %d: expected folder %s, got %s", i, want[i], tgt.Folder)
		}
		if tgt.GameID != "id-"+tgt.Key {
			t.Errorf("target %d: unexpected game id %s", i, tgt.GameID)
		}
	}
}

func TestLockFilePath(t *testing.T) {
	cfg := Config{Paths: PathsConfig{StateDir: "/var/lib/gamerules"}}
	if got := cfg.LockFilePath(); got != "/var/lib/gamerules/gamerules.lock" {
		t.Errorf("LockFilePath() = %s", got)
	}
}

func TestAuthMethod(t *testing.T) {
	tests := []struct {
		name string
		git  GitConfig
		want string
	}{
		{"ssh", GitConfig{SSHKeyFile: "/key"}, "ssh"},
		{"https", GitConfig{HTTPSTokenFile: "/token"}, "https"},
		{"none", GitConfig{}, "none"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Git: tt.git}
			if got := cfg.AuthMethod(); got != tt.want {
				t.Errorf("AuthMethod() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRemoteScheme(t *testing.T) {
	tests := []struct {
		url   string
		https bool
		ssh   bool
	}{
		{"https://github.com/test/rules.git", true, false},
		{"git@github.com:test/rules.git", false, true},
		{"ssh://git@github.com/test/rules.git", false, true},
		{"file:///tmp/rules.git", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			cfg := Config{Git: GitConfig{RemoteURL: tt.url}}
			if got := cfg.IsHTTPS(); got != tt.https {
				t.Errorf("IsHTTPS() = %v, want %v", got, tt.https)
			}
			if got := cfg.IsSSH(); got != tt.ssh {
				t.Errorf("IsSSH() = %v, want %v", got, tt.ssh)
			}
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("GAMERULES_TEST_HOME", "/home/testuser")

	cfg := Config{
		GameID:   "${GAMERULES_TEST_HOME}",
		Variants: map[string]string{"dlc": "$GAMERULES_TEST_HOME"},
		API: APIConfig{
			SessionFile: "${GAMERULES_TEST_HOME}/session",
		},
		Paths: PathsConfig{
			RepoDir:  "${GAMERULES_TEST_HOME}/rules",
			StateDir: "${GAMERULES_TEST_HOME}/.local/state/gamerules",
		},
		Git: GitConfig{
			SSHKeyFile:     "${GAMERULES_TEST_HOME}/.ssh/key",
			HTTPSTokenFile: "${GAMERULES_TEST_HOME}/token",
		},
		Serve: ServeConfig{
			ListenAddr:              "${GAMERULES_TEST_HOME}:8080",
			GitHubWebhookSecretFile: "${GAMERULES_TEST_HOME}/secret",
		},
	}

	cfg.expandEnv()

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"GameID", cfg.GameID, "/home/testuser"},
		{"Variants.dlc", cfg.Variants["dlc"], "/home/testuser"},
		{"API.SessionFile", cfg.API.SessionFile, "/home/testuser/session"},
		{"Paths.RepoDir", cfg.Paths.RepoDir, "/home/testuser/rules"},
		{"Paths.StateDir", cfg.Paths.StateDir, "/home/testuser/.local/state/gamerules"},
		{"Git.SSHKeyFile", cfg.Git.SSHKeyFile, "/home/testuser/.ssh/key"},
		{"Git.HTTPSTokenFile", cfg.Git.HTTPSTokenFile, "/home/testuser/token"},
		{"Serve.ListenAddr", cfg.Serve.ListenAddr, "/home/testuser:8080"},
		{"Serve.GitHubWebhookSecretFile", cfg.Serve.GitHubWebhookSecretFile, "/home/testuser/secret"},
	}

	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("expandEnv() %s = %s, want %s", c.name, c.got, c.want)
		}
	}
}
