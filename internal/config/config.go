package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/gamerules/internal/speedrun"
)

// DefaultTargetFolder is the tree root used when a single game id is configured
const DefaultTargetFolder = "Rules"

// Variant is one of the fixed game-variant keys a repository may mirror
type Variant struct {
	Key    string
	Folder string
}

// Variants lists every supported variant in target order
var Variants = []Variant{
	{Key: "rom_hack", Folder: "Rom Hack"},
	{Key: "modded", Folder: "Modded"},
	{Key: "fan_game", Folder: "Fan Game"},
	{Key: "pre_release", Folder: "Pre Release"},
	{Key: "dlc", Folder: "DLC"},
	{Key: "main_game", Folder: "Main Game"},
	{Key: "mini_game", Folder: "Mini Game"},
	{Key: "custom_server", Folder: "Custom Server"},
	{Key: "category_extensions", Folder: "Category Extensions"},
}

// Target is one game mirrored into its own top-level folder
type Target struct {
	Key    string
	Folder string
	GameID string
}

// Config represents the complete gamerules configuration
type Config struct {
	Service  string            `yaml:"service"`
	GameID   string            `yaml:"game_id"`
	Variants map[string]string `yaml:"variants"`
	API      APIConfig         `yaml:"api"`
	Paths    PathsConfig       `yaml:"paths"`
	Git      GitConfig         `yaml:"git"`
	Push     PushConfig        `yaml:"push"`
	Serve    ServeConfig       `yaml:"serve"`

	// SessionID is the PHPSESSID cookie, read from api.session_file or the
	// environment
	SessionID string `yaml:"-"`
}

// APIConfig configures the speedrun.com client
type APIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	UserAgent   string        `yaml:"user_agent"`
	SessionFile string        `yaml:"session_file"`
	Timeout     time.Duration `yaml:"timeout"`
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	RepoDir  string `yaml:"repo_dir"`
	StateDir string `yaml:"state_dir"`
}

// GitConfig configures the rules repository and the bot identity
type GitConfig struct {
	RemoteURL      string `yaml:"remote_url"`
	Ref            string `yaml:"ref"`
	AuthorName     string `yaml:"author_name"`
	AuthorEmail    string `yaml:"author_email"`
	SSHKeyFile     string `yaml:"ssh_key_file"`
	HTTPSTokenFile string `yaml:"https_token_file"`
}

// PushConfig configures push runs
type PushConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
}

// ServeConfig configures the webhook server
type ServeConfig struct {
	Enabled                 bool     `yaml:"enabled"`
	ListenAddr              string   `yaml:"listen_addr"`
	GitHubWebhookSecretFile string   `yaml:"github_webhook_secret_file"`
	AllowedEventTypes       []string `yaml:"allowed_event_types"`
	AllowedRefs             []string `yaml:"allowed_refs"`
}

// envOverlay holds the settings that may come from the environment
type envOverlay struct {
	SessionID string `env:"PHPSESSID"`
	GameID    string `env:"GAME_ID"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()

	if err := cfg.loadSession(); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.GameID = os.ExpandEnv(c.GameID)
	for k, v := range c.Variants {
		c.Variants[k] = os.ExpandEnv(v)
	}
	c.API.BaseURL = os.ExpandEnv(c.API.BaseURL)
	c.API.SessionFile = os.ExpandEnv(c.API.SessionFile)
	c.Paths.RepoDir = os.ExpandEnv(c.Paths.RepoDir)
	c.Paths.StateDir = os.ExpandEnv(c.Paths.StateDir)
	c.Git.RemoteURL = os.ExpandEnv(c.Git.RemoteURL)
	c.Git.Ref = os.ExpandEnv(c.Git.Ref)
	c.Git.SSHKeyFile = os.ExpandEnv(c.Git.SSHKeyFile)
	c.Git.HTTPSTokenFile = os.ExpandEnv(c.Git.HTTPSTokenFile)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.GitHubWebhookSecretFile = os.ExpandEnv(c.Serve.GitHubWebhookSecretFile)
}

// loadSession reads the session cookie from api.session_file
func (c *Config) loadSession() error {
	if c.API.SessionFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.API.SessionFile)
	if err != nil {
		return fmt.Errorf("failed to read session file: %w", err)
	}
	c.SessionID = strings.TrimSpace(string(data))
	return nil
}

// applyEnv overlays PHPSESSID and GAME_ID from the environment. A config
// that lists variants keeps them and ignores GAME_ID.
func (c *Config) applyEnv() error {
	var overlay envOverlay
	if err := env.Parse(&overlay); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	if overlay.SessionID != "" {
		c.SessionID = overlay.SessionID
	}
	if overlay.GameID != "" && len(c.Variants) == 0 {
		c.GameID = overlay.GameID
	}
	return nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Service == "" {
		c.Service = "speedrun.com"
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = speedrun.DefaultBaseURL
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = speedrun.DefaultUserAgent
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.Git.Ref == "" {
		c.Git.Ref = "main"
	}
	if c.Git.AuthorName == "" {
		c.Git.AuthorName = "github-actions[bot]"
	}
	if c.Git.AuthorEmail == "" {
		c.Git.AuthorEmail = "github-actions[bot]@users.noreply.github.com"
	}
	if c.Push.MaxConcurrency == 0 {
		c.Push.MaxConcurrency = 4
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	// Exactly one way of naming the games
	if c.GameID == "" && len(c.Variants) == 0 {
		return fmt.Errorf("one of game_id or variants is required")
	}
	if c.GameID != "" && len(c.Variants) > 0 {
		return fmt.Errorf("game_id and variants are mutually exclusive")
	}
	for key, id := range c.Variants {
		if !knownVariant(key) {
			return fmt.Errorf("unknown variant %q", key)
		}
		if id == "" {
			return fmt.Errorf("variants.%s: game id is required", key)
		}
	}

	if c.SessionID == "" {
		return fmt.Errorf("a session id is required (api.session_file or PHPSESSID)")
	}

	// Validate paths
	if c.Paths.RepoDir == "" {
		return fmt.Errorf("paths.repo_dir is required")
	}
	if c.Paths.StateDir == "" {
		return fmt.Errorf("paths.state_dir is required")
	}
	if !filepath.IsAbs(c.Paths.RepoDir) {
		return fmt.Errorf("paths.repo_dir must be an absolute path: %s", c.Paths.RepoDir)
	}
	if !filepath.IsAbs(c.Paths.StateDir) {
		return fmt.Errorf("paths.state_dir must be an absolute path: %s", c.Paths.StateDir)
	}

	if c.Push.MaxConcurrency < 1 {
		return fmt.Errorf("push.max_concurrency must be at least 1, got %d", c.Push.MaxConcurrency)
	}

	// Validate auth: only one auth method may be configured
	if c.Git.SSHKeyFile != "" && c.Git.HTTPSTokenFile != "" {
		return fmt.Errorf("git: only one of ssh_key_file or https_token_file may be set")
	}

	// Validate auth: when auth is configured, the URL scheme must match
	if c.Git.SSHKeyFile != "" && !c.IsSSH() {
		return fmt.Errorf("git.ssh_key_file is set but git.remote_url does not use an SSH scheme (git@ or ssh://)")
	}
	if c.Git.HTTPSTokenFile != "" && !c.IsHTTPS() {
		return fmt.Errorf("git.https_token_file is set but git.remote_url does not use HTTPS scheme")
	}

	// Validate serve config if enabled
	if c.Serve.Enabled {
		if c.Serve.ListenAddr == "" {
			return fmt.Errorf("serve.listen_addr is required when serve is enabled")
		}
		if c.Serve.GitHubWebhookSecretFile == "" {
			return fmt.Errorf("serve.github_webhook_secret_file is required when serve is enabled")
		}
		if c.Git.RemoteURL == "" {
			return fmt.Errorf("git.remote_url is required when serve is enabled")
		}
	}

	return nil
}

func knownVariant(key string) bool {
	for _, v := range Variants {
		if v.Key == key {
			return true
		}
	}
	return false
}

// Targets returns the games to mirror. A single game id maps to
// DefaultTargetFolder; variants come back in the order of Variants.
func (c *Config) Targets() []Target {
	if c.GameID != "" {
		return []Target{{Key: "game", Folder: DefaultTargetFolder, GameID: c.GameID}}
	}
	var out []Target
	for _, v := range Variants {
		if id, ok := c.Variants[v.Key]; ok {
			out = append(out, Target{Key: v.Key, Folder: v.Folder, GameID: id})
		}
	}
	return out
}

// LockFilePath returns the path of the run lock
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.StateDir, "gamerules.lock")
}

// AuthMethod returns a description of the configured auth method
func (c *Config) AuthMethod() string {
	if c.Git.SSHKeyFile != "" {
		return "ssh"
	}
	if c.Git.HTTPSTokenFile != "" {
		return "https"
	}
	return "none"
}

// IsHTTPS returns true if the remote URL uses HTTPS
func (c *Config) IsHTTPS() bool {
	return strings.HasPrefix(c.Git.RemoteURL, "https://")
}

// IsSSH returns true if the remote URL uses SSH
func (c *Config) IsSSH() bool {
	return strings.HasPrefix(c.Git.RemoteURL, "git@") || strings.HasPrefix(c.Git.RemoteURL, "ssh://")
}
