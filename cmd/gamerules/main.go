package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schaermu/gamerules/internal/config"
	"github.com/schaermu/gamerules/internal/fsys"
	"github.com/schaermu/gamerules/internal/git"
	"github.com/schaermu/gamerules/internal/speedrun"
	"github.com/schaermu/gamerules/internal/sync"
	"github.com/schaermu/gamerules/internal/webhook"
	"github.com/spf13/cobra"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	dryRun    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gamerules",
	Short: "Mirror speedrun.com game rules into a Git repository",
	Long: `gamerules keeps the rules text of a speedrun.com game and its variant games
in a Git repository as plain text files.

Pull rebuilds the rules tree from the site and commits what changed. Push
sends the rules edited by the last commit back to the site. Serve runs push
for every GitHub push event.`,
	SilenceUsage: true,
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Write the current rules of every configured game into the repository",
	Long: `Pull fetches every configured game, rewrites its rules folder and commits
and pushes the result when anything changed.

Super moderators get the author of the latest rules change named in the
commit message.`,
	RunE: runPull,
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Send rules edited by the last commit to speedrun.com",
	Long: `Push reads the files modified by HEAD, resolves each one to the category,
level, variable or value it holds the rules of, and updates them on the site.

Nothing is updated when any edited file cannot be resolved.`,
	RunE: runPush,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Serve starts a long-running HTTP server that listens for GitHub push events
on the rules repository and runs push for every accepted commit.

Commits authored by the configured bot identity are ignored.`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gamerules %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/gamerules/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	pullCmd.Flags().BoolVar(&dryRun, "dry-run", false, "write the rules tree but do not commit")
	pushCmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve and log updates without sending them")

	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// deps bundles the clients every command needs
type deps struct {
	cfg    *config.Config
	logger *slog.Logger
	git    *git.ShellClient
	engine *sync.Engine
}

func setup(dry bool) (*deps, error) {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	api := speedrun.NewHTTPClient(cfg.API.BaseURL, cfg.API.UserAgent, cfg.SessionID, cfg.API.Timeout)
	gitClient := git.NewShellClient(
		cfg.Paths.RepoDir,
		git.Identity{Name: cfg.Git.AuthorName, Email: cfg.Git.AuthorEmail},
		cfg.Git.SSHKeyFile,
		cfg.Git.HTTPSTokenFile,
	)
	engine := sync.NewEngine(cfg, api, gitClient, fsys.NewOS(cfg.Paths.RepoDir), logger, dry)

	return &deps{cfg: cfg, logger: logger, git: gitClient, engine: engine}, nil
}

// checkout refreshes the repository when a remote is configured. Without one
// the repository directory is expected to be an existing checkout.
func (d *deps) checkout(ctx context.Context) error {
	if d.cfg.Git.RemoteURL == "" {
		return nil
	}
	head, err := d.git.EnsureCheckout(ctx, d.cfg.Git.RemoteURL, d.cfg.Git.Ref, d.cfg.Paths.RepoDir)
	if err != nil {
		return fmt.Errorf("failed to check out rules repository: %w", err)
	}
	d.logger.Info("rules repository ready", "commit", head)
	return nil
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	d, err := setup(dryRun)
	if err != nil {
		return err
	}
	if err := d.checkout(ctx); err != nil {
		return err
	}

	res, err := d.engine.Pull(ctx)
	if err != nil {
		d.logger.Error("pull failed", "error", err)
		return err
	}
	d.logger.Info("pull finished", "changed", res.Changed, "committed", res.Committed)
	return nil
}

func runPush(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	d, err := setup(dryRun)
	if err != nil {
		return err
	}
	if err := d.checkout(ctx); err != nil {
		return err
	}

	res, err := d.engine.Push(ctx)
	if err != nil {
		d.logger.Error("push failed", "error", err)
		return err
	}
	d.logger.Info("push finished", "updates", res.Updates, "ignored_outside", len(res.Outside))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	d, err := setup(false)
	if err != nil {
		return err
	}
	if !d.cfg.Serve.Enabled {
		return fmt.Errorf("serve.enabled must be true to run the webhook server")
	}

	server, err := webhook.NewServer(d.cfg, d.git, d.engine, d.logger)
	if err != nil {
		return fmt.Errorf("failed to create webhook server: %w", err)
	}
	return server.Start(ctx)
}

func setupLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/gamerules/config.yaml", home)
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	targets := make([]string, 0, len(cfg.Targets()))
	for _, t := range cfg.Targets() {
		targets = append(targets, t.Folder+"="+t.GameID)
	}
	logger.Debug("configuration loaded",
		"service", cfg.Service,
		"targets", targets,
		"repo_dir", cfg.Paths.RepoDir,
		"state_dir", cfg.Paths.StateDir,
		"git_auth", cfg.AuthMethod())

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
