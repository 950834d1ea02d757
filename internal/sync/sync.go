package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gofrs/flock"

	"github.com/schaermu/gamerules/internal/auth"
	"github.com/schaermu/gamerules/internal/config"
	"github.com/schaermu/gamerules/internal/fsys"
	"github.com/schaermu/gamerules/internal/git"
	"github.com/schaermu/gamerules/internal/speedrun"
)

// ErrLocked is returned when another pull or push holds the run lock
var ErrLocked = errors.New("another run is in progress")

// Engine drives pull and push runs for every configured target
type Engine struct {
	cfg    *config.Config
	api    speedrun.Client
	git    git.Client
	fs     fsys.FS
	logger *slog.Logger
	dryRun bool
}

// NewEngine creates a new sync engine. fs must be rooted at the repository
// work tree git operates on.
func NewEngine(cfg *config.Config, api speedrun.Client, gitClient git.Client, fs fsys.FS, logger *slog.Logger, dryRun bool) *Engine {
	return &Engine{
		cfg:    cfg,
		api:    api,
		git:    gitClient,
		fs:     fs,
		logger: logger,
		dryRun: dryRun,
	}
}

// lock takes the run lock in the state directory. The returned function
// releases it.
func (e *Engine) lock() (func(), error) {
	if err := os.MkdirAll(e.cfg.Paths.StateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	fl := flock.New(e.cfg.LockFilePath())
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, e.cfg.LockFilePath())
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			e.logger.Warn("failed to release lock", "error", err)
		}
	}, nil
}

// authorizeAll checks the session against every target before any work
// starts, so a missing privilege on one game aborts the whole run.
func (e *Engine) authorizeAll(ctx context.Context, targets []config.Target) ([]auth.Grant, error) {
	session, err := e.api.GetSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	grants := make([]auth.Grant, len(targets))
	for i, t := range targets {
		grant, err := auth.Authorize(session, t.GameID)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", t.Folder, err)
		}
		e.logger.Info("authorized",
			"target", t.Folder,
			"game_id", t.GameID,
			"level", grant.Level.String())
		grants[i] = grant
	}
	return grants, nil
}
