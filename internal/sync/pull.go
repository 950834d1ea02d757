package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/schaermu/gamerules/internal/auth"
	"github.com/schaermu/gamerules/internal/graph"
	"github.com/schaermu/gamerules/internal/tree"
)

// InitialCommitMessage is used when no target folder existed before the pull
const InitialCommitMessage = "Initial rule creation"

// attributedEvents are the audit log event types that change rules text
var attributedEvents = map[string]bool{
	"category-created":  true,
	"category-archived": true,
	"category-restored": true,
	"category-updated":  true,
	"game-updated":      true,
	"level-created":     true,
	"level-archived":    true,
	"level-updated":     true,
	"value-created":     true,
	"value-updated":     true,
	"variable-archived": true,
	"variable-created":  true,
	"variable-updated":  true,
}

// Pull rebuilds every target folder from the service and commits the result
// when anything changed
func (e *Engine) Pull(ctx context.Context) (*PullResult, error) {
	unlock, err := e.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	targets := e.cfg.Targets()
	e.logger.Info("starting pull", "targets", len(targets), "dry_run", e.dryRun)

	grants, err := e.authorizeAll(ctx, targets)
	if err != nil {
		return nil, err
	}

	result := &PullResult{}
	m := tree.NewMaterializer(e.fs)
	for _, t := range targets {
		data, err := e.api.GetGameData(ctx, t.GameID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch game data for %s: %w", t.Folder, err)
		}

		res, err := m.Materialize(graph.New(data), t.Folder)
		if err != nil {
			return nil, fmt.Errorf("failed to materialize %s: %w", t.Folder, err)
		}

		e.logger.Info("materialized target",
			"target", t.Folder,
			"game_id", t.GameID,
			"initial", res.Initial,
			"files", len(res.Written))
		result.Targets = append(result.Targets, PullTarget{Target: t, Initial: res.Initial, Written: len(res.Written)})
	}

	result.Changed, err = e.git.HasChanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for changes: %w", err)
	}
	if !result.Changed {
		e.logger.Info("no changes found")
		return result, nil
	}

	result.Message, err = e.commitMessage(ctx, result.Targets, grants)
	if err != nil {
		return nil, err
	}

	if e.dryRun {
		e.logger.Info("dry-run complete, not committing", "commit_message", result.Message)
		return result, nil
	}

	if err := e.git.CommitAndPush(ctx, result.Message); err != nil {
		return nil, fmt.Errorf("failed to commit changes: %w", err)
	}
	result.Committed = true

	e.logger.Info("changes pushed", "commit_message", result.Message)
	return result, nil
}

// commitMessage builds the pull commit message. Attribution is only looked
// up for targets whose grant allows reading the audit log.
func (e *Engine) commitMessage(ctx context.Context, targets []PullTarget, grants []auth.Grant) (string, error) {
	initial := true
	for _, t := range targets {
		if !t.Initial {
			initial = false
			break
		}
	}
	if initial {
		return InitialCommitMessage, nil
	}

	var editors []string
	seen := make(map[string]bool)
	for i, t := range targets {
		if !grants[i].CanAttribute() {
			continue
		}
		name, err := e.attribution(ctx, t.Target.GameID)
		if err != nil {
			return "", fmt.Errorf("failed to attribute changes for %s: %w", t.Target.Folder, err)
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		editors = append(editors, name)
	}

	return updateMessage(e.cfg.Service, editors), nil
}

// attribution returns the display name of the actor of the most recent
// rules-changing audit log entry, or "" when there is none
func (e *Engine) attribution(ctx context.Context, gameID string) (string, error) {
	audit, err := e.api.GetAuditLogList(ctx, gameID, 1)
	if err != nil {
		return "", err
	}

	for _, entry := range audit.AuditLogList {
		if !attributedEvents[entry.EventType] {
			continue
		}
		name, ok := audit.UserName(entry.ActorID)
		if !ok {
			e.logger.Warn("audit log actor not in user list", "game_id", gameID, "actor_id", entry.ActorID)
			return "", nil
		}
		return name, nil
	}
	return "", nil
}

func updateMessage(service string, editors []string) string {
	msg := "Rules updated from " + service
	if len(editors) > 0 {
		msg += " by " + strings.Join(editors, ", ")
	}
	return msg
}
