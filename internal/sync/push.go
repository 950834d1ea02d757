package sync

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/schaermu/gamerules/internal/changeset"
	"github.com/schaermu/gamerules/internal/config"
	"github.com/schaermu/gamerules/internal/graph"
	"github.com/schaermu/gamerules/internal/resolve"
	"github.com/schaermu/gamerules/internal/speedrun"
	"github.com/schaermu/gamerules/internal/tree"
)

// targetUpdates holds every remote update of one target with the new text
// already read from the tree
type targetUpdates struct {
	target     config.Target
	gameRules  *string
	categories []speedrun.Category
	levels     []speedrun.Level
	variables  []variableUpdate
}

type variableUpdate struct {
	variable speedrun.Variable
	values   []speedrun.Value
}

func (u *targetUpdates) len() int {
	n := len(u.categories) + len(u.levels) + len(u.variables)
	if u.gameRules != nil {
		n++
	}
	return n
}

// Push sends the rules text edited by the last commit back to the service.
// Every changed path of every target is resolved and read before the first
// remote update is issued.
func (e *Engine) Push(ctx context.Context) (*PushResult, error) {
	unlock, err := e.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	targets := e.cfg.Targets()
	e.logger.Info("starting push", "targets", len(targets), "dry_run", e.dryRun)

	changed, err := e.git.ModifiedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list modified files: %w", err)
	}

	byTarget, outside := splitByTarget(targets, changed)
	for _, p := range outside {
		e.logger.Warn("ignoring change outside of any target", "path", p)
	}

	result := &PushResult{Outside: outside}
	if len(byTarget) == 0 {
		e.logger.Info("no rule changes found")
		return result, nil
	}

	if _, err := e.authorizeAll(ctx, targets); err != nil {
		return nil, err
	}

	var pending []*targetUpdates
	for _, t := range targets {
		paths, ok := byTarget[t.Folder]
		if !ok {
			continue
		}

		pt, updates, err := e.prepare(ctx, t, paths)
		if err != nil {
			return nil, err
		}
		result.Targets = append(result.Targets, *pt)
		pending = append(pending, updates)
	}

	if e.dryRun {
		for _, u := range pending {
			e.logUpdates(u)
		}
		e.logger.Info("dry-run complete, no updates sent")
		return result, nil
	}

	for _, u := range pending {
		n, err := e.apply(ctx, u)
		result.Updates += n
		if err != nil {
			return result, fmt.Errorf("failed to update %s: %w", u.target.Folder, err)
		}
	}

	e.logger.Info("push completed successfully", "updates", result.Updates)
	return result, nil
}

// splitByTarget groups repo-relative paths by their target folder and strips
// the folder prefix
func splitByTarget(targets []config.Target, paths []string) (map[string][]string, []string) {
	byTarget := make(map[string][]string)
	var outside []string

	for _, p := range paths {
		matched := false
		for _, t := range targets {
			rel, ok := strings.CutPrefix(p, t.Folder+"/")
			if !ok {
				continue
			}
			byTarget[t.Folder] = append(byTarget[t.Folder], rel)
			matched = true
			break
		}
		if !matched {
			outside = append(outside, p)
		}
	}
	return byTarget, outside
}

// prepare classifies and resolves the changed paths of one target against a
// fresh graph and reads the new text of every edited file
func (e *Engine) prepare(ctx context.Context, t config.Target, paths []string) (*PushTarget, *targetUpdates, error) {
	cs := changeset.Extract(paths)
	for _, p := range cs.Unrecognized {
		e.logger.Warn("ignoring unrecognized change", "target", t.Folder, "path", p)
	}
	pt := &PushTarget{Target: t, Ignored: cs.Unrecognized, Plan: &resolve.Plan{}}
	updates := &targetUpdates{target: t}
	if cs.Empty() {
		return pt, updates, nil
	}

	data, err := e.api.GetGameData(ctx, t.GameID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch game data for %s: %w", t.Folder, err)
	}
	g := graph.New(data)

	plan, err := resolve.Resolve(g, cs)
	if err != nil {
		return nil, nil, fmt.Errorf("target %s: %w", t.Folder, err)
	}
	pt.Plan = plan

	read := func(rel string) (string, error) {
		data, err := e.fs.ReadFile(path.Join(t.Folder, rel))
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	if plan.GameRulesPath != "" {
		rules, err := read(plan.GameRulesPath)
		if err != nil {
			return nil, nil, err
		}
		updates.gameRules = &rules
	}

	for _, edit := range plan.Categories {
		c := edit.Category
		if c.Rules, err = read(edit.Path); err != nil {
			return nil, nil, err
		}
		updates.categories = append(updates.categories, c)
	}

	for _, edit := range plan.Levels {
		l := edit.Level
		if l.Rules, err = read(edit.Path); err != nil {
			return nil, nil, err
		}
		updates.levels = append(updates.levels, l)
	}

	for _, edit := range plan.Variables {
		vu, err := buildVariableUpdate(g, edit, read)
		if err != nil {
			return nil, nil, err
		}
		updates.variables = append(updates.variables, vu)
	}

	return pt, updates, nil
}

// buildVariableUpdate applies the edits to the variable and to the full list
// of its live values
func buildVariableUpdate(g *graph.Graph, edit resolve.VariableEdit, read func(string) (string, error)) (variableUpdate, error) {
	vu := variableUpdate{variable: edit.Variable.Variable}
	if edit.DescriptionPath != "" {
		desc, err := read(edit.DescriptionPath)
		if err != nil {
			return vu, err
		}
		vu.variable.Description = desc
	}

	rules := make(map[string]string, len(edit.Values))
	for _, ve := range edit.Values {
		text, err := read(ve.Path)
		if err != nil {
			return vu, err
		}
		rules[ve.Value.ID] = text
	}

	for _, val := range g.Values(edit.Variable.ID) {
		if text, ok := rules[val.ID]; ok {
			val.Rules = text
		}
		vu.values = append(vu.values, val)
	}
	return vu, nil
}

// apply issues the updates of one target. Game, category and level updates
// go out one by one and stop at the first failure; variable updates fan out
// and every failure is reported. It returns the number of calls that
// succeeded.
func (e *Engine) apply(ctx context.Context, u *targetUpdates) (int, error) {
	gameID := u.target.GameID
	n := 0

	if u.gameRules != nil {
		settings, err := e.api.GetGameSettings(ctx, gameID)
		if err != nil {
			return n, fmt.Errorf("failed to get game settings: %w", err)
		}
		settings.Rules = *u.gameRules
		if err := e.api.PutGameSettings(ctx, gameID, settings); err != nil {
			return n, fmt.Errorf("failed to update game rules: %w", err)
		}
		e.logger.Info("updated game rules", "target", u.target.Folder)
		n++
	}

	for i := range u.categories {
		c := &u.categories[i]
		if err := e.api.PutCategoryUpdate(ctx, gameID, c.ID, c); err != nil {
			return n, fmt.Errorf("failed to update category %s: %w", c.ID, err)
		}
		e.logger.Info("updated category", "target", u.target.Folder, "category_id", c.ID)
		n++
	}

	for i := range u.levels {
		l := &u.levels[i]
		if err := e.api.PutLevelUpdate(ctx, gameID, l.ID, l); err != nil {
			return n, fmt.Errorf("failed to update level %s: %w", l.ID, err)
		}
		e.logger.Info("updated level", "target", u.target.Folder, "level_id", l.ID)
		n++
	}

	errs := make([]error, len(u.variables))
	var g errgroup.Group
	g.SetLimit(max(e.cfg.Push.MaxConcurrency, 1))
	for i := range u.variables {
		vu := &u.variables[i]
		g.Go(func() error {
			if err := e.api.PutVariableUpdate(ctx, gameID, vu.variable.ID, &vu.variable, vu.values); err != nil {
				errs[i] = fmt.Errorf("failed to update variable %s: %w", vu.variable.ID, err)
				return nil
			}
			e.logger.Info("updated variable",
				"target", u.target.Folder,
				"variable_id", vu.variable.ID,
				"values", len(vu.values))
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err == nil {
			n++
		}
	}
	return n, errors.Join(errs...)
}

func (e *Engine) logUpdates(u *targetUpdates) {
	e.logger.Info("planned updates", "target", u.target.Folder, "count", u.len())
	if u.gameRules != nil {
		e.logger.Info("  game rules", "path", path.Join(u.target.Folder, tree.GameRulesFile))
	}
	for _, c := range u.categories {
		e.logger.Info("  category", "category_id", c.ID, "name", c.Name)
	}
	for _, l := range u.levels {
		e.logger.Info("  level", "level_id", l.ID, "name", l.Name)
	}
	for _, v := range u.variables {
		e.logger.Info("  variable", "variable_id", v.variable.ID, "name", v.variable.Name, "values", len(v.values))
	}
}
