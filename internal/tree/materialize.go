package tree

import (
	"fmt"
	"path"
	"strings"

	"github.com/schaermu/gamerules/internal/fsys"
	"github.com/schaermu/gamerules/internal/graph"
	"github.com/schaermu/gamerules/internal/names"
)

// Result describes one materialized tree
type Result struct {
	// Root is the target root the tree was written under
	Root string
	// Initial is true when Root did not exist before the run
	Initial bool
	// Written lists every file written, relative to the filesystem root,
	// in write order
	Written []string
}

// Materializer writes entity graphs to a filesystem
type Materializer struct {
	fs fsys.FS
}

// NewMaterializer creates a materializer writing to fs
func NewMaterializer(fs fsys.FS) *Materializer {
	return &Materializer{fs: fs}
}

// Materialize replaces the tree under root with the rendering of g. An
// existing root is deleted first so entities renamed or removed remotely
// leave no stale files behind.
func (m *Materializer) Materialize(g *graph.Graph, root string) (*Result, error) {
	if root == "" || path.Clean(root) == "." {
		return nil, fmt.Errorf("tree root must be a subdirectory, got %q", root)
	}

	exists, err := m.fs.DirExists(root)
	if err != nil {
		return nil, fmt.Errorf("failed to check tree root: %w", err)
	}
	if exists {
		if err := m.fs.RemoveAll(root); err != nil {
			return nil, fmt.Errorf("failed to remove previous tree: %w", err)
		}
	}

	w := &writer{
		fs:     m.fs,
		graph:  g,
		result: &Result{Root: root, Initial: !exists},
	}

	if err := w.write(GameRulesFile, g.Game.Rules); err != nil {
		return nil, err
	}

	categories := names.Segments(g.Categories)
	for _, c := range g.Categories {
		seg := categories[c.ID]
		if err := w.write(CategoryRulesPath(seg), c.Rules); err != nil {
			return nil, err
		}
		for dir, v := range w.scoped(g.CategoryVariables(c.ID), func(v string) string {
			return CategoryVariableDir(seg, v)
		}) {
			if err := w.variable(dir, v); err != nil {
				return nil, err
			}
		}
	}

	levels := names.Segments(g.Levels)
	for _, l := range g.Levels {
		seg := levels[l.ID]
		if err := w.write(LevelRulesPath(seg), l.Rules); err != nil {
			return nil, err
		}
		for dir, v := range w.scoped(g.LevelVariables(l.ID), func(v string) string {
			return LevelVariableDir(seg, v)
		}) {
			if err := w.variable(dir, v); err != nil {
				return nil, err
			}
		}
	}

	for dir, v := range w.scoped(g.GlobalVariables(), GlobalVariableDir) {
		if err := w.variable(dir, v); err != nil {
			return nil, err
		}
	}

	// Mapped variables are disambiguated against every mapped variable, not
	// just those sharing their level/category pair.
	for seg, v := range w.scoped(g.MappedVariables(), func(s string) string { return s }) {
		ms := v.Scope.(graph.MappedScope)
		dir := MappedVariableDir(levels[ms.LevelID], categories[ms.CategoryID], seg)
		if err := w.variable(dir, v); err != nil {
			return nil, err
		}
	}

	return w.result, nil
}

type writer struct {
	fs     fsys.FS
	graph  *graph.Graph
	result *Result
}

// scoped yields each variable of one sibling set with its directory
func (w *writer) scoped(vars []graph.Variable, dirOf func(segment string) string) func(yield func(string, graph.Variable) bool) {
	segments := names.Segments(vars)
	return func(yield func(string, graph.Variable) bool) {
		for _, v := range vars {
			if !yield(dirOf(segments[v.ID]), v) {
				return
			}
		}
	}
}

func (w *writer) variable(dir string, v graph.Variable) error {
	if err := w.write(DescriptionPath(dir), v.Description); err != nil {
		return err
	}
	values := w.graph.Values(v.ID)
	segments := names.Segments(values)
	for _, val := range values {
		if err := w.write(ValuePath(dir, segments[val.ID]), val.Rules); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) write(rel, content string) error {
	name := path.Join(w.result.Root, rel)
	if !strings.HasPrefix(name, path.Clean(w.result.Root)+"/") {
		return fmt.Errorf("path %q escapes tree root %q", rel, w.result.Root)
	}
	if err := w.fs.WriteFile(name, []byte(content)); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	w.result.Written = append(w.result.Written, name)
	return nil
}
