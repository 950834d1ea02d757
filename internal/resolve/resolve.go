// Package resolve turns classified edit intents back into the entities they
// were rendered from. Every segment is resolved against the same sibling set
// the tree was written with.
package resolve

import (
	"errors"
	"fmt"

	"github.com/schaermu/gamerules/internal/changeset"
	"github.com/schaermu/gamerules/internal/graph"
	"github.com/schaermu/gamerules/internal/names"
	"github.com/schaermu/gamerules/internal/speedrun"
)

var (
	// ErrNotFound is returned when a path segment matches no live entity
	ErrNotFound = names.ErrNotFound
	// ErrAmbiguous is returned when a path segment matches several entities
	ErrAmbiguous = names.ErrAmbiguous
)

// CategoryEdit is a changed category rules file
type CategoryEdit struct {
	Path     string
	Category speedrun.Category
}

// LevelEdit is a changed level rules file
type LevelEdit struct {
	Path  string
	Level speedrun.Level
}

// ValueEdit is a changed value rules file
type ValueEdit struct {
	Path  string
	Value speedrun.Value
}

// VariableEdit collects every change to one variable. DescriptionPath is
// empty when the description was not edited.
type VariableEdit struct {
	Variable        graph.Variable
	DescriptionPath string
	Values          []ValueEdit
}

// Plan is a fully resolved change set. Each slice is in path-discovery order.
type Plan struct {
	GameRulesPath string
	Categories    []CategoryEdit
	Levels        []LevelEdit
	Variables     []VariableEdit
}

// Len returns the number of remote updates the plan needs
func (p *Plan) Len() int {
	n := len(p.Categories) + len(p.Levels) + len(p.Variables)
	if p.GameRulesPath != "" {
		n++
	}
	return n
}

// Resolve resolves every intent of cs against g. All failures are collected;
// when any path fails no plan is returned.
func Resolve(g *graph.Graph, cs *changeset.ChangeSet) (*Plan, error) {
	r := &resolver{
		graph:     g,
		plan:      &Plan{},
		seen:      make(map[string]bool),
		variables: make(map[string]int),
	}

	if cs.GameRules != nil {
		r.plan.GameRulesPath = cs.GameRules.Path
	}
	for _, in := range cs.Categories {
		r.fail(in, r.category(in))
	}
	for _, in := range cs.Levels {
		r.fail(in, r.level(in))
	}
	for _, in := range cs.Variables {
		r.fail(in, r.variable(in))
	}

	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	return r.plan, nil
}

type resolver struct {
	graph     *graph.Graph
	plan      *Plan
	errs      []error
	seen      map[string]bool
	variables map[string]int
}

func (r *resolver) fail(in changeset.Intent, err error) {
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("failed to resolve %s: %w", in.Path, err))
	}
}

func (r *resolver) once(kind, id string) bool {
	key := kind + "/" + id
	if r.seen[key] {
		return false
	}
	r.seen[key] = true
	return true
}

func (r *resolver) category(in changeset.Intent) error {
	c, err := names.Resolve(r.graph.Categories, in.Category)
	if err != nil {
		return fmt.Errorf("category: %w", err)
	}
	if r.once("category", c.ID) {
		r.plan.Categories = append(r.plan.Categories, CategoryEdit{Path: in.Path, Category: c})
	}
	return nil
}

func (r *resolver) level(in changeset.Intent) error {
	l, err := names.Resolve(r.graph.Levels, in.Level)
	if err != nil {
		return fmt.Errorf("level: %w", err)
	}
	if r.once("level", l.ID) {
		r.plan.Levels = append(r.plan.Levels, LevelEdit{Path: in.Path, Level: l})
	}
	return nil
}

// siblings returns the variable sibling set the intent's scope was
// rendered with
func (r *resolver) siblings(in changeset.Intent) ([]graph.Variable, error) {
	switch in.Scope {
	case changeset.ScopeGlobal:
		return r.graph.GlobalVariables(), nil
	case changeset.ScopeCategory:
		c, err := names.Resolve(r.graph.Categories, in.Category)
		if err != nil {
			return nil, fmt.Errorf("category: %w", err)
		}
		return r.graph.CategoryVariables(c.ID), nil
	case changeset.ScopeLevel:
		l, err := names.Resolve(r.graph.Levels, in.Level)
		if err != nil {
			return nil, fmt.Errorf("level: %w", err)
		}
		return r.graph.LevelVariables(l.ID), nil
	case changeset.ScopeMapped:
		l, err := names.Resolve(r.graph.Levels, in.Level)
		if err != nil {
			return nil, fmt.Errorf("level: %w", err)
		}
		c, err := names.Resolve(r.graph.Categories, in.Category)
		if err != nil {
			return nil, fmt.Errorf("category: %w", err)
		}
		return r.graph.MappedVariablesFor(l.ID, c.ID), nil
	default:
		return nil, fmt.Errorf("unsupported variable scope %s", in.Scope)
	}
}

func (r *resolver) variable(in changeset.Intent) error {
	vars, err := r.siblings(in)
	if err != nil {
		return err
	}
	v, err := names.Resolve(vars, in.Variable)
	if err != nil {
		return fmt.Errorf("variable: %w", err)
	}

	i, ok := r.variables[v.ID]
	if !ok {
		i = len(r.plan.Variables)
		r.variables[v.ID] = i
		r.plan.Variables = append(r.plan.Variables, VariableEdit{Variable: v})
	}
	edit := &r.plan.Variables[i]

	switch in.Kind {
	case changeset.VariableDescription:
		if edit.DescriptionPath == "" {
			edit.DescriptionPath = in.Path
		}
	case changeset.ValueRules:
		val, err := names.Resolve(r.graph.Values(v.ID), in.Value)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		if r.once("value", val.ID) {
			edit.Values = append(edit.Values, ValueEdit{Path: in.Path, Value: val})
		}
	default:
		return fmt.Errorf("unexpected intent kind %s", in.Kind)
	}
	return nil
}
