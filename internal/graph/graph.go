// Package graph holds the in-memory snapshot of one game's rules entities
// with archived entities removed and every variable classified by scope.
package graph

import (
	"github.com/schaermu/gamerules/internal/speedrun"
)

// Scope is where a variable applies. It is one of GlobalScope,
// CategoryScope, LevelScope or MappedScope.
type Scope interface {
	isScope()
}

// GlobalScope applies to every run of the game
type GlobalScope struct{}

// CategoryScope applies to runs of one category
type CategoryScope struct {
	CategoryID string
}

// LevelScope applies to runs of one level
type LevelScope struct {
	LevelID string
}

// MappedScope applies to runs of one category on one level
type MappedScope struct {
	LevelID    string
	CategoryID string
}

func (GlobalScope) isScope()   {}
func (CategoryScope) isScope() {}
func (LevelScope) isScope()    {}
func (MappedScope) isScope()   {}

// ScopeOf classifies a variable by which foreign keys it carries
func ScopeOf(v speedrun.Variable) Scope {
	switch {
	case v.CategoryID != "" && v.LevelID != "":
		return MappedScope{LevelID: v.LevelID, CategoryID: v.CategoryID}
	case v.CategoryID != "":
		return CategoryScope{CategoryID: v.CategoryID}
	case v.LevelID != "":
		return LevelScope{LevelID: v.LevelID}
	default:
		return GlobalScope{}
	}
}

// Variable is a variable together with its scope
type Variable struct {
	speedrun.Variable
	Scope Scope
}

// Graph is a filtered, indexed snapshot of one game
type Graph struct {
	Game       speedrun.Game
	Categories []speedrun.Category
	Levels     []speedrun.Level
	Variables  []Variable

	categories map[string]int
	levels     map[string]int
	variables  map[string]int
	values     map[string][]speedrun.Value
}

// New builds a graph from fetched game data. Archived entities are dropped,
// as are variables whose category or level is archived and values whose
// variable is archived. Input order is preserved.
func New(data *speedrun.GameData) *Graph {
	g := &Graph{
		Game:       data.Game,
		categories: make(map[string]int),
		levels:     make(map[string]int),
		variables:  make(map[string]int),
		values:     make(map[string][]speedrun.Value),
	}

	for _, c := range data.Categories {
		if c.Archived {
			continue
		}
		g.categories[c.ID] = len(g.Categories)
		g.Categories = append(g.Categories, c)
	}

	for _, l := range data.Levels {
		if l.Archived {
			continue
		}
		g.levels[l.ID] = len(g.Levels)
		g.Levels = append(g.Levels, l)
	}

	for _, v := range data.Variables {
		if v.Archived {
			continue
		}
		if v.CategoryID != "" && !g.hasCategory(v.CategoryID) {
			continue
		}
		if v.LevelID != "" && !g.hasLevel(v.LevelID) {
			continue
		}
		g.variables[v.ID] = len(g.Variables)
		g.Variables = append(g.Variables, Variable{Variable: v, Scope: ScopeOf(v)})
	}

	for _, val := range data.Values {
		if val.Archived {
			continue
		}
		if _, ok := g.variables[val.VariableID]; !ok {
			continue
		}
		g.values[val.VariableID] = append(g.values[val.VariableID], val)
	}

	return g
}

func (g *Graph) hasCategory(id string) bool {
	_, ok := g.categories[id]
	return ok
}

func (g *Graph) hasLevel(id string) bool {
	_, ok := g.levels[id]
	return ok
}

// Category returns the category with the given id
func (g *Graph) Category(id string) (speedrun.Category, bool) {
	i, ok := g.categories[id]
	if !ok {
		return speedrun.Category{}, false
	}
	return g.Categories[i], true
}

// Level returns the level with the given id
func (g *Graph) Level(id string) (speedrun.Level, bool) {
	i, ok := g.levels[id]
	if !ok {
		return speedrun.Level{}, false
	}
	return g.Levels[i], true
}

// Variable returns the variable with the given id
func (g *Graph) Variable(id string) (Variable, bool) {
	i, ok := g.variables[id]
	if !ok {
		return Variable{}, false
	}
	return g.Variables[i], true
}

// Values returns the values of a variable
func (g *Graph) Values(variableID string) []speedrun.Value {
	return g.values[variableID]
}

// GlobalVariables returns every variable with GlobalScope
func (g *Graph) GlobalVariables() []Variable {
	return g.filter(func(s Scope) bool {
		_, ok := s.(GlobalScope)
		return ok
	})
}

// CategoryVariables returns the category-scoped variables of one category
func (g *Graph) CategoryVariables(categoryID string) []Variable {
	return g.filter(func(s Scope) bool {
		cs, ok := s.(CategoryScope)
		return ok && cs.CategoryID == categoryID
	})
}

// LevelVariables returns the level-scoped variables of one level
func (g *Graph) LevelVariables(levelID string) []Variable {
	return g.filter(func(s Scope) bool {
		ls, ok := s.(LevelScope)
		return ok && ls.LevelID == levelID
	})
}

// MappedVariables returns every variable with MappedScope
func (g *Graph) MappedVariables() []Variable {
	return g.filter(func(s Scope) bool {
		_, ok := s.(MappedScope)
		return ok
	})
}

// MappedVariablesFor returns the mapped variables of one level/category pair
func (g *Graph) MappedVariablesFor(levelID, categoryID string) []Variable {
	return g.filter(func(s Scope) bool {
		ms, ok := s.(MappedScope)
		return ok && ms.LevelID == levelID && ms.CategoryID == categoryID
	})
}

func (g *Graph) filter(keep func(Scope) bool) []Variable {
	var out []Variable
	for _, v := range g.Variables {
		if keep(v.Scope) {
			out = append(out, v)
		}
	}
	return out
}
