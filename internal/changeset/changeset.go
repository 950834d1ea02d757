// Package changeset classifies edited rules files into typed edit intents.
//
// Only modifications of existing files are meaningful: the tree is never
// used to add or remove entities. Paths are slash-separated and relative to
// a target root. Segments are kept exactly as they appear in the path; they
// are turned back into entities by package resolve.
package changeset

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/schaermu/gamerules/internal/tree"
)

// Kind is what an intent edits
type Kind int

const (
	GameRules Kind = iota
	CategoryRules
	LevelRules
	VariableDescription
	ValueRules
)

func (k Kind) String() string {
	switch k {
	case GameRules:
		return "game-rules"
	case CategoryRules:
		return "category-rules"
	case LevelRules:
		return "level-rules"
	case VariableDescription:
		return "variable-description"
	case ValueRules:
		return "value-rules"
	default:
		return "unknown"
	}
}

// Scope is the variable scope a variable intent was found under
type Scope int

const (
	ScopeNone Scope = iota
	ScopeGlobal
	ScopeCategory
	ScopeLevel
	ScopeMapped
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeCategory:
		return "category"
	case ScopeLevel:
		return "level"
	case ScopeMapped:
		return "mapped"
	default:
		return "none"
	}
}

// Intent is one edited file and the entity keys parsed from its path.
// Category and Level are set for category/level rules and for variable
// intents of the matching scope; Variable and Value only for variable
// intents.
type Intent struct {
	Path     string
	Kind     Kind
	Scope    Scope
	Category string
	Level    string
	Variable string
	Value    string
}

// ChangeSet is the partition of a list of edited paths
type ChangeSet struct {
	GameRules    *Intent
	Categories   []Intent
	Levels       []Intent
	Variables    []Intent
	Unrecognized []string
}

// Len returns the number of recognized intents
func (c *ChangeSet) Len() int {
	n := len(c.Categories) + len(c.Levels) + len(c.Variables)
	if c.GameRules != nil {
		n++
	}
	return n
}

// Empty reports whether no path was recognized
func (c *ChangeSet) Empty() bool {
	return c.Len() == 0
}

type shape struct {
	pattern string
	build   func(seg []string) (Intent, bool)
}

var shapes = []shape{
	{
		pattern: tree.GameRulesFile,
		build: func([]string) (Intent, bool) {
			return Intent{Kind: GameRules}, true
		},
	},
	{
		pattern: tree.CategoriesDir + "/*/*" + tree.RulesExt,
		build: func(seg []string) (Intent, bool) {
			return Intent{Kind: CategoryRules, Category: seg[1]}, seg[2] == seg[1]+tree.RulesExt
		},
	},
	{
		pattern: tree.LevelsDir + "/*/*" + tree.RulesExt,
		build: func(seg []string) (Intent, bool) {
			return Intent{Kind: LevelRules, Level: seg[1]}, seg[2] == seg[1]+tree.RulesExt
		},
	},
	{
		pattern: tree.CategoriesDir + "/*/" + tree.VariablesDir + "/*/" + tree.DescriptionFile,
		build: func(seg []string) (Intent, bool) {
			return Intent{Kind: VariableDescription, Scope: ScopeCategory, Category: seg[1], Variable: seg[3]}, true
		},
	},
	{
		pattern: tree.CategoriesDir + "/*/" + tree.VariablesDir + "/*/" + tree.ValuesDir + "/*" + tree.RulesExt,
		build: func(seg []string) (Intent, bool) {
			return Intent{Kind: ValueRules, Scope: ScopeCategory, Category: seg[1], Variable: seg[3], Value: stem(seg[5])}, true
		},
	},
	{
		pattern: tree.LevelsDir + "/*/" + tree.VariablesDir + "/*/" + tree.DescriptionFile,
		build: func(seg []string) (Intent, bool) {
			return Intent{Kind: VariableDescription, Scope: ScopeLevel, Level: seg[1], Variable: seg[3]}, true
		},
	},
	{
		pattern: tree.LevelsDir + "/*/" + tree.VariablesDir + "/*/" + tree.ValuesDir + "/*" + tree.RulesExt,
		build: func(seg []string) (Intent, bool) {
			return Intent{Kind: ValueRules, Scope: ScopeLevel, Level: seg[1], Variable: seg[3], Value: stem(seg[5])}, true
		},
	},
	{
		pattern: tree.GlobalVariablesDir + "/*/" + tree.DescriptionFile,
		build: func(seg []string) (Intent, bool) {
			return Intent{Kind: VariableDescription, Scope: ScopeGlobal, Variable: seg[1]}, true
		},
	},
	{
		pattern: tree.GlobalVariablesDir + "/*/" + tree.ValuesDir + "/*" + tree.RulesExt,
		build: func(seg []string) (Intent, bool) {
			return Intent{Kind: ValueRules, Scope: ScopeGlobal, Variable: seg[1], Value: stem(seg[3])}, true
		},
	},
	{
		pattern: tree.MappedVariablesDir + "/*/*/*/" + tree.DescriptionFile,
		build: func(seg []string) (Intent, bool) {
			return Intent{Kind: VariableDescription, Scope: ScopeMapped, Level: seg[1], Category: seg[2], Variable: seg[3]}, true
		},
	},
	{
		pattern: tree.MappedVariablesDir + "/*/*/*/" + tree.ValuesDir + "/*" + tree.RulesExt,
		build: func(seg []string) (Intent, bool) {
			return Intent{Kind: ValueRules, Scope: ScopeMapped, Level: seg[1], Category: seg[2], Variable: seg[3], Value: stem(seg[5])}, true
		},
	},
}

func stem(file string) string {
	return strings.TrimSuffix(file, tree.RulesExt)
}

// Classify returns the intent for a single path
func Classify(p string) (Intent, bool) {
	seg := strings.Split(p, "/")
	for _, s := range shapes {
		if ok, _ := doublestar.Match(s.pattern, p); !ok {
			continue
		}
		in, ok := s.build(seg)
		if !ok {
			continue
		}
		in.Path = p
		return in, true
	}
	return Intent{}, false
}

// Extract partitions paths into intents, keeping their order. Duplicate
// paths are classified once.
func Extract(paths []string) *ChangeSet {
	cs := &ChangeSet{}
	seen := make(map[string]bool, len(paths))

	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true

		in, ok := Classify(p)
		if !ok {
			cs.Unrecognized = append(cs.Unrecognized, p)
			continue
		}

		switch in.Kind {
		case GameRules:
			cs.GameRules = &in
		case CategoryRules:
			cs.Categories = append(cs.Categories, in)
		case LevelRules:
			cs.Levels = append(cs.Levels, in)
		default:
			cs.Variables = append(cs.Variables, in)
		}
	}

	return cs
}
