package changeset

import (
	"testing"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapePatternsAreValid(t *testing.T) {
	for _, s := range shapes {
		assert.True(t, doublestar.ValidatePattern(s.pattern), "invalid pattern %q", s.pattern)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		path string
		want Intent
		ok   bool
	}{
		{
			name: "game rules",
			path: "Game Rules.md",
			want: Intent{Kind: GameRules},
			ok:   true,
		},
		{
			name: "category rules",
			path: "Categories/Any%/Any%.md",
			want: Intent{Kind: CategoryRules, Category: "Any%"},
			ok:   true,
		},
		{
			name: "disambiguated category rules",
			path: "Categories/Any%-abc12345/Any%-abc12345.md",
			want: Intent{Kind: CategoryRules, Category: "Any%-abc12345"},
			ok:   true,
		},
		{
			name: "category folder with foreign markdown",
			path: "Categories/Any%/notes.md",
			ok:   false,
		},
		{
			name: "level rules",
			path: "Levels/World 1-1/World 1-1.md",
			want: Intent{Kind: LevelRules, Level: "World 1-1"},
			ok:   true,
		},
		{
			name: "category variable description",
			path: "Categories/Any%/Variables/Version/Description.txt",
			want: Intent{Kind: VariableDescription, Scope: ScopeCategory, Category: "Any%", Variable: "Version"},
			ok:   true,
		},
		{
			name: "category variable value",
			path: "Categories/Any%/Variables/Version/Values/1.0.md",
			want: Intent{Kind: ValueRules, Scope: ScopeCategory, Category: "Any%", Variable: "Version", Value: "1.0"},
			ok:   true,
		},
		{
			name: "level variable value",
			path: "Levels/W1/Variables/Difficulty/Values/Hard.md",
			want: Intent{Kind: ValueRules, Scope: ScopeLevel, Level: "W1", Variable: "Difficulty", Value: "Hard"},
			ok:   true,
		},
		{
			name: "level variable description",
			path: "Levels/W1/Variables/Difficulty/Description.txt",
			want: Intent{Kind: VariableDescription, Scope: ScopeLevel, Level: "W1", Variable: "Difficulty"},
			ok:   true,
		},
		{
			name: "global variable description",
			path: "Global Variables/Ruleset/Description.txt",
			want: Intent{Kind: VariableDescription, Scope: ScopeGlobal, Variable: "Ruleset"},
			ok:   true,
		},
		{
			name: "global variable value",
			path: "Global Variables/Platform/Values/PC.md",
			want: Intent{Kind: ValueRules, Scope: ScopeGlobal, Variable: "Platform", Value: "PC"},
			ok:   true,
		},
		{
			name: "mapped variable description",
			path: "Mapped Variables/W1/Any%/Route/Description.txt",
			want: Intent{Kind: VariableDescription, Scope: ScopeMapped, Level: "W1", Category: "Any%", Variable: "Route"},
			ok:   true,
		},
		{
			name: "mapped variable value",
			path: "Mapped Variables/W1/Any%/Route-var00006/Values/Short.md",
			want: Intent{Kind: ValueRules, Scope: ScopeMapped, Level: "W1", Category: "Any%", Variable: "Route-var00006", Value: "Short"},
			ok:   true,
		},
		{
			name: "value named like a category file",
			path: "Categories/Variables/Variables.md",
			want: Intent{Kind: CategoryRules, Category: "Variables"},
			ok:   true,
		},
		{name: "readme", path: "README.md", ok: false},
		{name: "description in wrong place", path: "Global Variables/Description.txt", ok: false},
		{name: "value without md", path: "Global Variables/Platform/Values/PC.txt", ok: false},
		{name: "nested game rules", path: "Categories/Game Rules.md", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.path)
			require.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			tt.want.Path = tt.path
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract(t *testing.T) {
	cs := Extract([]string{
		"Categories/Any%/Any%.md",
		"Global Variables/Ruleset/Description.txt",
		"Game Rules.md",
		"README.md",
		"Levels/W1/W1.md",
		"Global Variables/Ruleset/Values/Strict.md",
		"Categories/Any%/Any%.md",
		"Categories/100%/100%.md",
	})

	require.NotNil(t, cs.GameRules)
	assert.Equal(t, "Game Rules.md", cs.GameRules.Path)

	require.Len(t, cs.Categories, 2)
	assert.Equal(t, "Any%", cs.Categories[0].Category)
	assert.Equal(t, "100%", cs.Categories[1].Category)

	require.Len(t, cs.Levels, 1)
	assert.Equal(t, "W1", cs.Levels[0].Level)

	require.Len(t, cs.Variables, 2)
	assert.Equal(t, VariableDescription, cs.Variables[0].Kind)
	assert.Equal(t, ScopeGlobal, cs.Variables[0].Scope)
	assert.Empty(t, cs.Variables[0].Category)
	assert.Empty(t, cs.Variables[0].Level)
	assert.Equal(t, ValueRules, cs.Variables[1].Kind)
	assert.Equal(t, "Strict", cs.Variables[1].Value)

	assert.Equal(t, []string{"README.md"}, cs.Unrecognized)
	assert.Equal(t, 6, cs.Len())
	assert.False(t, cs.Empty())
}

func TestExtract_Empty(t *testing.T) {
	cs := Extract(nil)
	assert.True(t, cs.Empty())
	assert.Nil(t, cs.GameRules)

	cs = Extract([]string{"docs/guide.md"})
	assert.True(t, cs.Empty())
	assert.Equal(t, []string{"docs/guide.md"}, cs.Unrecognized)
}

func TestKindAndScopeStrings(t *testing.T) {
	assert.Equal(t, "category-rules", CategoryRules.String())
	assert.Equal(t, "value-rules", ValueRules.String())
	assert.Equal(t, "mapped", ScopeMapped.String())
	assert.Equal(t, "none", ScopeNone.String())
}
