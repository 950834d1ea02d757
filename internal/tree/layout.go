// Package tree renders a game's entity graph into the rules directory tree.
//
// Layout below a target root:
//
//	Game Rules.md
//	Categories/<C>/<C>.md
//	Categories/<C>/Variables/<V>/Description.txt
//	Categories/<C>/Variables/<V>/Values/<Val>.md
//	Levels/<L>/<L>.md
//	Levels/<L>/Variables/<V>/...
//	Global Variables/<V>/...
//	Mapped Variables/<L>/<C>/<V>/...
//
// Every segment is a disambiguated name from package names.
package tree

import "path"

// Fixed names used in the tree
const (
	GameRulesFile      = "Game Rules.md"
	CategoriesDir      = "Categories"
	LevelsDir          = "Levels"
	GlobalVariablesDir = "Global Variables"
	MappedVariablesDir = "Mapped Variables"
	VariablesDir       = "Variables"
	ValuesDir          = "Values"
	DescriptionFile    = "Description.txt"
	RulesExt           = ".md"
	DescriptionExt     = ".txt"
)

// CategoryRulesPath returns the rules file of a category, relative to the target root
func CategoryRulesPath(category string) string {
	return path.Join(CategoriesDir, category, category+RulesExt)
}

// LevelRulesPath returns the rules file of a level, relative to the target root
func LevelRulesPath(level string) string {
	return path.Join(LevelsDir, level, level+RulesExt)
}

// CategoryVariableDir returns the directory of a category-scoped variable
func CategoryVariableDir(category, variable string) string {
	return path.Join(CategoriesDir, category, VariablesDir, variable)
}

// LevelVariableDir returns the directory of a level-scoped variable
func LevelVariableDir(level, variable string) string {
	return path.Join(LevelsDir, level, VariablesDir, variable)
}

// GlobalVariableDir returns the directory of a global variable
func GlobalVariableDir(variable string) string {
	return path.Join(GlobalVariablesDir, variable)
}

// MappedVariableDir returns the directory of a mapped variable
func MappedVariableDir(level, category, variable string) string {
	return path.Join(MappedVariablesDir, level, category, variable)
}

// DescriptionPath returns the description file inside a variable directory
func DescriptionPath(variableDir string) string {
	return path.Join(variableDir, DescriptionFile)
}

// ValuePath returns the rules file of a value inside a variable directory
func ValuePath(variableDir, value string) string {
	return path.Join(variableDir, ValuesDir, value+RulesExt)
}
