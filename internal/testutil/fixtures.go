// Package testutil loads the shared fixtures under the project's testdata
// directory.
package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/schaermu/gamerules/internal/speedrun"
)

// ProjectRoot walks up from this file to the directory holding go.mod
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}

	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// ReadFixture returns the contents of testdata/<name>
func ReadFixture(t *testing.T, name string) []byte {
	t.Helper()
	root, err := ProjectRoot()
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(root, "testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

// GameData decodes testdata/game_data.json. Every call returns a fresh copy.
func GameData(t *testing.T) *speedrun.GameData {
	t.Helper()
	var data speedrun.GameData
	if err := json.Unmarshal(ReadFixture(t, "game_data.json"), &data); err != nil {
		t.Fatalf("failed to decode game data fixture: %v", err)
	}
	return &data
}
