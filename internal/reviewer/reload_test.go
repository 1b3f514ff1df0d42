package reviewer

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPatternWatcherLoadsExistingFileOnConstruction(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.json")
	writeOverrideFile(t, path, `{"patterns":[{"kind":"todo_marker","regex":"TODO","weight":10}]}`)

	pw, err := NewPatternWatcher(path)
	if err != nil {
		t.Fatalf("NewPatternWatcher: %v", err)
	}
	defer pw.Close()

	overrides := pw.Overrides()
	if len(overrides) != 1 || overrides[0].Kind != "todo_marker" {
		t.Fatalf("expected one loaded override, got %+v", overrides)
	}
}

func TestPatternWatcherMissingFileYieldsNoOverrides(t *testing.T) {
	pw, err := NewPatternWatcher(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("NewPatternWatcher: %v", err)
	}
	defer pw.Close()

	if len(pw.Overrides()) != 0 {
		t.Fatalf("expected no overrides for a missing file, got %+v", pw.Overrides())
	}
}

func TestReviewerWithPatternWatcherAppliesOverrideFinding(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.json")
	writeOverrideFile(t, path, `{"patterns":[{"kind":"todo_marker","regex":"TODO_SHIP_ME","weight":10}]}`)

	pw, err := NewPatternWatcher(path)
	if err != nil {
		t.Fatalf("NewPatternWatcher: %v", err)
	}
	defer pw.Close()

	r := New(Config{RejectThreshold: 1, ScopeCreepTolerance: 2}).WithPatternWatcher(pw)
	result := r.Review(map[string]string{
		"src/x.go": "doShip() // TODO_SHIP_ME\n",
	}, "")
	if !result.ShouldReject {
		t.Fatalf("expected the operator-supplied override pattern to trigger rejection: %+v", result)
	}
}

func TestReviewerWithoutPatternWatcherIgnoresNonStandardPatterns(t *testing.T) {
	r := New(Config{RejectThreshold: 1, ScopeCreepTolerance: 2})
	result := r.Review(map[string]string{
		"src/x.go": "doShip() // TODO_SHIP_ME\n",
	}, "")
	if result.ShouldReject {
		t.Fatalf("a pattern absent from both the fixed table and any override should not reject: %+v", result)
	}
}

func writeOverrideFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write override file: %v", err)
	}
}
