package scan

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestState_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	missing, err := LoadState(path)
	if err != nil || missing != nil {
		t.Fatalf("LoadState(missing) = %v, %v; want nil, nil", missing, err)
	}

	s := NewState("repo", "c1")
	s.Files["a.js"] = "h1"
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadState(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.RepoTag != "repo" || loaded.CommitHash != "c1" || loaded.Files["a.js"] != "h1" {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.LastRun.IsZero() {
		t.Error("LastRun not set")
	}
	if !loaded.Covers("repo", "c1") || loaded.Covers("repo", "c2") {
		t.Error("Covers mismatch")
	}
	var nilState *State
	if nilState.Covers("repo", "c1") {
		t.Error("nil state covers nothing")
	}
}

func TestDiff(t *testing.T) {
	prev := &State{Files: map[string]string{
		"same.js":    "h1",
		"changed.js": "h2",
		"gone.js":    "h3",
	}}
	current := map[string]string{
		"same.js":    "h1",
		"changed.js": "h2-new",
		"new.js":     "h4",
	}

	c := Diff(prev, current)
	want := Changes{
		New:       []string{"new.js"},
		Changed:   []string{"changed.js"},
		Unchanged: []string{"same.js"},
		Removed:   []string{"gone.js"},
	}
	if !reflect.DeepEqual(c, want) {
		t.Errorf("Diff = %+v, want %+v", c, want)
	}
	if got := c.Stale(); !reflect.DeepEqual(got, []string{"changed.js", "gone.js"}) {
		t.Errorf("Stale = %v", got)
	}
}

func TestDiff_FirstRun(t *testing.T) {
	c := Diff(nil, map[string]string{"b.js": "1", "a.js": "2"})
	if !reflect.DeepEqual(c.New, []string{"a.js", "b.js"}) {
		t.Errorf("New = %v", c.New)
	}
	if len(c.Changed)+len(c.Unchanged)+len(c.Removed) != 0 {
		t.Errorf("first run should only report new files: %+v", c)
	}
}
