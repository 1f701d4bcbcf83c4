package scan

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const stateVersion = "1.0.0"

// State records what the last ingest run stored, so the next run under the
// same scope only touches files whose content changed.
type State struct {
	Version    string    `json:"version"`
	RepoTag    string    `json:"repo_tag"`
	CommitHash string    `json:"commit_hash"`
	LastRun    time.Time `json:"last_run"`
	// Files maps relative path to content hash.
	Files map[string]string `json:"files"`
}

// NewState creates an empty state for a scope.
func NewState(repoTag, commitHash string) *State {
	return &State{
		Version:    stateVersion,
		RepoTag:    repoTag,
		CommitHash: commitHash,
		Files:      make(map[string]string),
	}
}

// LoadState reads a state file. It returns nil (no error) if the file does
// not exist yet.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.Files == nil {
		state.Files = make(map[string]string)
	}
	return &state, nil
}

// Save writes the state, creating parent directories as needed.
func (s *State) Save(path string) error {
	s.LastRun = time.Now().UTC()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Covers reports whether the state was recorded under the given scope.
// A state from another scope says nothing about what that scope holds.
func (s *State) Covers(repoTag, commitHash string) bool {
	return s != nil && s.RepoTag == repoTag && s.CommitHash == commitHash
}

// Changes classifies the current files against a previous state.
type Changes struct {
	New       []string `json:"new"`
	Changed   []string `json:"changed"`
	Unchanged []string `json:"unchanged"`
	Removed   []string `json:"removed"`
}

// Stale lists the paths whose stored records no longer match the tree.
func (c Changes) Stale() []string {
	out := make([]string, 0, len(c.Changed)+len(c.Removed))
	out = append(out, c.Changed...)
	out = append(out, c.Removed...)
	sort.Strings(out)
	return out
}

// Diff compares current content hashes against prev. With a nil prev every
// file is new. All lists are sorted.
func Diff(prev *State, current map[string]string) Changes {
	var c Changes
	for path, hash := range current {
		if prev == nil {
			c.New = append(c.New, path)
			continue
		}
		old, ok := prev.Files[path]
		switch {
		case !ok:
			c.New = append(c.New, path)
		case old != hash:
			c.Changed = append(c.Changed, path)
		default:
			c.Unchanged = append(c.Unchanged, path)
		}
	}
	if prev != nil {
		for path := range prev.Files {
			if _, ok := current[path]; !ok {
				c.Removed = append(c.Removed, path)
			}
		}
	}

	sort.Strings(c.New)
	sort.Strings(c.Changed)
	sort.Strings(c.Unchanged)
	sort.Strings(c.Removed)
	return c
}
