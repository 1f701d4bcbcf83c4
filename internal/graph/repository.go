// Package graph records which files each commit contributed to the index,
// as a Repo -> Commit -> File lineage graph.
package graph

import (
	"context"
	"sort"
	"sync"
)

// FileVersion is one ingested file under a commit.
type FileVersion struct {
	RepoTag     string
	CommitHash  string
	FilePath    string
	FileHash    string
	ContentHash string
	Chunks      int
}

// Recorder persists lineage. Implementations must be safe for concurrent use.
type Recorder interface {
	RecordFile(ctx context.Context, fv FileVersion) error
	ForgetCommit(ctx context.Context, repoTag, commitHash string) error
	ForgetFiles(ctx context.Context, repoTag, commitHash string, paths []string) error
	// CommitFiles lists the file paths recorded under a commit, sorted.
	CommitFiles(ctx context.Context, repoTag, commitHash string) ([]string, error)
	Close(ctx context.Context) error
}

type commitKey struct{ repo, commit string }

// Memory is an in-process Recorder.
type Memory struct {
	mu      sync.Mutex
	commits map[commitKey]map[string]FileVersion
}

func NewMemory() *Memory {
	return &Memory{commits: make(map[commitKey]map[string]FileVersion)}
}

func (m *Memory) RecordFile(_ context.Context, fv FileVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := commitKey{fv.RepoTag, fv.CommitHash}
	if m.commits[k] == nil {
		m.commits[k] = make(map[string]FileVersion)
	}
	m.commits[k][fv.FilePath] = fv
	return nil
}

func (m *Memory) ForgetCommit(_ context.Context, repoTag, commitHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.commits, commitKey{repoTag, commitHash})
	return nil
}

func (m *Memory) ForgetFiles(_ context.Context, repoTag, commitHash string, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	files := m.commits[commitKey{repoTag, commitHash}]
	for _, p := range paths {
		delete(files, p)
	}
	return nil
}

func (m *Memory) CommitFiles(_ context.Context, repoTag, commitHash string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for p := range m.commits[commitKey{repoTag, commitHash}] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Close(context.Context) error { return nil }

var _ Recorder = (*Memory)(nil)
