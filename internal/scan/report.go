package scan

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// FileResult is the outcome of ingesting one file.
type FileResult struct {
	Path     string `json:"path"`
	Embedded int    `json:"embedded"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

// Report summarizes one ingest run.
type Report struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration_ms,omitempty"`
	RepoTag    string        `json:"repo_tag"`
	CommitHash string        `json:"commit_hash"`

	Files     []FileResult `json:"files"`
	Unchanged int          `json:"unchanged"`
	Removed   []string     `json:"removed,omitempty"`
	// Deleted counts records removed for changed or removed files before
	// re-embedding.
	Deleted int `json:"deleted"`

	Embedded int `json:"embedded"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`

	// CacheHits and CacheMisses count embedding cache lookups during the run.
	CacheHits   int64 `json:"cache_hits,omitempty"`
	CacheMisses int64 `json:"cache_misses,omitempty"`
}

func newReport(repoTag, commitHash string) *Report {
	return &Report{StartedAt: time.Now(), RepoTag: repoTag, CommitHash: commitHash}
}

func (r *Report) add(fr FileResult) {
	r.Files = append(r.Files, fr)
	if fr.Error != "" {
		r.Failed++
		return
	}
	r.Embedded += fr.Embedded
	r.Skipped += fr.Skipped
}

func (r *Report) finish() {
	sort.Slice(r.Files, func(i, j int) bool { return r.Files[i].Path < r.Files[j].Path })
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
}

// PrintSummary writes a human-readable summary.
func (r *Report) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\nIngest %s @ %s\n", r.RepoTag, r.CommitHash)
	fmt.Fprintf(w, "  Duration:   %s\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Files:      %d ingested, %d unchanged, %d removed, %d failed\n",
		len(r.Files)-r.Failed, r.Unchanged, len(r.Removed), r.Failed)
	fmt.Fprintf(w, "  Chunks:     %d embedded, %d skipped\n", r.Embedded, r.Skipped)
	if r.Deleted > 0 {
		fmt.Fprintf(w, "  Deleted:    %d stale records\n", r.Deleted)
	}
	if r.CacheHits+r.CacheMisses > 0 {
		fmt.Fprintf(w, "  Cache:      %d hits, %d misses\n", r.CacheHits, r.CacheMisses)
	}
	if r.Failed > 0 {
		fmt.Fprintf(w, "  Errors:\n")
		for _, f := range r.Files {
			if f.Error != "" {
				fmt.Fprintf(w, "    %s: %s\n", f.Path, f.Error)
			}
		}
	}
}

// JSON returns the report as formatted JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
