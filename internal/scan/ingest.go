package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CihadCengiz/prompt-generator/internal/chunk"
	"github.com/CihadCengiz/prompt-generator/internal/ingest"
)

// DefaultConcurrency bounds how many files are embedded at once.
const DefaultConcurrency = 4

// Pipeline is the part of ingest.Pipeline the scanner drives.
type Pipeline interface {
	EmbedAndStore(ctx context.Context, filePath, content, repoTag, commitHash string) (ingest.EmbedResult, error)
	DeleteByFileList(ctx context.Context, repoTag, commitHash string, filePaths []string) (ingest.DeleteResult, error)
}

// InitialCommitHash is the commit hash used when a tree is ingested without
// one, e.g. "initial-1718000000000".
func InitialCommitHash(now time.Time) string {
	return fmt.Sprintf("initial-%d", now.UnixMilli())
}

// Ingester embeds the files a Walker finds.
type Ingester struct {
	pipeline    Pipeline
	walker      *Walker
	concurrency int
	logger      *slog.Logger
	out         io.Writer
	cacheStats  func() (hits, misses int64)
}

// IngesterOption customizes an Ingester.
type IngesterOption func(*Ingester)

func WithConcurrency(n int) IngesterOption {
	return func(in *Ingester) {
		if n > 0 {
			in.concurrency = n
		}
	}
}

func WithIngestLogger(l *slog.Logger) IngesterOption {
	return func(in *Ingester) { in.logger = l }
}

// WithProgress writes one "path: embedded N, skipped M" line per file to w.
func WithProgress(w io.Writer) IngesterOption {
	return func(in *Ingester) { in.out = w }
}

// WithCacheStats adds the embedding cache hits and misses of each run to its
// report. stats returns cumulative counts.
func WithCacheStats(stats func() (hits, misses int64)) IngesterOption {
	return func(in *Ingester) { in.cacheStats = stats }
}

func NewIngester(p Pipeline, w *Walker, opts ...IngesterOption) *Ingester {
	in := &Ingester{
		pipeline:    p,
		walker:      w,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
		out:         io.Discard,
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

// RunOptions scope one run.
type RunOptions struct {
	RepoTag    string
	CommitHash string
	// StatePath enables incremental mode when set.
	StatePath string
}

// Run ingests every file under the root. Per-file failures are recorded in
// the report and do not stop the run; the returned error covers walking and
// state handling only.
//
// In incremental mode, when the state file was written for the same scope,
// unchanged files are not re-embedded, and the records of changed and removed
// files are deleted before their new content is stored.
func (in *Ingester) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	report := newReport(opts.RepoTag, opts.CommitHash)
	var hits0, misses0 int64
	if in.cacheStats != nil {
		hits0, misses0 = in.cacheStats()
	}

	files, err := in.walker.Walk(ctx)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", in.walker.Root(), err)
	}

	contents := make(map[string]string, len(files))
	hashes := make(map[string]string, len(files))
	unreadable := make(map[string]bool)
	for _, f := range files {
		data, err := os.ReadFile(f.AbsPath)
		if err != nil {
			report.add(FileResult{Path: f.Path, Error: err.Error()})
			unreadable[f.Path] = true
			continue
		}
		contents[f.Path] = string(data)
		hashes[f.Path] = chunk.ContentHash(string(data))
	}

	var prev *State
	if opts.StatePath != "" {
		prev, err = LoadState(opts.StatePath)
		if err != nil {
			return nil, fmt.Errorf("load state: %w", err)
		}
		if !prev.Covers(opts.RepoTag, opts.CommitHash) {
			prev = nil
		}
	}
	changes := Diff(prev, hashes)
	// A file that could not be read still exists; keep its records.
	carried := make(map[string]string)
	removed := changes.Removed[:0]
	for _, path := range changes.Removed {
		if unreadable[path] {
			carried[path] = prev.Files[path]
			continue
		}
		removed = append(removed, path)
	}
	changes.Removed = removed
	report.Unchanged = len(changes.Unchanged)
	report.Removed = changes.Removed

	if stale := changes.Stale(); len(stale) > 0 {
		res, err := in.pipeline.DeleteByFileList(ctx, opts.RepoTag, opts.CommitHash, stale)
		if err != nil {
			return nil, fmt.Errorf("delete stale records: %w", err)
		}
		report.Deleted = res.DeletedCount
	}

	todo := append(append([]string(nil), changes.New...), changes.Changed...)
	results := in.embedAll(ctx, opts, todo, contents)

	next := NewState(opts.RepoTag, opts.CommitHash)
	for path, hash := range carried {
		next.Files[path] = hash
	}
	for _, path := range changes.Unchanged {
		next.Files[path] = hashes[path]
	}
	for _, fr := range results {
		report.add(fr)
		if fr.Error == "" {
			next.Files[fr.Path] = hashes[fr.Path]
		}
	}
	report.finish()
	if in.cacheStats != nil {
		hits, misses := in.cacheStats()
		report.CacheHits, report.CacheMisses = hits-hits0, misses-misses0
	}

	if opts.StatePath != "" {
		if err := next.Save(opts.StatePath); err != nil {
			return report, fmt.Errorf("save state: %w", err)
		}
	}

	in.logger.Info("ingest complete",
		"repo_tag", opts.RepoTag,
		"commit", opts.CommitHash,
		"files", len(report.Files),
		"unchanged", report.Unchanged,
		"removed", len(report.Removed),
		"embedded", report.Embedded,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}

func (in *Ingester) embedAll(ctx context.Context, opts RunOptions, paths []string, contents map[string]string) []FileResult {
	results := make([]FileResult, len(paths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	for i, path := range paths {
		g.Go(func() error {
			fr := FileResult{Path: path}
			res, err := in.pipeline.EmbedAndStore(gctx, path, contents[path], opts.RepoTag, opts.CommitHash)
			if err != nil {
				fr.Error = err.Error()
				in.logger.Error("embed failed", "file", path, "error", err)
			} else {
				fr.Embedded = res.EmbeddedCount
				fr.Skipped = res.SkippedCount
			}
			results[i] = fr

			mu.Lock()
			if fr.Error == "" {
				fmt.Fprintf(in.out, "%s: embedded %d, skipped %d\n", path, fr.Embedded, fr.Skipped)
			} else {
				fmt.Fprintf(in.out, "%s: failed: %s\n", path, fr.Error)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// SyncFile replaces the stored records of one file with its current content.
func (in *Ingester) SyncFile(ctx context.Context, opts RunOptions, f File) (ingest.EmbedResult, error) {
	data, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return ingest.EmbedResult{}, err
	}
	if _, err := in.pipeline.DeleteByFileList(ctx, opts.RepoTag, opts.CommitHash, []string{f.Path}); err != nil {
		return ingest.EmbedResult{}, err
	}
	return in.pipeline.EmbedAndStore(ctx, f.Path, string(data), opts.RepoTag, opts.CommitHash)
}

// ForgetFile removes the stored records of one file.
func (in *Ingester) ForgetFile(ctx context.Context, opts RunOptions, f File) (ingest.DeleteResult, error) {
	return in.pipeline.DeleteByFileList(ctx, opts.RepoTag, opts.CommitHash, []string{f.Path})
}
