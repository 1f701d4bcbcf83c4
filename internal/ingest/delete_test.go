package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/CihadCengiz/prompt-generator/internal/audit"
	"github.com/CihadCengiz/prompt-generator/internal/graph"
	"github.com/CihadCengiz/prompt-generator/internal/vector"
	"github.com/CihadCengiz/prompt-generator/internal/vector/memory"
)

func seed(t *testing.T, p *Pipeline, files map[string]string, tag, commit string) {
	t.Helper()
	for path, content := range files {
		if _, err := p.EmbedAndStore(context.Background(), path, content, tag, commit); err != nil {
			t.Fatalf("seed %s: %v", path, err)
		}
	}
}

func TestDeleteByCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed(t, f.p, map[string]string{"a.js": "abcdef", "b.js": "ghi"}, testTag, testCommit)
	seed(t, f.p, map[string]string{"a.js": "abcdef"}, testTag, "c2")
	seed(t, f.p, map[string]string{"a.js": "abcdef"}, "other-repo", testCommit)

	res, err := f.p.DeleteByCommit(ctx, testTag, testCommit)
	if err != nil {
		t.Fatalf("DeleteByCommit: %v", err)
	}
	if res.DeletedCount != 3 || res.CommitHash != testCommit || res.Error {
		t.Errorf("result = %+v, want 3 deleted", res)
	}
	if f.index.Len() != 4 {
		t.Errorf("index has %d records, want 4 left", f.index.Len())
	}

	again, err := f.p.DeleteByCommit(ctx, testTag, testCommit)
	if err != nil {
		t.Fatal(err)
	}
	if again.DeletedCount != 0 || again.Error {
		t.Errorf("second delete = %+v, want 0 deleted", again)
	}

	entries := f.log.Entries()
	last := entries[len(entries)-1]
	prev := entries[len(entries)-2]
	if prev.Type != audit.TypeDeleteAll || prev.DeletedCount != 3 || prev.CommitHash != testCommit {
		t.Errorf("audit entry = %+v", prev)
	}
	if last.Type != audit.TypeDeleteAll || last.DeletedCount != 0 {
		t.Errorf("audit entry = %+v", last)
	}
}

func TestDeleteByFileList(t *testing.T) {
	tests := []struct {
		name         string
		paths        []string
		wantDeleted  int
		wantAffected int
		wantLeft     int
	}{
		{"both files match", []string{"a.js", "b.js"}, 3, 2, 1},
		{"one file matches", []string{"a.js", "missing.js"}, 2, 2, 2},
		{"no file matches", []string{"x.js", "y.js"}, 0, 2, 4},
		{"duplicate path", []string{"a.js", "a.js"}, 2, 2, 2},
		{"empty list", nil, 0, 0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			seed(t, f.p, map[string]string{"a.js": "abcdef", "b.js": "ghi", "c.js": "jkl"}, testTag, testCommit)

			res, err := f.p.DeleteByFileList(context.Background(), testTag, testCommit, tt.paths)
			if err != nil {
				t.Fatalf("DeleteByFileList: %v", err)
			}
			if res.DeletedCount != tt.wantDeleted {
				t.Errorf("deleted = %d, want %d", res.DeletedCount, tt.wantDeleted)
			}
			if res.AffectedFiles != tt.wantAffected {
				t.Errorf("affected = %d, want %d", res.AffectedFiles, tt.wantAffected)
			}
			if f.index.Len() != tt.wantLeft {
				t.Errorf("index has %d records, want %d", f.index.Len(), tt.wantLeft)
			}

			entries := f.log.Entries()
			e := entries[len(entries)-1]
			if e.Type != audit.TypeDeleteChanged || e.AffectedFiles != tt.wantAffected || e.DeletedCount != tt.wantDeleted {
				t.Errorf("audit entry = %+v", e)
			}
		})
	}
}

func TestDeleteByFileList_OnlyTargetCommit(t *testing.T) {
	f := newFixture(t)
	seed(t, f.p, map[string]string{"a.js": "abcdef"}, testTag, testCommit)
	seed(t, f.p, map[string]string{"a.js": "abcdef"}, testTag, "c2")

	res, err := f.p.DeleteByFileList(context.Background(), testTag, "c2", []string{"a.js"})
	if err != nil {
		t.Fatal(err)
	}
	if res.DeletedCount != 2 || f.index.Len() != 2 {
		t.Errorf("deleted = %d, left = %d, want 2/2", res.DeletedCount, f.index.Len())
	}
	left, _ := f.index.List(context.Background(), vector.Filter{vector.KeyCommitHash: testCommit}, 0)
	if len(left) != 2 {
		t.Errorf("commit %s has %d records, want 2", testCommit, len(left))
	}
}

func TestDelete_Failures(t *testing.T) {
	ops := []struct {
		name string
		call func(*Pipeline) (DeleteResult, error)
	}{
		{"by commit", func(p *Pipeline) (DeleteResult, error) {
			return p.DeleteByCommit(context.Background(), testTag, testCommit)
		}},
		{"by file list", func(p *Pipeline) (DeleteResult, error) {
			return p.DeleteByFileList(context.Background(), testTag, testCommit, []string{"a.js", "b.js"})
		}},
	}
	failures := []struct {
		name     string
		index    func(*memory.Index) *failingIndex
		wantKind error
	}{
		{"probe", func(m *memory.Index) *failingIndex { return &failingIndex{Index: m, queryErr: errIndexDown} }, ErrIndex},
		{"delete", func(m *memory.Index) *failingIndex { return &failingIndex{Index: m, deleteErr: errIndexDown} }, ErrIndex},
	}

	for _, op := range ops {
		for _, fl := range failures {
			t.Run(op.name+"/"+fl.name, func(t *testing.T) {
				mem := memory.New(0)
				seeder := New(&stubEmbedder{}, mem, nil, WithChunkSize(3),
					WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
				seed(t, seeder, map[string]string{"a.js": "abcdef", "b.js": "ghi"}, testTag, testCommit)

				log := audit.NewMemoryLog()
				p := New(&stubEmbedder{}, fl.index(mem), log,
					WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

				res, err := op.call(p)
				if !errors.Is(err, fl.wantKind) || !errors.Is(err, errIndexDown) {
					t.Fatalf("err = %v, want %v wrapping %v", err, fl.wantKind, errIndexDown)
				}
				if !res.Error || res.DeletedCount != 0 || res.CommitHash != testCommit {
					t.Errorf("result = %+v, want error with 0 deleted", res)
				}
				if len(log.Entries()) != 0 {
					t.Error("failed delete must not be audited")
				}
			})
		}
	}
}

func TestDelete_AuditFailureKeepsCounts(t *testing.T) {
	mem := memory.New(0)
	seeder := New(&stubEmbedder{}, mem, nil, WithChunkSize(3),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	seed(t, seeder, map[string]string{"a.js": "abcdef"}, testTag, testCommit)

	p := New(&stubEmbedder{}, mem, &failingLog{},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	res, err := p.DeleteByCommit(context.Background(), testTag, testCommit)
	if !errors.Is(err, ErrAudit) {
		t.Fatalf("err = %v, want ErrAudit", err)
	}
	if !res.Error || res.DeletedCount != 2 || mem.Len() != 0 {
		t.Errorf("result = %+v, index = %d", res, mem.Len())
	}
}

func TestDelete_InvalidScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.p.DeleteByCommit(ctx, testTag, ""); !errors.Is(err, ErrInvalidScope) {
		t.Errorf("DeleteByCommit err = %v, want ErrInvalidScope", err)
	}
	res, err := f.p.DeleteByFileList(ctx, "", testCommit, []string{"a.js"})
	if !errors.Is(err, ErrInvalidScope) {
		t.Errorf("DeleteByFileList err = %v, want ErrInvalidScope", err)
	}
	if !res.Error {
		t.Error("expected Error flag")
	}
}

func TestDelete_ForgetsLineage(t *testing.T) {
	lineage := graph.NewMemory()
	f := newFixture(t, WithLineage(lineage))
	ctx := context.Background()
	seed(t, f.p, map[string]string{"a.js": "abc", "b.js": "def"}, testTag, testCommit)

	if _, err := f.p.DeleteByFileList(ctx, testTag, testCommit, []string{"a.js"}); err != nil {
		t.Fatal(err)
	}
	files, _ := lineage.CommitFiles(ctx, testTag, testCommit)
	if len(files) != 1 || files[0] != "b.js" {
		t.Errorf("files after file delete = %v", files)
	}

	if _, err := f.p.DeleteByCommit(ctx, testTag, testCommit); err != nil {
		t.Fatal(err)
	}
	files, _ = lineage.CommitFiles(ctx, testTag, testCommit)
	if len(files) != 0 {
		t.Errorf("files after commit delete = %v", files)
	}
}

func TestDeleteByFileList_NoDeleteCallWhenNothingMatches(t *testing.T) {
	mem := memory.New(0)
	idx := &failingIndex{Index: mem}
	p := New(&stubEmbedder{}, idx, nil, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	if _, err := p.DeleteByFileList(context.Background(), testTag, testCommit, []string{"a.js"}); err != nil {
		t.Fatal(err)
	}
	if len(idx.deletes) != 0 {
		t.Errorf("DeleteMany called %d times, want 0", len(idx.deletes))
	}
}

func TestDeleteByFileList_ZeroConcurrencyCompletes(t *testing.T) {
	f := newFixture(t, WithProbeConcurrency(0))
	seed(t, f.p, map[string]string{"a.js": "abcdef"}, testTag, testCommit)

	done := make(chan DeleteResult, 1)
	go func() {
		res, err := f.p.DeleteByFileList(context.Background(), testTag, testCommit, []string{"a.js"})
		if err != nil {
			t.Errorf("DeleteByFileList: %v", err)
		}
		done <- res
	}()
	select {
	case res := <-done:
		if res.DeletedCount != 2 {
			t.Errorf("DeletedCount = %d, want 2", res.DeletedCount)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("DeleteByFileList did not return")
	}
}

func TestDeleteByCommit_ScopeLargerThanLookupLimit(t *testing.T) {
	f := newFixture(t, WithProbeLimit(2))
	ctx := context.Background()
	seed(t, f.p, map[string]string{"a.js": "abcdefghi"}, testTag, testCommit)
	if f.index.Len() != 3 {
		t.Fatalf("seeded %d records, want 3", f.index.Len())
	}

	first, err := f.p.DeleteByCommit(ctx, testTag, testCommit)
	if err != nil {
		t.Fatal(err)
	}
	if first.DeletedCount != 2 {
		t.Errorf("first pass deleted %d, want 2", first.DeletedCount)
	}
	second, err := f.p.DeleteByCommit(ctx, testTag, testCommit)
	if err != nil {
		t.Fatal(err)
	}
	if second.DeletedCount != 1 || f.index.Len() != 0 {
		t.Errorf("second pass deleted %d, %d left; want 1, 0", second.DeletedCount, f.index.Len())
	}
}
