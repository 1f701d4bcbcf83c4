package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CihadCengiz/prompt-generator/internal/app"
	"github.com/CihadCengiz/prompt-generator/internal/vector"
)

func TestProvidersCmd(t *testing.T) {
	var buf bytes.Buffer
	cmd := providersCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"openai", "https://api.openai.com/v1", "hash", "custom", "OPENAI_KEY"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintMatches(t *testing.T) {
	var buf bytes.Buffer
	if err := printMatches(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No matching chunks") {
		t.Errorf("empty output = %q", buf.String())
	}

	buf.Reset()
	matches := []vector.Match{{Score: 0.5, Metadata: vector.Metadata{Text: "hello", FilePath: "a.md", CommitHash: "c1"}}}
	if err := printMatches(&buf, matches); err != nil {
		t.Fatal(err)
	}
	want := "--- 1. a.md @ c1 (score 0.500)\nhello\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestExtensionsOr(t *testing.T) {
	if got := extensionsOr(nil, []string{".md"}); len(got) != 1 || got[0] != ".md" {
		t.Errorf("fallback = %v", got)
	}
	if got := extensionsOr([]string{".go"}, []string{".md"}); len(got) != 1 || got[0] != ".go" {
		t.Errorf("override = %v", got)
	}
}

func TestIngestCmd_Offline(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.md", "hello world")
	writeFile(t, dir, "skip.txt", "ignored")
	t.Setenv("PROMPTGEN_EMBEDDING_PROVIDER", "hash")
	t.Setenv("PROMPTGEN_EMBEDDING_DIMENSIONS", "16")
	t.Setenv("PROMPTGEN_INDEX_BACKEND", "memory")
	t.Setenv("PROMPTGEN_AUDIT_BACKEND", "memory")

	c := &cli{logLevel: "error"}
	var buf bytes.Buffer
	cmd := c.ingestCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{dir, "--commit", "c1", "--repo-tag", "demo"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("ingest: %v\n%s", err, buf.String())
	}
	out := buf.String()
	if !strings.Contains(out, "README.md: embedded 1, skipped 0") {
		t.Errorf("missing progress line:\n%s", out)
	}
	if strings.Contains(out, "skip.txt") {
		t.Errorf("txt file ingested:\n%s", out)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPrintFiles(t *testing.T) {
	var buf bytes.Buffer
	if err := printFiles(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "No files recorded.\n" {
		t.Errorf("empty output = %q", buf.String())
	}
	buf.Reset()
	if err := printFiles(&buf, []string{"a.go", "b.go"}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "a.go\nb.go\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestLineageCmd_RequiresGraph(t *testing.T) {
	t.Setenv("PROMPTGEN_EMBEDDING_PROVIDER", "hash")
	t.Setenv("PROMPTGEN_INDEX_BACKEND", "memory")
	t.Setenv("PROMPTGEN_AUDIT_BACKEND", "memory")

	c := &cli{logLevel: "error"}
	cmd := c.lineageCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--commit", "c1"})
	if err := cmd.Execute(); !errors.Is(err, app.ErrNoLineage) {
		t.Errorf("err = %v, want ErrNoLineage", err)
	}
}

func TestIngestCmd_PrintsCacheStats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.md", "hello world")
	t.Setenv("PROMPTGEN_EMBEDDING_PROVIDER", "hash")
	t.Setenv("PROMPTGEN_EMBEDDING_DIMENSIONS", "16")
	t.Setenv("PROMPTGEN_EMBEDDING_CACHE_SIZE", "32")
	t.Setenv("PROMPTGEN_INDEX_BACKEND", "memory")
	t.Setenv("PROMPTGEN_AUDIT_BACKEND", "memory")

	c := &cli{logLevel: "error"}
	var buf bytes.Buffer
	cmd := c.ingestCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{dir, "--commit", "c1"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("ingest: %v\n%s", err, buf.String())
	}
	if !strings.Contains(buf.String(), "Cache:      0 hits, 1 misses") {
		t.Errorf("missing cache line:\n%s", buf.String())
	}
}
