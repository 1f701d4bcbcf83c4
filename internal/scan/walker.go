// Package scan walks a repository working tree and feeds its files through
// the ingestion pipeline, either once, incrementally, or continuously.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultExtensions are the file types ingested when none are configured.
var DefaultExtensions = []string{".js", ".ts", ".jsx", ".tsx", ".md"}

// File is a candidate source file. Path is relative to the walk root and
// always uses forward slashes; it is the path stored in the index.
type File struct {
	Path    string
	AbsPath string
}

// Walker lists source files under a root, honoring the root .gitignore.
type Walker struct {
	root       string
	extensions map[string]struct{}
	ignore     *ignore.GitIgnore
}

// NewWalker prepares a walker for root. An empty extension list uses
// DefaultExtensions.
func NewWalker(root string, extensions []string) (*Walker, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}

	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	w := &Walker{root: abs, extensions: make(map[string]struct{}, len(extensions))}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		w.extensions[ext] = struct{}{}
	}

	gi, err := ignore.CompileIgnoreFile(filepath.Join(abs, ".gitignore"))
	switch {
	case err == nil:
		w.ignore = gi
	case errors.Is(err, fs.ErrNotExist):
		w.ignore = ignore.CompileIgnoreLines()
	default:
		return nil, fmt.Errorf("read .gitignore: %w", err)
	}
	return w, nil
}

// Root returns the absolute walk root.
func (w *Walker) Root() string { return w.root }

// Walk returns every matching file in lexical order.
func (w *Walker) Walk(ctx context.Context) ([]File, error) {
	var files []File
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == w.root {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if w.skipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if w.matches(rel) {
			files = append(files, File{Path: rel, AbsPath: path})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Match reports whether an absolute path under the root would be walked.
func (w *Walker) Match(path string) (File, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return File{}, false
	}
	rel = filepath.ToSlash(rel)
	dir := rel
	for {
		i := strings.LastIndex(dir, "/")
		if i < 0 {
			break
		}
		dir = dir[:i]
		if w.skipDir(dir) {
			return File{}, false
		}
	}
	if !w.matches(rel) {
		return File{}, false
	}
	return File{Path: rel, AbsPath: path}, true
}

// SkipsDir reports whether a directory, given relative to the root, is
// excluded along with everything under it.
func (w *Walker) SkipsDir(rel string) bool {
	return w.skipDir(filepath.ToSlash(rel))
}

func (w *Walker) skipDir(rel string) bool {
	if rel == ".git" || strings.HasSuffix(rel, "/.git") {
		return true
	}
	return w.ignore.MatchesPath(rel) || w.ignore.MatchesPath(rel+"/")
}

func (w *Walker) matches(rel string) bool {
	if _, ok := w.extensions[strings.ToLower(filepath.Ext(rel))]; !ok {
		return false
	}
	return !w.ignore.MatchesPath(rel)
}
