package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// FileLog writes one JSON object per line.
type FileLog struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewFileLog opens path for appending. "stdout", "stderr" and "" select the
// standard streams.
func NewFileLog(path string) (*FileLog, error) {
	var w io.Writer
	switch path {
	case "stdout", "":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		w = f
	}
	return &FileLog{writer: w}, nil
}

// NewWriterLog writes entries to w.
func NewWriterLog(w io.Writer) *FileLog {
	return &FileLog{writer: w}
}

func (l *FileLog) Append(_ context.Context, e Entry) (string, error) {
	stamp(&e)

	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := fmt.Fprintf(l.writer, "%s\n", data); err != nil {
		return "", fmt.Errorf("write audit entry: %w", err)
	}
	return e.ID, nil
}

// Close closes the underlying file. Standard streams are left open.
func (l *FileLog) Close() error {
	if c, ok := l.writer.(io.Closer); ok && c != os.Stdout && c != os.Stderr {
		return c.Close()
	}
	return nil
}
