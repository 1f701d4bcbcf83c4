package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLLog stores entries in an embedding_logs table on SQLite or Postgres.
type SQLLog struct {
	db      *sql.DB
	dialect string
}

// OpenSQL opens the database and creates the table if needed. dialect is
// "sqlite" (dsn is a file path or ":memory:") or "postgres".
func OpenSQL(ctx context.Context, dialect, dsn string) (*SQLLog, error) {
	if dsn == "" {
		return nil, fmt.Errorf("audit %s: dsn is required", dialect)
	}

	var driver string
	switch dialect {
	case "sqlite":
		driver = "sqlite"
		if dsn != ":memory:" {
			if dir := filepath.Dir(dsn); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("create audit db directory: %w", err)
				}
			}
		}
	case "postgres":
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported audit dialect %q", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if dialect == "sqlite" {
		// a single connection keeps ":memory:" databases shared across calls
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping audit db: %w", err)
	}

	l := &SQLLog{db: db, dialect: dialect}
	if err := l.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return l, nil
}

func (l *SQLLog) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS embedding_logs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		file_path TEXT,
		commit_hash TEXT,
		repo_tag TEXT,
		embedded_count INTEGER NOT NULL DEFAULT 0,
		skipped_count INTEGER NOT NULL DEFAULT 0,
		deleted_count INTEGER NOT NULL DEFAULT 0,
		affected_files INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_embedding_logs_commit ON embedding_logs(repo_tag, commit_hash)`)
	return err
}

// rebind rewrites ? placeholders to $n for Postgres.
func (l *SQLLog) rebind(q string) string {
	if l.dialect != "postgres" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (l *SQLLog) Append(ctx context.Context, e Entry) (string, error) {
	stamp(&e)
	_, err := l.db.ExecContext(ctx, l.rebind(`
		INSERT INTO embedding_logs
			(id, type, file_path, commit_hash, repo_tag, embedded_count, skipped_count, deleted_count, affected_files, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, string(e.Type), e.FilePath, e.CommitHash, e.RepoTag,
		e.EmbeddedCount, e.SkippedCount, e.DeletedCount, e.AffectedFiles, e.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert audit entry: %w", err)
	}
	return e.ID, nil
}

// Recent returns up to limit entries, newest first.
func (l *SQLLog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, l.rebind(`
		SELECT id, type, file_path, commit_hash, repo_tag, embedded_count, skipped_count, deleted_count, affected_files, created_at
		FROM embedding_logs ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                         Entry
			typ                       string
			filePath, commit, repoTag sql.NullString
			ts                        string
		)
		if err := rows.Scan(&e.ID, &typ, &filePath, &commit, &repoTag,
			&e.EmbeddedCount, &e.SkippedCount, &e.DeletedCount, &e.AffectedFiles, &ts); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Type = EntryType(typ)
		e.FilePath = filePath.String
		e.CommitHash = commit.String
		e.RepoTag = repoTag.String
		if e.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("parse audit timestamp %q of entry %s: %w", ts, e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *SQLLog) Ping(ctx context.Context) error { return l.db.PingContext(ctx) }

func (l *SQLLog) Close() error { return l.db.Close() }
