// Package history keeps finished transcriptions in an embedded SQLite
// database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/transcribe"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown job ID.
var ErrNotFound = errors.New("transcription not found")

// Entry is one finished job.
type Entry struct {
	ID         int64     `json:"id"`
	JobID      string    `json:"job_id"`
	Source     string    `json:"source"`
	Backend    string    `json:"backend"`
	Outcome    string    `json:"outcome"`
	Text       string    `json:"text,omitempty"`
	Error      string    `json:"error,omitempty"`
	SizeMB     float64   `json:"size_mb"`
	Chunks     int       `json:"chunks"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListFilter selects entries for List. Zero values mean no filter.
type ListFilter struct {
	Outcome string
	Search  string // substring of Text
	Limit   int    // default 50, max 500
	Offset  int
}

// Store is the SQLite-backed history.
type Store struct {
	db    *sql.DB
	log   zerolog.Logger
	clock func() time.Time
}

// Open creates or opens the database at path.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	log.Info().Str("path", path).Msg("history store opened")
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS transcriptions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id TEXT NOT NULL UNIQUE,
    source TEXT NOT NULL,
    backend TEXT NOT NULL,
    outcome TEXT NOT NULL,
    text TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    size_mb REAL NOT NULL DEFAULT 0,
    chunks INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_created ON transcriptions(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Insert stores e and returns its row ID. CreatedAt defaults to now.
func (s *Store) Insert(ctx context.Context, e Entry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transcriptions(job_id, source, backend, outcome, text, error, size_mb, chunks, duration_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.JobID, e.Source, e.Backend, e.Outcome, e.Text, e.Error, e.SizeMB, e.Chunks, e.DurationMs, e.CreatedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert transcription: %w", err)
	}
	return res.LastInsertId()
}

const selectColumns = `id, job_id, source, backend, outcome, text, error, size_mb, chunks, duration_ms, created_at`

// List returns matching entries newest first, and the total match count.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Entry, int, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}

	var where []string
	var args []any
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, f.Outcome)
	}
	if f.Search != "" {
		where = append(where, "text LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(f.Search)+"%")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transcriptions"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transcriptions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM transcriptions"+clause+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transcriptions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// Get returns the entry for jobID.
func (s *Store) Get(ctx context.Context, jobID string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM transcriptions WHERE job_id = ?", jobID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// Prune deletes entries older than maxAge and returns how many went.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.clock().Add(-maxAge).UnixMilli()
	res, err := s.db.ExecContext(ctx, "DELETE FROM transcriptions WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune transcriptions: %w", err)
	}
	return res.RowsAffected()
}

// HandleResult records a finished job.
func (s *Store) HandleResult(ctx context.Context, job transcribe.Job, res transcribe.Result) error {
	e := Entry{
		JobID:      res.JobID,
		Source:     job.Source,
		Backend:    res.Backend,
		Outcome:    string(res.Outcome),
		Text:       res.Text,
		SizeMB:     res.SizeMB,
		Chunks:     res.Chunks,
		DurationMs: res.Duration.Milliseconds(),
		CreatedAt:  res.Finished,
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	if _, err := s.Insert(ctx, e); err != nil {
		return err
	}
	s.log.Debug().Str("job_id", res.JobID).Str("outcome", e.Outcome).Msg("history entry stored")
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var e Entry
	var created int64
	if err := sc.Scan(&e.ID, &e.JobID, &e.Source, &e.Backend, &e.Outcome, &e.Text, &e.Error, &e.SizeMB, &e.Chunks, &e.DurationMs, &created); err != nil {
		return Entry{}, err
	}
	e.CreatedAt = time.UnixMilli(created)
	return e, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
