// Package session persists the navigation state of replay sessions in SQLite.
package session

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/raysh454/replaydesk/internal/logging"
	"github.com/raysh454/replaydesk/internal/replay"
)

//go:embed schema.sql
var schemaFS embed.FS

// DBFile is the database file name created under the storage root.
const DBFile = "replaydesk.db"

var ErrSessionNotFound = errors.New("session not found")

// Record is the stored form of one session.
type Record struct {
	ID          string
	SnapshotID  string
	Context     replay.RenderContext
	Locale      string
	LogicalURL  string
	Timestamp   string
	EditionID   int64
	ViewerURL   string
	NoticeKind  replay.NoticeKind
	LastOutcome replay.SwitchState
	CreatedAt   int64
	UpdatedAt   int64
	ClosedAt    int64 // 0 while the session is live
}

// Store reads and writes session records.
type Store struct {
	db     *sql.DB
	owned  bool
	logger logging.Logger
}

// Open creates rootDir if needed and opens rootDir/replaydesk.db.
func Open(rootDir string, logger logging.Logger) (*Store, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("rootDir is required")
	}
	rootDir = filepath.Clean(rootDir)
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure rootDir %s: %w", rootDir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(rootDir, DBFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; serialising here avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s, err := NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewStore applies the schema to db. The caller keeps ownership of db.
func NewStore(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if err := applySchema(db); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db, logger: logger.With(logging.Field{Key: "component", Value: "session_store"})}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close closes the database if the store opened it.
func (s *Store) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// Create inserts a new record. CreatedAt and UpdatedAt default to now.
func (s *Store) Create(ctx context.Context, r Record) error {
	if r.ID == "" || r.SnapshotID == "" {
		return fmt.Errorf("session id and snapshot id are required")
	}
	now := time.Now().Unix()
	if r.CreatedAt == 0 {
		r.CreatedAt = now
	}
	if r.UpdatedAt == 0 {
		r.UpdatedAt = r.CreatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions
             (id, snapshot_id, context, locale, logical_url, timestamp14, edition_id,
              viewer_url, notice_kind, last_outcome, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SnapshotID, string(r.Context), r.Locale, r.LogicalURL, r.Timestamp, r.EditionID,
		r.ViewerURL, string(r.NoticeKind), string(r.LastOutcome), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SaveState overwrites the navigation fields of session id. last is recorded
// when non-empty.
func (s *Store) SaveState(ctx context.Context, id string, st replay.NavigationState, last replay.SwitchState) error {
	var notice string
	if st.Notice != nil {
		notice = string(st.Notice.Kind)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions
            SET logical_url = ?, timestamp14 = ?, edition_id = ?, viewer_url = ?,
                notice_kind = ?, last_outcome = COALESCE(NULLIF(?, ''), last_outcome),
                updated_at = ?
          WHERE id = ?`,
		st.LogicalURL, st.Timestamp, st.EditionID, st.ViewerURL,
		notice, string(last), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("update session %s: %w", id, err)
	}
	return expectOne(res, id)
}

// MarkClosed stamps closed_at on session id.
func (s *Store) MarkClosed(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET closed_at = ?, updated_at = ? WHERE id = ?`,
		at.Unix(), at.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	return expectOne(res, id)
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

const selectColumns = `id, snapshot_id, context, locale, logical_url, timestamp14, edition_id,
       viewer_url, notice_kind, last_outcome, created_at, updated_at, closed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var r Record
	var ctxName, notice, last string
	var closed sql.NullInt64
	if err := row.Scan(&r.ID, &r.SnapshotID, &ctxName, &r.Locale, &r.LogicalURL, &r.Timestamp, &r.EditionID,
		&r.ViewerURL, &notice, &last, &r.CreatedAt, &r.UpdatedAt, &closed); err != nil {
		return nil, err
	}
	r.Context = replay.RenderContext(ctxName)
	r.NoticeKind = replay.NoticeKind(notice)
	r.LastOutcome = replay.SwitchState(last)
	if closed.Valid {
		r.ClosedAt = closed.Int64
	}
	return &r, nil
}

// Get returns the record for id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM sessions WHERE id = ? LIMIT 1`, id)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, err
	}
	return r, nil
}

// ListBySnapshot returns every session opened on snapshotID, newest first.
func (s *Store) ListBySnapshot(ctx context.Context, snapshotID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM sessions
          WHERE snapshot_id = ?
          ORDER BY created_at DESC, id`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// PurgeClosed deletes sessions closed before cutoff and reports how many went.
func (s *Store) PurgeClosed(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE closed_at IS NOT NULL AND closed_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("purged closed sessions", logging.Field{Key: "count", Value: n})
	}
	return n, nil
}
