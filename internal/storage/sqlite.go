package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/dharsanguruparan/ClassBuddy/internal/model"
)

// SQLiteStore implements Store on a single SQLite file. Every Put runs in
// one transaction that upserts the record and appends an attempt row when
// the status or attempt count changed.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

var recordColumns = []string{
	"item_id", "course_id", "kind", "title", "content_hash", "revision_hash", "status",
	"category", "required_kinds", "artifact_refs", "last_error", "last_attempt_at",
	"attempt_count", "posted_at", "updated_at",
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single writer connection keeps upserts serialized.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS processing_records (
		item_id         TEXT PRIMARY KEY,
		course_id       TEXT NOT NULL,
		kind            TEXT NOT NULL,
		title           TEXT NOT NULL DEFAULT '',
		content_hash    TEXT NOT NULL DEFAULT '',
		revision_hash   TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		category        TEXT NOT NULL DEFAULT '',
		required_kinds  TEXT NOT NULL DEFAULT '[]',
		artifact_refs   TEXT NOT NULL DEFAULT '{}',
		last_error      TEXT NOT NULL DEFAULT '',
		last_attempt_at TEXT NOT NULL DEFAULT '',
		attempt_count   INTEGER NOT NULL DEFAULT 0,
		posted_at       TEXT NOT NULL DEFAULT '',
		updated_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_status ON processing_records(status);
	CREATE INDEX IF NOT EXISTS idx_records_course ON processing_records(course_id);

	CREATE TABLE IF NOT EXISTS processing_attempts (
		id         TEXT PRIMARY KEY,
		item_id    TEXT NOT NULL,
		status     TEXT NOT NULL,
		error      TEXT NOT NULL DEFAULT '',
		refs       INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_item ON processing_attempts(item_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put upserts rec.
func (s *SQLiteStore) Put(ctx context.Context, rec *model.ProcessingRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	required, err := json.Marshal(rec.RequiredKinds)
	if err != nil {
		return fmt.Errorf("marshal required kinds: %w", err)
	}
	refs, err := json.Marshal(nonNilRefs(rec.ArtifactRefs))
	if err != nil {
		return fmt.Errorf("marshal artifact refs: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Unavailable("begin tx", err)
	}
	defer tx.Rollback()

	var (
		prevStatus   string
		prevAttempts int
	)
	err = tx.QueryRowContext(ctx,
		`SELECT status, attempt_count FROM processing_records WHERE item_id = ?`, rec.ItemID,
	).Scan(&prevStatus, &prevAttempts)
	changed := errors.Is(err, sql.ErrNoRows) || prevStatus != string(rec.Status) || prevAttempts != rec.AttemptCount
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Unavailable("select previous record", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO processing_records (`+strings.Join(recordColumns, ", ")+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			course_id = excluded.course_id,
			kind = excluded.kind,
			title = excluded.title,
			content_hash = excluded.content_hash,
			revision_hash = excluded.revision_hash,
			status = excluded.status,
			category = excluded.category,
			required_kinds = excluded.required_kinds,
			artifact_refs = excluded.artifact_refs,
			last_error = excluded.last_error,
			last_attempt_at = excluded.last_attempt_at,
			attempt_count = excluded.attempt_count,
			posted_at = excluded.posted_at,
			updated_at = excluded.updated_at`,
		rec.ItemID, rec.CourseID, string(rec.Kind), rec.Title, rec.ContentHash, rec.RevisionHash,
		string(rec.Status), string(rec.Category), string(required), string(refs), rec.LastError,
		formatTime(rec.LastAttemptAt), rec.AttemptCount, formatTime(rec.PostedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return Unavailable("upsert record", err)
	}

	if changed && rec.Status != model.StatusPending {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO processing_attempts (id, item_id, status, error, refs, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			ulid.Make().String(), rec.ItemID, string(rec.Status), rec.LastError, len(rec.ArtifactRefs), formatTime(rec.UpdatedAt),
		)
		if err != nil {
			return Unavailable("insert attempt", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Unavailable("commit", err)
	}
	return nil
}

// Get returns the record for itemID or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, itemID string) (*model.ProcessingRecord, error) {
	query, args, err := sq.Select(recordColumns...).
		From("processing_records").
		Where(sq.Eq{"item_id": itemID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, Unavailable("select record", err)
	}
	return rec, nil
}

// AllIncomplete returns pending and partial records ordered by ItemID.
func (s *SQLiteStore) AllIncomplete(ctx context.Context) ([]model.ProcessingRecord, error) {
	return s.List(ctx, Filter{Statuses: []model.Status{model.StatusPending, model.StatusPartial}})
}

// List returns records matching filter ordered by ItemID.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]model.ProcessingRecord, error) {
	builder := sq.Select(recordColumns...).From("processing_records").OrderBy("item_id")
	if filter.CourseID != "" {
		builder = builder.Where(sq.Eq{"course_id": filter.CourseID})
	}
	if len(filter.Statuses) > 0 {
		builder = builder.Where(sq.Eq{"status": statusStrings(filter.Statuses)})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Unavailable("list records", err)
	}
	defer rows.Close()
	var out []model.ProcessingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, Unavailable("scan record", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, Unavailable("iterate records", err)
	}
	return out, nil
}

// History returns the committed attempts for an item, oldest first.
func (s *SQLiteStore) History(ctx context.Context, itemID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, status, error, refs, created_at FROM processing_attempts WHERE item_id = ? ORDER BY id`, itemID)
	if err != nil {
		return nil, Unavailable("list attempts", err)
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		var (
			a       Attempt
			status  string
			created string
		)
		if err := rows.Scan(&a.ID, &a.ItemID, &status, &a.Error, &a.Refs, &created); err != nil {
			return nil, Unavailable("scan attempt", err)
		}
		a.Status = model.Status(status)
		a.CreatedAt = parseTime(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.ProcessingRecord, error) {
	var (
		rec                              model.ProcessingRecord
		kind, status, category           string
		required, refs                   string
		lastAttempt, postedAt, updatedAt string
	)
	if err := row.Scan(&rec.ItemID, &rec.CourseID, &kind, &rec.Title, &rec.ContentHash, &rec.RevisionHash,
		&status, &category, &required, &refs, &rec.LastError, &lastAttempt, &rec.AttemptCount,
		&postedAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.Kind = model.ItemKind(kind)
	rec.Status = model.Status(status)
	rec.Category = model.Category(category)
	if err := json.Unmarshal([]byte(required), &rec.RequiredKinds); err != nil {
		return nil, fmt.Errorf("decode required kinds: %w", err)
	}
	rec.ArtifactRefs = make(map[model.ArtifactKind]string)
	if err := json.Unmarshal([]byte(refs), &rec.ArtifactRefs); err != nil {
		return nil, fmt.Errorf("decode artifact refs: %w", err)
	}
	rec.LastAttemptAt = parseTime(lastAttempt)
	rec.PostedAt = parseTime(postedAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

func nonNilRefs(refs map[model.ArtifactKind]string) map[model.ArtifactKind]string {
	if refs == nil {
		return map[model.ArtifactKind]string{}
	}
	return refs
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
