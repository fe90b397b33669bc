// Package repository implements the State Store on Postgres.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dharsanguruparan/ClassBuddy/internal/model"
	"github.com/dharsanguruparan/ClassBuddy/internal/storage"
)

// pool abstracts the subset of pgxpool.Pool used by the repository.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var columns = []string{
	"item_id", "course_id", "kind", "title", "content_hash", "revision_hash", "status",
	"category", "required_kinds", "artifact_refs", "last_error", "last_attempt_at",
	"attempt_count", "posted_at", "updated_at",
}

const upsertRecord = `
	INSERT INTO processing_records (%s)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	ON CONFLICT (item_id) DO UPDATE SET
		course_id = EXCLUDED.course_id,
		kind = EXCLUDED.kind,
		title = EXCLUDED.title,
		content_hash = EXCLUDED.content_hash,
		revision_hash = EXCLUDED.revision_hash,
		status = EXCLUDED.status,
		category = EXCLUDED.category,
		required_kinds = EXCLUDED.required_kinds,
		artifact_refs = EXCLUDED.artifact_refs,
		last_error = EXCLUDED.last_error,
		last_attempt_at = EXCLUDED.last_attempt_at,
		attempt_count = EXCLUDED.attempt_count,
		posted_at = EXCLUDED.posted_at,
		updated_at = EXCLUDED.updated_at`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// RecordRepository wraps all SQL for processing records.
type RecordRepository struct {
	pool  pool
	close func()
}

var _ storage.Store = (*RecordRepository)(nil)

// NewRecordRepository constructs a repository. closeFn runs on Close and may
// be nil.
func NewRecordRepository(p pool, closeFn func()) *RecordRepository {
	return &RecordRepository{pool: p, close: closeFn}
}

// Put upserts rec in a single statement.
func (r *RecordRepository) Put(ctx context.Context, rec *model.ProcessingRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	required, err := json.Marshal(rec.RequiredKinds)
	if err != nil {
		return fmt.Errorf("marshal required kinds: %w", err)
	}
	refs := rec.ArtifactRefs
	if refs == nil {
		refs = map[model.ArtifactKind]string{}
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("marshal artifact refs: %w", err)
	}
	_, err = r.pool.Exec(ctx, fmt.Sprintf(upsertRecord, strings.Join(columns, ", ")),
		rec.ItemID, rec.CourseID, string(rec.Kind), rec.Title, rec.ContentHash, rec.RevisionHash,
		string(rec.Status), string(rec.Category), required, refsJSON, rec.LastError,
		rec.LastAttemptAt.UTC(), rec.AttemptCount, rec.PostedAt.UTC(), rec.UpdatedAt,
	)
	if err != nil {
		return storage.Unavailable("upsert record", err)
	}
	return nil
}

// Get returns a record by item id.
func (r *RecordRepository) Get(ctx context.Context, itemID string) (*model.ProcessingRecord, error) {
	query, args, err := psql.Select(columns...).
		From("processing_records").
		Where(sq.Eq{"item_id": itemID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rec, err := scan(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.Unavailable("select record", err)
	}
	return rec, nil
}

// AllIncomplete returns pending and partial records ordered by item id.
func (r *RecordRepository) AllIncomplete(ctx context.Context) ([]model.ProcessingRecord, error) {
	return r.List(ctx, storage.Filter{Statuses: []model.Status{model.StatusPending, model.StatusPartial}})
}

// List returns records matching filter ordered by item id.
func (r *RecordRepository) List(ctx context.Context, filter storage.Filter) ([]model.ProcessingRecord, error) {
	builder := psql.Select(columns...).From("processing_records").OrderBy("item_id")
	if filter.CourseID != "" {
		builder = builder.Where(sq.Eq{"course_id": filter.CourseID})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		builder = builder.Where(sq.Eq{"status": statuses})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storage.Unavailable("list records", err)
	}
	defer rows.Close()
	var out []model.ProcessingRecord
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, storage.Unavailable("scan record", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("iterate records", err)
	}
	return out, nil
}

// Close releases the underlying pool.
func (r *RecordRepository) Close() error {
	if r.close != nil {
		r.close()
	}
	return nil
}

func scan(row pgx.Row) (*model.ProcessingRecord, error) {
	var (
		rec                    model.ProcessingRecord
		kind, status, category string
		required, refs         []byte
	)
	if err := row.Scan(&rec.ItemID, &rec.CourseID, &kind, &rec.Title, &rec.ContentHash, &rec.RevisionHash,
		&status, &category, &required, &refs, &rec.LastError, &rec.LastAttemptAt, &rec.AttemptCount,
		&rec.PostedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Kind = model.ItemKind(kind)
	rec.Status = model.Status(status)
	rec.Category = model.Category(category)
	if len(required) > 0 {
		if err := json.Unmarshal(required, &rec.RequiredKinds); err != nil {
			return nil, fmt.Errorf("decode required kinds: %w", err)
		}
	}
	rec.ArtifactRefs = make(map[model.ArtifactKind]string)
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &rec.ArtifactRefs); err != nil {
			return nil, fmt.Errorf("decode artifact refs: %w", err)
		}
	}
	return &rec, nil
}
