// Package storage holds the State Store contract and its in-process
// implementations. The Postgres implementation lives in internal/repository.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dharsanguruparan/ClassBuddy/internal/model"
)

var (
	// ErrNotFound is returned by Get when no record exists for an item.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable wraps failures of the backing database. The pipeline
	// aborts a batch when it sees one.
	ErrUnavailable = errors.New("state store unavailable")
)

// Store persists one ProcessingRecord per item. Put is an atomic upsert
// keyed by ItemID.
type Store interface {
	Get(ctx context.Context, itemID string) (*model.ProcessingRecord, error)
	Put(ctx context.Context, rec *model.ProcessingRecord) error
	AllIncomplete(ctx context.Context) ([]model.ProcessingRecord, error)
	List(ctx context.Context, filter Filter) ([]model.ProcessingRecord, error)
	Close() error
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	CourseID string
	Statuses []model.Status
	Limit    int
}

// Attempt is one committed processing attempt kept for audit.
type Attempt struct {
	ID        string       `json:"id"`
	ItemID    string       `json:"itemId"`
	Status    model.Status `json:"status"`
	Error     string       `json:"error,omitempty"`
	Refs      int          `json:"refs"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Unavailable wraps a database failure so callers can match ErrUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func statusStrings(statuses []model.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
