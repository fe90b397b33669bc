// Package detect decides which freshly listed items need processing.
package detect

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dharsanguruparan/ClassBuddy/internal/model"
	"github.com/dharsanguruparan/ClassBuddy/internal/storage"
)

// Reason explains why an item was selected.
type Reason string

const (
	ReasonNew      Reason = "new"
	ReasonRevised  Reason = "revised"
	ReasonPartial  Reason = "partial"
	ReasonPending  Reason = "pending"
	ReasonRetrying Reason = "retrying"
)

// Candidate is a selected item plus its current record, if any.
type Candidate struct {
	Item   model.Item
	Record *model.ProcessingRecord
	Reason Reason
}

// Detector compares listings against the State Store.
type Detector struct {
	// MaxAttempts bounds how often a failed item is retried before it is
	// excluded until its content changes.
	MaxAttempts int
}

// Detect returns the items that need work, oldest first with ItemID as the
// tie-break. Any store error aborts detection.
func (d Detector) Detect(ctx context.Context, items []model.Item, store storage.Store) ([]model.Item, error) {
	candidates, err := d.Candidates(ctx, items, store)
	if err != nil {
		return nil, err
	}
	out := make([]model.Item, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.Item)
	}
	return out, nil
}

// Candidates is Detect that also returns the record and selection reason.
func (d Detector) Candidates(ctx context.Context, items []model.Item, store storage.Store) ([]Candidate, error) {
	var out []Candidate
	for _, item := range dedupe(items) {
		rec, err := store.Get(ctx, item.ItemID)
		if errors.Is(err, storage.ErrNotFound) {
			out = append(out, Candidate{Item: item, Reason: ReasonNew})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("detect %s: %w", item.ItemID, err)
		}
		if reason, ok := d.reason(item, rec); ok {
			out = append(out, Candidate{Item: item, Record: rec, Reason: reason})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return Less(out[i].Item, out[j].Item)
	})
	return out, nil
}

func (d Detector) reason(item model.Item, rec *model.ProcessingRecord) (Reason, bool) {
	if item.ContentHash != "" && item.ContentHash != rec.KnownHash() {
		return ReasonRevised, true
	}
	switch rec.Status {
	case model.StatusPartial:
		return ReasonPartial, true
	case model.StatusPending:
		return ReasonPending, true
	case model.StatusFailed:
		if d.MaxAttempts <= 0 || rec.AttemptCount < d.MaxAttempts {
			return ReasonRetrying, true
		}
	}
	return "", false
}

// Less orders items by PostedAt, then ItemID.
func Less(a, b model.Item) bool {
	if !a.PostedAt.Equal(b.PostedAt) {
		return a.PostedAt.Before(b.PostedAt)
	}
	return a.ItemID < b.ItemID
}

// dedupe collapses repeated ItemIDs, keeping the latest PostedAt.
func dedupe(items []model.Item) []model.Item {
	index := make(map[string]int, len(items))
	out := make([]model.Item, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ItemID]; ok {
			if item.PostedAt.After(out[i].PostedAt) {
				out[i] = item
			}
			continue
		}
		index[item.ItemID] = len(out)
		out = append(out, item)
	}
	return out
}
