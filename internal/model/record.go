package model

import (
	"time"
)

// Status describes where an item is in its processing lifecycle.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPartial  Status = "partial"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPartial, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// ProcessingRecord is the durable state kept per item. Records are created on
// first sighting and never deleted.
type ProcessingRecord struct {
	ItemID   string   `json:"itemId"`
	CourseID string   `json:"courseId"`
	Kind     ItemKind `json:"kind"`
	Title    string   `json:"title"`
	// ContentHash is the hash at the last complete processing.
	ContentHash string `json:"contentHash,omitempty"`
	// RevisionHash is the hash the current ArtifactRefs were produced from.
	RevisionHash  string                  `json:"revisionHash,omitempty"`
	Status        Status                  `json:"status"`
	Category      Category                `json:"category,omitempty"`
	RequiredKinds []ArtifactKind          `json:"requiredKinds,omitempty"`
	ArtifactRefs  map[ArtifactKind]string `json:"artifactRefs"`
	LastError     string                  `json:"lastError,omitempty"`
	LastAttemptAt time.Time               `json:"lastAttemptAt"`
	AttemptCount  int                     `json:"attemptCount"`
	PostedAt      time.Time               `json:"postedAt"`
	UpdatedAt     time.Time               `json:"updatedAt"`
}

// NewRecord starts a pending record for a freshly sighted item.
func NewRecord(item Item) *ProcessingRecord {
	return &ProcessingRecord{
		ItemID:       item.ItemID,
		CourseID:     item.CourseID,
		Kind:         item.Kind,
		Title:        item.Title,
		RevisionHash: item.ContentHash,
		Status:       StatusPending,
		ArtifactRefs: make(map[ArtifactKind]string),
		PostedAt:     item.PostedAt,
	}
}

// Clone returns a deep copy so callers never share the refs map.
func (r *ProcessingRecord) Clone() *ProcessingRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.RequiredKinds = append([]ArtifactKind(nil), r.RequiredKinds...)
	out.ArtifactRefs = make(map[ArtifactKind]string, len(r.ArtifactRefs))
	for k, v := range r.ArtifactRefs {
		out.ArtifactRefs[k] = v
	}
	return &out
}

// KnownHash is the most recent hash the record has seen content for.
func (r *ProcessingRecord) KnownHash() string {
	if r.RevisionHash != "" {
		return r.RevisionHash
	}
	return r.ContentHash
}

// Missing lists the required kinds that have no published artifact yet.
func (r *ProcessingRecord) Missing() []ArtifactKind {
	var out []ArtifactKind
	for _, kind := range r.RequiredKinds {
		if r.ArtifactRefs[kind] == "" {
			out = append(out, kind)
		}
	}
	return out
}

// Recompute derives the status from the required kinds and the refs present:
// complete when nothing is missing, partial when some kinds succeeded and
// failed otherwise. ContentHash only advances on completion.
func (r *ProcessingRecord) Recompute() Status {
	missing := len(r.Missing())
	switch {
	case missing == 0:
		r.Status = StatusComplete
		r.ContentHash = r.RevisionHash
		r.LastError = ""
	case missing < len(r.RequiredKinds) && r.hasRequiredRef():
		r.Status = StatusPartial
	default:
		r.Status = StatusFailed
	}
	return r.Status
}

func (r *ProcessingRecord) hasRequiredRef() bool {
	for _, kind := range r.RequiredKinds {
		if r.ArtifactRefs[kind] != "" {
			return true
		}
	}
	return false
}

// Incomplete reports whether the record still needs work.
func (r *ProcessingRecord) Incomplete() bool {
	return r.Status == StatusPending || r.Status == StatusPartial
}
