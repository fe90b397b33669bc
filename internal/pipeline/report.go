package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/dharsanguruparan/ClassBuddy/internal/detect"
	"github.com/dharsanguruparan/ClassBuddy/internal/model"
)

// ItemResult is the outcome of one item in a run.
type ItemResult struct {
	ItemID   string                        `json:"itemId"`
	Title    string                        `json:"title"`
	Reason   detect.Reason                 `json:"reason,omitempty"`
	Status   model.Status                  `json:"status"`
	Category model.Category                `json:"category,omitempty"`
	Refs     map[model.ArtifactKind]string `json:"refs,omitempty"`
	Missing  []model.ArtifactKind          `json:"missing,omitempty"`
	Error    string                        `json:"error,omitempty"`
	Attempts int                           `json:"attempts"`
	// Skipped is set when a concurrent run already brought the item up to date.
	Skipped bool `json:"skipped,omitempty"`
}

// CourseError is a listing failure for one course.
type CourseError struct {
	CourseID string `json:"courseId"`
	Error    string `json:"error"`
}

// Report summarises a run for operators.
type Report struct {
	RunID             string        `json:"runId"`
	StartedAt         time.Time     `json:"startedAt"`
	FinishedAt        time.Time     `json:"finishedAt"`
	Listed            int           `json:"listed"`
	Detected          int           `json:"detected"`
	Completed         []ItemResult  `json:"completed"`
	Partial           []ItemResult  `json:"partial"`
	Failed            []ItemResult  `json:"failed"`
	PermanentlyFailed []ItemResult  `json:"permanentlyFailed"`
	Pending           []ItemResult  `json:"pending,omitempty"`
	CourseErrors      []CourseError `json:"courseErrors,omitempty"`
	Aborted           string        `json:"aborted,omitempty"`

	mu sync.Mutex
}

func (r *Report) add(res ItemResult, maxAttempts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case res.Skipped:
	case res.Status == model.StatusComplete:
		r.Completed = append(r.Completed, res)
	case res.Status == model.StatusPartial:
		r.Partial = append(r.Partial, res)
	case res.Status == model.StatusFailed && maxAttempts > 0 && res.Attempts >= maxAttempts:
		r.PermanentlyFailed = append(r.PermanentlyFailed, res)
	case res.Status == model.StatusFailed:
		r.Failed = append(r.Failed, res)
	default:
		r.Pending = append(r.Pending, res)
	}
}

func (r *Report) finish(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = now
	for _, list := range [][]ItemResult{r.Completed, r.Partial, r.Failed, r.PermanentlyFailed, r.Pending} {
		sort.Slice(list, func(i, j int) bool { return list[i].ItemID < list[j].ItemID })
	}
}

// Processed counts the items that reached a recorded outcome.
func (r *Report) Processed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Completed) + len(r.Partial) + len(r.Failed) + len(r.PermanentlyFailed) + len(r.Pending)
}
