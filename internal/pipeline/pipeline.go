// Package pipeline drives detected items through extraction, classification,
// per-kind generation, publishing and the State Store commit.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/ClassBuddy/internal/classify"
	"github.com/dharsanguruparan/ClassBuddy/internal/detect"
	"github.com/dharsanguruparan/ClassBuddy/internal/generate"
	"github.com/dharsanguruparan/ClassBuddy/internal/logging"
	"github.com/dharsanguruparan/ClassBuddy/internal/model"
	"github.com/dharsanguruparan/ClassBuddy/internal/processing"
	"github.com/dharsanguruparan/ClassBuddy/internal/retry"
	"github.com/dharsanguruparan/ClassBuddy/internal/storage"
)

// Connector lists classroom items.
type Connector interface {
	ListCourses(ctx context.Context) ([]model.Course, error)
	ListMaterials(ctx context.Context, courseID string) ([]model.Item, error)
	ListAnnouncements(ctx context.Context, courseID string) ([]model.Item, error)
}

// Extractor turns a raw reference into text. Failures are *model.ExtractError.
type Extractor interface {
	Extract(ctx context.Context, raw model.RawRef) (string, error)
}

// Publisher uploads an artifact and returns its remote id. Failures are
// *model.PublishError.
type Publisher interface {
	Publish(ctx context.Context, artifact model.Artifact, destination string) (string, error)
}

// Observer receives pipeline events. *metrics.Recorder implements it.
type Observer interface {
	RunStarted()
	ItemDone(status string)
	TaskDone(kind, outcome string)
	Published(kind string, d time.Duration)
	StoreError(op string)
}

// Deps are the collaborators of an Orchestrator. Connector is only needed
// by Run.
type Deps struct {
	Connector  Connector
	Store      storage.Store
	Extractor  Extractor
	Classifier classify.Classifier
	Generator  generate.Generator
	Publisher  Publisher
}

// Options tune an Orchestrator. Zero values fall back to defaults.
type Options struct {
	MaxAttempts   int
	Workers       int
	FanOut        int
	Retry         retry.Config
	CommitTimeout time.Duration
	// Destination picks the publish folder for an item. Defaults to
	// "courses/<courseID>".
	Destination func(model.Item) string
	Observer    Observer
	Logger      *slog.Logger
	Now         func() time.Time
}

// Scope selects the courses a run lists.
type Scope struct {
	CourseIDs  []string
	AllCourses bool
}

// Orchestrator runs the per-item pipeline.
type Orchestrator struct {
	deps     Deps
	opts     Options
	detector detect.Detector
	locks    *keyedMutex
	logger   *slog.Logger

	mu   sync.Mutex
	last *Report
}

// New builds an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.FanOut <= 0 {
		opts.FanOut = 4
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = retry.Default()
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = 10 * time.Second
	}
	if opts.Destination == nil {
		opts.Destination = func(item model.Item) string { return "courses/" + item.CourseID }
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		deps:     deps,
		opts:     opts,
		detector: detect.Detector{MaxAttempts: opts.MaxAttempts},
		locks:    newKeyedMutex(),
		logger:   logging.OrDiscard(opts.Logger).With("component", "pipeline"),
	}
}

// LastReport returns the report of the most recent finished run, or nil.
func (o *Orchestrator) LastReport() *Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Run lists the scoped courses and processes every detected item. Listing
// failures are scoped to their course. The only error returned is a State
// Store failure, which aborts the batch; the partial report is still
// returned.
func (o *Orchestrator) Run(ctx context.Context, scope Scope) (*Report, error) {
	if o.deps.Connector == nil {
		return nil, errors.New("pipeline: no connector configured")
	}
	report := o.newReport()
	items := o.listScope(ctx, scope, report)
	err := o.process(ctx, items, report)
	return o.done(report), err
}

// Detect lists the scoped courses and returns the items that need work
// without processing them. Queue mode enqueues the result.
func (o *Orchestrator) Detect(ctx context.Context, scope Scope) ([]detect.Candidate, []CourseError, error) {
	if o.deps.Connector == nil {
		return nil, nil, errors.New("pipeline: no connector configured")
	}
	report := &Report{}
	items := o.listScope(ctx, scope, report)
	o.fingerprint(ctx, items)
	candidates, err := o.detector.Candidates(ctx, items, o.deps.Store)
	if err != nil {
		return nil, report.CourseErrors, fmt.Errorf("detect: %w", err)
	}
	return candidates, report.CourseErrors, nil
}

func (o *Orchestrator) listScope(ctx context.Context, scope Scope, report *Report) []model.Item {
	var items []model.Item
	for _, course := range o.courses(ctx, scope, report) {
		listed, err := o.list(ctx, course)
		if err != nil {
			o.logger.Warn("listing failed", "course", course.ID, "err", err)
			report.CourseErrors = append(report.CourseErrors, CourseError{CourseID: course.ID, Error: err.Error()})
			continue
		}
		items = append(items, listed...)
	}
	return items
}

// ProcessItems runs detection over items and processes the selection.
func (o *Orchestrator) ProcessItems(ctx context.Context, items []model.Item) (*Report, error) {
	report := o.newReport()
	err := o.process(ctx, items, report)
	return o.done(report), err
}

// ProcessItem detects and processes a single item. A nil error with
// Skipped set means the item needed no work.
func (o *Orchestrator) ProcessItem(ctx context.Context, item model.Item) (ItemResult, error) {
	items := []model.Item{item}
	texts := o.fingerprint(ctx, items)
	return o.processItem(ctx, items[0], texts[item.ItemID])
}

// extraction is a text extracted ahead of detection.
type extraction struct {
	text string
	err  error
}

// fingerprint derives a ContentHash from the extracted text for items the
// connector listed without one, so edits to them are detected as
// revisions. The extractions are returned for reuse by the attempt.
func (o *Orchestrator) fingerprint(ctx context.Context, items []model.Item) map[string]*extraction {
	texts := make(map[string]*extraction)
	if o.deps.Extractor == nil {
		return texts
	}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for i := range items {
		if items[i].ContentHash != "" {
			continue
		}
		item := &items[i]
		g.Go(func() error {
			text, err := retry.DoValue(ctx, o.opts.Retry, func(ctx context.Context) (string, error) {
				return o.deps.Extractor.Extract(ctx, item.RawRef)
			})
			if err == nil {
				item.ContentHash = hashText(text)
			}
			mu.Lock()
			texts[item.ItemID] = &extraction{text: text, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return texts
}

func (o *Orchestrator) newReport() *Report {
	o.opts.Observer.RunStarted()
	return &Report{RunID: uuid.NewString(), StartedAt: o.opts.Now()}
}

func (o *Orchestrator) done(report *Report) *Report {
	report.finish(o.opts.Now())
	o.mu.Lock()
	o.last = report
	o.mu.Unlock()
	o.logger.Info("run finished",
		"run", report.RunID,
		"listed", report.Listed,
		"detected", report.Detected,
		"completed", len(report.Completed),
		"partial", len(report.Partial),
		"failed", len(report.Failed),
		"permanently_failed", len(report.PermanentlyFailed),
	)
	return report
}

// courses resolves the scope. Explicit ids only use the course listing for
// display names, so its failure is not fatal to them.
func (o *Orchestrator) courses(ctx context.Context, scope Scope, report *Report) []model.Course {
	all := scope.AllCourses || len(scope.CourseIDs) == 0
	listed, err := retry.DoValue(ctx, o.opts.Retry, o.deps.Connector.ListCourses)
	if err != nil {
		o.logger.Warn("listing courses failed", "err", err)
		if all {
			report.CourseErrors = append(report.CourseErrors, CourseError{CourseID: "*", Error: err.Error()})
			return nil
		}
	}
	if all {
		return listed
	}
	names := make(map[string]string, len(listed))
	for _, c := range listed {
		names[c.ID] = c.Name
	}
	out := make([]model.Course, 0, len(scope.CourseIDs))
	for _, id := range scope.CourseIDs {
		out = append(out, model.Course{ID: id, Name: names[id]})
	}
	return out
}

func (o *Orchestrator) list(ctx context.Context, course model.Course) ([]model.Item, error) {
	cfg := o.opts.Retry
	materials, err := retry.DoValue(ctx, cfg, func(ctx context.Context) ([]model.Item, error) {
		return o.deps.Connector.ListMaterials(ctx, course.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("materials: %w", err)
	}
	announcements, err := retry.DoValue(ctx, cfg, func(ctx context.Context) ([]model.Item, error) {
		return o.deps.Connector.ListAnnouncements(ctx, course.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("announcements: %w", err)
	}
	items := append(materials, announcements...)
	for i := range items {
		if items[i].CourseName == "" {
			items[i].CourseName = course.Name
		}
	}
	return items, nil
}

// process detects candidates and runs them on the worker pool in
// chronological order. A store failure cancels the remaining work.
func (o *Orchestrator) process(ctx context.Context, items []model.Item, report *Report) error {
	report.Listed += len(items)
	items = append([]model.Item(nil), items...)
	texts := o.fingerprint(ctx, items)
	candidates, err := o.detector.Candidates(ctx, items, o.deps.Store)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.opts.Observer.StoreError("detect")
		report.Aborted = err.Error()
		return fmt.Errorf("run %s aborted: %w", report.RunID, err)
	}
	report.Detected += len(candidates)
	if len(candidates) == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	var abortOnce sync.Once
	var abortErr error

	pool := processing.New(o.opts.Workers, func(ctx context.Context, job processing.Job) {
		res, err := o.processItem(ctx, job.Item, texts[job.Item.ItemID])
		if err != nil {
			abortOnce.Do(func() {
				abortErr = err
				cancel(err)
			})
		}
		if res.ItemID != "" {
			report.add(res, o.opts.MaxAttempts)
		}
	}, o.logger)
	pool.Start(runCtx)
	for _, c := range candidates {
		if err := pool.Submit(runCtx, processing.Job{Item: c.Item}); err != nil {
			break
		}
	}
	pool.Close()

	if abortErr != nil {
		report.Aborted = abortErr.Error()
		return fmt.Errorf("run %s aborted: %w", report.RunID, abortErr)
	}
	return nil
}

// processItem runs one item under its key lock. The returned error is a
// State Store failure; every other failure is folded into the record.
func (o *Orchestrator) processItem(ctx context.Context, item model.Item, pre *extraction) (ItemResult, error) {
	unlock := o.locks.Lock(item.ItemID)
	defer unlock()
	skipped := ItemResult{ItemID: item.ItemID, Title: item.Title, Skipped: true}
	if ctx.Err() != nil {
		return skipped, nil
	}

	// Re-detect under the lock so a concurrent run's commit is seen.
	candidates, err := o.detector.Candidates(ctx, []model.Item{item}, o.deps.Store)
	if err != nil {
		if ctx.Err() != nil {
			return skipped, nil
		}
		o.opts.Observer.StoreError("get")
		return skipped, err
	}
	if len(candidates) == 0 {
		return skipped, nil
	}
	cand := candidates[0]
	log := o.logger.With("item", item.ItemID, "reason", cand.Reason)

	rec := cand.Record
	fresh := rec == nil
	if fresh {
		rec = model.NewRecord(item)
	} else if item.ContentHash != "" && item.ContentHash != rec.RevisionHash {
		resetRevision(rec, item.ContentHash)
		fresh = true
	}
	if fresh {
		// Mark the attempt as started so an interruption leaves a pending record.
		if err := o.put(ctx, rec, "put"); err != nil {
			if ctx.Err() != nil {
				return skipped, nil
			}
			return skipped, err
		}
	}
	rec.CourseID, rec.Kind, rec.Title, rec.PostedAt = item.CourseID, item.Kind, item.Title, item.PostedAt

	outcome := o.run(ctx, log, item, rec, pre)

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CommitTimeout)
	defer cancel()
	o.finalize(ctx, rec, outcome)
	if err := o.put(commitCtx, rec, "commit"); err != nil {
		return o.result(cand, rec), err
	}
	o.opts.Observer.ItemDone(string(rec.Status))
	log.Info("item committed", "status", rec.Status, "refs", len(rec.ArtifactRefs), "missing", len(rec.Missing()))
	return o.result(cand, rec), outcome.storeErr
}

// outcome collects what happened during one attempt.
type outcome struct {
	errs     map[string]error
	storeErr error
}

func (oc *outcome) fail(key string, err error) {
	if oc.errs == nil {
		oc.errs = make(map[string]error)
	}
	oc.errs[key] = err
}

// run performs extraction, classification and the fan-out. rec is updated
// in place; refs are checkpointed as they are published.
func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, item model.Item, rec *model.ProcessingRecord, pre *extraction) *outcome {
	oc := &outcome{}
	var text string
	var err error
	if pre != nil {
		text, err = pre.text, pre.err
	} else {
		text, err = retry.DoValue(ctx, o.opts.Retry, func(ctx context.Context) (string, error) {
			return o.deps.Extractor.Extract(ctx, item.RawRef)
		})
	}
	if err != nil {
		log.Warn("extraction failed", "err", err)
		oc.fail("extract", err)
		return oc
	}
	if item.ContentHash == "" {
		derived := hashText(text)
		if rec.RevisionHash != "" && rec.RevisionHash != derived {
			resetRevision(rec, derived)
		}
		rec.RevisionHash = derived
	}

	taskCtx := map[string]string{generate.CtxCourseName: item.CourseName}
	required := model.MaterialKinds
	if item.Kind == model.KindAnnouncement {
		if rec.Category == "" {
			res, err := classify.Resolve(o.deps.Classifier.Classify(ctx, text))
			if err != nil {
				log.Warn("classification failed", "err", err)
				oc.fail("classify", err)
				return oc
			}
			rec.Category = res.Category
			taskCtx[generate.CtxKeywords] = strings.Join(res.Keywords, ", ")
		} else if h, ok := o.deps.Classifier.(keywordHinter); ok {
			// Resumed attempt: recover the hint without classifying again.
			taskCtx[generate.CtxKeywords] = strings.Join(h.Keywords(rec.Category, text), ", ")
		}
		taskCtx[generate.CtxCategory] = string(rec.Category)
		required = model.KindsForCategory(rec.Category)
	}
	rec.RequiredKinds = model.SortKinds(required)

	missing := rec.Missing()
	if len(missing) == 0 {
		return oc
	}
	log.Debug("fanning out", "kinds", missing)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(o.opts.FanOut)
	for _, kind := range missing {
		task := model.GenerationTask{Item: item, Kind: kind, SourceText: text, Context: taskCtx}
		g.Go(func() error {
			ref, err := o.produce(ctx, task)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("artifact failed", "kind", task.Kind, "err", err)
				o.opts.Observer.TaskDone(string(task.Kind), "failed")
				oc.fail(string(task.Kind), err)
				return nil
			}
			o.opts.Observer.TaskDone(string(task.Kind), "ok")
			rec.ArtifactRefs[task.Kind] = ref
			if err := o.checkpoint(ctx, rec); err != nil && oc.storeErr == nil {
				oc.storeErr = err
			}
			return nil
		})
	}
	_ = g.Wait()
	return oc
}

// produce generates and publishes one artifact kind.
func (o *Orchestrator) produce(ctx context.Context, task model.GenerationTask) (string, error) {
	artifact, err := retry.DoValue(ctx, o.opts.Retry, func(ctx context.Context) (model.Artifact, error) {
		return o.deps.Generator.Generate(ctx, task)
	})
	if err != nil {
		return "", err
	}
	destination := o.opts.Destination(task.Item)
	start := time.Now()
	ref, err := retry.DoValue(ctx, o.opts.Retry, func(ctx context.Context) (string, error) {
		return o.deps.Publisher.Publish(ctx, artifact, destination)
	})
	if err != nil {
		return "", err
	}
	o.opts.Observer.Published(string(task.Kind), time.Since(start))
	return ref, nil
}

// checkpoint persists the refs gathered so far. It runs detached from
// cancellation so a published kind is never forgotten.
func (o *Orchestrator) checkpoint(ctx context.Context, rec *model.ProcessingRecord) error {
	snapshot := rec.Clone()
	snapshot.Recompute()
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CommitTimeout)
	defer cancel()
	return o.put(cctx, snapshot, "checkpoint")
}

// finalize folds the attempt outcome into rec. Cancelled attempts do not
// count against the attempt limit.
func (o *Orchestrator) finalize(ctx context.Context, rec *model.ProcessingRecord, oc *outcome) {
	rec.LastAttemptAt = o.opts.Now()
	cancelled := ctx.Err() != nil
	if !cancelled {
		rec.AttemptCount++
	}
	if len(rec.RequiredKinds) == 0 && oc.errs != nil {
		// Failed before the required set was known.
		rec.Status = model.StatusFailed
	} else {
		rec.Recompute()
	}
	if cancelled && rec.Status == model.StatusFailed {
		rec.Status = model.StatusPending
	}
	// A partial item that can no longer be extracted or classified is
	// bounded like any other failure; its refs are kept.
	if !cancelled && rec.Status == model.StatusPartial && rec.AttemptCount >= o.opts.MaxAttempts &&
		(oc.errs["extract"] != nil || oc.errs["classify"] != nil) {
		rec.Status = model.StatusFailed
	}
	if rec.Status != model.StatusComplete {
		rec.LastError = joinErrors(oc.errs)
		if cancelled && rec.LastError == "" {
			rec.LastError = "interrupted: " + ctx.Err().Error()
		}
	}
}

func (o *Orchestrator) put(ctx context.Context, rec *model.ProcessingRecord, op string) error {
	rec.UpdatedAt = o.opts.Now()
	if err := o.deps.Store.Put(ctx, rec); err != nil {
		o.opts.Observer.StoreError(op)
		return fmt.Errorf("%s %s: %w", op, rec.ItemID, err)
	}
	return nil
}

func (o *Orchestrator) result(cand detect.Candidate, rec *model.ProcessingRecord) ItemResult {
	refs := make(map[model.ArtifactKind]string, len(rec.ArtifactRefs))
	for k, v := range rec.ArtifactRefs {
		refs[k] = v
	}
	return ItemResult{
		ItemID:   rec.ItemID,
		Title:    cand.Item.Title,
		Reason:   cand.Reason,
		Status:   rec.Status,
		Category: rec.Category,
		Refs:     refs,
		Missing:  rec.Missing(),
		Error:    rec.LastError,
		Attempts: rec.AttemptCount,
	}
}

// resetRevision discards everything derived from the previous revision.
func resetRevision(rec *model.ProcessingRecord, hash string) {
	rec.RevisionHash = hash
	rec.ArtifactRefs = make(map[model.ArtifactKind]string)
	rec.AttemptCount = 0
	rec.Category = ""
	rec.RequiredKinds = nil
	rec.LastError = ""
	rec.Status = model.StatusPending
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func joinErrors(errs map[string]error) string {
	if len(errs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, errs[k]))
	}
	return strings.Join(parts, "; ")
}

// keywordHinter is implemented by classifiers that can name the keywords
// supporting a known category.
type keywordHinter interface {
	Keywords(category model.Category, text string) []string
}

type nopObserver struct{}

func (nopObserver) RunStarted()                     {}
func (nopObserver) ItemDone(string)                 {}
func (nopObserver) TaskDone(string, string)         {}
func (nopObserver) Published(string, time.Duration) {}
func (nopObserver) StoreError(string)               {}
