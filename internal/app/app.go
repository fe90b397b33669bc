// Package app assembles the pipeline and its collaborators from
// configuration. Every binary goes through it so the CLI, the status server
// and the queue worker share one wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dharsanguruparan/ClassBuddy/internal/blobstore"
	"github.com/dharsanguruparan/ClassBuddy/internal/classify"
	"github.com/dharsanguruparan/ClassBuddy/internal/classroom"
	"github.com/dharsanguruparan/ClassBuddy/internal/config"
	"github.com/dharsanguruparan/ClassBuddy/internal/database"
	"github.com/dharsanguruparan/ClassBuddy/internal/extract"
	"github.com/dharsanguruparan/ClassBuddy/internal/generate"
	"github.com/dharsanguruparan/ClassBuddy/internal/llm"
	"github.com/dharsanguruparan/ClassBuddy/internal/logging"
	"github.com/dharsanguruparan/ClassBuddy/internal/metrics"
	"github.com/dharsanguruparan/ClassBuddy/internal/model"
	"github.com/dharsanguruparan/ClassBuddy/internal/pipeline"
	"github.com/dharsanguruparan/ClassBuddy/internal/repository"
	"github.com/dharsanguruparan/ClassBuddy/internal/retry"
	"github.com/dharsanguruparan/ClassBuddy/internal/s3storage"
	"github.com/dharsanguruparan/ClassBuddy/internal/storage"
	"github.com/dharsanguruparan/ClassBuddy/internal/tts"
)

// App holds the long-lived components of a ClassBuddy process.
type App struct {
	Config    *config.Config
	Store     storage.Store
	Classroom *classroom.Client
	Metrics   *metrics.Recorder
	Pipeline  *pipeline.Orchestrator
	Logger    *slog.Logger
}

// OpenStore opens the configured State Store. Postgres schemas are created
// on first use.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "", "sqlite":
		return storage.NewSQLiteStore(cfg.SQLitePath)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("postgres store requires DATABASE_URL")
		}
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repository.NewRecordRepository(pool, pool.Close), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// NewPublisher builds the configured artifact publisher and the function
// choosing each item's destination.
func NewPublisher(ctx context.Context, cfg config.PublishConfig, client *classroom.Client) (pipeline.Publisher, func(model.Item) string, error) {
	byCourse := func(item model.Item) string { return "courses/" + item.CourseID }
	switch cfg.Driver {
	case "", "filesystem":
		fs, err := blobstore.NewFilesystemStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return fs, byCourse, nil
	case "s3", "minio":
		s3, err := s3storage.New(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("init object storage: %w", err)
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure bucket: %w", err)
		}
		return s3, byCourse, nil
	case "drive":
		if cfg.DriveFolder == "" {
			return nil, nil, errors.New("drive publisher requires a folder id")
		}
		if client == nil {
			return nil, nil, errors.New("drive publisher requires a classroom client")
		}
		folder := cfg.DriveFolder
		return classroom.NewDrivePublisher(client), func(model.Item) string { return folder }, nil
	default:
		return nil, nil, fmt.Errorf("unknown publish driver %q", cfg.Driver)
	}
}

// NewClassifier returns the keyword classifier, or the LLM classifier with
// keyword fallback when cfg asks for it.
func NewClassifier(name string, completer llm.Completer) (classify.Classifier, error) {
	keyword := classify.NewKeyword()
	switch name {
	case "", "keyword":
		return keyword, nil
	case "llm":
		if completer == nil {
			return nil, errors.New("llm classifier requires a completer")
		}
		return classify.NewLLM(completer, keyword), nil
	default:
		return nil, fmt.Errorf("unknown classifier %q", name)
	}
}

// RetryConfig maps pipeline settings onto the retry policy.
func RetryConfig(cfg config.PipelineConfig) retry.Config {
	rc := retry.Default()
	rc.Attempts = cfg.RetryAttempts
	rc.BaseDelay = cfg.RetryDelay
	rc.Timeout = cfg.CallTimeout
	return rc
}

// Open connects the State Store and the Classroom client only. Its
// Pipeline can list, detect and requeue but has no generation stack, so
// operator commands work without LLM credentials.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger = logging.OrDiscard(logger)
	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	since := time.Duration(cfg.Courses.SinceHours) * time.Hour
	client := classroom.New(cfg.Google, since, logger)
	a := &App{
		Config:    cfg,
		Store:     store,
		Classroom: client,
		Logger:    logger,
	}
	// Extraction lets detection fingerprint items listed without a hash.
	a.Pipeline = pipeline.New(pipeline.Deps{
		Connector: client,
		Store:     store,
		Extractor: extract.New(client, logger),
	}, a.options(nil, nil))
	return a, nil
}

// New wires every component. reg may be nil, in which case metrics go to a
// private registry.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry) (*App, error) {
	recorder, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	a, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.build(ctx, recorder); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, recorder *metrics.Recorder) error {
	cfg := a.Config
	completer, err := llm.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("init llm: %w", err)
	}
	classifier, err := NewClassifier(cfg.Pipeline.Classifier, completer)
	if err != nil {
		return err
	}
	publisher, destination, err := NewPublisher(ctx, cfg.Publish, a.Classroom)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	a.Metrics = recorder
	a.Pipeline = pipeline.New(pipeline.Deps{
		Connector:  a.Classroom,
		Store:      a.Store,
		Extractor:  extract.New(a.Classroom, a.Logger),
		Classifier: classifier,
		Generator:  generate.Default(completer, tts.New(cfg.TTS)),
		Publisher:  publisher,
	}, a.options(destination, recorder))
	return nil
}

func (a *App) options(destination func(model.Item) string, observer pipeline.Observer) pipeline.Options {
	p := a.Config.Pipeline
	opts := pipeline.Options{
		MaxAttempts:   p.MaxAttempts,
		Workers:       p.Workers,
		FanOut:        p.FanOut,
		Retry:         RetryConfig(p),
		CommitTimeout: p.CommitTimeout,
		Destination:   destination,
		Logger:        a.Logger,
	}
	if observer != nil {
		opts.Observer = observer
	}
	return opts
}

// Scope turns the configured course selection into a pipeline scope.
func (a *App) Scope() pipeline.Scope {
	return pipeline.Scope{CourseIDs: a.Config.Courses.IDs, AllCourses: a.Config.Courses.All}
}

// Close releases the State Store.
func (a *App) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
