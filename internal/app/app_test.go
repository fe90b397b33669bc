package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ClassBuddy/internal/blobstore"
	"github.com/dharsanguruparan/ClassBuddy/internal/classify"
	"github.com/dharsanguruparan/ClassBuddy/internal/classroom"
	"github.com/dharsanguruparan/ClassBuddy/internal/config"
	"github.com/dharsanguruparan/ClassBuddy/internal/llm"
	"github.com/dharsanguruparan/ClassBuddy/internal/model"
	"github.com/dharsanguruparan/ClassBuddy/internal/storage"
)

func TestOpenStoreDrivers(t *testing.T) {
	ctx := context.Background()

	mem, err := OpenStore(ctx, config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStore{}, mem)

	lite, err := OpenStore(ctx, config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "db", "state.db")})
	require.NoError(t, err)
	defer lite.Close()
	assert.IsType(t, &storage.SQLiteStore{}, lite)

	_, err = OpenStore(ctx, config.StoreConfig{Driver: "postgres"})
	require.Error(t, err)

	_, err = OpenStore(ctx, config.StoreConfig{Driver: "redis"})
	require.Error(t, err)
}

func TestNewPublisherDrivers(t *testing.T) {
	ctx := context.Background()
	item := model.Item{ItemID: "m1", CourseID: "c1"}

	pub, dest, err := NewPublisher(ctx, config.PublishConfig{Driver: "filesystem", Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &blobstore.FilesystemStore{}, pub)
	assert.Equal(t, "courses/c1", dest(item))

	client := classroom.New(config.Default().Google, time.Hour, nil)
	pub, dest, err = NewPublisher(ctx, config.PublishConfig{Driver: "drive", DriveFolder: "folder-9"}, client)
	require.NoError(t, err)
	assert.IsType(t, &classroom.DrivePublisher{}, pub)
	assert.Equal(t, "folder-9", dest(item))

	_, _, err = NewPublisher(ctx, config.PublishConfig{Driver: "drive"}, client)
	require.Error(t, err)

	_, _, err = NewPublisher(ctx, config.PublishConfig{Driver: "ftp"}, nil)
	require.Error(t, err)
}

func TestNewClassifier(t *testing.T) {
	c, err := NewClassifier("keyword", nil)
	require.NoError(t, err)
	assert.IsType(t, &classify.Keyword{}, c)

	completer := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) { return "deadline", nil })
	c, err = NewClassifier("llm", completer)
	require.NoError(t, err)
	assert.IsType(t, &classify.LLM{}, c)

	_, err = NewClassifier("llm", nil)
	require.Error(t, err)
	_, err = NewClassifier("magic", nil)
	require.Error(t, err)
}

func TestRetryConfigFromPipeline(t *testing.T) {
	rc := RetryConfig(config.PipelineConfig{RetryAttempts: 5, RetryDelay: 3 * time.Second, CallTimeout: time.Minute})
	assert.Equal(t, 5, rc.Attempts)
	assert.Equal(t, 3*time.Second, rc.BaseDelay)
	assert.Equal(t, time.Minute, rc.Timeout)
	assert.True(t, rc.MaxDelay > 0)
}

func TestNewWiresPipeline(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "memory"
	cfg.Publish.Dir = t.TempDir()
	cfg.LLM.APIKey = "test-key"
	cfg.Courses.IDs = []string{"c1"}

	a, err := New(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.Metrics)
	assert.Equal(t, []string{"c1"}, a.Scope().CourseIDs)

	cfg.LLM.APIKey = ""
	cfg.LLM.Provider = "anthropic"
	_, err = New(context.Background(), cfg, nil, nil)
	require.Error(t, err)
}

func TestOpenNeedsNoLLM(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "memory"
	cfg.LLM.APIKey = ""

	a, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.Classroom)
	assert.Nil(t, a.Metrics)
}
