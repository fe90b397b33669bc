package blobstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ClassBuddy/internal/model"
)

func TestPublishWritesArtifact(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	art := model.Artifact{ItemID: "c1/material/m1", Kind: model.ArtifactFlashcards, FileName: "Flashcards-Intro.csv", Data: []byte("q,a\n")}
	key, err := store.Publish(context.Background(), art, "courses/c1")
	require.NoError(t, err)
	assert.Equal(t, "courses/c1/c1/material/m1/Flashcards-Intro.csv", key)

	data, err := os.ReadFile(store.Path(key))
	require.NoError(t, err)
	assert.Equal(t, "q,a\n", string(data))

	art.Data = []byte("q2,a2\n")
	again, err := store.Publish(context.Background(), art, "courses/c1")
	require.NoError(t, err)
	assert.Equal(t, key, again)
	data, err = os.ReadFile(store.Path(key))
	require.NoError(t, err)
	assert.Equal(t, "q2,a2\n", string(data))
}

func TestPublishRejectsEscapingKeys(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Publish(context.Background(), model.Artifact{ItemID: "x", Kind: model.ArtifactQuiz, FileName: "q.md"}, "../../etc")
	var pubErr *model.PublishError
	require.True(t, errors.As(err, &pubErr))
}

func TestPublishHonoursCancellation(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Publish(ctx, model.Artifact{ItemID: "x", Kind: model.ArtifactQuiz}, "d")
	require.ErrorIs(t, err, context.Canceled)
}
