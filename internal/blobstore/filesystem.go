// Package blobstore publishes artifacts to the local disk. It is intended for
// development and dry runs.
package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dharsanguruparan/ClassBuddy/internal/model"
)

// FilesystemStore writes artifacts below a base directory.
type FilesystemStore struct {
	baseDir string
}

// NewFilesystemStore creates a store rooted at baseDir.
func NewFilesystemStore(baseDir string) (*FilesystemStore, error) {
	if baseDir == "" {
		baseDir = "artifacts"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FilesystemStore{baseDir: baseDir}, nil
}

// Publish writes the artifact to <base>/<destination>/<itemID>/<file> and
// returns the slash-separated relative key. The write goes through a temp
// file so readers never see a truncated artifact.
func (s *FilesystemStore) Publish(ctx context.Context, artifact model.Artifact, destination string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &model.PublishError{Kind: artifact.Kind, Err: err}
	}
	name := artifact.FileName
	if name == "" {
		name = string(artifact.Kind)
	}
	key := filepath.ToSlash(filepath.Join(destination, artifact.ItemID, name))
	if strings.HasPrefix(key, "../") || key == ".." {
		return "", &model.PublishError{Kind: artifact.Kind, Err: fmt.Errorf("key %q escapes base dir", key)}
	}
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", &model.PublishError{Kind: artifact.Kind, Err: fmt.Errorf("ensure dir: %w", err)}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return "", &model.PublishError{Kind: artifact.Kind, Err: fmt.Errorf("create temp: %w", err)}
	}
	if _, err := tmp.Write(artifact.Data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", &model.PublishError{Kind: artifact.Kind, Err: fmt.Errorf("write: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", &model.PublishError{Kind: artifact.Kind, Err: fmt.Errorf("close: %w", err)}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", &model.PublishError{Kind: artifact.Kind, Err: fmt.Errorf("rename: %w", err)}
	}
	return key, nil
}

// Path resolves a key returned by Publish to a local path.
func (s *FilesystemStore) Path(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key))
}
