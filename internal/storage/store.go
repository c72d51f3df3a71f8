// Package storage keeps uploaded documents until a pipeline run has read
// them.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/internal/common"
)

// DocumentStore is a flat key/object store. Keys use forward slashes.
type DocumentStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// DocumentKey builds documents/{upload_id}/{filename}. Directory parts of
// filename are dropped.
func DocumentKey(uploadID uuid.UUID, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "document"
	}
	return "documents/" + uploadID.String() + "/" + base
}

// UploadPrefix is the key prefix shared by every object of one upload.
func UploadPrefix(uploadID uuid.UUID) string {
	return "documents/" + uploadID.String() + "/"
}

// Materialize copies the object at key into a temp file that keeps the
// key's extension. cleanup removes the file and is safe to call twice.
func Materialize(ctx context.Context, store DocumentStore, key string) (tmpPath string, cleanup func(), err error) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return "", func() {}, err
	}
	defer rc.Close()

	f, err := os.CreateTemp("", "docflow-*"+filepath.Ext(key))
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	cleanup = func() { _ = os.Remove(name) }

	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("copy %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close temp file: %w", err)
	}
	return name, cleanup, nil
}

func notFound(key string) error {
	return common.NotFoundf("document %s not found", key)
}
