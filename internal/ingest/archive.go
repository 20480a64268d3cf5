package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
	"github.com/ghgledger/ghgledger/internal/storage"
)

// ArchiveKey returns the object key of an upload received at t.
func ArchiveKey(t time.Time, id string) string {
	t = t.UTC()
	return fmt.Sprintf("uploads/%04d/%02d/%02d/%s.csv", t.Year(), int(t.Month()), t.Day(), id)
}

// Archiver keeps a verbatim copy of every uploaded file in object storage.
// A nil *Archiver archives nothing.
type Archiver struct {
	objects storage.ObjectStorage
	logger  *zap.Logger
	now     func() time.Time
}

// NewArchiver creates an archiver over objects.
func NewArchiver(objects storage.ObjectStorage, logger *zap.Logger) *Archiver {
	return &Archiver{objects: objects, logger: logger, now: time.Now}
}

// Archive stores data under a key derived from id and returns the key.
// Failures are logged and reported as an empty key; they never fail the
// ingestion that follows.
func (a *Archiver) Archive(ctx context.Context, id string, data []byte) string {
	if a == nil {
		return ""
	}
	key := ArchiveKey(a.now(), id)
	if err := a.objects.Put(ctx, key, data); err != nil {
		a.logger.Warn("upload archive failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	a.logger.Debug("upload archived", zap.String("key", key), zap.Int("bytes", len(data)))
	return key
}

// Load returns a previously archived upload.
func (a *Archiver) Load(ctx context.Context, key string) ([]byte, error) {
	if a == nil {
		return nil, ledgererr.InvalidArgument("upload archive is not configured")
	}
	data, err := a.objects.Get(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ledgererr.NotFound("archived upload %q not found", key)
	}
	if err != nil {
		return nil, ledgererr.NewArchiveError("load archived upload", err)
	}
	return data, nil
}

// List returns the archived upload keys under prefix ("uploads/" when empty).
func (a *Archiver) List(ctx context.Context, prefix string) ([]string, error) {
	if a == nil {
		return nil, ledgererr.InvalidArgument("upload archive is not configured")
	}
	if prefix == "" {
		prefix = "uploads/"
	}
	keys, err := a.objects.List(ctx, prefix)
	if err != nil {
		return nil, ledgererr.NewArchiveError("list archived uploads", err)
	}
	return keys, nil
}
