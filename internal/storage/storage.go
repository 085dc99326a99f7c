// Package storage defines the object store contract behind upload archives
// and import receipts, plus the key layout both are filed under.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned by Get and Stat for keys that do not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// PutOptions carries optional metadata for a Put.
type PutOptions struct {
	ContentType string
}

// ObjectStore is the durable side channel of an import: raw uploads land
// under uploads/, parquet receipts under receipts/. List walks a key prefix
// so the receipts for one table can be enumerated.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}
