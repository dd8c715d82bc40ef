// Package storage defines the object store exported result files are
// uploaded to.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

type PutOptions struct {
	ContentType string
	// FileName is offered to browsers as the download name.
	FileName string
}

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	// PresignGet returns a time-limited download URL for an existing object.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
