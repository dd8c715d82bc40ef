package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/querymind/querymind/internal/observability"
	"github.com/querymind/querymind/internal/storage"
)

const DefaultLinkExpiry = time.Hour

// Stored describes an export written to the object store.
type Stored struct {
	Key       string    `json:"key"`
	URL       string    `json:"url,omitempty"`
	FileName  string    `json:"file_name"`
	Format    Format    `json:"format"`
	Size      int64     `json:"size_bytes"`
	RowCount  int       `json:"row_count"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

type Uploader struct {
	store      storage.ObjectStore
	linkExpiry time.Duration
	now        func() time.Time
	newID      func() string
}

func NewUploader(store storage.ObjectStore, linkExpiry time.Duration) (*Uploader, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if linkExpiry <= 0 {
		linkExpiry = DefaultLinkExpiry
	}
	return &Uploader{store: store, linkExpiry: linkExpiry, now: time.Now, newID: uuid.NewString}, nil
}

// Upload encodes the rows and stores them under exports/YYYY/MM/DD/<id>.<ext>.
// A failed presign still returns the stored key.
func (u *Uploader) Upload(ctx context.Context, f Format, name string, columns []string, rows [][]any) (Stored, error) {
	data, err := Encode(f, columns, rows)
	if err != nil {
		return Stored{}, err
	}
	now := u.now()
	key, err := storage.BuildExportPath(now, u.newID(), f.FileExtension())
	if err != nil {
		return Stored{}, err
	}
	if name == "" {
		name = FileName(f, now)
	}

	info, err := u.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType: f.ContentType(),
		FileName:    name,
	})
	if err != nil {
		return Stored{}, fmt.Errorf("upload export: %w", err)
	}
	observability.IncrementExport(string(f), "object_store")

	stored := Stored{
		Key:      key,
		FileName: name,
		Format:   f,
		Size:     info.Size,
		RowCount: len(rows),
	}
	if stored.Size == 0 {
		stored.Size = int64(len(data))
	}
	link, err := u.store.PresignGet(ctx, key, u.linkExpiry)
	if err != nil {
		return stored, fmt.Errorf("presign export %s: %w", key, err)
	}
	stored.URL = link
	stored.ExpiresAt = now.Add(u.linkExpiry).UTC()
	return stored, nil
}
