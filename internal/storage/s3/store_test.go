package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/querymind/querymind/internal/storage"
)

func TestPutUsesPrefixAndNormalizedKey(t *testing.T) {
	fake := &fakeClient{bucketExists: true}
	store, err := NewWithClient("bucket-a", "querymind/prod", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	_, err = store.Put(context.Background(), "/exports/2026/02/19/abc.csv", bytes.NewBufferString("a,b"), 3,
		storage.PutOptions{ContentType: "text/csv", FileName: "result.csv"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastPutBucket != "bucket-a" {
		t.Fatalf("bucket = %q", fake.lastPutBucket)
	}
	if fake.lastPutKey != "querymind/prod/exports/2026/02/19/abc.csv" {
		t.Fatalf("key = %q", fake.lastPutKey)
	}
	if fake.lastPutOpts.FileName != "result.csv" || fake.lastPutOpts.ContentType != "text/csv" {
		t.Fatalf("opts = %+v", fake.lastPutOpts)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	store, err := NewWithClient("bucket-a", "", &fakeClient{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if _, err := store.Put(context.Background(), "../secrets.txt", bytes.NewBufferString("x"), 1, storage.PutOptions{}); err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestPresignGetDefaultsExpiryAndMapsNotFound(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "pfx", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	link, err := store.PresignGet(context.Background(), "exports/a.json", 0)
	if err != nil {
		t.Fatalf("PresignGet() error = %v", err)
	}
	if link != "https://objects.example.com/bucket-a/pfx/exports/a.json" {
		t.Fatalf("link = %q", link)
	}
	if fake.lastExpiry != time.Hour || fake.lastFileName != "a.json" {
		t.Fatalf("expiry/filename = %s/%q", fake.lastExpiry, fake.lastFileName)
	}

	fake.presignErr = storage.ErrObjectNotFound
	if _, err := store.PresignGet(context.Background(), "exports/missing.json", time.Minute); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("PresignGet() error = %v, want ErrObjectNotFound", err)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeClient{bucketExists: false}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if !fake.createBucketCalled {
		t.Fatal("expected CreateBucket to be called")
	}
}

func TestReadyRequiresBucket(t *testing.T) {
	fake := &fakeClient{bucketExists: false}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.Ready(context.Background()); err == nil {
		t.Fatal("expected Ready() to fail for a missing bucket")
	}
	fake.bucketExists = true
	if err := store.Ready(context.Background()); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	endpoint, secure, err := parseEndpoint("https://minio.example.com", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "minio.example.com" || !secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}
	endpoint, secure, err = parseEndpoint("localhost:9000", false)
	if err != nil || endpoint != "localhost:9000" || secure {
		t.Fatalf("parseEndpoint() = %q/%v/%v", endpoint, secure, err)
	}
}

type fakeClient struct {
	lastPutBucket      string
	lastPutKey         string
	lastPutOpts        storage.PutOptions
	lastExpiry         time.Duration
	lastFileName       string
	presignErr         error
	bucketExists       bool
	createBucketCalled bool
}

func (f *fakeClient) Put(_ context.Context, bucket, key string, reader io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	f.lastPutBucket = bucket
	f.lastPutKey = key
	f.lastPutOpts = opts
	_, _ = io.Copy(io.Discard, reader)
	return storage.ObjectInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeClient) PresignGet(_ context.Context, bucket, key string, expiry time.Duration, fileName string) (string, error) {
	f.lastExpiry = expiry
	f.lastFileName = fileName
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "https://objects.example.com/" + bucket + "/" + key, nil
}

func (f *fakeClient) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeClient) CreateBucket(_ context.Context, _, _ string) error {
	f.createBucketCalled = true
	return nil
}
