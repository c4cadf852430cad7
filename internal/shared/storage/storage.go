// Package storage keeps uploaded attachments (change request documents,
// subcontractor invoices) in object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound no object under that key
var ErrObjectNotFound = errors.New("object not found")

// Object a stored attachment
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// ObjectKey attachments/<yyyy>/<mm>/<uuid>_<filename>
func ObjectKey(now time.Time, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		name = "file"
	}
	return fmt.Sprintf("attachments/%d/%02d/%s_%s", now.Year(), now.Month(), uuid.New().String(), name)
}

// MinIOStore attachments in a MinIO bucket
type MinIOStore struct {
	client *minio.Client
	bucket string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func NewMinIOStore(ctx context.Context, cfg MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinIOStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *MinIOStore) Put(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (*Object, error) {
	key := ObjectKey(time.Now(), filename)
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}
	return &Object{
		Key:         key,
		URL:         "/api/v1/attachments/" + key,
		Filename:    filename,
		Size:        info.Size,
		ContentType: contentType,
	}, nil
}

func (s *MinIOStore) Get(ctx context.Context, key string) (io.ReadCloser, *Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("download %s: %w", key, err)
	}
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return obj, &Object{
		Key:         key,
		Filename:    path.Base(key),
		Size:        stat.Size,
		ContentType: stat.ContentType,
	}, nil
}

// MemoryStore attachments held in memory, for tests and local runs
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data []byte
	meta Object
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) Put(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (*Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}
	key := ObjectKey(time.Now(), filename)
	meta := Object{
		Key:         key,
		URL:         "/api/v1/attachments/" + key,
		Filename:    filename,
		Size:        int64(len(data)),
		ContentType: contentType,
	}
	s.mu.Lock()
	s.objects[key] = memoryObject{data: data, meta: meta}
	s.mu.Unlock()
	return &meta, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, *Object, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	meta := obj.meta
	return io.NopCloser(strings.NewReader(string(obj.data))), &meta, nil
}
