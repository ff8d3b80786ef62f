package source

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/FrenchMajesty/doc-classifier/pkg/types"
)

// BucketConfig describes an S3-compatible bucket
type BucketConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// MaxObjectBytes stops reading an object after this many bytes plus one,
	// enough for the validator to refuse it. Zero reads whole objects.
	MaxObjectBytes int64
}

// objectStore is the part of the bucket API Bucket uses
type objectStore interface {
	list(ctx context.Context, prefix string) ([]string, error)
	open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Bucket downloads objects under a prefix as submitted items
type Bucket struct {
	store    objectStore
	maxBytes int64
}

// NewBucket creates a Bucket backed by minio
func NewBucket(cfg BucketConfig) (*Bucket, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 endpoint and bucket are required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &Bucket{
		store:    &minioStore{api: client, bucket: cfg.Bucket},
		maxBytes: cfg.MaxObjectBytes,
	}, nil
}

// Items lists every object under prefix in key order and downloads it
func (b *Bucket) Items(ctx context.Context, prefix string) ([]types.SubmittedItem, error) {
	keys, err := b.store.list(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	sort.Strings(keys)

	items := make([]types.SubmittedItem, 0, len(keys))
	for _, key := range keys {
		content, err := b.download(ctx, key)
		if err != nil {
			return nil, err
		}
		items = append(items, item(path.Base(key), content))
	}
	return items, nil
}

func (b *Bucket) download(ctx context.Context, key string) ([]byte, error) {
	rc, err := b.store.open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if b.maxBytes > 0 {
		r = io.LimitReader(rc, b.maxBytes+1)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return content, nil
}

type minioStore struct {
	api    *minio.Client
	bucket string
}

func (m *minioStore) list(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var keys []string
	for obj := range m.api.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (m *minioStore) open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.api.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return obj, nil
}
