package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"dsst-etl/config"
)

// GCSStore implementiert ObjectStore für einen Google-Cloud-Storage-Bucket.
type GCSStore struct {
	client *gcs.Client
	bucket string
}

// NewGCSStore erstellt den Client, mit GCS_CREDENTIALS_FILE oder Application Default Credentials.
func NewGCSStore(ctx context.Context, cfg *config.Config) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GCSStore{client: client, bucket: cfg.S3BucketName}, nil
}

func (s *GCSStore) Bucket() string { return s.bucket }

func (s *GCSStore) URI(key string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, key)
}

func (s *GCSStore) List(ctx context.Context, prefix string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield(ObjectInfo{}, fmt.Errorf("list gs://%s/%s: %w", s.bucket, prefix, err))
				return
			}
			if !yield(ObjectInfo{Key: attrs.Name, Size: attrs.Size}, nil) {
				return
			}
		}
	}
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, s.URI(key))
		}
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	return s.client.Bucket(s.bucket).Object(key).Delete(ctx)
}

// Close schließt den GCS-Client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
