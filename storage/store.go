package storage

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"dsst-etl/config"
)

// ErrObjectNotFound wird geliefert, wenn ein Key nicht existiert.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo beschreibt ein Objekt aus einem Listing.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStore ist der Zugriff auf einen Bucket.
type ObjectStore interface {
	// List liefert die Objekte unter prefix seitenweise und lazy in Listing-Reihenfolge.
	// Ein Fehler wird als letztes Element geliefert, danach endet die Sequenz.
	List(ctx context.Context, prefix string) iter.Seq2[ObjectInfo, error]
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	// URI gibt die kanonische Adresse eines Keys zurück (z.B. s3://bucket/key).
	URI(key string) string
	Bucket() string
}

// New erstellt den in der Konfiguration gewählten ObjectStore.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (ObjectStore, error) {
	switch cfg.ObjectStore {
	case config.ObjectStoreS3:
		client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create s3 client: %w", err)
		}
		log.Info("Using S3 object store", zap.String("bucket", cfg.S3BucketName), zap.String("endpoint", cfg.S3Endpoint))
		return NewS3Store(client, cfg.S3BucketName), nil
	case config.ObjectStoreGCS:
		store, err := NewGCSStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		log.Info("Using GCS object store", zap.String("bucket", cfg.S3BucketName))
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown OBJECT_STORE %q", config.ErrConfiguration, cfg.ObjectStore)
	}
}
