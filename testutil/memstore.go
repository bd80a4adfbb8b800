package testutil

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"

	"dsst-etl/storage"
)

// MemoryStore ist ein ObjectStore im Speicher. Keys werden wie bei S3 lexikografisch gelistet.
type MemoryStore struct {
	BucketName string
	// PageSize > 0 simuliert seitenweises Listing
	PageSize int
	// ListErr wird geliefert, nachdem ListErrAfter Objekte gelistet wurden.
	ListErr      error
	ListErrAfter int
	// GetErr liefert pro Key einen Fehler beim Lesen.
	GetErr map[string]error

	mu      sync.Mutex
	objects map[string][]byte
	pages   int
	gets    []string
}

// NewMemoryStore erstellt einen leeren Store.
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{BucketName: bucket, objects: map[string][]byte{}, GetErr: map[string]error{}}
}

func (m *MemoryStore) Bucket() string { return m.BucketName }

func (m *MemoryStore) URI(key string) string {
	return fmt.Sprintf("s3://%s/%s", m.BucketName, key)
}

func (m *MemoryStore) List(ctx context.Context, prefix string) iter.Seq2[storage.ObjectInfo, error] {
	return func(yield func(storage.ObjectInfo, error) bool) {
		m.mu.Lock()
		keys := make([]string, 0, len(m.objects))
		for k := range m.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		slices.Sort(keys)
		m.mu.Unlock()

		pageSize := m.PageSize
		if pageSize <= 0 {
			pageSize = 1000
		}
		for i, k := range keys {
			if m.ListErr != nil && i == m.ListErrAfter {
				yield(storage.ObjectInfo{}, m.ListErr)
				return
			}
			if i%pageSize == 0 {
				m.mu.Lock()
				m.pages++
				m.mu.Unlock()
			}
			m.mu.Lock()
			size := int64(len(m.objects[k]))
			m.mu.Unlock()
			if !yield(storage.ObjectInfo{Key: k, Size: size}, nil) {
				return
			}
		}
		if m.ListErr != nil && m.ListErrAfter >= len(keys) {
			yield(storage.ObjectInfo{}, m.ListErr)
		}
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets = append(m.gets, key)
	if err := m.GetErr[key]; err != nil {
		return nil, err
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, m.URI(key))
	}
	return slices.Clone(data), nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = slices.Clone(data)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Keys liefert alle Keys sortiert.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Gets liefert die gelesenen Keys in Aufrufreihenfolge.
func (m *MemoryStore) Gets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.gets)
}

// Pages liefert die Zahl der angefangenen Listing-Seiten.
func (m *MemoryStore) Pages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pages
}
