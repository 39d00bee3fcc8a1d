package storage

import (
	"context"
	"net/url"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-process ObjectStore for tests and local runs.
type MemoryStorage struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memoryObject
}

type memoryObject struct {
	data     []byte
	metadata map[string]string
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage(bucket string) *MemoryStorage {
	return &MemoryStorage{bucket: bucket, objects: make(map[string]memoryObject)}
}

func (s *MemoryStorage) EnsureBucket(_ context.Context) error { return nil }

func (s *MemoryStorage) Put(ctx context.Context, key string, data []byte, metadata map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	obj := memoryObject{data: append([]byte(nil), data...), metadata: make(map[string]string, len(metadata))}
	for k, v := range metadata {
		obj.metadata[k] = v
	}

	s.mu.Lock()
	s.objects[key] = obj
	s.mu.Unlock()
	return key, nil
}

func (s *MemoryStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), obj.data...), nil
}

func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) Stat(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return 0, ErrObjectNotFound
	}
	return int64(len(obj.data)), nil
}

// URLFor returns a memory:// URL. Like the real presigners it does not
// check that key exists.
func (s *MemoryStorage) URLFor(_ context.Context, key string, ttl time.Duration) (string, error) {
	u := url.URL{
		Scheme:   "memory",
		Host:     s.bucket,
		Path:     "/" + key,
		RawQuery: url.Values{"expires": {time.Now().Add(ttl).UTC().Format(time.RFC3339)}}.Encode(),
	}
	return u.String(), nil
}

// Keys lists stored keys in lexical order.
func (s *MemoryStorage) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Metadata returns a copy of the metadata stored with key.
func (s *MemoryStorage) Metadata(key string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(obj.metadata))
	for k, v := range obj.metadata {
		out[k] = v
	}
	return out
}
