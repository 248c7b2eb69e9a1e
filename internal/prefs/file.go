package prefs

import (
	"context"
	"sync"

	"github.com/mrz1836/fedwallet/internal/fileutil"
)

// fileFormat is the on-disk layout of a FileStore.
type fileFormat struct {
	Version int               `json:"version"`
	Values  map[string]string `json:"values"`
}

// FileStore persists preferences as a JSON document. Every mutation
// rewrites the file atomically; reads go to disk so that concurrent
// processes sharing a home directory see each other's writes.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by the JSON file at path. The file is
// created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", false, storeError("get", key, err)
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set implements Store.
func (s *FileStore) Set(_ context.Context, key, value string) error {
	return s.update("set", key, func(values map[string]string) {
		values[key] = value
	})
}

// Remove implements Store.
func (s *FileStore) Remove(_ context.Context, key string) error {
	return s.update("remove", key, func(values map[string]string) {
		delete(values, key)
	})
}

// Close implements ClosableStore.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) update(op, key string, mutate func(map[string]string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return storeError(op, key, err)
	}
	mutate(values)
	if err := fileutil.WriteJSON(s.path, fileFormat{Version: 1, Values: values}, 0o600); err != nil {
		return storeError(op, key, err)
	}
	return nil
}

func (s *FileStore) load() (map[string]string, error) {
	var doc fileFormat
	if _, err := fileutil.ReadJSON(s.path, &doc); err != nil {
		return nil, err
	}
	if doc.Values == nil {
		doc.Values = make(map[string]string)
	}
	return doc.Values, nil
}
