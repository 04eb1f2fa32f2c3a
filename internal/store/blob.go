package store

import (
	"slices"
)

// BlobStore implements domain.BlobStore on the shared cache file.
type BlobStore struct {
	db *DB
}

// NewBlobStore creates a blob store backed by db
func NewBlobStore(db *DB) *BlobStore {
	return &BlobStore{db: db}
}

func (s *BlobStore) Put(key string, data []byte) error {
	return s.db.put(bucketBlobs, key, data)
}

func (s *BlobStore) Get(key string) ([]byte, bool, error) {
	return s.db.get(bucketBlobs, key)
}

func (s *BlobStore) Clear() error {
	return s.db.clearBuckets(bucketBlobs)
}

// Keys returns every stored key, sorted
func (s *BlobStore) Keys() ([]string, error) {
	var keys []string
	err := s.db.each(bucketBlobs, func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	return keys, nil
}

// Len returns the number of stored blobs
func (s *BlobStore) Len() (int, error) {
	keys, err := s.Keys()
	return len(keys), err
}
