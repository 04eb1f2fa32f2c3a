package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mmcdole/marquee/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketSummary = []byte("summary")
	bucketContent = []byte("content")
	bucketBlobs   = []byte("blobs")
)

var allBuckets = [][]byte{bucketSummary, bucketContent, bucketBlobs}

const dbFileName = "marquee.db"

// DB is the device cache file shared by the blob and metadata stores.
// With an empty directory it runs memory-only (no persistence).
type DB struct {
	db *bolt.DB

	mu  sync.RWMutex // Protects mem
	mem map[string]map[string][]byte
}

// Open opens (or creates) the cache under dir
func Open(dir string) (*DB, error) {
	if dir == "" {
		d := &DB{mem: make(map[string]map[string][]byte)}
		return d, d.init()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &domain.StoreError{Op: "create cache dir", Err: err}
	}

	dbPath := filepath.Join(dir, dbFileName)
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, &domain.StoreError{Op: "open", Err: fmt.Errorf("failed to open bolt db: %w", err)}
	}

	d := &DB{db: db}
	if err := d.init(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Path returns the backing file, empty in memory-only mode
func (d *DB) Path() string {
	if d.db == nil {
		return ""
	}
	return d.db.Path()
}

func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// init creates missing buckets. Repeated calls are no-ops.
func (d *DB) init() error {
	if d.db == nil {
		d.mu.Lock()
		for _, b := range allBuckets {
			if _, ok := d.mem[string(b)]; !ok {
				d.mem[string(b)] = make(map[string][]byte)
			}
		}
		d.mu.Unlock()
		return nil
	}

	err := d.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &domain.StoreError{Op: "init", Err: err}
	}
	return nil
}

// === Generic helpers ===

func (d *DB) get(bucket []byte, key string) ([]byte, bool, error) {
	if d.db == nil {
		d.mu.RLock()
		defer d.mu.RUnlock()
		v, ok := d.mem[string(bucket)][key]
		if !ok {
			return nil, false, nil
		}
		return append([]byte(nil), v...), true, nil
	}

	var data []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, &domain.StoreError{Op: "get " + string(bucket), Err: err}
	}
	return data, data != nil, nil
}

func (d *DB) put(bucket []byte, key string, data []byte) error {
	if d.db == nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		m, ok := d.mem[string(bucket)]
		if !ok {
			m = make(map[string][]byte)
			d.mem[string(bucket)] = m
		}
		m[key] = append([]byte(nil), data...)
		return nil
	}

	err := d.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return &domain.StoreError{Op: "put " + string(bucket), Err: err}
	}
	return nil
}

func (d *DB) delete(bucket []byte, key string) error {
	if d.db == nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.mem[string(bucket)], key)
		return nil
	}

	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return &domain.StoreError{Op: "delete " + string(bucket), Err: err}
	}
	return nil
}

// each calls fn for every entry of bucket (key order on disk, unordered in memory)
func (d *DB) each(bucket []byte, fn func(key string, value []byte) error) error {
	if d.db == nil {
		d.mu.RLock()
		entries := make(map[string][]byte, len(d.mem[string(bucket)]))
		for k, v := range d.mem[string(bucket)] {
			entries[k] = v
		}
		d.mu.RUnlock()
		for k, v := range entries {
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	}

	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
	if err != nil {
		return &domain.StoreError{Op: "scan " + string(bucket), Err: err}
	}
	return nil
}

// clearBuckets empties the given buckets in one transaction.
// A bucket that was never created counts as already empty.
func (d *DB) clearBuckets(buckets ...[]byte) error {
	if d.db == nil {
		d.mu.Lock()
		for _, b := range buckets {
			d.mem[string(b)] = make(map[string][]byte)
		}
		d.mu.Unlock()
		return nil
	}

	err := d.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range buckets {
			if tx.Bucket(bucket) != nil {
				if err := tx.DeleteBucket(bucket); err != nil {
					return err
				}
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &domain.StoreError{Op: "clear", Err: err}
	}
	return nil
}
