package store

import (
	"cmp"
	"encoding/json"
	"slices"
	"sync"

	"github.com/mmcdole/marquee/internal/domain"
)

const (
	summaryKey = "device"

	// Present from ClearContent until the next PutSummary
	incompleteKey = "incomplete"
)

// MetadataStore implements domain.MetadataStore using JSON records.
type MetadataStore struct {
	db *DB

	mu sync.RWMutex // Protects the read cache below

	// In-memory cache for hot-path reads (promoted on access, dropped on write)
	summary     *domain.DeviceSummary
	summaryOK   bool
	items       []domain.ContentItem
	itemsCached bool
}

// NewMetadataStore creates a metadata store backed by db
func NewMetadataStore(db *DB) *MetadataStore {
	return &MetadataStore{db: db}
}

// Init creates the namespaces if missing. Safe to call any number of times.
func (s *MetadataStore) Init() error {
	return s.db.init()
}

// === Summary ===

func (s *MetadataStore) PutSummary(summary domain.DeviceSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return &domain.StoreError{Op: "encode summary", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaryOK = false
	s.summary = nil
	if err := s.db.put(bucketSummary, summaryKey, data); err != nil {
		return err
	}
	return s.db.delete(bucketSummary, incompleteKey)
}

func (s *MetadataStore) GetSummary() (*domain.DeviceSummary, bool, error) {
	s.mu.RLock()
	if s.summaryOK {
		summary := s.summary
		s.mu.RUnlock()
		return copySummary(summary)
	}
	s.mu.RUnlock()

	// Load under the write lock so a concurrent write cannot be shadowed
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summaryOK {
		return copySummary(s.summary)
	}

	data, ok, err := s.db.get(bucketSummary, summaryKey)
	if err != nil {
		return nil, false, err
	}

	var summary *domain.DeviceSummary
	if ok {
		summary = &domain.DeviceSummary{}
		if err := json.Unmarshal(data, summary); err != nil {
			return nil, false, &domain.StoreError{Op: "decode summary", Err: err}
		}
	}

	s.summary = summary
	s.summaryOK = true
	return copySummary(summary)
}

func copySummary(summary *domain.DeviceSummary) (*domain.DeviceSummary, bool, error) {
	if summary == nil {
		return nil, false, nil
	}
	cp := *summary
	return &cp, true, nil
}

// === Content ===

func (s *MetadataStore) PutContentItem(key string, item domain.ContentItem) error {
	item.Key = key
	data, err := json.Marshal(item)
	if err != nil {
		return &domain.StoreError{Op: "encode content item", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.itemsCached = false
	s.items = nil
	return s.db.put(bucketContent, key, data)
}

// GetAllContentItems returns the current generation in backend order
func (s *MetadataStore) GetAllContentItems() ([]domain.ContentItem, error) {
	s.mu.RLock()
	if s.itemsCached {
		items := slices.Clone(s.items)
		s.mu.RUnlock()
		return items, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.itemsCached {
		return slices.Clone(s.items), nil
	}

	var items []domain.ContentItem
	err := s.db.each(bucketContent, func(key string, value []byte) error {
		var item domain.ContentItem
		if err := json.Unmarshal(value, &item); err != nil {
			return &domain.StoreError{Op: "decode content item " + key, Err: err}
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(items, func(a, b domain.ContentItem) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})

	s.items = items
	s.itemsCached = true
	return slices.Clone(items), nil
}

// Incomplete reports whether content was cleared without a summary written after it
func (s *MetadataStore) Incomplete() (bool, error) {
	_, ok, err := s.db.get(bucketSummary, incompleteKey)
	return ok, err
}

// === Invalidation ===

func (s *MetadataStore) ClearContent() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.itemsCached = false
	s.items = nil
	if err := s.db.put(bucketSummary, incompleteKey, []byte{1}); err != nil {
		return err
	}
	return s.db.clearBuckets(bucketContent)
}

func (s *MetadataStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.itemsCached = false
	s.items = nil
	s.summaryOK = false
	s.summary = nil
	return s.db.clearBuckets(bucketSummary, bucketContent)
}
