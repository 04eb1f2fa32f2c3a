package view

import (
	"time"

	"github.com/mmcdole/marquee/internal/domain"
)

// Playlist is the materialized list plus the instant it must be recomputed
type Playlist struct {
	Items       []domain.ContentItem
	NextRefresh *time.Time // nil = no pending schedule boundary
}

// Queries provides synchronous, cache-only reads.
// Nothing here touches the network.
type Queries struct {
	meta  domain.MetadataStore
	blobs domain.BlobStore
	clock func() time.Time
}

// NewQueries creates a new Queries instance. A nil clock uses time.Now.
func NewQueries(meta domain.MetadataStore, blobs domain.BlobStore, clock func() time.Time) *Queries {
	if clock == nil {
		clock = time.Now
	}
	return &Queries{meta: meta, blobs: blobs, clock: clock}
}

func (q *Queries) Summary() (*domain.DeviceSummary, bool, error) {
	return q.meta.GetSummary()
}

// Playlist materializes the cached content at the current time
func (q *Queries) Playlist() (Playlist, error) {
	items, err := q.meta.GetAllContentItems()
	if err != nil {
		return Playlist{}, err
	}
	now := q.clock()
	p := Playlist{Items: Materialize(items, now)}
	if next, ok := NextBoundary(items, now); ok {
		p.NextRefresh = &next
	}
	return p, nil
}

// Items returns every cached item in backend order, ignoring schedules
func (q *Queries) Items() ([]domain.ContentItem, error) {
	return q.meta.GetAllContentItems()
}

// Item looks up one content item by key
func (q *Queries) Item(key string) (*domain.ContentItem, bool, error) {
	items, err := q.meta.GetAllContentItems()
	if err != nil {
		return nil, false, err
	}
	for i := range items {
		if items[i].Key == key {
			return &items[i], true, nil
		}
	}
	return nil, false, nil
}

// Blob returns the cached bytes behind an item's handle
func (q *Queries) Blob(item domain.ContentItem) ([]byte, bool, error) {
	if item.LocalBlobHandle == nil {
		return nil, false, nil
	}
	return q.blobs.Get(*item.LocalBlobHandle)
}
