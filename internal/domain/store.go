package domain

// BlobStore holds downloaded media bytes keyed by content key.
// Put overwrites; Clear on a never-initialized store succeeds.
type BlobStore interface {
	Put(key string, data []byte) error
	Get(key string) ([]byte, bool, error)
	Clear() error
}

// MetadataStore holds the device summary and per-item content metadata.
type MetadataStore interface {
	// === Summary ===
	PutSummary(summary DeviceSummary) error
	GetSummary() (*DeviceSummary, bool, error)

	// === Content ===
	PutContentItem(key string, item ContentItem) error
	GetAllContentItems() ([]ContentItem, error)
	Incomplete() (bool, error) // Content cleared and no summary written since

	// === Invalidation ===
	ClearContent() error // Wipes content items, keeps the summary
	Clear() error        // Wipes summary and content items
}
