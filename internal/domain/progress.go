package domain

// ProgressFunc reports cycle progress as a percentage 0-100.
// Within one cycle the values never decrease.
type ProgressFunc func(percent int)

// SyncResult summarizes a completed cycle
type SyncResult struct {
	CycleID string // Correlates log lines of one cycle
	Total   int    // Descriptors returned by the backend
	Cached  int    // Items whose bytes were stored
	Failed  int    // Items skipped after a fetch error
}
