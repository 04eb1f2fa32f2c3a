// Package view derives what the renderer should play from the cached content set.
package view

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/mmcdole/marquee/internal/domain"
)

// Filter returns the items whose scheduling window contains now.
// The input slice is not modified.
func Filter(items []domain.ContentItem, now time.Time) []domain.ContentItem {
	out := make([]domain.ContentItem, 0, len(items))
	for _, item := range items {
		if item.ActiveAt(now) {
			out = append(out, item)
		}
	}
	return out
}

// Sort returns a copy of items ordered by carousel position.
// Items without a position follow all positioned ones in their input order.
func Sort(items []domain.ContentItem) []domain.ContentItem {
	out := slices.Clone(items)
	slices.SortStableFunc(out, comparePosition)
	return out
}

func comparePosition(a, b domain.ContentItem) int {
	switch {
	case a.Position == nil && b.Position == nil:
		return 0
	case a.Position == nil:
		return 1
	case b.Position == nil:
		return -1
	default:
		return cmp.Compare(*a.Position, *b.Position)
	}
}

// Materialize returns the playable list at now
func Materialize(items []domain.ContentItem, now time.Time) []domain.ContentItem {
	return Sort(Filter(items, now))
}

// NextBoundary returns the earliest instant after now at which the
// materialized list can change: an item's window opening, or the first
// instant after its inclusive end.
func NextBoundary(items []domain.ContentItem, now time.Time) (time.Time, bool) {
	var next time.Time
	found := false
	consider := func(t time.Time) {
		if !t.After(now) {
			return
		}
		if !found || t.Before(next) {
			next = t
			found = true
		}
	}
	for _, item := range items {
		if item.PlayBegin != nil {
			consider(*item.PlayBegin)
		}
		if item.PlayEnd != nil {
			consider(item.PlayEnd.Add(time.Nanosecond))
		}
	}
	return next, found
}

// Search keeps the items whose name fuzzy-matches query, preserving order.
// A blank query returns items unchanged.
func Search(items []domain.ContentItem, query string) []domain.ContentItem {
	query = strings.TrimSpace(query)
	if query == "" {
		return items
	}
	out := make([]domain.ContentItem, 0, len(items))
	for _, item := range items {
		if fuzzy.MatchFold(query, item.Name) {
			out = append(out, item)
		}
	}
	return out
}

// CachedOnly drops items whose bytes are not in the Blob Store
func CachedOnly(items []domain.ContentItem) []domain.ContentItem {
	out := make([]domain.ContentItem, 0, len(items))
	for _, item := range items {
		if item.Cached() {
			out = append(out, item)
		}
	}
	return out
}
