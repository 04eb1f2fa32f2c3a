package backend

import (
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/marquee/internal/domain"
)

// dateLayouts are tried in order when parsing scheduling dates
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// MapSummary converts the wire summary to the domain summary
func MapSummary(s Summary) domain.DeviceSummary {
	return domain.DeviceSummary{
		ID:           s.ID,
		Password:     s.Password,
		Description:  s.Description,
		Organization: s.Organization,
		BusinessUnit: s.BusinessUnit,
		Area:         s.Area,
		Type:         domain.DeviceType(s.Type),
	}
}

// MapContent converts wire content to domain items keyed by content ID.
// Duplicate content IDs keep the first occurrence.
func MapContent(content []Content, baseURL string) []domain.ContentItem {
	items := make([]domain.ContentItem, 0, len(content))
	seen := make(map[string]bool, len(content))
	for _, c := range content {
		key := strconv.Itoa(c.IDContent)
		if seen[key] {
			continue
		}
		seen[key] = true

		items = append(items, domain.ContentItem{
			Key:             key,
			ContentID:       c.IDContent,
			DeviceContentID: c.IDDeviceContent,
			Name:            c.Content,
			RemoteURL:       ResolveURL(baseURL, c.URLContent),
			PlayBegin:       parseDate(c.PlayBeginningDate),
			PlayEnd:         parseDate(c.PlayEndDate),
			Position:        c.PositionInCarousel,
			DurationHour:    c.Hour,
			DurationMinute:  c.Minute,
			DurationSeconds: c.Seconds,
			Rotation:        c.Rotation,
			Order:           len(items),
		})
	}
	return items
}

// ResolveURL joins a backend-relative media path onto the backend root.
// Absolute URLs pass through unchanged.
func ResolveURL(baseURL, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(ref, "/")
}

// parseDate returns nil for absent, empty or unparsable dates (unbounded window)
func parseDate(s *string) *time.Time {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(*s)); err == nil {
			return &t
		}
	}
	return nil
}
