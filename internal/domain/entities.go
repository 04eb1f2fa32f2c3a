package domain

import (
	"path"
	"strings"
	"time"
)

// DeviceType distinguishes screen orientations
type DeviceType string

const (
	DeviceTypeTV       DeviceType = "TV"
	DeviceTypeVertical DeviceType = "Vertical"
)

// defaultDisplayDuration applies to still images with no explicit duration
const defaultDisplayDuration = 5 * time.Second

// videoExtensions are played for their own length instead of a fixed duration
var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".gif": true,
	".avi": true,
	".wmv": true,
	".mkv": true,
	".flv": true,
}

// DeviceSummary describes the authenticated device.
// There is exactly one per installation; a sync replaces it wholesale.
type DeviceSummary struct {
	ID           int        `json:"id"`
	Password     string     `json:"password"`
	Description  string     `json:"description"`
	Organization string     `json:"organization"`
	BusinessUnit string     `json:"business_unit"`
	Area         string     `json:"area"`
	Type         DeviceType `json:"type"`
}

// Orientation returns "Horizontal" for TV screens and "Vertical" otherwise
func (s DeviceSummary) Orientation() string {
	if s.Type == DeviceTypeTV {
		return "Horizontal"
	}
	return "Vertical"
}

// FallbackArtwork is the organization artwork shown when nothing is scheduled
func (s DeviceSummary) FallbackArtwork() string {
	return s.Organization + "-" + s.Orientation() + ".svg"
}

// ContentItem is one playable media entry of the current generation
type ContentItem struct {
	Key             string `json:"key"`               // Stable identifier within a generation
	ContentID       int    `json:"content_id"`        // Backend content ID
	DeviceContentID int    `json:"device_content_id"` // Backend device/content assignment ID
	Name            string `json:"name"`              // Display name
	RemoteURL       string `json:"remote_url"`        // Absolute URL of the media on the backend

	// LocalBlobHandle is the Blob Store key holding the bytes; nil until downloaded
	LocalBlobHandle *string `json:"local_blob_handle,omitempty"`

	// Scheduling window (nil = unbounded)
	PlayBegin *time.Time `json:"play_begin,omitempty"`
	PlayEnd   *time.Time `json:"play_end,omitempty"`

	// Position in the carousel (nil sorts last)
	Position *int `json:"position,omitempty"`

	DurationHour    *int `json:"duration_hour,omitempty"`
	DurationMinute  *int `json:"duration_minute,omitempty"`
	DurationSeconds *int `json:"duration_seconds,omitempty"`

	Rotation *int `json:"rotation,omitempty"`

	// Order is the index in the backend response
	Order int `json:"order"`
}

// Cached returns true if the item's bytes are in the Blob Store
func (c ContentItem) Cached() bool {
	return c.LocalBlobHandle != nil
}

// IsVideo reports whether the remote file is a moving format
func (c ContentItem) IsVideo() bool {
	return videoExtensions[strings.ToLower(path.Ext(c.RemoteURL))]
}

// RotationDegrees returns the configured rotation, 0 when absent
func (c ContentItem) RotationDegrees() int {
	if c.Rotation == nil {
		return 0
	}
	return *c.Rotation
}

// DisplayDuration returns how long a still image stays on screen.
// A wholly absent duration is 5s. Otherwise absent hours and minutes count
// as zero and absent or zero seconds count as 5, so {minute: 1} is 65s.
func (c ContentItem) DisplayDuration() time.Duration {
	if c.DurationHour == nil && c.DurationMinute == nil && c.DurationSeconds == nil {
		return defaultDisplayDuration
	}
	seconds := time.Duration(deref(c.DurationSeconds)) * time.Second
	if seconds == 0 {
		seconds = defaultDisplayDuration
	}
	return time.Duration(deref(c.DurationHour))*time.Hour +
		time.Duration(deref(c.DurationMinute))*time.Minute +
		seconds
}

// ActiveAt reports whether now falls inside the scheduling window (bounds inclusive)
func (c ContentItem) ActiveAt(now time.Time) bool {
	if c.PlayBegin != nil && now.Before(*c.PlayBegin) {
		return false
	}
	if c.PlayEnd != nil && now.After(*c.PlayEnd) {
		return false
	}
	return true
}

// AuthResponse is the result of a successful authentication.
// Content items arrive without a LocalBlobHandle.
type AuthResponse struct {
	Summary DeviceSummary
	Content []ContentItem
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
