package models

import "time"

// Source types for a playlist. A playlist is ingested exactly once, either
// from a remote URL or from an uploaded file.
const (
	SourceTypeURL  = "url"
	SourceTypeFile = "file"
)

// Playlist represents one ingested M3U playlist.
// Exactly one of URL (source_type "url") or FileName (source_type "file")
// is set; the other is nil.
type Playlist struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	URL        *string   `json:"url,omitempty"`
	SourceType string    `json:"source_type"`
	FileName   *string   `json:"file_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
