package models

// Channel represents a single stream entry owned by a playlist.
// SortOrder is the zero-based position of the entry in the source M3U and is
// dense (0..N-1) within a playlist; it is the stable default sort key.
// GroupTitle is the raw group-title attribute and may pack several
// semicolon-separated category tags (e.g. "News;Sports").
type Channel struct {
	ID         int64   `json:"id"`
	PlaylistID int64   `json:"playlist_id"`
	Name       string  `json:"name"`
	URL        string  `json:"url"`
	Logo       *string `json:"logo,omitempty"`
	GroupTitle string  `json:"group_title"`
	TvgID      *string `json:"tvg_id,omitempty"`
	TvgName    *string `json:"tvg_name,omitempty"`
	SortOrder  int     `json:"sort_order"`
}
