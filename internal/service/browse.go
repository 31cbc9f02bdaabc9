package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/channeldock/channeldock/internal/models"
	"github.com/channeldock/channeldock/internal/store"
)

// DefaultPageSize is the per-page (and per-category) channel limit applied
// when the caller does not specify one.
const DefaultPageSize = 30

// GroupedChannels is one raw group_title with its channels in original
// playlist order.
type GroupedChannels struct {
	GroupTitle string           `json:"group_title"`
	Channels   []models.Channel `json:"channels"`
}

// PlaylistDetail is a playlist with its full channel set, both flat and
// grouped by the exact raw group_title string (no tag splitting; a channel
// appears exactly once, under its verbatim label).
type PlaylistDetail struct {
	Playlist models.Playlist   `json:"playlist"`
	Channels []models.Channel  `json:"channels"`
	Grouped  []GroupedChannels `json:"grouped"`
}

// ChannelPage is one page of a channel listing.
type ChannelPage struct {
	Channels   []models.Channel `json:"channels"`
	TotalCount int              `json:"total_count"`
	HasMore    bool             `json:"has_more"`
}

// BrowsePage is the alphabetical browse view: the first page of channels,
// the filtered total, the unfiltered total, and the category vocabulary for
// the filter dropdown.
type BrowsePage struct {
	Playlist      models.Playlist  `json:"playlist"`
	Channels      []models.Channel `json:"channels"`
	TotalCount    int              `json:"total_count"`
	HasMore       bool             `json:"has_more"`
	TotalChannels int              `json:"total_channels"`
	AllCategories []string         `json:"all_categories"`
}

// GroupPage is the first page of one category in the grouped browse view.
type GroupPage struct {
	GroupTitle string           `json:"group_title"`
	Channels   []models.Channel `json:"channels"`
	TotalCount int              `json:"total_count"`
	HasMore    bool             `json:"has_more"`
}

// GroupedPage is the category-grouped browse view.
type GroupedPage struct {
	Playlist      models.Playlist `json:"playlist"`
	Groups        []GroupPage     `json:"groups"`
	TotalChannels int             `json:"total_channels"`
}

// GetPlaylistWithChannels returns the playlist, its full channel set, and the
// channels grouped by exact raw group_title, preserving per-group insertion
// order. Returns store.ErrNotFound when the playlist does not exist.
func GetPlaylistWithChannels(ctx context.Context, s store.Store, id int64) (*PlaylistDetail, error) {
	pl, err := s.GetPlaylistByID(ctx, id)
	if err != nil {
		return nil, err
	}
	channels, err := s.ListChannelsByPlaylist(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	// Group order follows first appearance in the playlist.
	index := make(map[string]int)
	var grouped []GroupedChannels
	for _, ch := range channels {
		i, ok := index[ch.GroupTitle]
		if !ok {
			i = len(grouped)
			index[ch.GroupTitle] = i
			grouped = append(grouped, GroupedChannels{GroupTitle: ch.GroupTitle})
		}
		grouped[i].Channels = append(grouped[i].Channels, ch)
	}

	return &PlaylistDetail{Playlist: *pl, Channels: channels, Grouped: grouped}, nil
}

// ChannelsAlphabetical returns one case-insensitively name-ordered page.
func ChannelsAlphabetical(ctx context.Context, s store.Store, playlistID int64, f store.ChannelFilter) (*ChannelPage, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	channels, total, err := s.ListChannelsAlphabetical(ctx, playlistID, f)
	if err != nil {
		return nil, err
	}
	return &ChannelPage{
		Channels:   channels,
		TotalCount: total,
		HasMore:    f.Offset+f.Limit < total,
	}, nil
}

// ChannelsByCategory returns one page of the channels whose raw group_title
// equals category exactly, in original playlist order.
func ChannelsByCategory(ctx context.Context, s store.Store, playlistID int64, category string, limit, offset int, search string) (*ChannelPage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	channels, total, err := s.ListChannelsByGroup(ctx, playlistID, category, limit, offset, search)
	if err != nil {
		return nil, err
	}
	return &ChannelPage{
		Channels:   channels,
		TotalCount: total,
		HasMore:    offset+limit < total,
	}, nil
}

// BrowseAlphabetical composes the alphabetical browse view for a playlist:
// the category vocabulary across all channels, the first filtered page, and
// the unfiltered total for display. Returns store.ErrNotFound when the
// playlist does not exist.
func BrowseAlphabetical(ctx context.Context, s store.Store, id int64, f store.ChannelFilter) (*BrowsePage, error) {
	pl, err := s.GetPlaylistByID(ctx, id)
	if err != nil {
		return nil, err
	}

	titles, err := s.ListGroupTitles(ctx, id, nil)
	if err != nil {
		return nil, fmt.Errorf("list group titles: %w", err)
	}

	f.Offset = 0
	page, err := ChannelsAlphabetical(ctx, s, id, f)
	if err != nil {
		return nil, err
	}

	totalChannels, err := s.CountChannels(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count channels: %w", err)
	}

	return &BrowsePage{
		Playlist:      *pl,
		Channels:      page.Channels,
		TotalCount:    page.TotalCount,
		HasMore:       page.HasMore,
		TotalChannels: totalChannels,
		AllCategories: CategoryVocabulary(titles),
	}, nil
}

// BrowseGrouped composes the category-grouped browse view: the first page of
// every (optionally filtered) raw group, with per-group totals. Returns
// store.ErrNotFound when the playlist does not exist.
func BrowseGrouped(ctx context.Context, s store.Store, id int64, limitPerCategory int, f store.ChannelFilter) (*GroupedPage, error) {
	pl, err := s.GetPlaylistByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if limitPerCategory <= 0 {
		limitPerCategory = DefaultPageSize
	}

	titles, err := s.ListGroupTitles(ctx, id, f.Categories)
	if err != nil {
		return nil, fmt.Errorf("list group titles: %w", err)
	}

	groups := make([]GroupPage, 0, len(titles))
	for _, title := range titles {
		channels, total, err := s.ListChannelsByGroup(ctx, id, title, limitPerCategory, 0, f.Search)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", title, err)
		}
		groups = append(groups, GroupPage{
			GroupTitle: title,
			Channels:   channels,
			TotalCount: total,
			HasMore:    len(channels) < total,
		})
	}

	totalChannels, err := s.CountChannels(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count channels: %w", err)
	}

	return &GroupedPage{Playlist: *pl, Groups: groups, TotalChannels: totalChannels}, nil
}

// CategoryVocabulary derives the canonical category list shown to users:
// every raw group_title is split on ";", tags are trimmed, empties dropped,
// duplicates removed, and the result sorted.
func CategoryVocabulary(groupTitles []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, title := range groupTitles {
		for _, tag := range strings.Split(title, ";") {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}
