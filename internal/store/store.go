package store

import (
	"context"
	"errors"

	"github.com/channeldock/channeldock/internal/models"
)

// ErrNotFound is returned by lookups that find no row. It is an absence
// value, not a failure: the HTTP layer maps it to 404.
var ErrNotFound = errors.New("not found")

// Store defines persistence for playlists and their channels.
//
// Channels are owned exclusively by their playlist: they are created only as
// part of playlist ingestion and removed only by the cascade when the
// playlist is deleted.
type Store interface {
	// CreatePlaylistWithChannels inserts the playlist row and all channel
	// rows in one transaction. Channel sort_order is assigned from the slice
	// index (dense 0..N-1, original playlist order). Either everything is
	// durably inserted or the whole ingestion fails.
	CreatePlaylistWithChannels(ctx context.Context, p *models.Playlist, channels []models.Channel) (*models.Playlist, error)
	// ListPlaylists returns all playlists, newest first.
	ListPlaylists(ctx context.Context) ([]models.Playlist, error)
	// GetPlaylistByID returns a playlist or ErrNotFound.
	GetPlaylistByID(ctx context.Context, id int64) (*models.Playlist, error)
	// DeletePlaylist removes a playlist; owned channels go with it via the
	// cascade. Deleting an id that does not exist is a no-op.
	DeletePlaylist(ctx context.Context, id int64) error

	// ListChannelsByPlaylist returns every channel of the playlist in
	// original playlist order (sort_order).
	ListChannelsByPlaylist(ctx context.Context, playlistID int64) ([]models.Channel, error)
	// ListChannelsAlphabetical returns a page of channels ordered
	// case-insensitively by name, plus the total filtered count. The filter's
	// Categories match against the semicolon-delimited tag set packed into
	// group_title; Search is a case-insensitive substring match on name.
	ListChannelsAlphabetical(ctx context.Context, playlistID int64, f ChannelFilter) ([]models.Channel, int, error)
	// ListChannelsByGroup returns a page of channels whose raw group_title
	// equals group exactly (no tag splitting), in original playlist order,
	// plus the total count for that group/search.
	ListChannelsByGroup(ctx context.Context, playlistID int64, group string, limit, offset int, search string) ([]models.Channel, int, error)
	// ListGroupTitles returns the distinct raw group_title values of the
	// playlist, optionally restricted to titles whose tag set contains one of
	// the given categories.
	ListGroupTitles(ctx context.Context, playlistID int64, categories []string) ([]string, error)
	// CountChannels returns the unfiltered channel count of the playlist.
	CountChannels(ctx context.Context, playlistID int64) (int, error)
	// GetChannelByID returns a channel or ErrNotFound.
	GetChannelByID(ctx context.Context, id int64) (*models.Channel, error)

	// ListChannelsWithoutEmbeddings returns up to limit channels of the
	// playlist that have no stored embedding yet.
	ListChannelsWithoutEmbeddings(ctx context.Context, playlistID int64, limit int) ([]models.Channel, error)
	// StoreEmbeddings stores one embedding per channel id; the slices are
	// parallel.
	StoreEmbeddings(ctx context.Context, channelIDs []int64, embeddings [][]float32) error
	// SemanticSearch returns the channels nearest to queryVec by cosine
	// distance, optionally restricted to one playlist.
	SemanticSearch(ctx context.Context, queryVec []float32, playlistID *int64, limit int) ([]SemanticResult, error)
}

// ChannelFilter holds the optional filters of the alphabetical listing.
type ChannelFilter struct {
	Categories []string // tag-set membership on group_title; empty = no category filter
	Search     string   // case-insensitive substring match on name; empty = no search
	Limit      int
	Offset     int
}

// SemanticResult is a channel with its similarity score (1 = identical).
type SemanticResult struct {
	Channel    models.Channel `json:"channel"`
	Similarity float64        `json:"similarity"`
}
