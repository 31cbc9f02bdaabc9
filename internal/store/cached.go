package store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/channeldock/channeldock/internal/cache"
	"github.com/channeldock/channeldock/internal/models"
)

// Cache TTLs for different entity types. Playlists are immutable after
// ingestion, so the TTLs mostly guard against cross-instance deletes.
const (
	ttlPlaylists = 2 * time.Minute
	ttlPlaylist  = 5 * time.Minute
	ttlChannels  = 2 * time.Minute
	ttlChannel   = 5 * time.Minute
	ttlGroups    = 5 * time.Minute
	ttlSearch    = 2 * time.Minute
)

// CachedStore wraps a Store with a Redis caching layer. Read-heavy
// operations are served from cache when possible; ingestion and deletion
// invalidate the relevant keys.
type CachedStore struct {
	inner Store
	cache *cache.Redis
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis) *CachedStore {
	return &CachedStore{inner: inner, cache: c}
}

// --- cached read operations ---

func (c *CachedStore) ListPlaylists(ctx context.Context) ([]models.Playlist, error) {
	const key = "playlists:all"
	if v, err := cache.Get[[]models.Playlist](ctx, c.cache, key); err == nil {
		return v, nil
	}
	playlists, err := c.inner.ListPlaylists(ctx)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, playlists, ttlPlaylists); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return playlists, nil
}

func (c *CachedStore) GetPlaylistByID(ctx context.Context, id int64) (*models.Playlist, error) {
	key := fmt.Sprintf("playlist:%d", id)
	if v, err := cache.Get[models.Playlist](ctx, c.cache, key); err == nil {
		return &v, nil
	}
	pl, err := c.inner.GetPlaylistByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, pl, ttlPlaylist); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return pl, nil
}

// channelPageResult caches the page+total tuple of the paged listings.
type channelPageResult struct {
	Channels []models.Channel `json:"channels"`
	Total    int              `json:"total"`
}

func (c *CachedStore) ListChannelsAlphabetical(ctx context.Context, playlistID int64, f ChannelFilter) ([]models.Channel, int, error) {
	key := fmt.Sprintf("channels:alpha:%d:%s", playlistID, filterHash(f))
	if v, err := cache.Get[channelPageResult](ctx, c.cache, key); err == nil {
		return v.Channels, v.Total, nil
	}
	channels, total, err := c.inner.ListChannelsAlphabetical(ctx, playlistID, f)
	if err != nil {
		return nil, 0, err
	}
	if err := cache.Set(ctx, c.cache, key, channelPageResult{Channels: channels, Total: total}, ttlChannels); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return channels, total, nil
}

func (c *CachedStore) ListChannelsByGroup(ctx context.Context, playlistID int64, group string, limit, offset int, search string) ([]models.Channel, int, error) {
	key := fmt.Sprintf("channels:group:%d:%s", playlistID, keyHash(group, search, limit, offset))
	if v, err := cache.Get[channelPageResult](ctx, c.cache, key); err == nil {
		return v.Channels, v.Total, nil
	}
	channels, total, err := c.inner.ListChannelsByGroup(ctx, playlistID, group, limit, offset, search)
	if err != nil {
		return nil, 0, err
	}
	if err := cache.Set(ctx, c.cache, key, channelPageResult{Channels: channels, Total: total}, ttlChannels); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return channels, total, nil
}

func (c *CachedStore) ListGroupTitles(ctx context.Context, playlistID int64, categories []string) ([]string, error) {
	key := fmt.Sprintf("groups:%d:%s", playlistID, keyHash(strings.Join(categories, ";")))
	if v, err := cache.Get[[]string](ctx, c.cache, key); err == nil {
		return v, nil
	}
	groups, err := c.inner.ListGroupTitles(ctx, playlistID, categories)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, groups, ttlGroups); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return groups, nil
}

func (c *CachedStore) GetChannelByID(ctx context.Context, id int64) (*models.Channel, error) {
	key := fmt.Sprintf("channel:%d", id)
	if v, err := cache.Get[models.Channel](ctx, c.cache, key); err == nil {
		return &v, nil
	}
	ch, err := c.inner.GetChannelByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, ch, ttlChannel); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return ch, nil
}

// semanticSearchResult caches the SemanticSearch return value.
type semanticSearchResult struct {
	Results []SemanticResult `json:"results"`
}

func (c *CachedStore) SemanticSearch(ctx context.Context, queryVec []float32, playlistID *int64, limit int) ([]SemanticResult, error) {
	pid := int64(-1)
	if playlistID != nil {
		pid = *playlistID
	}
	key := fmt.Sprintf("search:%s:%s", vecHash(queryVec), keyHash(pid, limit))
	if v, err := cache.Get[semanticSearchResult](ctx, c.cache, key); err == nil {
		return v.Results, nil
	}
	results, err := c.inner.SemanticSearch(ctx, queryVec, playlistID, limit)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, semanticSearchResult{Results: results}, ttlSearch); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return results, nil
}

// --- write operations with cache invalidation ---

func (c *CachedStore) CreatePlaylistWithChannels(ctx context.Context, pl *models.Playlist, channels []models.Channel) (*models.Playlist, error) {
	out, err := c.inner.CreatePlaylistWithChannels(ctx, pl, channels)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, "playlists:all")
	return out, nil
}

func (c *CachedStore) DeletePlaylist(ctx context.Context, id int64) error {
	if err := c.inner.DeletePlaylist(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, fmt.Sprintf("playlist:%d", id), "playlists:all")
	c.invalidatePattern(ctx, "channels:*", "channel:*", "groups:*", "search:*")
	return nil
}

func (c *CachedStore) StoreEmbeddings(ctx context.Context, channelIDs []int64, embeddings [][]float32) error {
	if err := c.inner.StoreEmbeddings(ctx, channelIDs, embeddings); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "search:*")
	return nil
}

// --- passthrough (no caching) ---

func (c *CachedStore) ListChannelsByPlaylist(ctx context.Context, playlistID int64) ([]models.Channel, error) {
	return c.inner.ListChannelsByPlaylist(ctx, playlistID)
}

func (c *CachedStore) CountChannels(ctx context.Context, playlistID int64) (int, error) {
	return c.inner.CountChannels(ctx, playlistID)
}

func (c *CachedStore) ListChannelsWithoutEmbeddings(ctx context.Context, playlistID int64, limit int) ([]models.Channel, error) {
	return c.inner.ListChannelsWithoutEmbeddings(ctx, playlistID, limit)
}

// --- helpers ---

// invalidate deletes exact cache keys, logging any errors.
func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := cache.Del(ctx, c.cache, keys...); err != nil && err != redis.Nil {
		log.Printf("cache: del %v: %v", keys, err)
	}
}

// invalidatePattern deletes all keys matching the given glob patterns.
func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil {
			log.Printf("cache: del pattern %s: %v", p, err)
		}
	}
}

// filterHash produces a short deterministic hash for a ChannelFilter so it
// can be used as part of a cache key.
func filterHash(f ChannelFilter) string {
	return keyHash(strings.Join(f.Categories, ";"), f.Search, f.Limit, f.Offset)
}

// keyHash hashes arbitrary values into a short cache-key component.
func keyHash(parts ...any) string {
	raw := fmt.Sprintln(parts...)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}

// vecHash produces a short hash for a float32 vector.
func vecHash(v []float32) string {
	raw := fmt.Sprintf("%v", v)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}
