// Package service orchestrates ingestion and the read-side compositions the
// HTTP layer exposes. It owns no state; dependencies are passed in.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/channeldock/channeldock/internal/cache"
	"github.com/channeldock/channeldock/internal/fetcher"
	"github.com/channeldock/channeldock/internal/models"
	"github.com/channeldock/channeldock/internal/parser"
	"github.com/channeldock/channeldock/internal/store"
)

// ErrIngestInProgress is returned when another ingestion of the same URL
// currently holds the Redis lock.
var ErrIngestInProgress = errors.New("an ingestion of this URL is already in progress")

// ingestLockTTL bounds how long a crashed ingestion can block the next one.
const ingestLockTTL = 2 * time.Minute

// IngestFromURL fetches url, parses it, and inserts the playlist with all of
// its channels in one transaction. Fetch and parse failures abort before any
// row is written. rds is optional; when present it serializes concurrent
// ingestions of the same URL and, if enqueueEmbed is set, queues a background
// embedding job for the new playlist.
func IngestFromURL(ctx context.Context, s store.Store, rds *cache.Redis, name, url, userAgent string, timeout time.Duration, enqueueEmbed bool) (*models.Playlist, error) {
	if url == "" {
		return nil, fmt.Errorf("playlist URL is required")
	}

	if rds != nil {
		unlock, err := cache.TryLock(ctx, rds, cache.IngestLockKey(url), ingestLockTTL)
		if err != nil {
			if errors.Is(err, cache.ErrLocked) {
				return nil, ErrIngestInProgress
			}
			return nil, fmt.Errorf("ingest lock: %w", err)
		}
		defer unlock()
	}

	content, err := fetcher.FetchPlaylist(ctx, url, userAgent, timeout)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	records, err := parser.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	pl := &models.Playlist{Name: name, URL: &url, SourceType: models.SourceTypeURL}
	return insertPlaylist(ctx, s, rds, pl, records, enqueueEmbed)
}

// IngestFromFile parses already-uploaded content and inserts the playlist.
// No network I/O is performed.
func IngestFromFile(ctx context.Context, s store.Store, rds *cache.Redis, name, fileName, content string, enqueueEmbed bool) (*models.Playlist, error) {
	records, err := parser.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	pl := &models.Playlist{Name: name, FileName: &fileName, SourceType: models.SourceTypeFile}
	return insertPlaylist(ctx, s, rds, pl, records, enqueueEmbed)
}

func insertPlaylist(ctx context.Context, s store.Store, rds *cache.Redis, pl *models.Playlist, records []parser.ChannelRecord, enqueueEmbed bool) (*models.Playlist, error) {
	out, err := s.CreatePlaylistWithChannels(ctx, pl, recordsToChannels(records))
	if err != nil {
		return nil, fmt.Errorf("insert playlist: %w", err)
	}

	if rds != nil && enqueueEmbed && len(records) > 0 {
		job := cache.EmbeddingJob{PlaylistID: out.ID, PlaylistName: out.Name}
		if err := cache.Enqueue(ctx, rds, cache.DefaultQueue, job); err != nil {
			// The playlist is already durable; embedding is best-effort.
			log.Printf("ingest: enqueue embedding job for playlist %d: %v", out.ID, err)
		}
	}
	return out, nil
}

// recordsToChannels maps parsed records to channel rows. sort_order is
// assigned by the store from the slice index.
func recordsToChannels(records []parser.ChannelRecord) []models.Channel {
	channels := make([]models.Channel, len(records))
	for i, rec := range records {
		channels[i] = models.Channel{
			Name:       rec.Name,
			URL:        rec.URL,
			Logo:       rec.Logo,
			GroupTitle: rec.GroupTitle,
			TvgID:      rec.TvgID,
			TvgName:    rec.TvgName,
		}
	}
	return channels
}
