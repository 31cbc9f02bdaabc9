package service

import (
	"context"
	"fmt"
	"log"

	"github.com/channeldock/channeldock/internal/embedding"
	"github.com/channeldock/channeldock/internal/store"
)

// embedFetchBatch bounds how many channels are pulled from the store per
// round; the embedder batches API calls internally below that.
const embedFetchBatch = 256

// RefreshEmbeddings embeds the names of all channels of the playlist that do
// not have an embedding yet and stores the vectors. It returns the number of
// channels embedded. Safe to re-run; already-embedded channels are skipped.
func RefreshEmbeddings(ctx context.Context, s store.Store, embedder *embedding.Client, playlistID int64, playlistName string) (int, error) {
	embedded := 0
	for {
		if err := ctx.Err(); err != nil {
			return embedded, fmt.Errorf("embedding refresh cancelled: %w", err)
		}

		channels, err := s.ListChannelsWithoutEmbeddings(ctx, playlistID, embedFetchBatch)
		if err != nil {
			return embedded, fmt.Errorf("ListChannelsWithoutEmbeddings: %w", err)
		}
		if len(channels) == 0 {
			return embedded, nil
		}

		texts := make([]string, len(channels))
		ids := make([]int64, len(channels))
		for i, ch := range channels {
			texts[i] = ch.Name
			ids[i] = ch.ID
		}

		vecs, err := embedder.EmbedBatch(ctx, texts, "document", 0)
		if err != nil {
			return embedded, fmt.Errorf("embed: %w", err)
		}
		if err := s.StoreEmbeddings(ctx, ids, vecs); err != nil {
			return embedded, fmt.Errorf("StoreEmbeddings: %w", err)
		}

		embedded += len(channels)
		log.Printf("embeddings[%s]: %d channels embedded so far", playlistName, embedded)
	}
}
