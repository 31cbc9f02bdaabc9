package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/channeldock/channeldock/internal/models"
)

// Batch sizing for the channel insert. The Postgres extended protocol caps
// bind parameters per statement at uint16, so rows are inserted in batches of
// maxBindParams / columns-per-row rather than one unbounded statement.
// Batching is invisible to callers; the surrounding transaction makes the
// whole ingestion all-or-nothing.
const (
	maxBindParams        = 65535
	channelInsertColumns = 8
)

var channelBatchSize = maxBindParams / channelInsertColumns

const channelColumns = "id, playlist_id, name, url, logo, group_title, tvg_id, tvg_name, sort_order"

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// CreatePlaylistWithChannels inserts the playlist and its channels in one
// transaction; any failure rolls the whole ingestion back.
func (p *Postgres) CreatePlaylistWithChannels(ctx context.Context, pl *models.Playlist, channels []models.Channel) (*models.Playlist, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	out := *pl
	err = tx.QueryRow(ctx,
		`INSERT INTO playlists (name, url, source_type, file_name)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		pl.Name, pl.URL, pl.SourceType, pl.FileName,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert playlist: %w", err)
	}

	for start := 0; start < len(channels); start += channelBatchSize {
		end := start + channelBatchSize
		if end > len(channels) {
			end = len(channels)
		}
		if err := insertChannelBatch(ctx, tx, out.ID, channels, start, end); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &out, nil
}

// insertChannelBatch inserts channels[start:end] with one multi-row INSERT.
// sort_order is the absolute slice index, preserving original playlist order
// across batches.
func insertChannelBatch(ctx context.Context, tx pgx.Tx, playlistID int64, channels []models.Channel, start, end int) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO channels (playlist_id, name, url, logo, group_title, tvg_id, tvg_name, sort_order) VALUES `)
	args := make([]any, 0, (end-start)*channelInsertColumns)
	for i := start; i < end; i++ {
		ch := channels[i]
		if i > start {
			sb.WriteString(", ")
		}
		base := len(args)
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		args = append(args, playlistID, ch.Name, ch.URL, ch.Logo, ch.GroupTitle, ch.TvgID, ch.TvgName, i)
	}
	if _, err := tx.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert channels [%d:%d]: %w", start, end, err)
	}
	return nil
}

// ListPlaylists returns all playlists, newest first.
func (p *Postgres) ListPlaylists(ctx context.Context) ([]models.Playlist, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, url, source_type, file_name, created_at, updated_at
		 FROM playlists ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListPlaylists: %w", err)
	}
	defer rows.Close()

	var out []models.Playlist
	for rows.Next() {
		var pl models.Playlist
		if err := rows.Scan(&pl.ID, &pl.Name, &pl.URL, &pl.SourceType, &pl.FileName, &pl.CreatedAt, &pl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListPlaylists scan: %w", err)
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}

// GetPlaylistByID returns a playlist or ErrNotFound.
func (p *Postgres) GetPlaylistByID(ctx context.Context, id int64) (*models.Playlist, error) {
	var pl models.Playlist
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, url, source_type, file_name, created_at, updated_at
		 FROM playlists WHERE id = $1`, id,
	).Scan(&pl.ID, &pl.Name, &pl.URL, &pl.SourceType, &pl.FileName, &pl.CreatedAt, &pl.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetPlaylistByID: %w", err)
	}
	return &pl, nil
}

// DeletePlaylist removes the playlist row; the channels FK cascade removes
// owned channels. Deleting a missing id is a no-op.
func (p *Postgres) DeletePlaylist(ctx context.Context, id int64) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM playlists WHERE id = $1`, id); err != nil {
		return fmt.Errorf("DeletePlaylist: %w", err)
	}
	return nil
}

// ListChannelsByPlaylist returns all channels in original playlist order.
func (p *Postgres) ListChannelsByPlaylist(ctx context.Context, playlistID int64) ([]models.Channel, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE playlist_id = $1 ORDER BY sort_order`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("ListChannelsByPlaylist: %w", err)
	}
	defer rows.Close()
	return scanChannels(rows)
}

// ListChannelsAlphabetical returns a page ordered case-insensitively by name
// (independent of sort_order) and the total filtered count.
func (p *Postgres) ListChannelsAlphabetical(ctx context.Context, playlistID int64, f ChannelFilter) ([]models.Channel, int, error) {
	where, args := channelFilterWhere(playlistID, f)

	limitArgs := append(args, f.Limit, f.Offset)
	rows, err := p.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM channels WHERE %s ORDER BY lower(name), id LIMIT $%d OFFSET $%d`,
			channelColumns, where, len(args)+1, len(args)+2),
		limitArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListChannelsAlphabetical: %w", err)
	}
	defer rows.Close()
	channels, err := scanChannels(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM channels WHERE %s`, where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListChannelsAlphabetical count: %w", err)
	}
	return channels, total, nil
}

// ListChannelsByGroup matches the raw group_title exactly (no tag splitting)
// and pages in original playlist order.
func (p *Postgres) ListChannelsByGroup(ctx context.Context, playlistID int64, group string, limit, offset int, search string) ([]models.Channel, int, error) {
	b := &condBuilder{}
	b.add("playlist_id = %s", playlistID)
	b.add("group_title = %s", group)
	if search != "" {
		b.add("name ILIKE '%%' || %s || '%%'", search)
	}
	where, args := b.where(), b.args

	limitArgs := append(args, limit, offset)
	rows, err := p.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM channels WHERE %s ORDER BY sort_order LIMIT $%d OFFSET $%d`,
			channelColumns, where, len(args)+1, len(args)+2),
		limitArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListChannelsByGroup: %w", err)
	}
	defer rows.Close()
	channels, err := scanChannels(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM channels WHERE %s`, where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListChannelsByGroup count: %w", err)
	}
	return channels, total, nil
}

// ListGroupTitles returns distinct raw group_title values, optionally
// restricted by tag-set membership.
func (p *Postgres) ListGroupTitles(ctx context.Context, playlistID int64, categories []string) ([]string, error) {
	b := &condBuilder{}
	b.add("playlist_id = %s", playlistID)
	b.addCategories(categories)

	rows, err := p.pool.Query(ctx,
		fmt.Sprintf(`SELECT DISTINCT group_title FROM channels WHERE %s ORDER BY group_title`, b.where()),
		b.args...)
	if err != nil {
		return nil, fmt.Errorf("ListGroupTitles: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("ListGroupTitles scan: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CountChannels returns the unfiltered channel count of the playlist.
func (p *Postgres) CountChannels(ctx context.Context, playlistID int64) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM channels WHERE playlist_id = $1`, playlistID).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountChannels: %w", err)
	}
	return n, nil
}

// GetChannelByID returns a channel or ErrNotFound.
func (p *Postgres) GetChannelByID(ctx context.Context, id int64) (*models.Channel, error) {
	var ch models.Channel
	err := p.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = $1`, id,
	).Scan(&ch.ID, &ch.PlaylistID, &ch.Name, &ch.URL, &ch.Logo, &ch.GroupTitle, &ch.TvgID, &ch.TvgName, &ch.SortOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetChannelByID: %w", err)
	}
	return &ch, nil
}

// ListChannelsWithoutEmbeddings returns up to limit channels lacking a stored
// embedding.
func (p *Postgres) ListChannelsWithoutEmbeddings(ctx context.Context, playlistID int64, limit int) ([]models.Channel, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+channelColumns+` FROM channels
		 WHERE playlist_id = $1 AND embedding IS NULL
		 ORDER BY sort_order LIMIT $2`, playlistID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListChannelsWithoutEmbeddings: %w", err)
	}
	defer rows.Close()
	return scanChannels(rows)
}

// StoreEmbeddings stores one embedding per channel id (parallel slices).
func (p *Postgres) StoreEmbeddings(ctx context.Context, channelIDs []int64, embeddings [][]float32) error {
	if len(channelIDs) != len(embeddings) {
		return fmt.Errorf("StoreEmbeddings: %d ids but %d embeddings", len(channelIDs), len(embeddings))
	}
	batch := &pgx.Batch{}
	for i, id := range channelIDs {
		batch.Queue(`UPDATE channels SET embedding = $1 WHERE id = $2`, pgvector.NewVector(embeddings[i]), id)
	}
	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range channelIDs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("StoreEmbeddings: %w", err)
		}
	}
	return nil
}

// SemanticSearch returns the channels nearest to queryVec by cosine distance.
func (p *Postgres) SemanticSearch(ctx context.Context, queryVec []float32, playlistID *int64, limit int) ([]SemanticResult, error) {
	b := &condBuilder{}
	b.conds = append(b.conds, "embedding IS NOT NULL")
	if playlistID != nil {
		b.add("playlist_id = %s", *playlistID)
	}
	b.args = append(b.args, pgvector.NewVector(queryVec))
	vecArg := len(b.args)
	b.args = append(b.args, limit)

	rows, err := p.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s, 1 - (embedding <=> $%d) AS similarity
		 FROM channels WHERE %s ORDER BY embedding <=> $%d LIMIT $%d`,
			channelColumns, vecArg, b.where(), vecArg, vecArg+1),
		b.args...)
	if err != nil {
		return nil, fmt.Errorf("SemanticSearch: %w", err)
	}
	defer rows.Close()

	var out []SemanticResult
	for rows.Next() {
		var r SemanticResult
		ch := &r.Channel
		if err := rows.Scan(&ch.ID, &ch.PlaylistID, &ch.Name, &ch.URL, &ch.Logo, &ch.GroupTitle, &ch.TvgID, &ch.TvgName, &ch.SortOrder, &r.Similarity); err != nil {
			return nil, fmt.Errorf("SemanticSearch scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanChannels(rows pgx.Rows) ([]models.Channel, error) {
	var out []models.Channel
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(&ch.ID, &ch.PlaylistID, &ch.Name, &ch.URL, &ch.Logo, &ch.GroupTitle, &ch.TvgID, &ch.TvgName, &ch.SortOrder); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}
