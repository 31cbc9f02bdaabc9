package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/channeldock/channeldock/api"
	"github.com/channeldock/channeldock/internal/cache"
	"github.com/channeldock/channeldock/internal/config"
	"github.com/channeldock/channeldock/internal/embedding"
	"github.com/channeldock/channeldock/internal/fetcher"
	"github.com/channeldock/channeldock/internal/models"
	"github.com/channeldock/channeldock/internal/parser"
	"github.com/channeldock/channeldock/internal/service"
	"github.com/channeldock/channeldock/internal/store"
)

// maxUploadSize caps multipart playlist uploads. Large provider lists run
// to a few hundred MB of text at most.
const maxUploadSize = 512 << 20

// Server holds dependencies for the HTTP API.
type Server struct {
	store    store.Store
	cfg      *config.Config
	rds      *cache.Redis      // nil when REDIS_URL is not set
	embedder *embedding.Client // nil when VOYAGE_API_KEY is not set
	mux      *http.ServeMux
}

// New creates a Server and registers routes.
// rds and embedder may be nil when caching or semantic search is not configured.
func New(s store.Store, cfg *config.Config, rds *cache.Redis, embedder *embedding.Client) *Server {
	srv := &Server{store: s, cfg: cfg, rds: rds, embedder: embedder, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Playlists
	s.mux.HandleFunc("GET /api/playlists", s.handleListPlaylists)
	s.mux.HandleFunc("POST /api/playlists", s.handleAddPlaylist)
	s.mux.HandleFunc("POST /api/playlists/upload", s.handleUploadPlaylist)
	s.mux.HandleFunc("GET /api/playlists/{id}", s.handleGetPlaylist)
	s.mux.HandleFunc("GET /api/playlists/{id}/browse", s.handleBrowsePlaylist)
	s.mux.HandleFunc("GET /api/playlists/{id}/channels", s.handlePlaylistChannels)
	s.mux.HandleFunc("GET /api/playlists/{id}/grouped", s.handlePlaylistGrouped)
	s.mux.HandleFunc("DELETE /api/playlists/{id}", s.handleDeletePlaylist)

	// Channels
	s.mux.HandleFunc("GET /api/channels/search", s.handleSearchChannels)
	s.mux.HandleFunc("GET /api/channels/{id}", s.handleGetChannel)

	// Docs
	s.mux.HandleFunc("GET /api/docs", handleSwaggerUI)
	s.mux.HandleFunc("GET /api/docs/openapi.yaml", handleOpenAPISpec)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      withCORS(withLogging(s)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- playlist handlers ---

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := s.store.ListPlaylists(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if playlists == nil {
		playlists = []models.Playlist{}
	}
	writeJSON(w, http.StatusOK, playlists)
}

type addPlaylistRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (s *Server) handleAddPlaylist(w http.ResponseWriter, r *http.Request) {
	var req addPlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.URL == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("url is required"))
		return
	}
	if u, err := url.ParseRequestURI(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("url must be a valid http or https URL"))
		return
	}
	if req.Name == "" {
		req.Name = "m3u"
	}

	pl, err := service.IngestFromURL(r.Context(), s.store, s.rds, req.Name, req.URL, s.cfg.UserAgent, s.cfg.Timeout, s.embedder != nil)
	if err != nil {
		writeIngestErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pl)
}

func (s *Server) handleUploadPlaylist(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("file is required"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	pl, err := service.IngestFromFile(r.Context(), s.store, s.rds, name, header.Filename, string(content), s.embedder != nil)
	if err != nil {
		writeIngestErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pl)
}

// writeIngestErr maps ingest failures to status codes: upstream fetch
// failures to 502, malformed M3U content to 422, a concurrent ingest of
// the same URL to 409.
func writeIngestErr(w http.ResponseWriter, err error) {
	var statusErr *fetcher.StatusError
	switch {
	case errors.Is(err, service.ErrIngestInProgress):
		writeErr(w, http.StatusConflict, err)
	case errors.As(err, &statusErr):
		writeErr(w, http.StatusBadGateway, err)
	case errors.Is(err, parser.ErrMalformedPlaylist):
		writeErr(w, http.StatusUnprocessableEntity, err)
	default:
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("ingest: %w", err))
	}
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	playlistID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	detail, err := service.GetPlaylistWithChannels(r.Context(), s.store, playlistID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("playlist %d not found", playlistID))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleBrowsePlaylist(w http.ResponseWriter, r *http.Request) {
	playlistID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	filter, err := channelFilterFromQuery(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	page, err := service.BrowseAlphabetical(r.Context(), s.store, playlistID, filter)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("playlist %d not found", playlistID))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handlePlaylistChannels(w http.ResponseWriter, r *http.Request) {
	playlistID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	filter, err := channelFilterFromQuery(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	// A single category parameter selects the exact-group view ordered by
	// playlist position; everything else is the alphabetical paged view.
	if category := r.URL.Query().Get("category"); category != "" {
		page, err := service.ChannelsByCategory(r.Context(), s.store, playlistID, category, filter.Limit, filter.Offset, filter.Search)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
		return
	}

	page, err := service.ChannelsAlphabetical(r.Context(), s.store, playlistID, filter)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handlePlaylistGrouped(w http.ResponseWriter, r *http.Request) {
	playlistID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	filter, err := channelFilterFromQuery(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	limitPerCategory := 10
	if v := r.URL.Query().Get("limit_per_category"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit_per_category: %s", v))
			return
		}
		limitPerCategory = n
	}

	page, err := service.BrowseGrouped(r.Context(), s.store, playlistID, limitPerCategory, filter)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("playlist %d not found", playlistID))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	playlistID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	// Deleting a playlist that does not exist is a no-op, not an error.
	if err := s.store.DeletePlaylist(r.Context(), playlistID); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	writeNoContent(w)
}

// --- channel handlers ---

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	ch, err := s.store.GetChannelByID(r.Context(), channelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("channel %d not found", channelID))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

// --- semantic search handler ---

func (s *Server) handleSearchChannels(w http.ResponseWriter, r *http.Request) {
	if s.embedder == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("semantic search is not configured (VOYAGE_API_KEY not set)"))
		return
	}

	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("q parameter is required"))
		return
	}

	var playlistID *int64
	if v := q.Get("playlist_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid playlist_id: %s", v))
			return
		}
		playlistID = &id
	}

	limit := 20
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", v))
			return
		}
		limit = n
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	vecs, err := s.embedder.Embed(r.Context(), []string{query}, "query")
	if err != nil {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("embed query: %w", err))
		return
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("empty embedding returned"))
		return
	}

	results, err := s.store.SemanticSearch(r.Context(), vecs[0], playlistID, limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if results == nil {
		results = []store.SemanticResult{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channels": results,
		"limit":    limit,
	})
}

// channelFilterFromQuery builds a ChannelFilter from the shared query
// parameters: limit, offset, search, and a comma-separated categories list.
func channelFilterFromQuery(r *http.Request) (store.ChannelFilter, error) {
	q := r.URL.Query()

	filter := store.ChannelFilter{
		Search: q.Get("search"),
	}

	if v := q.Get("categories"); v != "" {
		for _, c := range strings.Split(v, ",") {
			c = strings.TrimSpace(c)
			if c != "" {
				filter.Categories = append(filter.Categories, c)
			}
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, fmt.Errorf("invalid limit: %s", v)
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, fmt.Errorf("invalid offset: %s", v)
		}
		filter.Offset = n
	}

	// Apply defaults so the response reflects actual values used.
	if filter.Limit <= 0 {
		filter.Limit = service.DefaultPageSize
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	return filter, nil
}

// --- middleware ---

// withCORS adds CORS headers to every response and handles preflight OPTIONS requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withLogging wraps a handler and logs each request with method, path, status, and duration.
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		statusCode := sw.status

		// Color the status code for terminal readability.
		statusColor := colorForStatus(statusCode)
		methodColor := colorForMethod(r.Method)

		log.Printf("%s %-7s %s\x1b[0m  %s %3d %s\x1b[0m  %s",
			methodColor, r.Method, "\x1b[0m",
			statusColor, statusCode, "\x1b[0m",
			formatDuration(duration),
		)
		if r.URL.RawQuery != "" {
			log.Printf("         %s?%s", r.URL.Path, r.URL.RawQuery)
		} else {
			log.Printf("         %s", r.URL.Path)
		}
	})
}

func colorForStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "\x1b[32m" // green
	case code >= 300 && code < 400:
		return "\x1b[36m" // cyan
	case code >= 400 && code < 500:
		return "\x1b[33m" // yellow
	default:
		return "\x1b[31m" // red
	}
}

func colorForMethod(method string) string {
	switch method {
	case http.MethodGet:
		return "\x1b[36m" // cyan
	case http.MethodPost:
		return "\x1b[32m" // green
	case http.MethodPatch, http.MethodPut:
		return "\x1b[33m" // yellow
	case http.MethodDelete:
		return "\x1b[31m" // red
	default:
		return "\x1b[37m" // white
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dus", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// --- helpers ---

// APIError is the standard error envelope for all error responses.
type APIError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// parseID extracts a path parameter by name and parses it as int64.
func parseID(r *http.Request, param string) (int64, error) {
	v := r.PathValue(param)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", param, v)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: %v", err)
	}
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		log.Printf("ERROR %d: %v", status, err)
	}
	writeJSON(w, status, APIError{
		Status: status,
		Error:  http.StatusText(status),
		Detail: err.Error(),
	})
}

// --- docs handlers ---

func handleOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(api.OpenAPISpec)
}

func handleSwaggerUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, swaggerUIHTML)
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>ChannelDock API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
  <style>html{box-sizing:border-box;overflow-y:scroll}*,*:before,*:after{box-sizing:inherit}body{margin:0;background:#fafafa}</style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/api/docs/openapi.yaml",
      dom_id: "#swagger-ui",
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: "BaseLayout",
    });
  </script>
</body>
</html>`
