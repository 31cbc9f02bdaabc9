package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/channeldock/channeldock/internal/config"
	"github.com/channeldock/channeldock/internal/models"
	"github.com/channeldock/channeldock/internal/store"
)

type fakeStore struct {
	playlists []models.Playlist
	playlist  *models.Playlist
	channel   *models.Channel
	channels  []models.Channel
	total     int

	deletedID  int64
	lastFilter store.ChannelFilter
}

func (f *fakeStore) CreatePlaylistWithChannels(_ context.Context, pl *models.Playlist, channels []models.Channel) (*models.Playlist, error) {
	out := *pl
	out.ID = 1
	return &out, nil
}

func (f *fakeStore) ListPlaylists(context.Context) ([]models.Playlist, error) {
	return f.playlists, nil
}

func (f *fakeStore) GetPlaylistByID(_ context.Context, id int64) (*models.Playlist, error) {
	if f.playlist == nil || f.playlist.ID != id {
		return nil, store.ErrNotFound
	}
	return f.playlist, nil
}

func (f *fakeStore) DeletePlaylist(_ context.Context, id int64) error {
	f.deletedID = id
	return nil
}

func (f *fakeStore) ListChannelsByPlaylist(context.Context, int64) ([]models.Channel, error) {
	return f.channels, nil
}

func (f *fakeStore) ListChannelsAlphabetical(_ context.Context, _ int64, filter store.ChannelFilter) ([]models.Channel, int, error) {
	f.lastFilter = filter
	return f.channels, f.total, nil
}

func (f *fakeStore) ListChannelsByGroup(_ context.Context, _ int64, _ string, _, _ int, _ string) ([]models.Channel, int, error) {
	return f.channels, f.total, nil
}

func (f *fakeStore) ListGroupTitles(context.Context, int64, []string) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) CountChannels(context.Context, int64) (int, error) { return f.total, nil }

func (f *fakeStore) GetChannelByID(_ context.Context, id int64) (*models.Channel, error) {
	if f.channel == nil || f.channel.ID != id {
		return nil, store.ErrNotFound
	}
	return f.channel, nil
}

func (f *fakeStore) ListChannelsWithoutEmbeddings(context.Context, int64, int) ([]models.Channel, error) {
	return nil, nil
}

func (f *fakeStore) StoreEmbeddings(context.Context, []int64, [][]float32) error { return nil }

func (f *fakeStore) SemanticSearch(context.Context, []float32, *int64, int) ([]store.SemanticResult, error) {
	return nil, nil
}

func testServer(f *fakeStore) *Server {
	cfg := &config.Config{ServerPort: "8080", UserAgent: "test", Timeout: 5 * time.Second}
	return New(f, cfg, nil, nil)
}

func doRequest(t *testing.T, srv *Server, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	return w
}

func TestHealth(t *testing.T) {
	w := doRequest(t, testServer(&fakeStore{}), http.MethodGet, "/api/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestAddPlaylistValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing url", `{"name":"x"}`},
		{"bad scheme", `{"name":"x","url":"ftp://example.com/list.m3u"}`},
		{"not a url", `{"name":"x","url":"not a url"}`},
		{"invalid json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, testServer(&fakeStore{}), http.MethodPost, "/api/playlists", []byte(tt.body), "application/json")
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestAddPlaylistUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer upstream.Close()

	body := []byte(`{"name":"x","url":"` + upstream.URL + `"}`)
	w := doRequest(t, testServer(&fakeStore{}), http.MethodPost, "/api/playlists", body, "application/json")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
}

func TestAddPlaylistMalformedContent(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not an m3u file"))
	}))
	defer upstream.Close()

	body := []byte(`{"name":"x","url":"` + upstream.URL + `"}`)
	w := doRequest(t, testServer(&fakeStore{}), http.MethodPost, "/api/playlists", body, "application/json")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

func TestAddPlaylistSuccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\n#EXTINF:-1,One\nhttp://one\n"))
	}))
	defer upstream.Close()

	body := []byte(`{"name":"My List","url":"` + upstream.URL + `"}`)
	w := doRequest(t, testServer(&fakeStore{}), http.MethodPost, "/api/playlists", body, "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", w.Code, w.Body.String())
	}

	var pl models.Playlist
	if err := json.NewDecoder(w.Body).Decode(&pl); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if pl.Name != "My List" || pl.SourceType != models.SourceTypeURL {
		t.Errorf("playlist = %+v", pl)
	}
}

func TestUploadPlaylist(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("name", "Uploaded")
	fw, err := mw.CreateFormFile("file", "list.m3u")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("#EXTM3U\n#EXTINF:-1,One\nhttp://one\n"))
	_ = mw.Close()

	w := doRequest(t, testServer(&fakeStore{}), http.MethodPost, "/api/playlists/upload", buf.Bytes(), mw.FormDataContentType())
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", w.Code, w.Body.String())
	}

	var pl models.Playlist
	if err := json.NewDecoder(w.Body).Decode(&pl); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if pl.SourceType != models.SourceTypeFile {
		t.Errorf("SourceType = %q, want %q", pl.SourceType, models.SourceTypeFile)
	}
	if pl.FileName == nil || *pl.FileName != "list.m3u" {
		t.Errorf("FileName = %v, want list.m3u", pl.FileName)
	}
}

func TestUploadPlaylistMissingFile(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("name", "x")
	_ = mw.Close()

	w := doRequest(t, testServer(&fakeStore{}), http.MethodPost, "/api/playlists/upload", buf.Bytes(), mw.FormDataContentType())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetPlaylistNotFound(t *testing.T) {
	w := doRequest(t, testServer(&fakeStore{}), http.MethodGet, "/api/playlists/99", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	var apiErr APIError
	if err := json.NewDecoder(w.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Error != "Not Found" {
		t.Errorf("envelope = %+v", apiErr)
	}
}

func TestGetPlaylistBadID(t *testing.T) {
	w := doRequest(t, testServer(&fakeStore{}), http.MethodGet, "/api/playlists/abc", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestDeletePlaylistIdempotent(t *testing.T) {
	f := &fakeStore{}
	w := doRequest(t, testServer(f), http.MethodDelete, "/api/playlists/5", nil, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if f.deletedID != 5 {
		t.Errorf("deletedID = %d, want 5", f.deletedID)
	}

	// Same delete again still succeeds.
	w = doRequest(t, testServer(f), http.MethodDelete, "/api/playlists/5", nil, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("repeat status = %d, want 204", w.Code)
	}
}

func TestPlaylistChannelsFilterParsing(t *testing.T) {
	f := &fakeStore{total: 100}
	w := doRequest(t, testServer(f), http.MethodGet,
		"/api/playlists/1/channels?limit=10&offset=20&search=news&categories=News,%20Sports%20,", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}

	want := store.ChannelFilter{
		Categories: []string{"News", "Sports"},
		Search:     "news",
		Limit:      10,
		Offset:     20,
	}
	if !reflect.DeepEqual(f.lastFilter, want) {
		t.Errorf("filter = %+v, want %+v", f.lastFilter, want)
	}

	var page struct {
		TotalCount int  `json:"total_count"`
		HasMore    bool `json:"has_more"`
	}
	if err := json.NewDecoder(w.Body).Decode(&page); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if page.TotalCount != 100 || !page.HasMore {
		t.Errorf("page = %+v, want total 100 hasMore true", page)
	}
}

func TestPlaylistChannelsBadLimit(t *testing.T) {
	w := doRequest(t, testServer(&fakeStore{}), http.MethodGet, "/api/playlists/1/channels?limit=abc", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestPlaylistChannelsDefaultLimit(t *testing.T) {
	f := &fakeStore{}
	w := doRequest(t, testServer(f), http.MethodGet, "/api/playlists/1/channels", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if f.lastFilter.Limit != 30 {
		t.Errorf("default limit = %d, want 30", f.lastFilter.Limit)
	}
}

func TestSearchUnavailableWithoutEmbedder(t *testing.T) {
	w := doRequest(t, testServer(&fakeStore{}), http.MethodGet, "/api/channels/search?q=news", nil, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestGetChannel(t *testing.T) {
	f := &fakeStore{channel: &models.Channel{ID: 9, Name: "CNN", GroupTitle: "News"}}
	w := doRequest(t, testServer(f), http.MethodGet, "/api/channels/9", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "CNN") {
		t.Errorf("body = %s, want channel payload", w.Body.String())
	}

	w = doRequest(t, testServer(f), http.MethodGet, "/api/channels/10", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing channel status = %d, want 404", w.Code)
	}
}
