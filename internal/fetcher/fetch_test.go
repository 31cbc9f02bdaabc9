package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchPlaylistReturnsBody(t *testing.T) {
	const body = "#EXTM3U\n#EXTINF:-1,A\nhttp://a\n"
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	got, err := FetchPlaylist(context.Background(), srv.URL, "ChannelDock/1.0", 5*time.Second)
	if err != nil {
		t.Fatalf("FetchPlaylist() error = %v", err)
	}
	if got != body {
		t.Errorf("body = %q, want %q", got, body)
	}
	if gotUA != "ChannelDock/1.0" {
		t.Errorf("User-Agent = %q, want ChannelDock/1.0", gotUA)
	}
}

func TestFetchPlaylistNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := FetchPlaylist(context.Background(), srv.URL, "", 5*time.Second)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusNotFound {
		t.Errorf("Code = %d, want %d", statusErr.Code, http.StatusNotFound)
	}
	if statusErr.Status == "" {
		t.Error("Status text is empty, want transport status text")
	}
}

func TestFetchPlaylistNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	_, err := FetchPlaylist(context.Background(), srv.URL, "", time.Second)
	if err == nil {
		t.Fatal("FetchPlaylist() error = nil, want transport error")
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		t.Errorf("error = %v, want plain transport error, not StatusError", err)
	}
}
