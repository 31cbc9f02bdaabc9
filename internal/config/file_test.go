package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeTempConfig(t, `
database_url: postgres://localhost/channeldock
server_port: "9090"
redis_url: redis://localhost:6379/0
user_agent: VLC/3.0
timeout: 45s
voyage_api_key: vk-test
`)

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if c.DatabaseURL != "postgres://localhost/channeldock" {
		t.Errorf("DatabaseURL = %q", c.DatabaseURL)
	}
	if c.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", c.ServerPort)
	}
	if c.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %q", c.RedisURL)
	}
	if c.UserAgent != "VLC/3.0" {
		t.Errorf("UserAgent = %q", c.UserAgent)
	}
	if c.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", c.Timeout)
	}
	if c.VoyageAPIKey != "vk-test" {
		t.Errorf("VoyageAPIKey = %q", c.VoyageAPIKey)
	}
}

func TestLoadFromFileDefaults(t *testing.T) {
	path := writeTempConfig(t, "database_url: postgres://localhost/db\n")

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if c.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want default 8080", c.ServerPort)
	}
	if c.UserAgent != "ChannelDock/1.0" {
		t.Errorf("UserAgent = %q, want default", c.UserAgent)
	}
	if c.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want default 30s", c.Timeout)
	}
	if c.RedisURL != "" {
		t.Errorf("RedisURL = %q, want empty", c.RedisURL)
	}
}

func TestLoadFromFileMissingDatabaseURL(t *testing.T) {
	path := writeTempConfig(t, "server_port: \"9090\"\n")

	_, err := LoadFromFile(path)
	if !errors.Is(err, ErrMissingDatabaseURL) {
		t.Fatalf("error = %v, want ErrMissingDatabaseURL", err)
	}
}
