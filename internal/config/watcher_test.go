package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func watcherYAML(port int, serviceURL string) string {
	return `
server:
  port: ` + strconv.Itoa(port) + `
ecosystem:
  services:
    - key: genesis
      url: ` + serviceURL + `
      health: /health
`
}

func waitForConfig(t *testing.T, ch <-chan *Config) *Config {
	t.Helper()
	select {
	case cfg := <-ch:
		return cfg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
		return nil
	}
}

func TestWatcher(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ecogateway.yaml")

	if err := os.WriteFile(configPath, []byte(watcherYAML(8080, "https://genesis.example.com")), 0644); err != nil {
		t.Fatal(err)
	}

	changes := make(chan *Config, 16)
	watcherConfig := &WatcherConfig{
		DebounceDuration: 100 * time.Millisecond,
		OnChange: func(cfg *Config) error {
			changes <- cfg
			return nil
		},
		OnError: func(err error) {
			t.Errorf("Watcher error: %v", err)
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	watcher, err := NewWatcher(configPath, watcherConfig, logger)
	if err != nil {
		t.Fatal(err)
	}
	watcher.Start()
	defer watcher.Stop()

	if watcher.Path() != configPath {
		t.Errorf("Path() = %q, want %q", watcher.Path(), configPath)
	}

	// Give watcher time to start
	time.Sleep(100 * time.Millisecond)

	t.Run("FileModification", func(t *testing.T) {
		if err := os.WriteFile(configPath, []byte(watcherYAML(8081, "https://genesis-2.example.com")), 0644); err != nil {
			t.Fatal(err)
		}

		cfg := waitForConfig(t, changes)
		if cfg.Server.Port != 8081 {
			t.Errorf("expected port 8081, got %d", cfg.Server.Port)
		}
		if cfg.Ecosystem.Services[0].URL != "https://genesis-2.example.com" {
			t.Errorf("service table not reloaded: %+v", cfg.Ecosystem.Services)
		}
	})

	t.Run("Debouncing", func(t *testing.T) {
		// Let any trailing event from the previous write settle
		time.Sleep(250 * time.Millisecond)
		for len(changes) > 0 {
			<-changes
		}

		for i := 0; i < 3; i++ {
			if err := os.WriteFile(configPath, []byte(watcherYAML(8082+i, "https://genesis.example.com")), 0644); err != nil {
				t.Fatal(err)
			}
			time.Sleep(20 * time.Millisecond) // Less than debounce duration
		}

		cfg := waitForConfig(t, changes)
		if cfg.Server.Port != 8084 {
			t.Errorf("expected the last write to win, got port %d", cfg.Server.Port)
		}

		time.Sleep(250 * time.Millisecond)
		if extra := len(changes); extra != 0 {
			t.Errorf("expected a single reload after debouncing, got %d more", extra)
		}
	})
}

func TestWatcherValidation(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ecogateway.yaml")

	if err := os.WriteFile(configPath, []byte(watcherYAML(8080, "https://genesis.example.com")), 0644); err != nil {
		t.Fatal(err)
	}

	errs := make(chan error, 16)
	watcherConfig := &WatcherConfig{
		DebounceDuration: 50 * time.Millisecond,
		OnChange: func(cfg *Config) error {
			t.Error("Should not call OnChange for invalid config")
			return nil
		},
		OnError: func(err error) {
			errs <- err
		},
	}

	watcher, err := NewWatcher(configPath, watcherConfig, nil)
	if err != nil {
		t.Fatal(err)
	}
	watcher.Start()
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)

	// Invalid port and a relative service URL
	if err := os.WriteFile(configPath, []byte(watcherYAML(-1, "not-a-url")), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-errs:
	case <-time.After(3 * time.Second):
		t.Error("Expected validation error")
	}
}

func TestNewWatcher_MissingFile(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil, nil); err == nil {
		t.Error("expected error watching a missing file")
	}
}
