// Package config loads runtime configuration for the archiver: the
// GitHub credentials file and its change notifications.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// GitHub holds the remote credentials: a personal access token and the
// "owner/repo" spec.
type GitHub struct {
	Token string `json:"token"`
	Repo  string `json:"repo"`
}

// LoadGitHub reads the credentials file. An absent file is not an
// error; it returns a zero config so the archiver runs local-only.
func LoadGitHub(path string) (GitHub, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return GitHub{}, nil
	}
	if err != nil {
		return GitHub{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg GitHub
	if err := json.Unmarshal(data, &cfg); err != nil {
		return GitHub{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Watch invokes fn with the re-read config whenever the credentials file
// changes, until ctx is done. Lets tokens rotate without a restart.
func Watch(ctx context.Context, path string, fn func(GitHub)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory: editors replace files, which drops a watch on
	// the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				cfg, err := LoadGitHub(path)
				if err != nil {
					slog.Warn("Failed to reload config", "path", path, "err", err)
					continue
				}
				slog.Info("Config reloaded", "path", path)
				fn(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Config watcher error", "err", err)
			}
		}
	}()
	return nil
}
