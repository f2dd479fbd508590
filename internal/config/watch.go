package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 100 * time.Millisecond

// Watch reloads the configuration whenever one of its candidate files
// changes and passes the result to onChange. Invalid files are logged and
// skipped. Directories are watched rather than files so editors that
// replace files on save are still seen. It returns once the watcher is set
// up; watching stops when ctx is done.
func (c *Config) Watch(ctx context.Context, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	files := lookupConfigs(c.workingDir)
	var dirs []string
	for _, f := range files {
		dir := filepath.Dir(f)
		if slices.Contains(dirs, dir) {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			slog.Debug("Not watching config directory", "dir", dir, "error", err)
			continue
		}
		dirs = append(dirs, dir)
	}
	if len(dirs) == 0 {
		watcher.Close()
		return fmt.Errorf("no config directory could be watched")
	}

	debug := c.Options.Debug
	go func() {
		defer watcher.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !slices.Contains(files, ev.Name) || ev.Op == fsnotify.Chmod {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(watchDebounce)
				} else {
					timer.Reset(watchDebounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				cfg, err := Load(c.workingDir, debug)
				if err != nil {
					slog.Warn("Ignoring invalid config change", "error", err)
					continue
				}
				slog.Info("Config reloaded", "paths", cfg.Paths())
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watcher error", "error", err)
			}
		}
	}()
	return nil
}
