package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls its file.
const DefaultWatchInterval = 5 * time.Second

// fileStamp identifies one version of the config file. The hash decides
// whether an edit happened; mtime and size only gate the (cheap) re-read.
type fileStamp struct {
	mtime time.Time
	size  int64
	hash  [sha256.Size]byte
}

func (s fileStamp) sameStat(info os.FileInfo) bool {
	return s.mtime.Equal(info.ModTime()) && s.size == info.Size()
}

// Watcher polls a config file and hands every valid new version to a
// callback. Edits that fail validation are logged and skipped, so a typo in
// the file never takes down a running session.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config
	stamp   fileStamp
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values keep
// [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path; the file must exist and validate.
// Polling starts with [Watcher.Run].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval, onChange: onChange}
	for _, opt := range opts {
		opt(w)
	}
	cfg, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.stamp = cfg, stamp
	return w, nil
}

// Current returns the last config that loaded and validated.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is done and returns nil. onChange runs on this
// goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if old, cfg := w.poll(); cfg != nil && w.onChange != nil {
				w.onChange(old, cfg)
			}
		}
	}
}

// poll returns the previous and the new config when the file content
// changed, or a nil new config otherwise.
func (w *Watcher) poll() (old, cfg *Config) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: stat failed", "path", w.path, "err", err)
		return nil, nil
	}

	w.mu.Lock()
	unchanged := w.stamp.sameStat(info)
	w.mu.Unlock()
	if unchanged {
		return nil, nil
	}

	cfg, stamp, err := w.read()
	if err != nil {
		slog.Warn("config watcher: invalid edit ignored", "path", w.path, "err", err)
		return nil, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	sameContent := stamp.hash == w.stamp.hash
	w.stamp = stamp
	if sameContent {
		return nil, nil
	}
	old, w.current = w.current, cfg
	slog.Info("config watcher: configuration reloaded", "path", w.path)
	return old, cfg
}

func (w *Watcher) read() (*Config, fileStamp, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileStamp{}, err
	}
	return cfg, fileStamp{mtime: info.ModTime(), size: info.Size(), hash: sha256.Sum256(data)}, nil
}
