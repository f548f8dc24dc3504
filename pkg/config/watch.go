package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the burst of events editors emit on save.
const DefaultWatchDebounce = 150 * time.Millisecond

// Watcher reloads a configuration file whenever it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	fsw      *fsnotify.Watcher
}

// NewWatcher starts watching path. The parent directory is watched so the
// file survives editors that save by rename.
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config watch requires a file path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{path: abs, debounce: debounce, fsw: fsw}, nil
}

// Run delivers a freshly loaded configuration to onChange after every change
// until ctx ends. Load and watcher errors are delivered with a zero Config.
func (w *Watcher) Run(ctx context.Context, onChange func(Config, error)) error {
	defer w.fsw.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			cfg, err := Load(w.path)
			if err != nil {
				onChange(Config{}, err)
				continue
			}
			onChange(cfg, nil)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			onChange(Config{}, fmt.Errorf("watch config: %w", err))
		}
	}
}

// Watch is NewWatcher followed by Run.
func Watch(ctx context.Context, path string, onChange func(Config, error)) error {
	w, err := NewWatcher(path, 0)
	if err != nil {
		return err
	}
	return w.Run(ctx, onChange)
}
