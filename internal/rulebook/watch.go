package rulebook

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a rulebook whenever its file changes.
//
// The containing directory is watched rather than the file, since editors
// often replace files by rename.
type Watcher struct {
	path     string
	onChange func(*Rulebook)
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher starts watching path. Call Run to deliver reloads.
func NewWatcher(path string, onChange func(*Rulebook)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	return &Watcher{path: abs, onChange: onChange, debounce: DefaultDebounce, watcher: fw}, nil
}

// Run delivers reloads until ctx is done. Files that fail to parse are
// logged and skipped; the previous rulebook stays in effect.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	slog.Info("watching rulebook", "path", w.path)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("rulebook watcher error", "error", err)

		case <-timerC:
			timer, timerC = nil, nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	rb, err := Load(w.path)
	if err != nil {
		slog.Warn("rulebook reload skipped", "path", w.path, "error", err)
		return
	}
	slog.Info("rulebook changed", "path", w.path)
	w.onChange(rb)
}

// Watch is NewWatcher followed by Run.
func Watch(ctx context.Context, path string, onChange func(*Rulebook)) error {
	w, err := NewWatcher(path, onChange)
	if err != nil {
		return err
	}
	w.Run(ctx)
	return nil
}
