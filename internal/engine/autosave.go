package engine

import (
	"context"
	"log/slog"
	"time"
)

// DefaultAutosaveInterval is used when no interval is configured.
const DefaultAutosaveInterval = 5 * time.Minute

// Saver persists the whole workspace.
type Saver interface {
	Save(ws *Workspace) error
}

// Autosaver periodically saves the workspace when it has changed since the
// last save.
type Autosaver struct {
	Workspace *Workspace
	Store     Saver
	Interval  time.Duration // Base interval between checks (default 5 minutes)

	saved uint64 // workspace revision at the last successful save
}

// NewAutosaver creates an autosaver that treats the current revision as saved.
func NewAutosaver(ws *Workspace, store Saver, interval time.Duration) *Autosaver {
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}
	return &Autosaver{Workspace: ws, Store: store, Interval: interval, saved: ws.Revision()}
}

// Run saves on every interval until ctx is done, then saves once more.
func (a *Autosaver) Run(ctx context.Context) {
	slog.Info("autosave started", "interval", a.Interval)

	t := time.NewTicker(a.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			// Final save on shutdown.
			if _, err := a.SaveIfChanged(); err != nil {
				slog.Error("final save failed", "error", err)
			}
			slog.Info("autosave stopped")
			return
		case <-t.C:
			if _, err := a.SaveIfChanged(); err != nil {
				slog.Error("autosave failed", "error", err)
			}
		}
	}
}

// SaveIfChanged saves when the workspace revision moved since the last save.
// It reports whether a save happened.
func (a *Autosaver) SaveIfChanged() (bool, error) {
	rev := a.Workspace.Revision()
	if rev == a.saved {
		autosavesTotal.WithLabelValues("skipped").Inc()
		return false, nil
	}
	if err := a.Store.Save(a.Workspace); err != nil {
		autosavesTotal.WithLabelValues("error").Inc()
		return false, err
	}
	a.saved = rev
	autosavesTotal.WithLabelValues("saved").Inc()
	slog.Info("workspace saved", "revision", rev)
	return true, nil
}
