// Command rulesd serves a hex wargame rules workspace over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/talgya/hexrules/internal/api"
	"github.com/talgya/hexrules/internal/config"
	"github.com/talgya/hexrules/internal/engine"
	"github.com/talgya/hexrules/internal/entity"
	"github.com/talgya/hexrules/internal/ontology"
	"github.com/talgya/hexrules/internal/persistence"
	"github.com/talgya/hexrules/internal/rulebook"
	"github.com/talgya/hexrules/internal/world"
)

// Radius of the board when starting with neither saved state nor a rulebook.
const emptyBoardRadius = 6

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("hexrules: ontology and reachability server")

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Load saved state, a rulebook, or start empty ──────────────────
	ws, fresh, err := openWorkspace(db, cfg.Rulebook)
	if err != nil {
		slog.Error("failed to load workspace", "error", err)
		os.Exit(1)
	}

	validation := ws.Validation()
	moves := ws.Moves()
	slog.Info("workspace ready",
		"revision", ws.Revision(),
		"schema_valid", validation.Valid,
		"schema_errors", len(validation.Errors),
		"valid_moves", len(moves.ValidPositions),
	)

	// Save on fresh load only (restored workspaces are already saved).
	if fresh {
		if err := db.Save(ws); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Background workers ────────────────────────────────────────────
	saver := engine.NewAutosaver(ws, db, cfg.Autosave)
	saved := make(chan struct{})
	go func() {
		saver.Run(ctx)
		close(saved)
	}()

	if cfg.Watch && cfg.Rulebook != "" {
		go func() {
			err := rulebook.Watch(ctx, cfg.Rulebook, func(rb *rulebook.Rulebook) {
				if err := replaceFromRulebook(ws, rb); err != nil {
					slog.Warn("rulebook not applied", "path", cfg.Rulebook, "error", err)
				}
			})
			if err != nil {
				slog.Error("rulebook watcher failed", "error", err)
			}
		}()
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("HEXRULES_ADMIN_KEY not set, edit endpoints will be disabled")
	}
	apiServer := &api.Server{
		Workspace:   ws,
		DB:          db,
		Port:        cfg.Port,
		AdminKey:    cfg.AdminKey,
		CORSOrigins: cfg.CORSOrigins,
	}
	srv := apiServer.Start()

	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Port)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}

	// The autosaver does the final save once ctx is done.
	<-saved
	fmt.Println("Server stopped. Workspace saved.")
}

// openWorkspace restores the saved workspace if there is one, otherwise
// builds one from the rulebook, otherwise starts empty. fresh is false only
// for restored workspaces.
func openWorkspace(db *persistence.DB, rulebookPath string) (*engine.Workspace, bool, error) {
	if db.HasState() {
		slog.Info("found saved workspace, loading...")
		types, store, board, err := db.Load()
		if err != nil {
			return nil, false, err
		}
		// Saved state comes back verbatim; the validator reports whatever is off.
		return engine.NewWorkspace(types, store, board), false, nil
	}

	if rulebookPath != "" {
		slog.Info("no saved state found, loading rulebook...", "path", rulebookPath)
		rb, err := rulebook.Load(rulebookPath)
		if err != nil {
			return nil, true, err
		}
		types, store, board, err := build(rb)
		if err != nil {
			return nil, true, err
		}
		return engine.NewWorkspace(types, store, board), true, nil
	}

	slog.Info("no saved state or rulebook, starting empty", "radius", emptyBoardRadius)
	types := entity.NewRegistry()
	return engine.NewWorkspace(types, ontology.NewStore(types), world.NewBoard(emptyBoardRadius)), true, nil
}

// build turns a rulebook into stores and brings its derived constraints up
// to date with its relations.
func build(rb *rulebook.Rulebook) (*entity.Registry, *ontology.Store, *world.Board, error) {
	types, store, board, err := rb.Build()
	if err != nil {
		return nil, nil, nil, err
	}
	if n := store.Reconcile(); n > 0 {
		slog.Info("derived constraints reconciled", "changes", n)
	}
	return types, store, board, nil
}

func replaceFromRulebook(ws *engine.Workspace, rb *rulebook.Rulebook) error {
	types, store, board, err := build(rb)
	if err != nil {
		return err
	}
	ws.Replace(types, store, board)
	return nil
}
