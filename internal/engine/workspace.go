// Package engine ties the entity registry, the ontology store and the board
// together and keeps validation and valid moves current as they change.
package engine

import (
	"log/slog"
	"sync"

	"github.com/talgya/hexrules/internal/entity"
	"github.com/talgya/hexrules/internal/ontology"
	"github.com/talgya/hexrules/internal/reach"
	"github.com/talgya/hexrules/internal/schema"
	"github.com/talgya/hexrules/internal/world"
)

// Stores is the mutable state handed to edits.
type Stores struct {
	Types    *entity.Registry
	Ontology *ontology.Store
	Board    *world.Board
}

// versions is a change-detection stamp across all stores.
type versions struct {
	types, onto, board uint64
}

// Workspace owns the stores. Edits go through Apply, one at a time; readers
// always see the outcome of the last completed edit.
type Workspace struct {
	mu     sync.RWMutex
	stores Stores

	validation schema.Validation
	moves      reach.ValidMoveSet

	validatedAt versions
	computedAt  versions
	stale       bool   // set by Replace: versions of new stores say nothing
	revision    uint64 // bumped whenever any store changed
}

// NewWorkspace wraps the stores and computes the initial outputs.
func NewWorkspace(types *entity.Registry, onto *ontology.Store, board *world.Board) *Workspace {
	onto.SetTypes(types)
	w := &Workspace{stores: Stores{Types: types, Ontology: onto, Board: board}, stale: true}
	w.refresh()
	return w
}

// Apply runs an edit under the write lock, then brings derived outputs up to
// date. The edit's error is returned as is; a failed edit that changed
// nothing triggers no recomputation.
func (w *Workspace) Apply(edit func(s Stores) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := edit(w.stores)
	w.refresh()
	return err
}

// Select changes the selection and returns the move set computed for it.
// Both happen under one write lock, so the result belongs to this selection
// even when other edits race with it.
func (w *Workspace) Select(id *world.EntityID) (reach.ValidMoveSet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.stores.Board.Select(id); err != nil {
		return reach.ValidMoveSet{}, err
	}
	w.refresh()
	return w.moves, nil
}

// View runs fn under the read lock.
func (w *Workspace) View(fn func(s Stores)) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	fn(w.stores)
}

// Replace swaps in a whole new set of stores, e.g. after a rulebook reload.
func (w *Workspace) Replace(types *entity.Registry, onto *ontology.Store, board *world.Board) {
	w.mu.Lock()
	defer w.mu.Unlock()

	onto.SetTypes(types)
	w.stores = Stores{Types: types, Ontology: onto, Board: board}
	w.stale = true
	w.refresh()
	slog.Info("workspace replaced",
		"types", len(types.Types()),
		"concepts", len(onto.Concepts()),
		"units", len(board.Units()),
	)
}

// Validation returns the latest schema validation.
func (w *Workspace) Validation() schema.Validation {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.validation
}

// Moves returns the latest valid-move set for the current selection.
func (w *Workspace) Moves() reach.ValidMoveSet {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.moves
}

// Revision increases every time the workspace content changes.
func (w *Workspace) Revision() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.revision
}

func (w *Workspace) current() versions {
	return versions{
		types: w.stores.Types.Version(),
		onto:  w.stores.Ontology.Version(),
		board: w.stores.Board.Version(),
	}
}

// refresh recomputes whatever depends on a store that changed. Must be
// called with the write lock held.
func (w *Workspace) refresh() {
	now := w.current()
	schemaChanged := w.stale || now.types != w.validatedAt.types || now.onto != w.validatedAt.onto
	movesChanged := w.stale || now != w.computedAt

	if schemaChanged {
		w.validation = schema.Validate(w.stores.Ontology, w.stores.Types)
		w.validatedAt = now
		validationsTotal.Inc()

		errs, warns := 0, 0
		for _, e := range w.validation.Errors {
			if e.Severity == schema.SeverityWarning {
				warns++
			} else {
				errs++
			}
		}
		schemaErrors.WithLabelValues(string(schema.SeverityError)).Set(float64(errs))
		schemaErrors.WithLabelValues(string(schema.SeverityWarning)).Set(float64(warns))
		slog.Debug("schema validated", "valid", w.validation.Valid, "errors", errs, "warnings", warns)
	}

	if movesChanged {
		sel := w.stores.Board.Selected()
		w.moves = reach.Compute(sel, w.stores.Board, w.stores.Ontology, w.stores.Types)
		w.computedAt = now

		label := "none"
		if sel != nil {
			label = "unit"
			reachabilityExplored.Observe(float64(w.moves.Explored))
		}
		moveComputationsTotal.WithLabelValues(label).Inc()
		slog.Debug("moves computed",
			"selected", sel != nil,
			"valid", len(w.moves.ValidPositions),
			"blocked", len(w.moves.BlockedExplanations),
			"explored", w.moves.Explored,
		)
	}

	if schemaChanged || movesChanged {
		w.revision++
	}
	w.stale = false
}
