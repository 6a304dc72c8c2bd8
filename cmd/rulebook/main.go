// Command rulebook checks and inspects YAML rulebooks offline.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/hexrules/internal/engine"
	"github.com/talgya/hexrules/internal/persistence"
	"github.com/talgya/hexrules/internal/reach"
	"github.com/talgya/hexrules/internal/rulebook"
	"github.com/talgya/hexrules/internal/schema"
	"github.com/talgya/hexrules/internal/world"
)

// errInvalid makes validate exit non-zero without printing a usage dump.
var errInvalid = errors.New("rulebook has schema errors")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rulebook",
		Short:         "Validate, inspect and reconcile hex wargame rulebooks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newValidateCmd(), newMovesCmd(), newReconcileCmd(), newExportCmd())
	return root
}

// open loads a rulebook and builds a workspace from it exactly as written.
func open(path string) (*rulebook.Rulebook, *engine.Workspace, error) {
	rb, err := rulebook.Load(path)
	if err != nil {
		return nil, nil, err
	}
	types, store, board, err := rb.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return rb, engine.NewWorkspace(types, store, board), nil
}

// =============================================================================
// VALIDATE
// =============================================================================

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Report schema errors and warnings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, ws, err := open(args[0])
			if err != nil {
				return err
			}
			v := ws.Validation()
			printValidation(cmd.OutOrStdout(), v)
			if !v.Valid {
				return errInvalid
			}
			return nil
		},
	}
}

func printValidation(w io.Writer, v schema.Validation) {
	for _, e := range v.Errors {
		fmt.Fprintf(w, "%-7s %-18s %-28s %s\n", e.Severity, e.Category, e.Source, e.Message)
	}
	warnings := v.Count(schema.CategoryMissingBinding)
	fmt.Fprintf(w, "%d errors, %d warnings\n", len(v.Errors)-warnings, warnings)
}

// =============================================================================
// MOVES
// =============================================================================

func newMovesCmd() *cobra.Command {
	var (
		unit   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "moves <file>",
		Short: "List the hexes a unit can reach",
		Long: "List the hexes a unit can reach and explain the ones it cannot.\n" +
			"Uses the rulebook's selected unit unless --unit is given.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, ws, err := open(args[0])
			if err != nil {
				return err
			}
			moves := ws.Moves()
			if unit != "" {
				id := world.EntityID(unit)
				if moves, err = ws.Select(&id); err != nil {
					return err
				}
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), moves)
			}
			printMoves(cmd.OutOrStdout(), moves)
			return nil
		},
	}
	cmd.Flags().StringVar(&unit, "unit", "", "unit id to select")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the move set as JSON")
	return cmd
}

func printMoves(w io.Writer, m reach.ValidMoveSet) {
	if m.ForEntity == nil {
		fmt.Fprintln(w, "No unit selected.")
		return
	}
	fmt.Fprintf(w, "Unit %s: %d reachable hexes (%d explored)\n", *m.ForEntity, len(m.ValidPositions), m.Explored)
	for _, h := range m.ValidPositions {
		fmt.Fprintf(w, "  %s\n", h)
	}
	if len(m.BlockedExplanations) == 0 {
		return
	}
	fmt.Fprintln(w, "Blocked:")
	for _, h := range blockedHexes(m) {
		for _, reason := range m.BlockedExplanations[h] {
			fmt.Fprintf(w, "  %s  %s\n", h, reason)
		}
	}
}

// =============================================================================
// RECONCILE
// =============================================================================

func newReconcileCmd() *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "reconcile <file>",
		Short: "Bring derived budget constraints in line with relations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rb, ws, err := open(args[0])
			if err != nil {
				return err
			}
			var changes int
			err = ws.Apply(func(s engine.Stores) error {
				changes = s.Ontology.Reconcile()
				rb.Ontology = s.Ontology.Snapshot()
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d derived constraint changes\n", changes)
			if write && changes > 0 {
				if err := rb.WriteFile(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "write the reconciled ontology back to the file")
	return cmd
}

// =============================================================================
// EXPORT
// =============================================================================

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <db> <file>",
		Short: "Write a saved workspace out as a rulebook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := persistence.Open(args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			types, store, board, err := db.Load()
			if err != nil {
				return err
			}
			ws := engine.NewWorkspace(types, store, board)
			if err := rulebook.FromWorkspace(ws).WriteFile(args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d tiles, %d units)\n", args[1], len(board.Tiles()), len(board.Units()))
			return nil
		},
	}
}
