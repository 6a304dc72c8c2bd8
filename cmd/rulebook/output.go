package main

import (
	"encoding/json"
	"io"
	"maps"
	"slices"

	"github.com/talgya/hexrules/internal/reach"
	"github.com/talgya/hexrules/internal/world"
)

func writeJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// blockedHexes lists the explained hexes in board order.
func blockedHexes(m reach.ValidMoveSet) []world.HexCoord {
	return slices.SortedFunc(maps.Keys(m.BlockedExplanations), func(a, b world.HexCoord) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
}
