// Package reach computes where a selected unit may legally move, driven by
// the relations and constraints of the ontology.
package reach

import (
	"encoding/json"
	"slices"
	"sort"

	"github.com/talgya/hexrules/internal/entity"
	"github.com/talgya/hexrules/internal/ontology"
	"github.com/talgya/hexrules/internal/world"
)

// Ontology is the read side of an ontology store.
type Ontology interface {
	Bindings() []ontology.Binding
	Relations() []ontology.Relation
	Constraints() []ontology.Constraint
}

// Types resolves entity types by id.
type Types interface {
	Type(id entity.TypeID) (entity.EntityType, bool)
}

// ValidMoveSet is the outcome of one reachability computation.
type ValidMoveSet struct {
	ForEntity           *world.EntityID
	ValidPositions      []world.HexCoord
	BlockedExplanations map[world.HexCoord][]string
	// Explored counts frontier pops.
	Explored int
}

// Contains reports whether h is a valid destination.
func (s ValidMoveSet) Contains(h world.HexCoord) bool {
	for _, p := range s.ValidPositions {
		if p == h {
			return true
		}
	}
	return false
}

// MarshalJSON renders hex keys of the explanation map as "q,r".
func (s ValidMoveSet) MarshalJSON() ([]byte, error) {
	blocked := make(map[string][]string, len(s.BlockedExplanations))
	for h, reasons := range s.BlockedExplanations {
		blocked[h.Key()] = reasons
	}
	positions := s.ValidPositions
	if positions == nil {
		positions = []world.HexCoord{}
	}
	return json.Marshal(struct {
		ForEntity           *world.EntityID     `json:"for_entity"`
		ValidPositions      []world.HexCoord    `json:"valid_positions"`
		BlockedExplanations map[string][]string `json:"blocked_explanations"`
		Explored            int                 `json:"explored"`
	}{s.ForEntity, positions, blocked, s.Explored})
}

func empty() ValidMoveSet {
	return ValidMoveSet{BlockedExplanations: map[world.HexCoord][]string{}}
}

// Compute finds every hex the selected unit can reach from where it stands.
// It only reads its inputs. A nil selection, or one that is no longer on the
// board, yields an empty set without searching.
func Compute(selected *world.EntityID, board *world.Board, onto Ontology, types Types) ValidMoveSet {
	if selected == nil {
		return empty()
	}
	mover, ok := board.Unit(*selected)
	if !ok {
		return empty()
	}

	rs := newRuleset(board, onto, types, mover)
	lim, limited := rs.limit()
	maxHops := rs.depthCap()

	id := *selected
	result := empty()
	result.ForEntity = &id

	start := mover.Position
	why := newExplanations()
	// A hex keeps every (cost, hops) label that no other label beats on
	// both counts: a dearer path with fewer hops may still go further
	// under the depth cap.
	labels := map[world.HexCoord][]step{start: {{hex: start}}}
	reached := make(map[world.HexCoord]bool)

	var f frontier
	f.push(step{hex: start})
	for f.Len() > 0 {
		cur := f.pop()
		result.Explored++
		if !slices.Contains(labels[cur.hex], cur) {
			continue // superseded while queued
		}
		if !reached[cur.hex] {
			reached[cur.hex] = true
			if cur.hex != start {
				result.ValidPositions = append(result.ValidPositions, cur.hex)
			}
		}

		for _, next := range cur.hex.Neighbors() {
			if next == start || !board.InBounds(next) {
				continue
			}
			// One ring past the depth cap is judged for budget reasons only.
			beyond := cur.hops >= maxHops
			v := rs.judge(next)
			if v.rejected() {
				if !beyond {
					why.add(next, v.reasons...)
				}
				continue
			}
			cost := cur.cost + v.cost
			if limited && cost > lim.value {
				why.overBudget(next, cost)
				continue
			}
			if beyond {
				continue
			}
			s := step{hex: next, cost: cost, hops: cur.hops + 1}
			var added bool
			if labels[next], added = addLabel(labels[next], s); added {
				f.push(s)
			}
		}
	}

	sort.Slice(result.ValidPositions, func(i, j int) bool {
		return result.ValidPositions[i].Less(result.ValidPositions[j])
	})
	result.BlockedExplanations = why.build(reached, func(h world.HexCoord, cost float64) string {
		return budgetExceeded(rs.moverName, h, cost, lim)
	})
	return result
}

// addLabel records s unless some label is already at least as good in both
// cost and hops. Labels that s beats on both counts are dropped.
func addLabel(labels []step, s step) ([]step, bool) {
	for _, l := range labels {
		if l.cost <= s.cost && l.hops <= s.hops {
			return labels, false
		}
	}
	kept := labels[:0]
	for _, l := range labels {
		if s.cost > l.cost || s.hops > l.hops {
			kept = append(kept, l)
		}
	}
	return append(kept, s), true
}

// explanations collects rejection reasons per hex, without duplicates.
type explanations struct {
	reasons map[world.HexCoord][]string
	seen    map[world.HexCoord]map[string]bool
	budget  map[world.HexCoord]float64
}

func newExplanations() *explanations {
	return &explanations{
		reasons: make(map[world.HexCoord][]string),
		seen:    make(map[world.HexCoord]map[string]bool),
		budget:  make(map[world.HexCoord]float64),
	}
}

func (e *explanations) add(h world.HexCoord, reasons ...string) {
	seen := e.seen[h]
	if seen == nil {
		seen = make(map[string]bool)
		e.seen[h] = seen
	}
	for _, r := range reasons {
		if !seen[r] {
			seen[r] = true
			e.reasons[h] = append(e.reasons[h], r)
		}
	}
}

// overBudget remembers the cheapest over-budget cost seen for h.
func (e *explanations) overBudget(h world.HexCoord, cost float64) {
	if prev, ok := e.budget[h]; !ok || cost < prev {
		e.budget[h] = cost
	}
}

// build drops hexes that were reached after all and renders budget reasons last.
func (e *explanations) build(reached map[world.HexCoord]bool, render func(world.HexCoord, float64) string) map[world.HexCoord][]string {
	for h, cost := range e.budget {
		e.add(h, render(h, cost))
	}
	out := make(map[world.HexCoord][]string, len(e.reasons))
	for h, reasons := range e.reasons {
		if !reached[h] {
			out[h] = reasons
		}
	}
	return out
}
