package reach

import (
	"fmt"
	"math"

	"github.com/talgya/hexrules/internal/entity"
	"github.com/talgya/hexrules/internal/ontology"
	"github.com/talgya/hexrules/internal/world"
)

type roleKey struct {
	concept ontology.ConceptID
	role    ontology.RoleID
}

// budget is a PathBudget constraint resolved against the mover.
type budget struct {
	property string
	value    float64
}

// candidate is an entity standing in for a role, with the binding that put it there.
type candidate struct {
	entity  world.Entity
	binding ontology.Binding
}

// verdict is what entering one hex means for the mover.
type verdict struct {
	cost    float64
	reasons []string
}

func (v verdict) rejected() bool { return len(v.reasons) > 0 }

// ruleset is the ontology narrowed down to one mover.
type ruleset struct {
	board     *world.Board
	types     Types
	mover     world.Entity
	moverName string

	byType      map[entity.TypeID]map[roleKey]ontology.Binding
	moverRoles  map[roleKey]ontology.Binding
	concepts    map[ontology.ConceptID]bool
	relations   []ontology.Relation
	constraints []ontology.Constraint
	budgets     []budget

	verdicts map[world.HexCoord]verdict
}

func newRuleset(board *world.Board, onto Ontology, types Types, mover world.Entity) *ruleset {
	rs := &ruleset{
		board:      board,
		types:      types,
		mover:      mover,
		moverName:  typeName(types, mover.TypeID),
		byType:     make(map[entity.TypeID]map[roleKey]ontology.Binding),
		moverRoles: make(map[roleKey]ontology.Binding),
		concepts:   make(map[ontology.ConceptID]bool),
		verdicts:   make(map[world.HexCoord]verdict),
	}

	for _, b := range onto.Bindings() {
		k := roleKey{b.ConceptID, b.RoleID}
		m := rs.byType[b.EntityTypeID]
		if m == nil {
			m = make(map[roleKey]ontology.Binding)
			rs.byType[b.EntityTypeID] = m
		}
		if _, dup := m[k]; !dup {
			m[k] = b
		}
	}
	for k, b := range rs.byType[mover.TypeID] {
		rs.moverRoles[k] = b
		rs.concepts[k.concept] = true
	}

	for _, r := range onto.Relations() {
		if r.Trigger != ontology.TriggerOnEnter {
			continue
		}
		if _, ok := rs.moverRoles[roleKey{r.ConceptID, r.SubjectRole}]; ok {
			rs.relations = append(rs.relations, r)
		}
	}

	for _, c := range onto.Constraints() {
		if c.Expr.Kind == ontology.ExprPathBudget {
			if b, ok := rs.resolveBudget(c); ok {
				rs.budgets = append(rs.budgets, b)
			}
			continue
		}
		if rs.concepts[c.ConceptID] {
			rs.constraints = append(rs.constraints, c)
		}
	}
	return rs
}

func (rs *ruleset) resolveBudget(c ontology.Constraint) (budget, bool) {
	b, ok := rs.moverRoles[roleKey{c.ConceptID, c.Expr.Role}]
	if !ok || c.Expr.Property == "" {
		return budget{}, false
	}
	prop := b.Resolve(c.Expr.Property)
	v, ok := rs.mover.Prop(prop)
	if !ok || v.Kind != entity.ValueNumber {
		return budget{}, false
	}
	return budget{property: prop, value: v.Num}, true
}

// limit returns the effective budget: the smallest one.
func (rs *ruleset) limit() (budget, bool) {
	if len(rs.budgets) == 0 {
		return budget{}, false
	}
	lim := rs.budgets[0]
	for _, b := range rs.budgets[1:] {
		if b.value < lim.value {
			lim = b
		}
	}
	return lim, true
}

// depthCap bounds the number of hops explored.
func (rs *ruleset) depthCap() int {
	if len(rs.budgets) == 0 {
		return rs.board.Radius
	}
	largest := rs.budgets[0].value
	for _, b := range rs.budgets[1:] {
		largest = math.Max(largest, b.value)
	}
	if largest < 0 {
		return 0
	}
	return int(math.Floor(largest))
}

// judge evaluates entering hex h. Occupants never change during a search,
// so the result is cached per hex.
func (rs *ruleset) judge(h world.HexCoord) verdict {
	if v, ok := rs.verdicts[h]; ok {
		return v
	}

	var occupants []world.Entity
	for _, o := range rs.board.Occupants(h) {
		if o.ID != rs.mover.ID {
			occupants = append(occupants, o)
		}
	}

	var v verdict
	for _, r := range rs.relations {
		target, ok := rs.firstBound(occupants, roleKey{r.ConceptID, r.ObjectRole})
		if !ok {
			continue
		}
		switch {
		case r.Effect.Kind == ontology.EffectBlock:
			v.reasons = append(v.reasons, fmt.Sprintf("%s cannot enter %s: %s blocks entry",
				rs.moverName, typeName(rs.types, target.TypeID), relationName(r)))
		case r.Effect.Subtracts():
			v.cost += r.Effect.Amount
		}
	}
	for _, c := range rs.constraints {
		if msg, violated := rs.check(c, occupants); violated {
			v.reasons = append(v.reasons, msg)
		}
	}

	rs.verdicts[h] = v
	return v
}

func (rs *ruleset) firstBound(occupants []world.Entity, k roleKey) (world.Entity, bool) {
	for _, o := range occupants {
		if _, ok := rs.byType[o.TypeID][k]; ok {
			return o, true
		}
	}
	return world.Entity{}, false
}

// resolve finds who plays a role for this hex: the mover if its type is bound
// to the role, otherwise every occupant bound to it.
func (rs *ruleset) resolve(k roleKey, occupants []world.Entity) []candidate {
	if b, ok := rs.moverRoles[k]; ok {
		return []candidate{{entity: rs.mover, binding: b}}
	}
	var out []candidate
	for _, o := range occupants {
		if b, ok := rs.byType[o.TypeID][k]; ok {
			out = append(out, candidate{entity: o, binding: b})
		}
	}
	return out
}

// check evaluates one constraint. Anything that cannot be evaluated counts as
// satisfied.
func (rs *ruleset) check(c ontology.Constraint, occupants []world.Entity) (string, bool) {
	e := c.Expr
	name := c.Name
	if name == "" {
		name = string(c.ID)
	}

	switch e.Kind {
	case ontology.ExprPropertyCompare:
		if e.Value == nil || !e.Op.Valid() {
			return "", false
		}
		for _, cand := range rs.resolve(roleKey{c.ConceptID, e.Role}, occupants) {
			actual, ok := cand.entity.Prop(cand.binding.Resolve(e.Property))
			if !ok {
				continue
			}
			if holds, ok := entity.Compare(actual, e.Op, *e.Value); ok && !holds {
				return violation(name, e.Property, actual, e.Op, *e.Value), true
			}
		}

	case ontology.ExprCrossCompare:
		if !e.Op.Valid() {
			return "", false
		}
		left := rs.resolve(roleKey{c.ConceptID, e.Role}, occupants)
		right := rs.resolve(roleKey{c.ConceptID, e.RoleB}, occupants)
		for _, a := range left {
			av, ok := a.entity.Prop(a.binding.Resolve(e.Property))
			if !ok {
				continue
			}
			for _, b := range right {
				bv, ok := b.entity.Prop(b.binding.Resolve(e.PropertyB))
				if !ok {
					continue
				}
				if holds, ok := entity.Compare(av, e.Op, bv); ok && !holds {
					return violation(name, e.Property, av, e.Op, bv), true
				}
			}
		}

	case ontology.ExprIsType:
		if e.ExpectedType == "" {
			return "", false
		}
		for _, cand := range rs.resolve(roleKey{c.ConceptID, e.Role}, occupants) {
			if cand.entity.TypeID != e.ExpectedType {
				return violation(name, "type", entity.String(string(cand.entity.TypeID)),
					entity.OpEQ, entity.String(string(e.ExpectedType))), true
			}
		}
	}
	return "", false
}

func violation(constraint, property string, actual entity.Value, op entity.CompareOp, expected entity.Value) string {
	return fmt.Sprintf("%s: %s is %s, must be %s %s", constraint, property, actual, op, expected)
}

func budgetExceeded(mover string, h world.HexCoord, cost float64, b budget) string {
	return fmt.Sprintf("%s cannot reach (%d, %d): path cost %s exceeds %s of %s",
		mover, h.Q, h.R, entity.FormatNumber(cost), b.property, entity.FormatNumber(b.value))
}

func typeName(types Types, id entity.TypeID) string {
	if t, ok := types.Type(id); ok {
		return t.DisplayName()
	}
	return string(id)
}

func relationName(r ontology.Relation) string {
	if r.Name != "" {
		return r.Name
	}
	return string(r.ID)
}
