package ontology

// Derived budget constraints.
//
// A relation whose effect is ModifyProperty{Subtract} implies that whatever it
// subtracts from is a budget: the subject may only keep paying while the
// property lasts. For every such relation the store keeps exactly one
// auto-generated PathBudget{subject role, property} constraint pointing back
// at the relation. Constraints only point at relations, never the reverse.

// derivedConstraint returns the constraint a relation implies, if any.
func derivedConstraint(r Relation) (Constraint, bool) {
	if !r.Effect.Subtracts() {
		return Constraint{}, false
	}
	name := r.Name
	if name == "" {
		name = string(r.ID)
	}
	return Constraint{
		Name:           name + " budget",
		ConceptID:      r.ConceptID,
		Expr:           PathBudget(r.SubjectRole, r.Effect.Property),
		AutoGenerated:  true,
		SourceRelation: r.ID,
	}, true
}

// regenerate replaces the relation's derived constraint with a freshly
// identified one, or drops it when the relation no longer subtracts.
func (s *Store) regenerate(r Relation) {
	s.dropDerived(r.ID)
	if c, ok := derivedConstraint(r); ok {
		c.ID = ConstraintID(s.newID())
		s.constraints.put(c.ID, c)
	}
}

// dropDerived removes every still-derived constraint of a relation.
func (s *Store) dropDerived(id RelationID) int {
	removed := 0
	for _, c := range s.constraints.all() {
		if c.AutoGenerated && c.SourceRelation == id {
			s.constraints.remove(c.ID)
			removed++
		}
	}
	return removed
}

// Reconcile brings derived constraints in line with the current relations:
// orphaned, duplicated or stale derived constraints are removed and missing
// ones generated. Matching ones are left untouched, so a second run with no
// relation change in between is a no-op. Returns the number of changes.
func (s *Store) Reconcile() int {
	changes := 0
	covered := make(map[RelationID]bool)

	for _, c := range s.constraints.all() {
		if !c.AutoGenerated {
			continue
		}
		r, ok := s.relations.get(c.SourceRelation)
		want, derived := derivedConstraint(r)
		if !ok || !derived || covered[r.ID] || !matchesDerived(c, want) {
			s.constraints.remove(c.ID)
			changes++
			continue
		}
		covered[r.ID] = true
	}

	for _, r := range s.relations.all() {
		if covered[r.ID] {
			continue
		}
		if c, ok := derivedConstraint(r); ok {
			c.ID = ConstraintID(s.newID())
			s.constraints.put(c.ID, c)
			changes++
		}
	}

	if changes > 0 {
		s.touch()
	}
	return changes
}

// DerivedFrom returns the auto-generated constraint of a relation, if any.
func (s *Store) DerivedFrom(id RelationID) (Constraint, bool) {
	for _, c := range s.constraints.all() {
		if c.AutoGenerated && c.SourceRelation == id {
			return cloneConstraint(c), true
		}
	}
	return Constraint{}, false
}

func matchesDerived(have, want Constraint) bool {
	return have.ConceptID == want.ConceptID &&
		have.Expr.Kind == want.Expr.Kind &&
		have.Expr.Role == want.Expr.Role &&
		have.Expr.Property == want.Expr.Property
}
