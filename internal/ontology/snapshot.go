package ontology

// Snapshot is the complete serializable state of a store, derived
// constraints and their back-references included.
type Snapshot struct {
	Concepts    []Concept    `json:"concepts" yaml:"concepts"`
	Bindings    []Binding    `json:"bindings" yaml:"bindings"`
	Relations   []Relation   `json:"relations" yaml:"relations"`
	Constraints []Constraint `json:"constraints" yaml:"constraints"`
}

// Snapshot copies the store contents in creation order.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Concepts:    s.Concepts(),
		Bindings:    s.Bindings(),
		Relations:   s.Relations(),
		Constraints: s.Constraints(),
	}
}

// Restore replaces the store contents with snap verbatim. Nothing is checked
// or reconciled: a reloaded ontology comes back exactly as it was saved,
// problems and all, and the validator reports whatever is wrong with it.
func (s *Store) Restore(snap Snapshot) {
	s.concepts = newCollection[ConceptID, Concept]()
	s.bindings = newCollection[BindingID, Binding]()
	s.relations = newCollection[RelationID, Relation]()
	s.constraints = newCollection[ConstraintID, Constraint]()

	for _, c := range snap.Concepts {
		s.concepts.put(c.ID, cloneConcept(c))
	}
	for _, b := range snap.Bindings {
		s.bindings.put(b.ID, cloneBinding(b))
	}
	for _, r := range snap.Relations {
		s.relations.put(r.ID, r)
	}
	for _, c := range snap.Constraints {
		s.constraints.put(c.ID, cloneConstraint(c))
	}
	s.touch()
}
