package ontology

import (
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/talgya/hexrules/internal/entity"
)

// TypeLookup resolves entity types for reference checks.
type TypeLookup interface {
	Type(id entity.TypeID) (entity.EntityType, bool)
}

// collection keeps items addressable by id while preserving insertion order.
type collection[K comparable, V any] struct {
	items map[K]V
	order []K
}

func newCollection[K comparable, V any]() collection[K, V] {
	return collection[K, V]{items: make(map[K]V)}
}

func (c *collection[K, V]) get(id K) (V, bool) {
	v, ok := c.items[id]
	return v, ok
}

func (c *collection[K, V]) put(id K, v V) {
	if _, exists := c.items[id]; !exists {
		c.order = append(c.order, id)
	}
	c.items[id] = v
}

func (c *collection[K, V]) remove(id K) {
	if _, exists := c.items[id]; !exists {
		return
	}
	delete(c.items, id)
	for i, o := range c.order {
		if o == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *collection[K, V]) all() []V {
	out := make([]V, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

// Store owns the ontology collections and the discrete edit operations on
// them. Structural checks beyond reference existence and role compatibility
// are left to the schema validator so designers can build incrementally.
//
// Store is not safe for concurrent use; engine.Workspace serializes access.
type Store struct {
	types       TypeLookup
	concepts    collection[ConceptID, Concept]
	bindings    collection[BindingID, Binding]
	relations   collection[RelationID, Relation]
	constraints collection[ConstraintID, Constraint]
	version     uint64
	newID       func() string
}

// NewStore creates an empty store that checks entity type references against types.
func NewStore(types TypeLookup) *Store {
	return &Store{
		types:       types,
		concepts:    newCollection[ConceptID, Concept](),
		bindings:    newCollection[BindingID, Binding](),
		relations:   newCollection[RelationID, Relation](),
		constraints: newCollection[ConstraintID, Constraint](),
		newID:       uuid.NewString,
	}
}

// SetTypes swaps the entity type lookup (used when the registry is replaced).
func (s *Store) SetTypes(types TypeLookup) {
	s.types = types
}

// Version increases on every successful mutation.
func (s *Store) Version() uint64 {
	return s.version
}

func (s *Store) touch() {
	s.version++
}

// CreateConcept adds a concept with its roles. Empty ids are generated.
func (s *Store) CreateConcept(c Concept) (Concept, error) {
	if c.ID == "" {
		c.ID = ConceptID(s.newID())
	}
	if _, exists := s.concepts.get(c.ID); exists {
		return Concept{}, fmt.Errorf("concept %s already exists: %w", c.ID, ErrInvalidReference)
	}
	c = cloneConcept(c)
	seen := make(map[RoleID]bool, len(c.Roles))
	for i := range c.Roles {
		if c.Roles[i].ID == "" {
			c.Roles[i].ID = RoleID(s.newID())
		}
		if err := s.checkRole(c.Roles[i]); err != nil {
			return Concept{}, err
		}
		if seen[c.Roles[i].ID] {
			return Concept{}, fmt.Errorf("role %s listed twice: %w", c.Roles[i].ID, ErrInvalidReference)
		}
		seen[c.Roles[i].ID] = true
	}
	s.concepts.put(c.ID, c)
	s.touch()
	return cloneConcept(c), nil
}

// RenameConcept changes a concept's display name.
func (s *Store) RenameConcept(id ConceptID, name string) error {
	c, ok := s.concepts.get(id)
	if !ok {
		return fmt.Errorf("concept %s: %w", id, ErrNotFound)
	}
	c.Name = name
	s.concepts.put(id, c)
	s.touch()
	return nil
}

// DeleteConcept removes a concept. Bindings, relations and constraints that
// point at it are kept and reported by the validator as dangling.
func (s *Store) DeleteConcept(id ConceptID) error {
	if _, ok := s.concepts.get(id); !ok {
		return fmt.Errorf("concept %s: %w", id, ErrNotFound)
	}
	s.concepts.remove(id)
	s.touch()
	return nil
}

// AddRole appends a role to a concept.
func (s *Store) AddRole(conceptID ConceptID, r Role) (Role, error) {
	c, ok := s.concepts.get(conceptID)
	if !ok {
		return Role{}, fmt.Errorf("concept %s: %w", conceptID, ErrNotFound)
	}
	if r.ID == "" {
		r.ID = RoleID(s.newID())
	}
	if err := s.checkRole(r); err != nil {
		return Role{}, err
	}
	r.Accepts = append([]entity.Role(nil), r.Accepts...)
	c = cloneConcept(c)
	c.Roles = append(c.Roles, r)
	s.concepts.put(conceptID, c)
	s.touch()
	return r, nil
}

// UpdateRole replaces the name and accepted roles of an existing role.
func (s *Store) UpdateRole(conceptID ConceptID, r Role) error {
	c, ok := s.concepts.get(conceptID)
	if !ok {
		return fmt.Errorf("concept %s: %w", conceptID, ErrNotFound)
	}
	c = cloneConcept(c)
	for i := range c.Roles {
		if c.Roles[i].ID != r.ID {
			continue
		}
		if err := checkAccepts(r); err != nil {
			return err
		}
		c.Roles[i].Name = r.Name
		c.Roles[i].Accepts = append([]entity.Role(nil), r.Accepts...)
		s.concepts.put(conceptID, c)
		s.touch()
		return nil
	}
	return fmt.Errorf("role %s in concept %s: %w", r.ID, conceptID, ErrNotFound)
}

// RemoveRole deletes a role from a concept without cascading.
func (s *Store) RemoveRole(conceptID ConceptID, roleID RoleID) error {
	c, ok := s.concepts.get(conceptID)
	if !ok {
		return fmt.Errorf("concept %s: %w", conceptID, ErrNotFound)
	}
	c = cloneConcept(c)
	for i := range c.Roles {
		if c.Roles[i].ID == roleID {
			c.Roles = append(c.Roles[:i], c.Roles[i+1:]...)
			s.concepts.put(conceptID, c)
			s.touch()
			return nil
		}
	}
	return fmt.Errorf("role %s in concept %s: %w", roleID, conceptID, ErrNotFound)
}

func (s *Store) checkRole(r Role) error {
	if _, _, taken := s.Role(r.ID); taken {
		return fmt.Errorf("role %s already exists: %w", r.ID, ErrInvalidReference)
	}
	return checkAccepts(r)
}

func checkAccepts(r Role) error {
	for _, a := range r.Accepts {
		if !a.Valid() {
			return fmt.Errorf("role %s accepts unknown entity role %q: %w", r.ID, a, ErrInvalidValue)
		}
	}
	return nil
}

// CreateBinding binds an entity type to a concept role.
func (s *Store) CreateBinding(b Binding) (Binding, error) {
	if b.ID == "" {
		b.ID = BindingID(s.newID())
	}
	if _, exists := s.bindings.get(b.ID); exists {
		return Binding{}, fmt.Errorf("binding %s already exists: %w", b.ID, ErrInvalidReference)
	}
	if err := s.checkBinding(b); err != nil {
		return Binding{}, err
	}
	b = cloneBinding(b)
	s.bindings.put(b.ID, b)
	s.touch()
	return cloneBinding(b), nil
}

// UpdateBinding replaces an existing binding.
func (s *Store) UpdateBinding(b Binding) error {
	if _, ok := s.bindings.get(b.ID); !ok {
		return fmt.Errorf("binding %s: %w", b.ID, ErrNotFound)
	}
	if err := s.checkBinding(b); err != nil {
		return err
	}
	s.bindings.put(b.ID, cloneBinding(b))
	s.touch()
	return nil
}

// DeleteBinding removes a binding.
func (s *Store) DeleteBinding(id BindingID) error {
	if _, ok := s.bindings.get(id); !ok {
		return fmt.Errorf("binding %s: %w", id, ErrNotFound)
	}
	s.bindings.remove(id)
	s.touch()
	return nil
}

func (s *Store) checkBinding(b Binding) error {
	c, ok := s.concepts.get(b.ConceptID)
	if !ok {
		return fmt.Errorf("binding %s: concept %s: %w", b.ID, b.ConceptID, ErrInvalidReference)
	}
	role, ok := c.Role(b.RoleID)
	if !ok {
		return fmt.Errorf("binding %s: role %s not in concept %s: %w", b.ID, b.RoleID, c.ID, ErrInvalidReference)
	}
	if s.types == nil {
		return fmt.Errorf("binding %s: no entity type registry: %w", b.ID, ErrInvalidReference)
	}
	t, ok := s.types.Type(b.EntityTypeID)
	if !ok {
		return fmt.Errorf("binding %s: entity type %s: %w", b.ID, b.EntityTypeID, ErrInvalidReference)
	}
	if !role.AcceptsRole(t.Role) {
		return fmt.Errorf("binding %s: role %s does not accept %s entities: %w", b.ID, role.Name, t.Role, ErrInvalidReference)
	}
	return nil
}

// CreateRelation adds a relation and derives its budget constraint if the
// effect subtracts.
func (s *Store) CreateRelation(r Relation) (Relation, error) {
	if r.ID == "" {
		r.ID = RelationID(s.newID())
	}
	if _, exists := s.relations.get(r.ID); exists {
		return Relation{}, fmt.Errorf("relation %s already exists: %w", r.ID, ErrInvalidReference)
	}
	if err := s.checkRelation(r); err != nil {
		return Relation{}, err
	}
	s.relations.put(r.ID, r)
	s.regenerate(r)
	s.touch()
	return r, nil
}

// UpdateRelation replaces a relation and regenerates its derived constraint.
func (s *Store) UpdateRelation(r Relation) error {
	if _, ok := s.relations.get(r.ID); !ok {
		return fmt.Errorf("relation %s: %w", r.ID, ErrNotFound)
	}
	if err := s.checkRelation(r); err != nil {
		return err
	}
	s.relations.put(r.ID, r)
	s.regenerate(r)
	s.touch()
	return nil
}

// DeleteRelation removes a relation together with its derived constraint.
// Derived constraints the designer has edited are no longer derived and survive.
func (s *Store) DeleteRelation(id RelationID) error {
	if _, ok := s.relations.get(id); !ok {
		return fmt.Errorf("relation %s: %w", id, ErrNotFound)
	}
	s.relations.remove(id)
	s.dropDerived(id)
	s.touch()
	return nil
}

func (s *Store) checkRelation(r Relation) error {
	c, ok := s.concepts.get(r.ConceptID)
	if !ok {
		return fmt.Errorf("relation %s: concept %s: %w", r.ID, r.ConceptID, ErrInvalidReference)
	}
	if _, ok := c.Role(r.SubjectRole); !ok {
		return fmt.Errorf("relation %s: subject role %s not in concept %s: %w", r.ID, r.SubjectRole, c.ID, ErrInvalidReference)
	}
	if _, ok := c.Role(r.ObjectRole); !ok {
		return fmt.Errorf("relation %s: object role %s not in concept %s: %w", r.ID, r.ObjectRole, c.ID, ErrInvalidReference)
	}
	if r.SubjectRole == r.ObjectRole {
		return fmt.Errorf("relation %s: subject and object are both %s: %w", r.ID, r.SubjectRole, ErrInvalidReference)
	}
	if !r.Trigger.Valid() {
		return fmt.Errorf("relation %s: trigger %q: %w", r.ID, r.Trigger, ErrInvalidValue)
	}
	if !r.Effect.Valid() {
		return fmt.Errorf("relation %s: effect %q: %w", r.ID, r.Effect.Kind, ErrInvalidValue)
	}
	return nil
}

// CreateConstraint adds a designer-authored constraint.
func (s *Store) CreateConstraint(c Constraint) (Constraint, error) {
	if c.ID == "" {
		c.ID = ConstraintID(s.newID())
	}
	if _, exists := s.constraints.get(c.ID); exists {
		return Constraint{}, fmt.Errorf("constraint %s already exists: %w", c.ID, ErrInvalidReference)
	}
	if err := s.checkConstraint(c); err != nil {
		return Constraint{}, err
	}
	c.AutoGenerated = false
	c.SourceRelation = ""
	c = cloneConstraint(c)
	s.constraints.put(c.ID, c)
	s.touch()
	return cloneConstraint(c), nil
}

// UpdateConstraint replaces a constraint. Any edit turns a derived constraint
// into a designer-owned one: the flag and the back-reference are cleared.
func (s *Store) UpdateConstraint(c Constraint) error {
	if _, ok := s.constraints.get(c.ID); !ok {
		return fmt.Errorf("constraint %s: %w", c.ID, ErrNotFound)
	}
	if err := s.checkConstraint(c); err != nil {
		return err
	}
	c.AutoGenerated = false
	c.SourceRelation = ""
	s.constraints.put(c.ID, cloneConstraint(c))
	s.touch()
	return nil
}

// DeleteConstraint removes a constraint.
func (s *Store) DeleteConstraint(id ConstraintID) error {
	if _, ok := s.constraints.get(id); !ok {
		return fmt.Errorf("constraint %s: %w", id, ErrNotFound)
	}
	s.constraints.remove(id)
	s.touch()
	return nil
}

func (s *Store) checkConstraint(c Constraint) error {
	if _, ok := s.concepts.get(c.ConceptID); !ok {
		return fmt.Errorf("constraint %s: concept %s: %w", c.ID, c.ConceptID, ErrInvalidReference)
	}
	switch c.Expr.Kind {
	case ExprPropertyCompare, ExprCrossCompare, ExprIsType, ExprPathBudget:
		return nil
	}
	return fmt.Errorf("constraint %s: expression kind %q: %w", c.ID, c.Expr.Kind, ErrInvalidValue)
}

// Concept returns a concept by id.
func (s *Store) Concept(id ConceptID) (Concept, bool) {
	c, ok := s.concepts.get(id)
	if !ok {
		return Concept{}, false
	}
	return cloneConcept(c), true
}

// Concepts returns all concepts in creation order.
func (s *Store) Concepts() []Concept {
	out := s.concepts.all()
	for i := range out {
		out[i] = cloneConcept(out[i])
	}
	return out
}

// Role finds a role anywhere in the store and the concept owning it.
func (s *Store) Role(id RoleID) (ConceptID, Role, bool) {
	for _, c := range s.concepts.all() {
		if r, ok := c.Role(id); ok {
			return c.ID, r, true
		}
	}
	return "", Role{}, false
}

// Binding returns a binding by id.
func (s *Store) Binding(id BindingID) (Binding, bool) {
	b, ok := s.bindings.get(id)
	if !ok {
		return Binding{}, false
	}
	return cloneBinding(b), true
}

// Bindings returns all bindings in creation order.
func (s *Store) Bindings() []Binding {
	out := s.bindings.all()
	for i := range out {
		out[i] = cloneBinding(out[i])
	}
	return out
}

// BindingsFor returns the bindings of one concept role.
func (s *Store) BindingsFor(conceptID ConceptID, roleID RoleID) []Binding {
	var out []Binding
	for _, b := range s.bindings.all() {
		if b.ConceptID == conceptID && b.RoleID == roleID {
			out = append(out, cloneBinding(b))
		}
	}
	return out
}

// Relation returns a relation by id.
func (s *Store) Relation(id RelationID) (Relation, bool) {
	return s.relations.get(id)
}

// Relations returns all relations in creation order.
func (s *Store) Relations() []Relation {
	return s.relations.all()
}

// Constraint returns a constraint by id.
func (s *Store) Constraint(id ConstraintID) (Constraint, bool) {
	c, ok := s.constraints.get(id)
	if !ok {
		return Constraint{}, false
	}
	return cloneConstraint(c), true
}

// Constraints returns all constraints in creation order.
func (s *Store) Constraints() []Constraint {
	out := s.constraints.all()
	for i := range out {
		out[i] = cloneConstraint(out[i])
	}
	return out
}

// ConstraintsFor returns the constraints of one concept.
func (s *Store) ConstraintsFor(conceptID ConceptID) []Constraint {
	var out []Constraint
	for _, c := range s.constraints.all() {
		if c.ConceptID == conceptID {
			out = append(out, cloneConstraint(c))
		}
	}
	return out
}

func cloneConcept(c Concept) Concept {
	out := c
	out.Roles = make([]Role, len(c.Roles))
	for i, r := range c.Roles {
		out.Roles[i] = r
		out.Roles[i].Accepts = append([]entity.Role(nil), r.Accepts...)
	}
	return out
}

func cloneBinding(b Binding) Binding {
	out := b
	if b.Properties != nil {
		out.Properties = maps.Clone(b.Properties)
	}
	return out
}

func cloneConstraint(c Constraint) Constraint {
	out := c
	if c.Expr.Value != nil {
		v := *c.Expr.Value
		out.Expr.Value = &v
	}
	return out
}
