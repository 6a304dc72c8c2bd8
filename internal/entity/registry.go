package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for an unknown entity type id.
	ErrNotFound = errors.New("entity type not found")

	// ErrInvalidType is returned when a type definition is malformed.
	ErrInvalidType = errors.New("invalid entity type")
)

// Registry holds entity type definitions in insertion order.
// Not safe for concurrent use; the workspace serializes access.
type Registry struct {
	types   map[TypeID]*EntityType
	order   []TypeID
	version uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[TypeID]*EntityType)}
}

// Version increases on every successful mutation.
func (r *Registry) Version() uint64 {
	return r.version
}

// Create adds a new type. The id must be unused.
func (r *Registry) Create(t EntityType) error {
	if err := checkType(t); err != nil {
		return err
	}
	if _, exists := r.types[t.ID]; exists {
		return fmt.Errorf("%w: duplicate id %q", ErrInvalidType, t.ID)
	}
	c := cloneType(t)
	r.types[t.ID] = &c
	r.order = append(r.order, t.ID)
	r.version++
	return nil
}

// Update replaces an existing type definition.
func (r *Registry) Update(t EntityType) error {
	if _, ok := r.types[t.ID]; !ok {
		return fmt.Errorf("type %s: %w", t.ID, ErrNotFound)
	}
	if err := checkType(t); err != nil {
		return err
	}
	c := cloneType(t)
	r.types[t.ID] = &c
	r.version++
	return nil
}

// Delete removes a type. Bindings that referenced it are left dangling.
func (r *Registry) Delete(id TypeID) error {
	if _, ok := r.types[id]; !ok {
		return fmt.Errorf("type %s: %w", id, ErrNotFound)
	}
	delete(r.types, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.version++
	return nil
}

// Type returns a copy of the type with the given id.
func (r *Registry) Type(id TypeID) (EntityType, bool) {
	t, ok := r.types[id]
	if !ok {
		return EntityType{}, false
	}
	return cloneType(*t), true
}

// Types returns copies of all types in insertion order.
func (r *Registry) Types() []EntityType {
	out := make([]EntityType, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, cloneType(*r.types[id]))
	}
	return out
}

func checkType(t EntityType) error {
	if t.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidType)
	}
	if !t.Role.Valid() {
		return fmt.Errorf("%w: type %s has unknown role %q", ErrInvalidType, t.ID, t.Role)
	}
	seen := make(map[string]bool, len(t.Properties))
	for _, p := range t.Properties {
		if p.Name == "" {
			return fmt.Errorf("%w: type %s has an unnamed property", ErrInvalidType, t.ID)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: type %s: duplicate property %q", ErrInvalidType, t.ID, p.Name)
		}
		seen[p.Name] = true
		switch p.Kind {
		case KindNumber, KindBoolean, KindText:
		case KindEnum:
			if len(p.Options) == 0 {
				return fmt.Errorf("%w: type %s: enum property %q has no options", ErrInvalidType, t.ID, p.Name)
			}
		default:
			return fmt.Errorf("%w: type %s: property %q has unknown kind %q", ErrInvalidType, t.ID, p.Name, p.Kind)
		}
	}
	return nil
}

func cloneType(t EntityType) EntityType {
	c := t
	c.Properties = make([]PropertyDef, len(t.Properties))
	for i, p := range t.Properties {
		c.Properties[i] = p
		c.Properties[i].Options = append([]string(nil), p.Options...)
	}
	return c
}
