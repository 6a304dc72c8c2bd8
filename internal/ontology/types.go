// Package ontology holds the rules schema of a game system: concepts with role
// slots, bindings of entity types onto those roles, relations that fire
// between roles, and constraints evaluated against bound entities.
package ontology

import (
	"github.com/talgya/hexrules/internal/entity"
)

// Identifiers. New ones are random uuids; loaded ones keep whatever the file said.
type (
	ConceptID    string
	RoleID       string
	BindingID    string
	RelationID   string
	ConstraintID string
)

// Concept is a named abstract relationship pattern, e.g. "Motion".
type Concept struct {
	ID    ConceptID `json:"id" yaml:"id"`
	Name  string    `json:"name" yaml:"name"`
	Roles []Role    `json:"roles" yaml:"roles"`
}

// Role is a slot of a concept.
type Role struct {
	ID      RoleID        `json:"id" yaml:"id"`
	Name    string        `json:"name" yaml:"name"`
	Accepts []entity.Role `json:"accepts" yaml:"accepts"`
}

// AcceptsRole reports whether entities with role er may fill this slot.
func (r Role) AcceptsRole(er entity.Role) bool {
	for _, a := range r.Accepts {
		if a == er {
			return true
		}
	}
	return false
}

// Role returns the concept's role with the given id.
func (c *Concept) Role(id RoleID) (Role, bool) {
	for _, r := range c.Roles {
		if r.ID == id {
			return r, true
		}
	}
	return Role{}, false
}

// Binding puts an entity type into a concept role. Properties maps
// concept-local property names to the entity type's own property names.
type Binding struct {
	ID           BindingID         `json:"id" yaml:"id"`
	ConceptID    ConceptID         `json:"concept" yaml:"concept"`
	RoleID       RoleID            `json:"role" yaml:"role"`
	EntityTypeID entity.TypeID     `json:"entity_type" yaml:"entity_type"`
	Properties   map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Resolve maps a concept-local property name to the bound type's property name.
// Unmapped names resolve to themselves.
func (b *Binding) Resolve(local string) string {
	if actual, ok := b.Properties[local]; ok {
		return actual
	}
	return local
}

// Trigger says when a relation's effect applies.
type Trigger string

const (
	TriggerOnEnter      Trigger = "OnEnter"
	TriggerOnExit       Trigger = "OnExit"
	TriggerWhilePresent Trigger = "WhilePresent"
)

// Valid reports whether t is a known trigger.
func (t Trigger) Valid() bool {
	return t == TriggerOnEnter || t == TriggerOnExit || t == TriggerWhilePresent
}

// EffectKind discriminates Effect variants.
type EffectKind string

const (
	EffectModifyProperty EffectKind = "ModifyProperty"
	EffectBlock          EffectKind = "Block"
	EffectAllow          EffectKind = "Allow"
)

// Operation is the arithmetic of a ModifyProperty effect.
type Operation string

const (
	OpAdd      Operation = "Add"
	OpSubtract Operation = "Subtract"
)

// Effect is what a relation does when triggered. Property, Operation and
// Amount are only meaningful for ModifyProperty.
type Effect struct {
	Kind      EffectKind `json:"kind" yaml:"kind"`
	Property  string     `json:"property,omitempty" yaml:"property,omitempty"`
	Operation Operation  `json:"operation,omitempty" yaml:"operation,omitempty"`
	Amount    float64    `json:"amount,omitempty" yaml:"amount,omitempty"`
}

// Subtracts reports whether the effect is ModifyProperty{Subtract}.
func (e Effect) Subtracts() bool {
	return e.Kind == EffectModifyProperty && e.Operation == OpSubtract
}

// Valid reports whether the effect is well formed.
func (e Effect) Valid() bool {
	switch e.Kind {
	case EffectBlock, EffectAllow:
		return true
	case EffectModifyProperty:
		return e.Property != "" && (e.Operation == OpAdd || e.Operation == OpSubtract)
	}
	return false
}

// Relation is a triggered effect from a subject role onto an object role.
type Relation struct {
	ID          RelationID `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	ConceptID   ConceptID  `json:"concept" yaml:"concept"`
	SubjectRole RoleID     `json:"subject_role" yaml:"subject_role"`
	ObjectRole  RoleID     `json:"object_role" yaml:"object_role"`
	Trigger     Trigger    `json:"trigger" yaml:"trigger"`
	Effect      Effect     `json:"effect" yaml:"effect"`
}

// ExprKind discriminates constraint expression variants.
type ExprKind string

const (
	ExprPropertyCompare ExprKind = "PropertyCompare"
	ExprCrossCompare    ExprKind = "CrossCompare"
	ExprIsType          ExprKind = "IsType"
	ExprPathBudget      ExprKind = "PathBudget"
)

// Expr is a constraint expression. Which fields are used depends on Kind:
//
//	PropertyCompare: Role, Property, Op, Value
//	CrossCompare:    Role, Property, Op, RoleB, PropertyB
//	IsType:          Role, ExpectedType
//	PathBudget:      Role, Property
type Expr struct {
	Kind         ExprKind         `json:"kind" yaml:"kind"`
	Role         RoleID           `json:"role" yaml:"role"`
	Property     string           `json:"property,omitempty" yaml:"property,omitempty"`
	Op           entity.CompareOp `json:"op,omitempty" yaml:"op,omitempty"`
	Value        *entity.Value    `json:"value,omitempty" yaml:"value,omitempty"`
	RoleB        RoleID           `json:"role_b,omitempty" yaml:"role_b,omitempty"`
	PropertyB    string           `json:"property_b,omitempty" yaml:"property_b,omitempty"`
	ExpectedType entity.TypeID    `json:"expected_type,omitempty" yaml:"expected_type,omitempty"`
}

// Roles returns the roles the expression refers to.
func (e Expr) Roles() []RoleID {
	if e.Kind == ExprCrossCompare {
		return []RoleID{e.Role, e.RoleB}
	}
	return []RoleID{e.Role}
}

// PathBudget builds a PathBudget expression.
func PathBudget(role RoleID, property string) Expr {
	return Expr{Kind: ExprPathBudget, Role: role, Property: property}
}

// PropertyCompare builds a PropertyCompare expression.
func PropertyCompare(role RoleID, property string, op entity.CompareOp, v entity.Value) Expr {
	return Expr{Kind: ExprPropertyCompare, Role: role, Property: property, Op: op, Value: &v}
}

// CrossCompare builds a CrossCompare expression.
func CrossCompare(roleA RoleID, propA string, op entity.CompareOp, roleB RoleID, propB string) Expr {
	return Expr{Kind: ExprCrossCompare, Role: roleA, Property: propA, Op: op, RoleB: roleB, PropertyB: propB}
}

// IsType builds an IsType expression.
func IsType(role RoleID, expected entity.TypeID) Expr {
	return Expr{Kind: ExprIsType, Role: role, ExpectedType: expected}
}

// Constraint is an expression that must hold for bound entities.
// A derived constraint has AutoGenerated set and points back at the relation
// that produced it; editing it clears both.
type Constraint struct {
	ID             ConstraintID `json:"id" yaml:"id"`
	Name           string       `json:"name" yaml:"name"`
	ConceptID      ConceptID    `json:"concept" yaml:"concept"`
	Expr           Expr         `json:"expr" yaml:"expr"`
	AutoGenerated  bool         `json:"auto_generated" yaml:"auto_generated"`
	SourceRelation RelationID   `json:"source_relation,omitempty" yaml:"source_relation,omitempty"`
}
