package api

import (
	"github.com/talgya/hexrules/internal/entity"
	"github.com/talgya/hexrules/internal/ontology"
	"github.com/talgya/hexrules/internal/world"
)

// Request bodies for the admin endpoints. Tags catch malformed payloads
// before they reach the store; reference checks stay in the store.

type propertyRequest struct {
	Name    string              `json:"name" validate:"required"`
	Kind    entity.PropertyKind `json:"kind" validate:"required,oneof=number enum boolean text"`
	Options []string            `json:"options" validate:"required_if=Kind enum,dive,required"`
}

type typeRequest struct {
	ID         entity.TypeID     `json:"id" validate:"required"`
	Name       string            `json:"name"`
	Role       entity.Role       `json:"role" validate:"required,oneof=BoardPosition Token"`
	Properties []propertyRequest `json:"properties" validate:"dive"`
}

func (r typeRequest) entityType() entity.EntityType {
	t := entity.EntityType{ID: r.ID, Name: r.Name, Role: r.Role, Properties: []entity.PropertyDef{}}
	for _, p := range r.Properties {
		t.Properties = append(t.Properties, entity.PropertyDef{Name: p.Name, Kind: p.Kind, Options: p.Options})
	}
	return t
}

type roleRequest struct {
	ID      ontology.RoleID `json:"id"`
	Name    string          `json:"name" validate:"required"`
	Accepts []entity.Role   `json:"accepts" validate:"required,min=1,dive,oneof=BoardPosition Token"`
}

func (r roleRequest) role() ontology.Role {
	return ontology.Role{ID: r.ID, Name: r.Name, Accepts: r.Accepts}
}

type conceptRequest struct {
	ID    ontology.ConceptID `json:"id"`
	Name  string             `json:"name" validate:"required"`
	Roles []roleRequest      `json:"roles" validate:"dive"`
}

func (r conceptRequest) concept() ontology.Concept {
	c := ontology.Concept{ID: r.ID, Name: r.Name}
	for _, role := range r.Roles {
		c.Roles = append(c.Roles, role.role())
	}
	return c
}

type renameRequest struct {
	ID   ontology.ConceptID `json:"id" validate:"required"`
	Name string             `json:"name" validate:"required"`
}

type roleEditRequest struct {
	Concept ontology.ConceptID `json:"concept" validate:"required"`
	Role    roleRequest        `json:"role"`
}

type bindingRequest struct {
	ID         ontology.BindingID `json:"id"`
	Concept    ontology.ConceptID `json:"concept" validate:"required"`
	Role       ontology.RoleID    `json:"role" validate:"required"`
	EntityType entity.TypeID      `json:"entity_type" validate:"required"`
	Properties map[string]string  `json:"properties" validate:"omitempty,dive,keys,required,endkeys,required"`
}

func (r bindingRequest) binding() ontology.Binding {
	return ontology.Binding{
		ID:           r.ID,
		ConceptID:    r.Concept,
		RoleID:       r.Role,
		EntityTypeID: r.EntityType,
		Properties:   r.Properties,
	}
}

type effectRequest struct {
	Kind      ontology.EffectKind `json:"kind" validate:"required,oneof=ModifyProperty Block Allow"`
	Property  string              `json:"property" validate:"required_if=Kind ModifyProperty"`
	Operation ontology.Operation  `json:"operation" validate:"omitempty,oneof=Add Subtract"`
	Amount    float64             `json:"amount" validate:"gte=0"`
}

type relationRequest struct {
	ID          ontology.RelationID `json:"id"`
	Name        string              `json:"name" validate:"required"`
	Concept     ontology.ConceptID  `json:"concept" validate:"required"`
	SubjectRole ontology.RoleID     `json:"subject_role" validate:"required"`
	ObjectRole  ontology.RoleID     `json:"object_role" validate:"required,nefield=SubjectRole"`
	Trigger     ontology.Trigger    `json:"trigger" validate:"required,oneof=OnEnter OnExit WhilePresent"`
	Effect      effectRequest       `json:"effect"`
}

func (r relationRequest) relation() ontology.Relation {
	return ontology.Relation{
		ID:          r.ID,
		Name:        r.Name,
		ConceptID:   r.Concept,
		SubjectRole: r.SubjectRole,
		ObjectRole:  r.ObjectRole,
		Trigger:     r.Trigger,
		Effect: ontology.Effect{
			Kind:      r.Effect.Kind,
			Property:  r.Effect.Property,
			Operation: r.Effect.Operation,
			Amount:    r.Effect.Amount,
		},
	}
}

// Expression operands are left to the schema validator, which reports
// malformed ones as invalid_expression instead of refusing the edit.
type constraintRequest struct {
	ID      ontology.ConstraintID `json:"id"`
	Name    string                `json:"name" validate:"required"`
	Concept ontology.ConceptID    `json:"concept" validate:"required"`
	Expr    struct {
		ontology.Expr
		Kind ontology.ExprKind `json:"kind" validate:"required,oneof=PropertyCompare CrossCompare IsType PathBudget"`
	} `json:"expr"`
}

func (r constraintRequest) constraint() ontology.Constraint {
	expr := r.Expr.Expr
	expr.Kind = r.Expr.Kind
	return ontology.Constraint{ID: r.ID, Name: r.Name, ConceptID: r.Concept, Expr: expr}
}

// selectRequest clears the selection when Unit is null.
type selectRequest struct {
	Unit *world.EntityID `json:"unit"`
}

type moveRequest struct {
	Unit world.EntityID `json:"unit" validate:"required"`
	Q    int            `json:"q"`
	R    int            `json:"r"`
}
