// Package entity provides the entity-type registry: what kinds of pieces exist,
// whether they sit permanently on a hex or move around, and which typed
// properties they carry.
package entity

import (
	"fmt"
	"strconv"
)

// TypeID identifies an entity type.
type TypeID string

// Role tags how an entity type occupies the board.
type Role string

const (
	RoleBoardPosition Role = "BoardPosition" // Occupies a hex permanently (terrain)
	RoleToken         Role = "Token"         // Movable piece (units)
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleBoardPosition || r == RoleToken
}

// PropertyKind is the declared type of a property definition.
type PropertyKind string

const (
	KindNumber  PropertyKind = "number"
	KindEnum    PropertyKind = "enum"
	KindBoolean PropertyKind = "boolean"
	KindText    PropertyKind = "text"
)

// PropertyDef declares one property of an entity type.
type PropertyDef struct {
	Name    string       `json:"name" yaml:"name"`
	Kind    PropertyKind `json:"kind" yaml:"kind"`
	Options []string     `json:"options,omitempty" yaml:"options,omitempty"` // enum only
}

// EntityType is a designer-defined kind of piece.
type EntityType struct {
	ID         TypeID        `json:"id" yaml:"id"`
	Name       string        `json:"name" yaml:"name"`
	Role       Role          `json:"role" yaml:"role"`
	Properties []PropertyDef `json:"properties" yaml:"properties"`
}

// Property returns the definition with the given name.
func (t *EntityType) Property(name string) (PropertyDef, bool) {
	for _, p := range t.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertyDef{}, false
}

// DisplayName prefers the human name, falling back to the id.
func (t *EntityType) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return string(t.ID)
}

// ValueKind is the runtime shape of a property value.
type ValueKind string

const (
	ValueNumber ValueKind = "number"
	ValueString ValueKind = "string" // enum and text
	ValueBool   ValueKind = "bool"
)

// Value is a property value held by a board entity.
type Value struct {
	Kind ValueKind `json:"kind" yaml:"kind"`
	Num  float64   `json:"num,omitempty" yaml:"num,omitempty"`
	Str  string    `json:"str,omitempty" yaml:"str,omitempty"`
	Bool bool      `json:"bool,omitempty" yaml:"bool,omitempty"`
}

// Number builds a numeric value.
func Number(n float64) Value { return Value{Kind: ValueNumber, Num: n} }

// String builds an enum/text value.
func String(s string) Value { return Value{Kind: ValueString, Str: s} }

// Bool builds a boolean value.
func Bool(b bool) Value { return Value{Kind: ValueBool, Bool: b} }

// ValueOf converts a decoded scalar (from YAML or JSON) into a Value.
func ValueOf(raw any) (Value, error) {
	switch v := raw.(type) {
	case Value:
		return v, nil
	case int:
		return Number(float64(v)), nil
	case int64:
		return Number(float64(v)), nil
	case float64:
		return Number(v), nil
	case bool:
		return Bool(v), nil
	case string:
		return String(v), nil
	default:
		return Value{}, fmt.Errorf("unsupported property value %v (%T)", raw, raw)
	}
}

// Raw returns the value as a plain scalar, the inverse of ValueOf.
func (v Value) Raw() any {
	switch v.Kind {
	case ValueNumber:
		return v.Num
	case ValueBool:
		return v.Bool
	default:
		return v.Str
	}
}

// String formats the value for explanations.
func (v Value) String() string {
	switch v.Kind {
	case ValueNumber:
		return FormatNumber(v.Num)
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

// FormatNumber renders a number without trailing zeros ("2", "1.5").
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// CompareOp is a comparison operator usable in constraints.
type CompareOp string

const (
	OpLT CompareOp = "<"
	OpLE CompareOp = "<="
	OpEQ CompareOp = "=="
	OpNE CompareOp = "!="
	OpGE CompareOp = ">="
	OpGT CompareOp = ">"
)

// Valid reports whether op is one of the six supported operators.
func (op CompareOp) Valid() bool {
	switch op {
	case OpLT, OpLE, OpEQ, OpNE, OpGE, OpGT:
		return true
	}
	return false
}

// Compare evaluates a op b. ok is false when the pair is not comparable:
// mismatched kinds, an unknown operator, or ordering on non-numbers.
func Compare(a Value, op CompareOp, b Value) (result bool, ok bool) {
	if a.Kind != b.Kind || !op.Valid() {
		return false, false
	}
	switch a.Kind {
	case ValueNumber:
		switch op {
		case OpLT:
			return a.Num < b.Num, true
		case OpLE:
			return a.Num <= b.Num, true
		case OpEQ:
			return a.Num == b.Num, true
		case OpNE:
			return a.Num != b.Num, true
		case OpGE:
			return a.Num >= b.Num, true
		case OpGT:
			return a.Num > b.Num, true
		}
	case ValueString:
		switch op {
		case OpEQ:
			return a.Str == b.Str, true
		case OpNE:
			return a.Str != b.Str, true
		}
	case ValueBool:
		switch op {
		case OpEQ:
			return a.Bool == b.Bool, true
		case OpNE:
			return a.Bool != b.Bool, true
		}
	}
	return false, false
}
