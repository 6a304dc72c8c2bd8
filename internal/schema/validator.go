package schema

import (
	"maps"
	"slices"

	"github.com/talgya/hexrules/internal/entity"
	"github.com/talgya/hexrules/internal/ontology"
)

// Ontology is the read side of an ontology store.
type Ontology interface {
	Concepts() []ontology.Concept
	Bindings() []ontology.Binding
	Relations() []ontology.Relation
	Constraints() []ontology.Constraint
}

// Types resolves entity types by id.
type Types interface {
	Type(id entity.TypeID) (entity.EntityType, bool)
}

// Validator runs one read-only validation pass.
type Validator struct {
	onto  Ontology
	types Types

	concepts map[ontology.ConceptID]ontology.Concept
	roleOf   map[ontology.RoleID]ontology.ConceptID
	bindings []ontology.Binding
	relIDs   map[ontology.RelationID]bool
	rep      *report
}

// Validate checks onto against types and returns a fresh report.
func Validate(onto Ontology, types Types) Validation {
	v := &Validator{onto: onto, types: types}
	return v.Run()
}

// Run performs the pass. Each call rebuilds the report from scratch.
func (v *Validator) Run() Validation {
	v.index()
	v.checkBindings()
	v.checkRelations()
	v.checkConstraints()
	v.checkCoverage()
	return v.rep.build()
}

func (v *Validator) index() {
	v.rep = newReport()
	v.concepts = make(map[ontology.ConceptID]ontology.Concept)
	v.roleOf = make(map[ontology.RoleID]ontology.ConceptID)
	for _, c := range v.onto.Concepts() {
		v.concepts[c.ID] = c
		for _, r := range c.Roles {
			v.roleOf[r.ID] = c.ID
		}
	}
	v.bindings = v.onto.Bindings()
	v.relIDs = make(map[ontology.RelationID]bool)
	for _, r := range v.onto.Relations() {
		v.relIDs[r.ID] = true
	}
}

// checkBindings covers dangling links, role compatibility and property maps.
func (v *Validator) checkBindings() {
	for _, b := range v.bindings {
		src := "binding:" + string(b.ID)

		c, conceptOK := v.concepts[b.ConceptID]
		if !conceptOK {
			v.rep.add(CategoryDanglingReference, src, "binding %s refers to missing concept %s", b.ID, b.ConceptID)
		}
		var role ontology.Role
		roleOK := false
		if conceptOK {
			role, roleOK = c.Role(b.RoleID)
			if !roleOK {
				v.rep.add(CategoryDanglingReference, src, "binding %s refers to missing role %s of concept %s", b.ID, b.RoleID, c.Name)
			}
		}
		t, typeOK := v.types.Type(b.EntityTypeID)
		if !typeOK {
			v.rep.add(CategoryDanglingReference, src, "binding %s refers to missing entity type %s", b.ID, b.EntityTypeID)
			continue
		}

		if roleOK && !role.AcceptsRole(t.Role) {
			v.rep.add(CategoryRoleMismatch, src, "%s is a %s but role %s of %s accepts %v",
				t.DisplayName(), t.Role, role.Name, c.Name, role.Accepts)
		}

		for _, local := range slices.Sorted(maps.Keys(b.Properties)) {
			actual := b.Properties[local]
			if _, ok := t.Property(actual); !ok {
				v.rep.add(CategoryPropertyMismatch, src, "binding %s maps %q to %q, which %s does not have",
					b.ID, local, actual, t.DisplayName())
			}
		}
	}
}

func (v *Validator) checkRelations() {
	for _, r := range v.onto.Relations() {
		src := "relation:" + string(r.ID)
		c, ok := v.concepts[r.ConceptID]
		if !ok {
			v.rep.add(CategoryDanglingReference, src, "relation %s refers to missing concept %s", relationName(r), r.ConceptID)
			continue
		}
		for _, roleID := range []ontology.RoleID{r.SubjectRole, r.ObjectRole} {
			if _, ok := c.Role(roleID); !ok {
				v.rep.add(CategoryDanglingReference, src, "relation %s refers to missing role %s of concept %s", relationName(r), roleID, c.Name)
			}
		}
	}
}

func (v *Validator) checkConstraints() {
	for _, con := range v.onto.Constraints() {
		src := "constraint:" + string(con.ID)
		name := con.Name
		if name == "" {
			name = string(con.ID)
		}

		if con.AutoGenerated && !v.relIDs[con.SourceRelation] {
			v.rep.add(CategoryDanglingReference, src, "constraint %s was derived from missing relation %s", name, con.SourceRelation)
		}
		c, ok := v.concepts[con.ConceptID]
		if !ok {
			v.rep.add(CategoryDanglingReference, src, "constraint %s refers to missing concept %s", name, con.ConceptID)
			continue
		}
		v.checkExpr(src, name, c, con.Expr)
	}
}

func (v *Validator) checkExpr(src, name string, c ontology.Concept, e ontology.Expr) {
	switch e.Kind {
	case ontology.ExprPropertyCompare:
		if !e.Op.Valid() {
			v.rep.add(CategoryInvalidExpression, src, "constraint %s uses unknown operator %q", name, e.Op)
		}
		if e.Value == nil {
			v.rep.add(CategoryInvalidExpression, src, "constraint %s compares against no value", name)
		}
		v.checkOperand(src, name, c, e.Role, e.Property)
	case ontology.ExprCrossCompare:
		if !e.Op.Valid() {
			v.rep.add(CategoryInvalidExpression, src, "constraint %s uses unknown operator %q", name, e.Op)
		}
		v.checkOperand(src, name, c, e.Role, e.Property)
		v.checkOperand(src, name, c, e.RoleB, e.PropertyB)
	case ontology.ExprPathBudget:
		v.checkOperand(src, name, c, e.Role, e.Property)
	case ontology.ExprIsType:
		v.checkRole(src, name, c, e.Role)
		if e.ExpectedType == "" {
			v.rep.add(CategoryInvalidExpression, src, "constraint %s expects no type", name)
		} else if _, ok := v.types.Type(e.ExpectedType); !ok {
			v.rep.add(CategoryDanglingReference, src, "constraint %s expects missing entity type %s", name, e.ExpectedType)
		}
	default:
		v.rep.add(CategoryInvalidExpression, src, "constraint %s has unknown expression kind %q", name, e.Kind)
	}
}

// checkRole reports whether the role is usable in an expression of concept c.
func (v *Validator) checkRole(src, name string, c ontology.Concept, role ontology.RoleID) bool {
	if _, ok := c.Role(role); ok {
		return true
	}
	if _, elsewhere := v.roleOf[role]; elsewhere {
		v.rep.add(CategoryInvalidExpression, src, "constraint %s uses role %s, which belongs to another concept than %s", name, role, c.Name)
	} else {
		v.rep.add(CategoryDanglingReference, src, "constraint %s refers to missing role %s", name, role)
	}
	return false
}

// checkOperand validates a role/property pair against every binding of the role.
func (v *Validator) checkOperand(src, name string, c ontology.Concept, role ontology.RoleID, property string) {
	if !v.checkRole(src, name, c, role) {
		return
	}
	if property == "" {
		v.rep.add(CategoryInvalidExpression, src, "constraint %s names no property for role %s", name, roleName(c, role))
		return
	}

	bound := 0
	for _, b := range v.bindings {
		if b.ConceptID != c.ID || b.RoleID != role {
			continue
		}
		t, ok := v.types.Type(b.EntityTypeID)
		if !ok {
			continue // already reported as dangling
		}
		bound++
		actual := b.Resolve(property)
		if _, ok := t.Property(actual); !ok {
			v.rep.add(CategoryPropertyMismatch, src, "constraint %s: %s has no property %q (bound as %q)",
				name, t.DisplayName(), actual, property)
		}
	}
	if bound == 0 {
		v.rep.add(CategoryInvalidExpression, src, "constraint %s uses property %q of role %s, which has no binding",
			name, property, roleName(c, role))
	}
}

// checkCoverage warns about roles nobody is bound to.
func (v *Validator) checkCoverage() {
	bound := make(map[ontology.RoleID]bool)
	for _, b := range v.bindings {
		if b.ConceptID != "" {
			bound[b.RoleID] = true
		}
	}
	for _, c := range v.onto.Concepts() {
		for _, r := range c.Roles {
			if !bound[r.ID] {
				v.rep.add(CategoryMissingBinding, "role:"+string(r.ID), "role %s of %s has no bound entity types", r.Name, c.Name)
			}
		}
	}
}

func relationName(r ontology.Relation) string {
	if r.Name != "" {
		return r.Name
	}
	return string(r.ID)
}

func roleName(c ontology.Concept, id ontology.RoleID) string {
	if r, ok := c.Role(id); ok && r.Name != "" {
		return r.Name
	}
	return string(id)
}
