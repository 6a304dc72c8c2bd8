package ontology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/hexrules/internal/entity"
)

type motionFixture struct {
	types    *entity.Registry
	store    *Store
	concept  Concept
	traveler RoleID
	ground   RoleID
}

func newMotionFixture(t *testing.T) motionFixture {
	t.Helper()

	types := entity.NewRegistry()
	require.NoError(t, types.Create(entity.EntityType{
		ID: "infantry", Name: "Infantry", Role: entity.RoleToken,
		Properties: []entity.PropertyDef{{Name: "movement_points", Kind: entity.KindNumber}},
	}))
	require.NoError(t, types.Create(entity.EntityType{
		ID: "plains", Name: "Plains", Role: entity.RoleBoardPosition,
	}))

	store := NewStore(types)
	concept, err := store.CreateConcept(Concept{
		Name: "Motion",
		Roles: []Role{
			{ID: "traveler", Name: "traveler", Accepts: []entity.Role{entity.RoleToken}},
			{ID: "ground", Name: "ground", Accepts: []entity.Role{entity.RoleBoardPosition}},
		},
	})
	require.NoError(t, err)

	return motionFixture{types: types, store: store, concept: concept, traveler: "traveler", ground: "ground"}
}

func (f motionFixture) moveCost(amount float64) Relation {
	return Relation{
		Name:        "move cost",
		ConceptID:   f.concept.ID,
		SubjectRole: f.traveler,
		ObjectRole:  f.ground,
		Trigger:     TriggerOnEnter,
		Effect:      Effect{Kind: EffectModifyProperty, Property: "cost", Operation: OpSubtract, Amount: amount},
	}
}

func TestStore_CreateConceptAssignsIDs(t *testing.T) {
	f := newMotionFixture(t)

	assert.NotEmpty(t, f.concept.ID)
	require.Len(t, f.concept.Roles, 2)

	cid, role, ok := f.store.Role("ground")
	require.True(t, ok)
	assert.Equal(t, f.concept.ID, cid)
	assert.True(t, role.AcceptsRole(entity.RoleBoardPosition))
	assert.False(t, role.AcceptsRole(entity.RoleToken))

	_, err := f.store.CreateConcept(Concept{Name: "Dup", Roles: []Role{{ID: "ground"}}})
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = f.store.CreateConcept(Concept{Name: "Odd", Roles: []Role{{Name: "x", Accepts: []entity.Role{"Cloud"}}}})
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Len(t, f.store.Concepts(), 1)
}

func TestStore_BindingRoleCompatibility(t *testing.T) {
	f := newMotionFixture(t)

	b, err := f.store.CreateBinding(Binding{
		ConceptID: f.concept.ID, RoleID: f.traveler, EntityTypeID: "infantry",
		Properties: map[string]string{"cost": "movement_points"},
	})
	require.NoError(t, err)
	assert.Equal(t, "movement_points", b.Resolve("cost"))
	assert.Equal(t, "other", b.Resolve("other"))

	version := f.store.Version()
	tests := []struct {
		name    string
		binding Binding
	}{
		{"token into board role", Binding{ConceptID: f.concept.ID, RoleID: f.ground, EntityTypeID: "infantry"}},
		{"unknown type", Binding{ConceptID: f.concept.ID, RoleID: f.ground, EntityTypeID: "dragon"}},
		{"unknown concept", Binding{ConceptID: "nope", RoleID: f.ground, EntityTypeID: "plains"}},
		{"role of no concept", Binding{ConceptID: f.concept.ID, RoleID: "elsewhere", EntityTypeID: "plains"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.store.CreateBinding(tt.binding)
			assert.ErrorIs(t, err, ErrInvalidReference)
		})
	}
	assert.Equal(t, version, f.store.Version(), "failed edits must not change the store")
	assert.Len(t, f.store.Bindings(), 1)
}

func TestStore_RelationReferences(t *testing.T) {
	f := newMotionFixture(t)

	same := f.moveCost(1)
	same.ObjectRole = f.traveler
	_, err := f.store.CreateRelation(same)
	assert.ErrorIs(t, err, ErrInvalidReference)

	foreign := f.moveCost(1)
	foreign.ObjectRole = "sky"
	_, err = f.store.CreateRelation(foreign)
	assert.ErrorIs(t, err, ErrInvalidReference)

	badTrigger := f.moveCost(1)
	badTrigger.Trigger = "OnSneeze"
	_, err = f.store.CreateRelation(badTrigger)
	assert.ErrorIs(t, err, ErrInvalidValue)

	assert.Empty(t, f.store.Relations())
	assert.Empty(t, f.store.Constraints())
}

func TestStore_NotFound(t *testing.T) {
	f := newMotionFixture(t)

	assert.ErrorIs(t, f.store.DeleteConcept("missing"), ErrNotFound)
	assert.ErrorIs(t, f.store.RenameConcept("missing", "x"), ErrNotFound)
	assert.ErrorIs(t, f.store.RemoveRole(f.concept.ID, "missing"), ErrNotFound)
	assert.ErrorIs(t, f.store.UpdateRole(f.concept.ID, Role{ID: "missing"}), ErrNotFound)
	assert.ErrorIs(t, f.store.DeleteBinding("missing"), ErrNotFound)
	assert.ErrorIs(t, f.store.UpdateBinding(Binding{ID: "missing"}), ErrNotFound)
	assert.ErrorIs(t, f.store.DeleteRelation("missing"), ErrNotFound)
	assert.ErrorIs(t, f.store.UpdateRelation(Relation{ID: "missing"}), ErrNotFound)
	assert.ErrorIs(t, f.store.DeleteConstraint("missing"), ErrNotFound)
	assert.ErrorIs(t, f.store.UpdateConstraint(Constraint{ID: "missing"}), ErrNotFound)
	_, err := f.store.AddRole("missing", Role{Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteConceptDoesNotCascade(t *testing.T) {
	f := newMotionFixture(t)
	_, err := f.store.CreateBinding(Binding{ConceptID: f.concept.ID, RoleID: f.ground, EntityTypeID: "plains"})
	require.NoError(t, err)

	require.NoError(t, f.store.DeleteConcept(f.concept.ID))
	assert.Empty(t, f.store.Concepts())
	assert.Len(t, f.store.Bindings(), 1)
}

func TestStore_RoleEdits(t *testing.T) {
	f := newMotionFixture(t)

	r, err := f.store.AddRole(f.concept.ID, Role{Name: "obstacle", Accepts: []entity.Role{entity.RoleToken}})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)

	r.Accepts = []entity.Role{entity.RoleToken, entity.RoleBoardPosition}
	require.NoError(t, f.store.UpdateRole(f.concept.ID, r))
	c, _ := f.store.Concept(f.concept.ID)
	got, ok := c.Role(r.ID)
	require.True(t, ok)
	assert.Len(t, got.Accepts, 2)

	require.NoError(t, f.store.RemoveRole(f.concept.ID, r.ID))
	c, _ = f.store.Concept(f.concept.ID)
	assert.Len(t, c.Roles, 2)
}

func TestStore_UpdateConstraintClearsDerivation(t *testing.T) {
	f := newMotionFixture(t)
	rel, err := f.store.CreateRelation(f.moveCost(1))
	require.NoError(t, err)

	derived, ok := f.store.DerivedFrom(rel.ID)
	require.True(t, ok)

	derived.Name = "tuned budget"
	derived.AutoGenerated = true
	require.NoError(t, f.store.UpdateConstraint(derived))

	got, ok := f.store.Constraint(derived.ID)
	require.True(t, ok)
	assert.False(t, got.AutoGenerated)
	assert.Empty(t, got.SourceRelation)
	assert.Equal(t, "tuned budget", got.Name)
}

func TestStore_CreateConstraintIsNeverDerived(t *testing.T) {
	f := newMotionFixture(t)

	c, err := f.store.CreateConstraint(Constraint{
		Name:           "fresh troops",
		ConceptID:      f.concept.ID,
		Expr:           PropertyCompare(f.traveler, "movement_points", entity.OpGT, entity.Number(0)),
		AutoGenerated:  true,
		SourceRelation: "forged",
	})
	require.NoError(t, err)
	assert.False(t, c.AutoGenerated)
	assert.Empty(t, c.SourceRelation)

	_, err = f.store.CreateConstraint(Constraint{ConceptID: f.concept.ID, Expr: Expr{Kind: "Regex"}})
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = f.store.CreateConstraint(Constraint{ConceptID: "gone", Expr: IsType(f.ground, "plains")})
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestStore_SnapshotRestoreRoundTrip(t *testing.T) {
	f := newMotionFixture(t)
	rel, err := f.store.CreateRelation(f.moveCost(1))
	require.NoError(t, err)
	_, err = f.store.CreateBinding(Binding{ConceptID: f.concept.ID, RoleID: f.ground, EntityTypeID: "plains"})
	require.NoError(t, err)

	snap := f.store.Snapshot()

	restored := NewStore(f.types)
	restored.Restore(snap)
	assert.Equal(t, snap, restored.Snapshot())

	derived, ok := restored.DerivedFrom(rel.ID)
	require.True(t, ok)
	assert.True(t, derived.AutoGenerated)

	// Reloaded state is already reconciled.
	assert.Equal(t, 0, restored.Reconcile())
}

func TestStore_AccessorsReturnCopies(t *testing.T) {
	f := newMotionFixture(t)
	c, _ := f.store.Concept(f.concept.ID)
	c.Roles[0].Name = "mutated"

	again, _ := f.store.Concept(f.concept.ID)
	assert.Equal(t, "traveler", again.Roles[0].Name)
}
