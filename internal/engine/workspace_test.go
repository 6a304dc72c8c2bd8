package engine

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/hexrules/internal/entity"
	"github.com/talgya/hexrules/internal/ontology"
	"github.com/talgya/hexrules/internal/world"
)

// newTestWorkspace builds a radius 2 plains board with one selected infantry
// unit and a Motion concept, with no relations yet.
func newTestWorkspace(t *testing.T) (*Workspace, world.EntityID, ontology.ConceptID) {
	t.Helper()

	types := entity.NewRegistry()
	require.NoError(t, types.Create(entity.EntityType{
		ID: "infantry", Name: "Infantry", Role: entity.RoleToken,
		Properties: []entity.PropertyDef{{Name: "movement_points", Kind: entity.KindNumber}},
	}))
	require.NoError(t, types.Create(entity.EntityType{ID: "plains", Name: "Plains", Role: entity.RoleBoardPosition}))

	store := ontology.NewStore(types)
	motion, err := store.CreateConcept(ontology.Concept{
		Name: "Motion",
		Roles: []ontology.Role{
			{ID: "traveler", Name: "traveler", Accepts: []entity.Role{entity.RoleToken}},
			{ID: "ground", Name: "ground", Accepts: []entity.Role{entity.RoleBoardPosition}},
		},
	})
	require.NoError(t, err)
	_, err = store.CreateBinding(ontology.Binding{
		ConceptID: motion.ID, RoleID: "traveler", EntityTypeID: "infantry",
		Properties: map[string]string{"cost": "movement_points"},
	})
	require.NoError(t, err)
	_, err = store.CreateBinding(ontology.Binding{ConceptID: motion.ID, RoleID: "ground", EntityTypeID: "plains"})
	require.NoError(t, err)

	board := world.NewBoard(2)
	for _, h := range board.Coords() {
		_, err := board.SetTile(world.Entity{TypeID: "plains", Position: h})
		require.NoError(t, err)
	}
	unit, err := board.PlaceUnit(world.Entity{
		TypeID: "infantry",
		Props:  map[string]entity.Value{"movement_points": entity.Number(1)},
	})
	require.NoError(t, err)
	require.NoError(t, board.Select(&unit))

	return NewWorkspace(types, store, board), unit, motion.ID
}

func moveCost(concept ontology.ConceptID) ontology.Relation {
	return ontology.Relation{
		Name: "move cost", ConceptID: concept, SubjectRole: "traveler", ObjectRole: "ground",
		Trigger: ontology.TriggerOnEnter,
		Effect:  ontology.Effect{Kind: ontology.EffectModifyProperty, Property: "cost", Operation: ontology.OpSubtract, Amount: 1},
	}
}

func TestWorkspace_InitialOutputs(t *testing.T) {
	ws, unit, _ := newTestWorkspace(t)

	assert.True(t, ws.Validation().Valid)
	moves := ws.Moves()
	require.NotNil(t, moves.ForEntity)
	assert.Equal(t, unit, *moves.ForEntity)
	// No relations or constraints: free movement across the whole radius.
	assert.Len(t, moves.ValidPositions, 18)
}

func TestWorkspace_ApplyRecomputes(t *testing.T) {
	ws, _, concept := newTestWorkspace(t)
	rev := ws.Revision()

	err := ws.Apply(func(s Stores) error {
		_, err := s.Ontology.CreateRelation(moveCost(concept))
		return err
	})
	require.NoError(t, err)

	assert.Greater(t, ws.Revision(), rev)
	assert.Len(t, ws.Moves().ValidPositions, 6)
}

func TestWorkspace_FailedEditChangesNothing(t *testing.T) {
	ws, _, _ := newTestWorkspace(t)
	rev := ws.Revision()
	before := ws.Moves()

	err := ws.Apply(func(s Stores) error {
		_, err := s.Ontology.CreateBinding(ontology.Binding{ConceptID: "nope", RoleID: "traveler", EntityTypeID: "infantry"})
		return err
	})
	assert.ErrorIs(t, err, ontology.ErrInvalidReference)
	assert.Equal(t, rev, ws.Revision())
	assert.Equal(t, before, ws.Moves())
}

func TestWorkspace_EditErrorIsPassedThrough(t *testing.T) {
	ws, _, _ := newTestWorkspace(t)
	boom := errors.New("boom")
	assert.Equal(t, boom, ws.Apply(func(Stores) error { return boom }))
}

func TestWorkspace_SelectionChangeRecomputesMovesOnly(t *testing.T) {
	ws, _, _ := newTestWorkspace(t)
	validation := ws.Validation()

	require.NoError(t, ws.Apply(func(s Stores) error { return s.Board.Select(nil) }))
	moves := ws.Moves()
	assert.Nil(t, moves.ForEntity)
	assert.Empty(t, moves.ValidPositions)
	assert.Equal(t, 0, moves.Explored)
	assert.Equal(t, validation, ws.Validation())
}

func TestWorkspace_SelectReturnsItsMoves(t *testing.T) {
	ws, unit, _ := newTestWorkspace(t)
	revision := ws.Revision()

	moves, err := ws.Select(nil)
	require.NoError(t, err)
	assert.Nil(t, moves.ForEntity)
	assert.Empty(t, moves.ValidPositions)
	assert.Equal(t, moves, ws.Moves())
	assert.Greater(t, ws.Revision(), revision)

	moves, err = ws.Select(&unit)
	require.NoError(t, err)
	require.NotNil(t, moves.ForEntity)
	assert.Equal(t, unit, *moves.ForEntity)
	assert.Len(t, moves.ValidPositions, 18)

	ghost := world.EntityID("u-none")
	_, err = ws.Select(&ghost)
	assert.ErrorIs(t, err, world.ErrNotFound)
	require.NotNil(t, ws.Moves().ForEntity)
	assert.Equal(t, unit, *ws.Moves().ForEntity)
}

func TestWorkspace_SelectIsConsistentUnderConcurrentEdits(t *testing.T) {
	ws, unit, _ := newTestWorkspace(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 200 {
			_ = ws.Apply(func(s Stores) error { return s.Board.Select(nil) })
		}
	}()
	mismatches := 0
	go func() {
		defer wg.Done()
		for range 200 {
			moves, err := ws.Select(&unit)
			if err != nil || moves.ForEntity == nil || *moves.ForEntity != unit || len(moves.ValidPositions) != 18 {
				mismatches++
			}
		}
	}()
	wg.Wait()
	assert.Zero(t, mismatches)
}

func TestWorkspace_TypeDeletionInvalidatesSchema(t *testing.T) {
	ws, _, _ := newTestWorkspace(t)

	require.NoError(t, ws.Apply(func(s Stores) error { return s.Types.Delete("plains") }))
	v := ws.Validation()
	assert.False(t, v.Valid)
}

func TestWorkspace_Replace(t *testing.T) {
	ws, _, _ := newTestWorkspace(t)
	rev := ws.Revision()

	types := entity.NewRegistry()
	ws.Replace(types, ontology.NewStore(types), world.NewBoard(1))

	assert.Greater(t, ws.Revision(), rev)
	assert.Nil(t, ws.Moves().ForEntity)
	assert.True(t, ws.Validation().Valid)
	ws.View(func(s Stores) {
		assert.Equal(t, 1, s.Board.Radius)
		assert.Empty(t, s.Types.Types())
	})
}
