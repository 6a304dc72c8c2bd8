package reach

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/hexrules/internal/entity"
	"github.com/talgya/hexrules/internal/ontology"
	"github.com/talgya/hexrules/internal/world"
)

type scenario struct {
	types  *entity.Registry
	store  *ontology.Store
	board  *world.Board
	motion ontology.Concept
	unit   world.EntityID
}

func number(name string) entity.PropertyDef {
	return entity.PropertyDef{Name: name, Kind: entity.KindNumber}
}

// newScenario lays out a radius 3 board of plains with one infantry unit at
// the origin. No ontology is defined yet.
func newScenario(t *testing.T, movementPoints float64) *scenario {
	t.Helper()

	types := entity.NewRegistry()
	for _, et := range []entity.EntityType{
		{ID: "infantry", Name: "Infantry", Role: entity.RoleToken, Properties: []entity.PropertyDef{number("movement_points")}},
		{ID: "plains", Name: "Plains", Role: entity.RoleBoardPosition},
		{ID: "mountain", Name: "Mountain", Role: entity.RoleBoardPosition},
		{ID: "forest", Name: "Forest", Role: entity.RoleBoardPosition},
		{ID: "marsh", Name: "Marsh", Role: entity.RoleBoardPosition, Properties: []entity.PropertyDef{number("water_depth")}},
	} {
		require.NoError(t, types.Create(et))
	}

	board := world.NewBoard(3)
	for _, h := range board.Coords() {
		_, err := board.SetTile(world.Entity{TypeID: "plains", Position: h})
		require.NoError(t, err)
	}
	unit, err := board.PlaceUnit(world.Entity{
		TypeID: "infantry",
		Props:  map[string]entity.Value{"movement_points": entity.Number(movementPoints)},
	})
	require.NoError(t, err)
	require.NoError(t, board.Select(&unit))

	return &scenario{types: types, store: ontology.NewStore(types), board: board, unit: unit}
}

// withMotion adds the Motion concept, binds infantry and every terrain, and
// charges one point per hex entered.
func (s *scenario) withMotion(t *testing.T) *scenario {
	t.Helper()

	motion, err := s.store.CreateConcept(ontology.Concept{
		Name: "Motion",
		Roles: []ontology.Role{
			{ID: "traveler", Name: "traveler", Accepts: []entity.Role{entity.RoleToken}},
			{ID: "ground", Name: "ground", Accepts: []entity.Role{entity.RoleBoardPosition}},
			{ID: "barrier", Name: "barrier", Accepts: []entity.Role{entity.RoleBoardPosition}},
			{ID: "woods", Name: "woods", Accepts: []entity.Role{entity.RoleBoardPosition}},
		},
	})
	require.NoError(t, err)
	s.motion = motion

	s.bind(t, "traveler", "infantry", map[string]string{"cost": "movement_points"})
	s.bind(t, "ground", "plains", nil)
	s.bind(t, "ground", "marsh", map[string]string{"depth": "water_depth"})
	s.bind(t, "barrier", "mountain", nil)
	s.bind(t, "woods", "forest", nil)

	s.relate(t, "move cost", "ground", ontology.Effect{
		Kind: ontology.EffectModifyProperty, Property: "cost", Operation: ontology.OpSubtract, Amount: 1,
	})
	return s
}

func (s *scenario) bind(t *testing.T, role ontology.RoleID, typ entity.TypeID, props map[string]string) {
	t.Helper()
	_, err := s.store.CreateBinding(ontology.Binding{ConceptID: s.motion.ID, RoleID: role, EntityTypeID: typ, Properties: props})
	require.NoError(t, err)
}

func (s *scenario) relate(t *testing.T, name string, object ontology.RoleID, eff ontology.Effect) {
	t.Helper()
	_, err := s.store.CreateRelation(ontology.Relation{
		Name: name, ConceptID: s.motion.ID, SubjectRole: "traveler", ObjectRole: object,
		Trigger: ontology.TriggerOnEnter, Effect: eff,
	})
	require.NoError(t, err)
}

func (s *scenario) tile(t *testing.T, typ entity.TypeID, at world.HexCoord, props map[string]entity.Value) {
	t.Helper()
	_, err := s.board.SetTile(world.Entity{TypeID: typ, Position: at, Props: props})
	require.NoError(t, err)
}

func (s *scenario) compute() ValidMoveSet {
	return Compute(s.board.Selected(), s.board, s.store, s.types)
}

func TestCompute_EmptySelection(t *testing.T) {
	s := newScenario(t, 2).withMotion(t)

	got := Compute(nil, s.board, s.store, s.types)
	assert.Nil(t, got.ForEntity)
	assert.Empty(t, got.ValidPositions)
	assert.Empty(t, got.BlockedExplanations)
	assert.Equal(t, 0, got.Explored)

	gone := world.EntityID("not-on-board")
	got = Compute(&gone, s.board, s.store, s.types)
	assert.Nil(t, got.ForEntity)
	assert.Equal(t, 0, got.Explored)
}

func TestCompute_FreeMovementWithoutRules(t *testing.T) {
	s := newScenario(t, 2)
	start := world.HexCoord{Q: 1, R: 0}
	require.NoError(t, s.board.MoveUnit(s.unit, start))

	got := s.compute()
	require.NotNil(t, got.ForEntity)
	assert.Equal(t, s.unit, *got.ForEntity)

	var want []world.HexCoord
	for _, h := range world.Within(start, s.board.Radius) {
		if h != start && s.board.InBounds(h) {
			want = append(want, h)
		}
	}
	assert.ElementsMatch(t, want, got.ValidPositions)
	assert.Empty(t, got.BlockedExplanations)
	assert.Positive(t, got.Explored)
}

func TestCompute_UnitCostScenario(t *testing.T) {
	s := newScenario(t, 2).withMotion(t)

	got := s.compute()
	origin := world.HexCoord{}
	require.Len(t, got.ValidPositions, 18)
	for _, h := range got.ValidPositions {
		d := world.Distance(origin, h)
		assert.True(t, d == 1 || d == 2, "unexpected %s at distance %d", h, d)
	}

	far := world.HexCoord{Q: 3, R: 0}
	assert.False(t, got.Contains(far))
	assert.Equal(t, []string{"Infantry cannot reach (3, 0): path cost 3 exceeds movement_points of 2"},
		got.BlockedExplanations[far])
}

func TestCompute_PositionsAreSorted(t *testing.T) {
	s := newScenario(t, 2).withMotion(t)

	got := s.compute()
	for i := 1; i < len(got.ValidPositions); i++ {
		assert.True(t, got.ValidPositions[i-1].Less(got.ValidPositions[i]))
	}
}

func TestCompute_BlockExcludesHex(t *testing.T) {
	s := newScenario(t, 2).withMotion(t)
	s.relate(t, "cliffs", "barrier", ontology.Effect{Kind: ontology.EffectBlock})
	cliff := world.HexCoord{Q: 1, R: 0}
	s.tile(t, "mountain", cliff, nil)

	got := s.compute()
	assert.False(t, got.Contains(cliff))
	assert.Equal(t, []string{"Infantry cannot enter Mountain: cliffs blocks entry"}, got.BlockedExplanations[cliff])

	// (2, 0) is only two hops away through the cliff.
	behind := world.HexCoord{Q: 2, R: 0}
	assert.False(t, got.Contains(behind))
	assert.Len(t, got.ValidPositions, 16)
}

func TestCompute_AllowIsNeutral(t *testing.T) {
	s := newScenario(t, 2).withMotion(t)
	s.relate(t, "open pass", "barrier", ontology.Effect{Kind: ontology.EffectAllow})
	s.tile(t, "mountain", world.HexCoord{Q: 1, R: 0}, nil)

	got := s.compute()
	assert.True(t, got.Contains(world.HexCoord{Q: 1, R: 0}))
	assert.True(t, got.Contains(world.HexCoord{Q: 2, R: 0}))
}

func TestCompute_NonEnterTriggersIgnored(t *testing.T) {
	s := newScenario(t, 2).withMotion(t)
	_, err := s.store.CreateRelation(ontology.Relation{
		Name: "rockfall", ConceptID: s.motion.ID, SubjectRole: "traveler", ObjectRole: "barrier",
		Trigger: ontology.TriggerWhilePresent, Effect: ontology.Effect{Kind: ontology.EffectBlock},
	})
	require.NoError(t, err)
	s.tile(t, "mountain", world.HexCoord{Q: 1, R: 0}, nil)

	got := s.compute()
	assert.True(t, got.Contains(world.HexCoord{Q: 1, R: 0}))
}

func TestCompute_HeavierTerrainUsesCheapestPath(t *testing.T) {
	s := newScenario(t, 2).withMotion(t)
	s.relate(t, "thick woods", "woods", ontology.Effect{
		Kind: ontology.EffectModifyProperty, Property: "cost", Operation: ontology.OpSubtract, Amount: 2,
	})
	woods := world.HexCoord{Q: 1, R: 0}
	s.tile(t, "forest", woods, nil)

	got := s.compute()
	assert.True(t, got.Contains(woods))

	behind := world.HexCoord{Q: 2, R: 0}
	assert.False(t, got.Contains(behind))
	assert.Equal(t, []string{"Infantry cannot reach (2, 0): path cost 3 exceeds movement_points of 2"},
		got.BlockedExplanations[behind])

	// Reachable around the woods at cost 2.
	assert.True(t, got.Contains(world.HexCoord{Q: 2, R: -1}))
	assert.True(t, got.Contains(world.HexCoord{Q: 1, R: 1}))
	assert.NotContains(t, got.BlockedExplanations, world.HexCoord{Q: 2, R: -1})
}

func TestCompute_CheapDetourDoesNotHideShorterPath(t *testing.T) {
	s := newScenario(t, 3).withMotion(t)
	require.NoError(t, s.types.Create(entity.EntityType{ID: "road", Name: "Road", Role: entity.RoleBoardPosition}))
	// Roads are bound to nothing, so entering them is free.
	s.tile(t, "road", world.HexCoord{Q: 1, R: -1}, nil)
	s.tile(t, "road", world.HexCoord{Q: 2, R: -1}, nil)

	got := s.compute()

	// (2, 0) costs 1 over three hops by road, or 2 over two hops across
	// plains. Only the second leaves a hop for (3, 0).
	far := world.HexCoord{Q: 3, R: 0}
	assert.True(t, got.Contains(world.HexCoord{Q: 2, R: 0}))
	assert.True(t, got.Contains(far))
	assert.NotContains(t, got.BlockedExplanations, far)
	assert.Len(t, got.ValidPositions, 36)
}

func TestCompute_BudgetMonotonicity(t *testing.T) {
	origin := world.HexCoord{}
	for _, budget := range []float64{0, 1, 2, 3} {
		s := newScenario(t, budget).withMotion(t)
		got := s.compute()

		want := 0
		for n := 1; n <= int(budget); n++ {
			want += 6 * n
		}
		assert.Len(t, got.ValidPositions, want, "budget %v", budget)
		for _, h := range got.ValidPositions {
			assert.LessOrEqual(t, float64(world.Distance(origin, h)), budget)
		}
	}
}

func TestCompute_SmallestBudgetWins(t *testing.T) {
	s := newScenario(t, 3).withMotion(t)
	require.NoError(t, s.types.Update(entity.EntityType{
		ID: "infantry", Name: "Infantry", Role: entity.RoleToken,
		Properties: []entity.PropertyDef{number("movement_points"), number("supply")},
	}))
	require.NoError(t, s.board.SetUnitProperty(s.unit, "supply", entity.Number(1)))
	_, err := s.store.CreateConstraint(ontology.Constraint{
		Name: "supply line", ConceptID: s.motion.ID, Expr: ontology.PathBudget("traveler", "supply"),
	})
	require.NoError(t, err)

	got := s.compute()
	assert.Len(t, got.ValidPositions, 6)
	assert.Equal(t, []string{"Infantry cannot reach (2, 0): path cost 2 exceeds supply of 1"},
		got.BlockedExplanations[world.HexCoord{Q: 2, R: 0}])
}

func TestCompute_PropertyViolation(t *testing.T) {
	s := newScenario(t, 2).withMotion(t)
	_, err := s.store.CreateConstraint(ontology.Constraint{
		Name: "fordable", ConceptID: s.motion.ID,
		Expr: ontology.PropertyCompare("ground", "depth", entity.OpLE, entity.Number(1)),
	})
	require.NoError(t, err)

	deep := world.HexCoord{Q: 0, R: 1}
	shallow := world.HexCoord{Q: -1, R: 0}
	s.tile(t, "marsh", deep, map[string]entity.Value{"water_depth": entity.Number(2)})
	s.tile(t, "marsh", shallow, map[string]entity.Value{"water_depth": entity.Number(0.5)})

	got := s.compute()
	assert.False(t, got.Contains(deep))
	assert.Equal(t, []string{"fordable: depth is 2, must be <= 1"}, got.BlockedExplanations[deep])
	assert.True(t, got.Contains(shallow))
	// Plains carry no depth at all and are not judged by it.
	assert.True(t, got.Contains(world.HexCoord{Q: 1, R: 0}))
}

func TestCompute_CrossCompareViolation(t *testing.T) {
	s := newScenario(t, 2).withMotion(t)
	require.NoError(t, s.types.Update(entity.EntityType{
		ID: "infantry", Name: "Infantry", Role: entity.RoleToken,
		Properties: []entity.PropertyDef{number("movement_points"), number("strength")},
	}))
	require.NoError(t, s.board.SetUnitProperty(s.unit, "strength", entity.Number(5)))
	require.NoError(t, s.types.Create(entity.EntityType{
		ID: "ridge", Name: "Ridge", Role: entity.RoleBoardPosition, Properties: []entity.PropertyDef{number("min_strength")},
	}))
	s.bind(t, "ground", "ridge", nil)
	_, err := s.store.CreateConstraint(ontology.Constraint{
		Name: "strong enough", ConceptID: s.motion.ID,
		Expr: ontology.CrossCompare("traveler", "strength", entity.OpGE, "ground", "min_strength"),
	})
	require.NoError(t, err)

	steep := world.HexCoord{Q: 1, R: 0}
	gentle := world.HexCoord{Q: -1, R: 0}
	s.tile(t, "ridge", steep, map[string]entity.Value{"min_strength": entity.Number(6)})
	s.tile(t, "ridge", gentle, map[string]entity.Value{"min_strength": entity.Number(4)})

	got := s.compute()
	assert.False(t, got.Contains(steep))
	assert.Equal(t, []string{"strong enough: strength is 5, must be >= 6"}, got.BlockedExplanations[steep])
	assert.True(t, got.Contains(gentle))
	assert.NotContains(t, got.BlockedExplanations, gentle)
	// Plains have no min_strength, so the comparison is skipped there.
	assert.True(t, got.Contains(world.HexCoord{Q: 0, R: 1}))
	// (2, 0) is only two hops away through the steep ridge.
	assert.Len(t, got.ValidPositions, 16)
}

func TestCompute_CrossCompareMissingOperandIsSkipped(t *testing.T) {
	s := newScenario(t, 1).withMotion(t)
	require.NoError(t, s.types.Create(entity.EntityType{
		ID: "ridge", Name: "Ridge", Role: entity.RoleBoardPosition, Properties: []entity.PropertyDef{number("min_strength")},
	}))
	s.bind(t, "ground", "ridge", nil)
	_, err := s.store.CreateConstraint(ontology.Constraint{
		Name: "strong enough", ConceptID: s.motion.ID,
		Expr: ontology.CrossCompare("traveler", "strength", entity.OpGE, "ground", "min_strength"),
	})
	require.NoError(t, err)
	// The infantry carries no strength at all.
	steep := world.HexCoord{Q: 1, R: 0}
	s.tile(t, "ridge", steep, map[string]entity.Value{"min_strength": entity.Number(6)})

	got := s.compute()
	assert.True(t, got.Contains(steep))
	assert.Len(t, got.ValidPositions, 6)
	assert.NotContains(t, got.BlockedExplanations, steep)
}

func TestCompute_IsTypeViolation(t *testing.T) {
	s := newScenario(t, 1).withMotion(t)
	_, err := s.store.CreateConstraint(ontology.Constraint{
		Name: "roads only", ConceptID: s.motion.ID, Expr: ontology.IsType("ground", "plains"),
	})
	require.NoError(t, err)
	bog := world.HexCoord{Q: 0, R: -1}
	s.tile(t, "marsh", bog, nil)

	got := s.compute()
	assert.Len(t, got.ValidPositions, 5)
	assert.Equal(t, []string{"roads only: type is marsh, must be == plains"}, got.BlockedExplanations[bog])
}

func TestCompute_MalformedConstraintsAreSkipped(t *testing.T) {
	s := newScenario(t, 2).withMotion(t)
	snap := s.store.Snapshot()
	snap.Constraints = append(snap.Constraints,
		ontology.Constraint{ID: "bad-op", ConceptID: s.motion.ID, Expr: ontology.PropertyCompare("ground", "depth", "=~", entity.Number(1))},
		ontology.Constraint{ID: "no-role", ConceptID: s.motion.ID, Expr: ontology.PropertyCompare("ghost", "depth", entity.OpLT, entity.Number(1))},
		ontology.Constraint{ID: "no-budget", ConceptID: s.motion.ID, Expr: ontology.PathBudget("traveler", "stamina")},
		ontology.Constraint{ID: "odd", ConceptID: s.motion.ID, Expr: ontology.Expr{Kind: "Within"}},
	)
	s.store.Restore(snap)

	got := s.compute()
	assert.Len(t, got.ValidPositions, 18)
}

func TestCompute_IsReadOnly(t *testing.T) {
	s := newScenario(t, 2).withMotion(t)
	boardVersion, storeVersion := s.board.Version(), s.store.Version()
	before := s.store.Snapshot()

	first := s.compute()
	second := s.compute()

	assert.Equal(t, first, second)
	assert.Equal(t, boardVersion, s.board.Version())
	assert.Equal(t, storeVersion, s.store.Version())
	assert.Equal(t, before, s.store.Snapshot())
}

func TestValidMoveSet_JSON(t *testing.T) {
	s := newScenario(t, 1).withMotion(t)
	s.relate(t, "cliffs", "barrier", ontology.Effect{Kind: ontology.EffectBlock})
	s.tile(t, "mountain", world.HexCoord{Q: 1, R: 0}, nil)

	raw, err := json.Marshal(s.compute())
	require.NoError(t, err)

	var doc struct {
		ForEntity string              `json:"for_entity"`
		Positions []world.HexCoord    `json:"valid_positions"`
		Blocked   map[string][]string `json:"blocked_explanations"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, string(s.unit), doc.ForEntity)
	assert.Len(t, doc.Positions, 5)
	assert.Equal(t, []string{"Infantry cannot enter Mountain: cliffs blocks entry"}, doc.Blocked["1,0"])
}
