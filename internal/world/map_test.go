package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/hexrules/internal/entity"
)

func TestDistanceAndNeighbors(t *testing.T) {
	origin := HexCoord{}
	for _, n := range origin.Neighbors() {
		assert.Equal(t, 1, Distance(origin, n), "neighbor %s", n)
	}
	assert.Equal(t, 3, Distance(HexCoord{Q: 3, R: -3}, origin))
	assert.Equal(t, 4, Distance(HexCoord{Q: -2, R: -2}, origin))
}

func TestWithin(t *testing.T) {
	// Hex count of radius n is 3n(n+1)+1.
	assert.Len(t, Within(HexCoord{}, 0), 1)
	assert.Len(t, Within(HexCoord{}, 1), 7)
	assert.Len(t, Within(HexCoord{}, 3), 37)

	center := HexCoord{Q: 2, R: -1}
	for _, c := range Within(center, 2) {
		assert.LessOrEqual(t, Distance(center, c), 2)
	}
}

func TestBoard_InBounds(t *testing.T) {
	b := NewBoard(3)
	assert.True(t, b.InBounds(HexCoord{Q: 3, R: 0}))
	assert.True(t, b.InBounds(HexCoord{Q: -3, R: 3}))
	assert.False(t, b.InBounds(HexCoord{Q: 2, R: 2}))
	assert.Len(t, b.Coords(), 37)
}

func TestBoard_TilesAndUnits(t *testing.T) {
	b := NewBoard(2)

	_, err := b.SetTile(Entity{TypeID: "plains", Position: HexCoord{Q: 1}})
	require.NoError(t, err)
	_, err = b.SetTile(Entity{TypeID: "plains", Position: HexCoord{Q: 5}})
	assert.ErrorIs(t, err, ErrOutOfBounds)

	id, err := b.PlaceUnit(Entity{ID: "u1", TypeID: "infantry", Position: HexCoord{Q: 1},
		Props: map[string]entity.Value{"movement_points": entity.Number(2)}})
	require.NoError(t, err)
	assert.Equal(t, EntityID("u1"), id)

	occ := b.Occupants(HexCoord{Q: 1})
	require.Len(t, occ, 2)
	assert.Equal(t, entity.TypeID("plains"), occ[0].TypeID)
	assert.Equal(t, EntityID("u1"), occ[1].ID)

	require.NoError(t, b.MoveUnit("u1", HexCoord{Q: -1}))
	assert.Len(t, b.Occupants(HexCoord{Q: 1}), 1)
	assert.ErrorIs(t, b.MoveUnit("u1", HexCoord{Q: 9}), ErrOutOfBounds)
	assert.ErrorIs(t, b.MoveUnit("nobody", HexCoord{}), ErrNotFound)

	require.NoError(t, b.SetUnitProperty("u1", "movement_points", entity.Number(4)))
	u, ok := b.Unit("u1")
	require.True(t, ok)
	mp, _ := u.Prop("movement_points")
	assert.Equal(t, 4.0, mp.Num)
}

func TestBoard_Selection(t *testing.T) {
	b := NewBoard(2)
	_, err := b.PlaceUnit(Entity{ID: "u1", TypeID: "infantry"})
	require.NoError(t, err)

	before := b.Version()
	id := EntityID("u1")
	require.NoError(t, b.Select(&id))
	assert.Greater(t, b.Version(), before)
	require.NotNil(t, b.Selected())
	assert.Equal(t, id, *b.Selected())

	missing := EntityID("ghost")
	assert.ErrorIs(t, b.Select(&missing), ErrNotFound)

	require.NoError(t, b.RemoveUnit("u1"))
	assert.Nil(t, b.Selected())
}

func TestPaint_Deterministic(t *testing.T) {
	cfg := DefaultPaintConfig("water", "plains", "forest", "mountain")

	a := NewBoard(4)
	require.NoError(t, Paint(a, cfg))
	b := NewBoard(4)
	require.NoError(t, Paint(b, cfg))

	assert.Len(t, a.Tiles(), len(a.Coords()))
	assert.Equal(t, a.Tiles(), b.Tiles())

	for _, tile := range a.Tiles() {
		assert.Contains(t, cfg.Palette, tile.TypeID)
	}

	assert.Error(t, Paint(NewBoard(1), PaintConfig{Seed: 1}))
}
