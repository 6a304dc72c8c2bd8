package world

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/talgya/hexrules/internal/entity"
)

var (
	// ErrOutOfBounds is returned when a placement falls outside the board radius.
	ErrOutOfBounds = errors.New("hex out of bounds")

	// ErrNotFound is returned for an unknown unit id.
	ErrNotFound = errors.New("unit not found")
)

// EntityID identifies a piece placed on the board.
type EntityID string

// NewEntityID returns a fresh random id.
func NewEntityID() EntityID {
	return EntityID(uuid.NewString())
}

// Entity is a placed piece: a tile occupying a hex, or a unit standing on one.
type Entity struct {
	ID       EntityID                `json:"id"`
	TypeID   entity.TypeID           `json:"type"`
	Position HexCoord                `json:"position"`
	Props    map[string]entity.Value `json:"props,omitempty"`
}

// Prop returns a property value of the entity.
func (e *Entity) Prop(name string) (entity.Value, bool) {
	v, ok := e.Props[name]
	return v, ok
}

func (e Entity) clone() Entity {
	c := e
	c.Props = make(map[string]entity.Value, len(e.Props))
	for k, v := range e.Props {
		c.Props[k] = v
	}
	return c
}

// Board holds the board instance state: one tile per hex, movable units, and
// the current selection. Not safe for concurrent use.
type Board struct {
	Radius int

	tiles    map[HexCoord]*Entity
	units    map[EntityID]*Entity
	selected *EntityID
	version  uint64
}

// NewBoard creates an empty board with the given radius.
// A hex grid of radius R contains hexes where max(|q|, |r|, |s|) <= R.
func NewBoard(radius int) *Board {
	return &Board{
		Radius: radius,
		tiles:  make(map[HexCoord]*Entity),
		units:  make(map[EntityID]*Entity),
	}
}

// Version increases on every mutation, including selection changes.
func (b *Board) Version() uint64 {
	return b.version
}

// InBounds returns true if the coordinate is within the board radius.
func (b *Board) InBounds(coord HexCoord) bool {
	return max(abs(coord.Q), abs(coord.R), abs(coord.S())) <= b.Radius
}

// Coords returns every in-bounds coordinate, ordered by row then column.
func (b *Board) Coords() []HexCoord {
	return Within(HexCoord{}, b.Radius)
}

// SetTile places (or replaces) the tile occupying a hex.
func (b *Board) SetTile(tile Entity) (EntityID, error) {
	if !b.InBounds(tile.Position) {
		return "", fmt.Errorf("tile at %s: %w", tile.Position, ErrOutOfBounds)
	}
	if tile.ID == "" {
		tile.ID = NewEntityID()
	}
	c := tile.clone()
	b.tiles[tile.Position] = &c
	b.version++
	return c.ID, nil
}

// ClearTile removes the tile at a hex, if any.
func (b *Board) ClearTile(at HexCoord) {
	if _, ok := b.tiles[at]; ok {
		delete(b.tiles, at)
		b.version++
	}
}

// Tile returns the tile at a hex.
func (b *Board) Tile(at HexCoord) (Entity, bool) {
	t, ok := b.tiles[at]
	if !ok {
		return Entity{}, false
	}
	return t.clone(), true
}

// Tiles returns all tiles ordered by position.
func (b *Board) Tiles() []Entity {
	out := make([]Entity, 0, len(b.tiles))
	for _, t := range b.tiles {
		out = append(out, t.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position.Less(out[j].Position) })
	return out
}

// PlaceUnit adds a unit, or replaces the unit with the same id.
func (b *Board) PlaceUnit(unit Entity) (EntityID, error) {
	if !b.InBounds(unit.Position) {
		return "", fmt.Errorf("unit at %s: %w", unit.Position, ErrOutOfBounds)
	}
	if unit.ID == "" {
		unit.ID = NewEntityID()
	}
	c := unit.clone()
	b.units[unit.ID] = &c
	b.version++
	return c.ID, nil
}

// MoveUnit relocates a unit. Legality is not checked here.
func (b *Board) MoveUnit(id EntityID, to HexCoord) error {
	u, ok := b.units[id]
	if !ok {
		return fmt.Errorf("unit %s: %w", id, ErrNotFound)
	}
	if !b.InBounds(to) {
		return fmt.Errorf("move to %s: %w", to, ErrOutOfBounds)
	}
	u.Position = to
	b.version++
	return nil
}

// SetUnitProperty changes one property value of a unit.
func (b *Board) SetUnitProperty(id EntityID, name string, v entity.Value) error {
	u, ok := b.units[id]
	if !ok {
		return fmt.Errorf("unit %s: %w", id, ErrNotFound)
	}
	if u.Props == nil {
		u.Props = make(map[string]entity.Value)
	}
	u.Props[name] = v
	b.version++
	return nil
}

// RemoveUnit deletes a unit, clearing the selection if it pointed at it.
func (b *Board) RemoveUnit(id EntityID) error {
	if _, ok := b.units[id]; !ok {
		return fmt.Errorf("unit %s: %w", id, ErrNotFound)
	}
	delete(b.units, id)
	if b.selected != nil && *b.selected == id {
		b.selected = nil
	}
	b.version++
	return nil
}

// Unit returns a unit by id.
func (b *Board) Unit(id EntityID) (Entity, bool) {
	u, ok := b.units[id]
	if !ok {
		return Entity{}, false
	}
	return u.clone(), true
}

// Units returns all units ordered by id.
func (b *Board) Units() []Entity {
	out := make([]Entity, 0, len(b.units))
	for _, u := range b.units {
		out = append(out, u.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Occupants returns everything at a hex: the tile first, then units by id.
func (b *Board) Occupants(at HexCoord) []Entity {
	var out []Entity
	if t, ok := b.tiles[at]; ok {
		out = append(out, t.clone())
	}
	var units []Entity
	for _, u := range b.units {
		if u.Position == at {
			units = append(units, u.clone())
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return append(out, units...)
}

// Select sets the current selection. nil clears it.
func (b *Board) Select(id *EntityID) error {
	if id != nil {
		if _, ok := b.units[*id]; !ok {
			return fmt.Errorf("select %s: %w", *id, ErrNotFound)
		}
		sel := *id
		id = &sel
	}
	b.selected = id
	b.version++
	return nil
}

// Selected returns the currently selected unit id, if any.
func (b *Board) Selected() *EntityID {
	if b.selected == nil {
		return nil
	}
	sel := *b.selected
	return &sel
}

// String returns a summary of the board.
func (b *Board) String() string {
	return fmt.Sprintf("Board(radius=%d, tiles=%d, units=%d)", b.Radius, len(b.tiles), len(b.units))
}
