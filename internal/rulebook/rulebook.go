// Package rulebook reads and writes the YAML document a designer edits by
// hand: entity types, the ontology and a starting board.
package rulebook

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/talgya/hexrules/internal/engine"
	"github.com/talgya/hexrules/internal/entity"
	"github.com/talgya/hexrules/internal/ontology"
	"github.com/talgya/hexrules/internal/world"
)

var (
	// ErrUnknownType is returned when a placement names an undeclared entity type.
	ErrUnknownType = errors.New("unknown entity type")

	// ErrWrongRole is returned when a tile is not a BoardPosition or a unit is not a Token.
	ErrWrongRole = errors.New("entity type has the wrong role")

	// ErrInvalid wraps structural problems found while parsing.
	ErrInvalid = errors.New("invalid rulebook")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Rulebook is the on-disk document.
type Rulebook struct {
	Radius      int                 `yaml:"radius" validate:"gte=0,lte=64"`
	Generate    *world.PaintConfig  `yaml:"generate,omitempty"`
	EntityTypes []entity.EntityType `yaml:"entity_types" validate:"dive"`
	Ontology    ontology.Snapshot   `yaml:"ontology"`
	Tiles       []Placement         `yaml:"tiles,omitempty" validate:"dive"`
	Units       []Placement         `yaml:"units,omitempty" validate:"dive"`
	Selected    world.EntityID      `yaml:"selected,omitempty"`
}

// Placement puts one entity on the board.
type Placement struct {
	ID    world.EntityID          `yaml:"id,omitempty"`
	Type  entity.TypeID           `yaml:"type" validate:"required"`
	Q     int                     `yaml:"q"`
	R     int                     `yaml:"r"`
	Props map[string]entity.Value `yaml:"props,omitempty"`
}

// Parse decodes and structurally checks a rulebook.
func Parse(data []byte) (*Rulebook, error) {
	var rb Rulebook
	if err := yaml.Unmarshal(data, &rb); err != nil {
		return nil, fmt.Errorf("parse rulebook: %w", err)
	}
	if err := validate.Struct(&rb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &rb, nil
}

// Load reads and parses the rulebook at path.
func Load(path string) (*Rulebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rulebook: %w", err)
	}
	rb, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rb, nil
}

// Build turns the document into live stores. The ontology is restored as
// written; callers decide whether to reconcile derived constraints.
func (rb *Rulebook) Build() (*entity.Registry, *ontology.Store, *world.Board, error) {
	types := entity.NewRegistry()
	for _, t := range rb.EntityTypes {
		if err := types.Create(t); err != nil {
			return nil, nil, nil, fmt.Errorf("entity type %s: %w", t.ID, err)
		}
	}

	store := ontology.NewStore(types)
	store.Restore(rb.Ontology)

	board := world.NewBoard(rb.Radius)
	if rb.Generate != nil {
		for _, id := range rb.Generate.Palette {
			if err := checkRole(types, id, entity.RoleBoardPosition); err != nil {
				return nil, nil, nil, fmt.Errorf("generate palette: %w", err)
			}
		}
		if err := world.Paint(board, *rb.Generate); err != nil {
			return nil, nil, nil, err
		}
	}

	for _, p := range rb.Tiles {
		if err := checkRole(types, p.Type, entity.RoleBoardPosition); err != nil {
			return nil, nil, nil, fmt.Errorf("tile at (%d, %d): %w", p.Q, p.R, err)
		}
		if _, err := board.SetTile(p.entity()); err != nil {
			return nil, nil, nil, err
		}
	}
	for _, p := range rb.Units {
		if err := checkRole(types, p.Type, entity.RoleToken); err != nil {
			return nil, nil, nil, fmt.Errorf("unit %s: %w", p.ID, err)
		}
		if _, err := board.PlaceUnit(p.entity()); err != nil {
			return nil, nil, nil, err
		}
	}

	if rb.Selected != "" {
		sel := rb.Selected
		if err := board.Select(&sel); err != nil {
			return nil, nil, nil, fmt.Errorf("selected: %w", err)
		}
	}
	return types, store, board, nil
}

func checkRole(types *entity.Registry, id entity.TypeID, want entity.Role) error {
	t, ok := types.Type(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownType)
	}
	if t.Role != want {
		return fmt.Errorf("%s is a %s, not a %s: %w", id, t.Role, want, ErrWrongRole)
	}
	return nil
}

func (p Placement) entity() world.Entity {
	return world.Entity{
		ID:       p.ID,
		TypeID:   p.Type,
		Position: world.HexCoord{Q: p.Q, R: p.R},
		Props:    p.Props,
	}
}

func placement(e world.Entity) Placement {
	p := Placement{ID: e.ID, Type: e.TypeID, Q: e.Position.Q, R: e.Position.R}
	if len(e.Props) > 0 {
		p.Props = e.Props
	}
	return p
}

// FromWorkspace captures the current workspace as a rulebook. Tiles are
// written out explicitly, so no generate section is emitted.
func FromWorkspace(ws *engine.Workspace) *Rulebook {
	rb := &Rulebook{}
	ws.View(func(s engine.Stores) {
		rb.Radius = s.Board.Radius
		rb.EntityTypes = s.Types.Types()
		rb.Ontology = s.Ontology.Snapshot()
		for _, t := range s.Board.Tiles() {
			rb.Tiles = append(rb.Tiles, placement(t))
		}
		for _, u := range s.Board.Units() {
			rb.Units = append(rb.Units, placement(u))
		}
		if sel := s.Board.Selected(); sel != nil {
			rb.Selected = *sel
		}
	})
	return rb
}

// Marshal encodes the rulebook as YAML.
func (rb *Rulebook) Marshal() ([]byte, error) {
	return yaml.Marshal(rb)
}

// WriteFile encodes the rulebook to path.
func (rb *Rulebook) WriteFile(path string) error {
	data, err := rb.Marshal()
	if err != nil {
		return fmt.Errorf("encode rulebook: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
