// Board painting using layered simplex noise.
// Fills a board with tiles whose types are picked from a palette by elevation,
// so generated test boards have contiguous regions instead of salt-and-pepper.
package world

import (
	"fmt"
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/hexrules/internal/entity"
)

// PaintConfig holds board painting parameters.
type PaintConfig struct {
	Seed    int64           `json:"seed" yaml:"seed"`       // Random seed (0 = random)
	Scale   float64         `json:"scale" yaml:"scale"`     // Base noise frequency (0 = default)
	Palette []entity.TypeID `json:"palette" yaml:"palette"` // Tile types, low to high elevation
}

// DefaultPaintConfig returns a reasonable starting configuration.
func DefaultPaintConfig(palette ...entity.TypeID) PaintConfig {
	return PaintConfig{
		Seed:    42,
		Scale:   0.12,
		Palette: palette,
	}
}

// Paint fills every in-bounds hex with a tile from the palette.
// Existing tiles are replaced. Same seed, radius and palette give the same board.
func Paint(b *Board, cfg PaintConfig) error {
	if len(cfg.Palette) == 0 {
		return fmt.Errorf("paint: empty palette")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	scale := cfg.Scale
	if scale <= 0 {
		scale = 0.12
	}

	elevNoise := opensimplex.NewNormalized(seed)

	for _, coord := range b.Coords() {
		// Hex axial → cartesian: x = q + r*0.5, y = r * sqrt(3)/2
		x := float64(coord.Q) + float64(coord.R)*0.5
		y := float64(coord.R) * math.Sqrt(3.0) / 2.0

		elev := octaveNoise(elevNoise, x, y, 3, scale, 0.5)
		idx := int(elev * float64(len(cfg.Palette)))
		idx = min(max(idx, 0), len(cfg.Palette)-1)

		tile := Entity{
			ID:       EntityID(fmt.Sprintf("tile:%d,%d", coord.Q, coord.R)),
			TypeID:   cfg.Palette[idx],
			Position: coord,
		}
		if _, err := b.SetTile(tile); err != nil {
			return err
		}
	}
	return nil
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
