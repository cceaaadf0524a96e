// Package geotest builds small area documents for tests.
package geotest

import (
	"encoding/json"
	"fmt"

	"github.com/mohammed-shakir/quadra-map/internal/geo"
)

// Block describes a square quadra with its lower-left corner at (X, Y) and
// the given side length in degrees.
type Block struct {
	ID     string
	X, Y   float64
	Side   float64
	AreaM2 float64
	Counts map[string]float64
}

// AreaJSON renders blocks as a FeatureCollection.
func AreaJSON(blocks ...Block) []byte {
	type feature struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Geometry   map[string]any `json:"geometry"`
	}
	fc := struct {
		Type     string    `json:"type"`
		Features []feature `json:"features"`
	}{Type: "FeatureCollection"}

	for _, b := range blocks {
		side := b.Side
		if side == 0 {
			side = 0.001
		}
		props := map[string]any{"quadra_id": b.ID, "title": "Quadra: " + b.ID, "area_m2": b.AreaM2}
		for k, v := range b.Counts {
			props[k] = v
		}
		ring := [][]float64{
			{b.X, b.Y}, {b.X + side, b.Y}, {b.X + side, b.Y + side}, {b.X, b.Y + side}, {b.X, b.Y},
		}
		fc.Features = append(fc.Features, feature{
			Type:       "Feature",
			Properties: props,
			Geometry:   map[string]any{"type": "Polygon", "coordinates": [][][]float64{ring}},
		})
	}
	out, err := json.Marshal(fc)
	if err != nil {
		panic(err)
	}
	return out
}

// Area parses blocks into a validated area.
func Area(id string, fields []string, blocks ...Block) *geo.Area {
	a, rejected, err := geo.ParseArea(id, AreaJSON(blocks...), fields)
	if err != nil {
		panic(err)
	}
	if len(rejected) > 0 {
		panic(fmt.Sprintf("geotest: rejected features %+v", rejected))
	}
	return a
}
