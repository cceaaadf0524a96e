package spatial

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	h3 "github.com/uber/h3-go/v4"

	quadrageo "github.com/mohammed-shakir/quadra-map/internal/geo"
)

// HitTester locates points among quadras in iteration order. When built
// with a valid H3 resolution, a cell index narrows the candidates before the
// exact test; a miss always falls back to a full scan, so the index only
// changes cost, never results.
type HitTester struct {
	quadras []*quadrageo.Quadra
	res     int
	cells   map[h3.Cell][]int
}

// NewHitTester indexes quadras at res. A res outside 0..15 disables the
// cell index.
func NewHitTester(quadras []*quadrageo.Quadra, res int) *HitTester {
	h := &HitTester{quadras: quadras, res: res}
	if res < 0 || res > 15 {
		return h
	}
	h.cells = make(map[h3.Cell][]int)
	for i, q := range quadras {
		for _, c := range cellsForQuadra(q, res) {
			h.cells[c] = append(h.cells[c], i)
		}
	}
	return h
}

// Locate returns the first quadra containing pt.
func (h *HitTester) Locate(pt orb.Point) (*quadrageo.Quadra, bool) {
	limit := len(h.quadras)
	if h.cells != nil {
		if c, err := h3.LatLngToCell(h3.LatLng{Lat: pt[1], Lng: pt[0]}, h.res); err == nil {
			for _, i := range h.cells[c] {
				if QuadraContains(h.quadras[i], pt) {
					// an earlier quadra the cell misses still wins
					limit = i
					break
				}
			}
		}
	}
	if i, ok := h.scan(pt, limit); ok {
		return h.quadras[i], true
	}
	if limit < len(h.quadras) {
		return h.quadras[limit], true
	}
	return nil, false
}

// scan tests quadras[:limit] in order.
func (h *HitTester) scan(pt orb.Point, limit int) (int, bool) {
	for i, q := range h.quadras[:limit] {
		if QuadraContains(q, pt) {
			return i, true
		}
	}
	return 0, false
}

// WithinRadius returns quadras whose centroid lies within meters of center
// (haversine), in iteration order.
func WithinRadius(quadras []*quadrageo.Quadra, center orb.Point, meters float64) []*quadrageo.Quadra {
	if meters <= 0 {
		return nil
	}
	var out []*quadrageo.Quadra
	for _, q := range quadras {
		if geo.DistanceHaversine(center, q.Centroid) <= meters {
			out = append(out, q)
		}
	}
	return out
}

func cellsForQuadra(q *quadrageo.Quadra, res int) []h3.Cell {
	seen := make(map[h3.Cell]struct{})
	for _, p := range q.Polygons() {
		if len(p) == 0 {
			continue
		}
		outer := toLoop(p[0])
		// vertex cells cover quadras smaller than a cell
		for _, ll := range outer {
			if c, err := h3.LatLngToCell(ll, res); err == nil {
				seen[c] = struct{}{}
			}
		}
		if len(outer) < 3 {
			continue
		}
		cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, res)
		if err != nil {
			continue
		}
		for _, c := range cells {
			seen[c] = struct{}{}
		}
	}
	out := make([]h3.Cell, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ring [[lon,lat], ...] to an h3 loop, dropping the closing vertex
func toLoop(ring orb.Ring) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(ring))
	for _, p := range ring {
		loop = append(loop, h3.LatLng{Lat: p[1], Lng: p[0]})
	}
	if len(loop) >= 2 {
		first, last := loop[0], loop[len(loop)-1]
		if first.Lat == last.Lat && first.Lng == last.Lng {
			loop = loop[:len(loop)-1]
		}
	}
	return loop
}
