// Package spatial answers point and radius queries over loaded quadras.
package spatial

import (
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/quadra-map/internal/geo"
)

// RingContains is an even-odd ray cast along the point's latitude.
//
// An edge is crossed when exactly one endpoint lies strictly above the point
// and the point lies strictly left of the crossing. Boundary points follow
// from that half-open rule: on an axis-aligned square the minimum-x and
// minimum-y edges are inside, the maximum-x and maximum-y edges outside.
func RingContains(ring orb.Ring, pt orb.Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	x, y := pt[0], pt[1]
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > y) == (yj > y) {
			continue
		}
		// yi != yj here, so the division is safe
		cross := xi + (y-yi)*(xj-xi)/(yj-yi)
		if x < cross {
			inside = !inside
		}
	}
	return inside
}

// PolygonContains tests the outer ring only; holes are not modeled.
func PolygonContains(p orb.Polygon, pt orb.Point) bool {
	if len(p) == 0 {
		return false
	}
	return RingContains(p[0], pt)
}

// QuadraContains reports whether any constituent polygon contains pt.
func QuadraContains(q *geo.Quadra, pt orb.Point) bool {
	if !q.Bound.Contains(pt) {
		return false
	}
	for _, p := range q.Polygons() {
		if PolygonContains(p, pt) {
			return true
		}
	}
	return false
}
