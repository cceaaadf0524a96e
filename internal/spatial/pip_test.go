package spatial

import (
	"testing"

	"github.com/paulmach/orb"
)

var square = orb.Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}

func TestRingContains_InsideOutside(t *testing.T) {
	if !RingContains(square, orb.Point{5, 5}) {
		t.Fatal("(5,5) should be inside")
	}
	if RingContains(square, orb.Point{15, 15}) {
		t.Fatal("(15,15) should be outside")
	}
}

func TestRingContains_BoundaryConvention(t *testing.T) {
	cases := []struct {
		name string
		pt   orb.Point
		want bool
	}{
		{"min vertex", orb.Point{0, 0}, true},
		{"max vertex", orb.Point{10, 10}, false},
		{"min-x edge", orb.Point{0, 5}, true},
		{"max-x edge", orb.Point{10, 5}, false},
		{"min-y edge", orb.Point{5, 0}, true},
		{"max-y edge", orb.Point{5, 10}, false},
	}
	for _, c := range cases {
		if got := RingContains(square, c.pt); got != c.want {
			t.Fatalf("%s %v: got %v want %v", c.name, c.pt, got, c.want)
		}
	}
}

func TestRingContains_UnclosedRingAndOrientation(t *testing.T) {
	open := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if !RingContains(open, orb.Point{5, 5}) {
		t.Fatal("open ring should still contain center")
	}
	if RingContains(orb.Ring{{0, 0}, {1, 1}}, orb.Point{0.5, 0.5}) {
		t.Fatal("degenerate ring must contain nothing")
	}
}

func TestPolygonContains_IgnoresHoles(t *testing.T) {
	hole := orb.Ring{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}}
	p := orb.Polygon{square, hole}
	if !PolygonContains(p, orb.Point{5, 5}) {
		t.Fatal("holes are not modeled; point in hole counts as inside")
	}
}
