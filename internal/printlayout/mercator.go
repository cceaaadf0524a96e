package printlayout

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const (
	tileSize = 256
	maxZoom  = 20
)

// worldPixel projects pt to Web Mercator pixel space at zoom z.
func worldPixel(pt orb.Point, z maptile.Zoom) (float64, float64) {
	f := maptile.Fraction(pt, z)
	return f[0] * tileSize, f[1] * tileSize
}

// viewport maps world pixels to document pixels for a map of w by h centred
// on center.
type viewport struct {
	z      maptile.Zoom
	cx, cy float64
	w, h   float64
}

func newViewport(center orb.Point, zoom float64, w, h int) viewport {
	z := maptile.Zoom(math.Max(0, math.Min(maxZoom, math.Round(zoom))))
	cx, cy := worldPixel(center, z)
	return viewport{z: z, cx: cx, cy: cy, w: float64(w), h: float64(h)}
}

func (v viewport) project(pt orb.Point) (float64, float64) {
	x, y := worldPixel(pt, v.z)
	return x - v.cx + v.w/2, y - v.cy + v.h/2
}

type tile struct {
	maptile.Tile
	px, py float64
}

// tiles lists the XYZ tiles covering the viewport. x wraps around the
// antimeridian; rows outside the world are skipped.
func (v viewport) tiles() []tile {
	n := 1 << int(v.z)
	minX := int(math.Floor((v.cx - v.w/2) / tileSize))
	maxX := int(math.Floor((v.cx + v.w/2) / tileSize))
	minY := int(math.Floor((v.cy - v.h/2) / tileSize))
	maxY := int(math.Floor((v.cy + v.h/2) / tileSize))

	var out []tile
	for ty := max(minY, 0); ty <= maxY; ty++ {
		for tx := minX; tx <= maxX; tx++ {
			t := maptile.New(uint32(((tx%n)+n)%n), uint32(ty), v.z)
			if !t.Valid() {
				continue
			}
			out = append(out, tile{
				Tile: t,
				px:   float64(tx*tileSize) - v.cx + v.w/2,
				py:   float64(ty*tileSize) - v.cy + v.h/2,
			})
		}
	}
	return out
}

var subdomains = []string{"a", "b", "c"}

// TileURL expands an XYZ template with {s}, {z}, {x} and {y}.
func TileURL(tmpl string, z, x, y int) string {
	return strings.NewReplacer(
		"{s}", subdomains[(x+y)%len(subdomains)],
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	).Replace(tmpl)
}
