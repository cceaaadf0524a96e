// Package geo validates area GeoJSON into typed quadra features.
//
// An area document is accepted only as a FeatureCollection whose usable
// features are Polygon or MultiPolygon with a resolvable block id. Features
// that fail are reported as Rejected so callers can log them; they never
// reach the index.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/mohammed-shakir/quadra-map/internal/quadra"
)

var ErrInvalidCollection = errors.New("invalid area feature collection")

// Property names in the area data contract.
const (
	PropQuadraID = "quadra_id"
	PropTitle    = "title"
	PropAreaM2   = "area_m2"
)

type Quadra struct {
	Key      quadra.Key
	Title    string
	AreaM2   float64
	Counts   map[string]float64
	Geometry orb.Geometry
	Bound    orb.Bound
	Centroid orb.Point
	Props    map[string]any
}

// Polygons returns the constituent polygons of the feature geometry.
func (q *Quadra) Polygons() []orb.Polygon {
	switch g := q.Geometry.(type) {
	case orb.Polygon:
		return []orb.Polygon{g}
	case orb.MultiPolygon:
		return []orb.Polygon(g)
	}
	return nil
}

type Area struct {
	ID      string
	Quadras []*Quadra

	byBlock map[string]*Quadra
}

func (a *Area) Lookup(block string) (*Quadra, bool) {
	q, ok := a.byBlock[block]
	return q, ok
}

func (a *Area) Len() int { return len(a.Quadras) }

// Bound covers every quadra of the area.
func (a *Area) Bound() orb.Bound {
	var b orb.Bound
	for i, q := range a.Quadras {
		if i == 0 {
			b = q.Bound
			continue
		}
		b = b.Union(q.Bound)
	}
	return b
}

type Rejected struct {
	Index  int
	Reason string
}

// ParseArea decodes and validates an area document. countFields lists the
// property-count fields to extract from each feature.
func ParseArea(areaID string, raw []byte, countFields []string) (*Area, []Rejected, error) {
	if !quadra.ValidAreaID(areaID) {
		return nil, nil, fmt.Errorf("%w: area id %q is not numeric", ErrInvalidCollection, areaID)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidCollection, err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, nil, fmt.Errorf("%w: type %q", ErrInvalidCollection, fc.Type)
	}

	area := &Area{
		ID:      areaID,
		Quadras: make([]*Quadra, 0, len(fc.Features)),
		byBlock: make(map[string]*Quadra, len(fc.Features)),
	}
	var rejected []Rejected
	for i, f := range fc.Features {
		q, reason := toQuadra(areaID, f, countFields)
		if reason != "" {
			rejected = append(rejected, Rejected{Index: i, Reason: reason})
			continue
		}
		if _, dup := area.byBlock[q.Key.Block]; dup {
			rejected = append(rejected, Rejected{Index: i, Reason: "duplicate block id " + q.Key.Block})
			continue
		}
		area.byBlock[q.Key.Block] = q
		area.Quadras = append(area.Quadras, q)
	}
	return area, rejected, nil
}

func toQuadra(areaID string, f *geojson.Feature, countFields []string) (*Quadra, string) {
	if f == nil || f.Geometry == nil {
		return nil, "missing geometry"
	}
	switch g := f.Geometry.(type) {
	case orb.Polygon:
		if !validPolygon(g) {
			return nil, "polygon outer ring has < 4 vertices"
		}
	case orb.MultiPolygon:
		if len(g) == 0 {
			return nil, "empty multipolygon"
		}
		for _, p := range g {
			if !validPolygon(p) {
				return nil, "multipolygon member outer ring has < 4 vertices"
			}
		}
	default:
		return nil, "unsupported geometry " + f.Geometry.GeoJSONType()
	}

	props := map[string]any(f.Properties)
	block, ok := ResolveBlockID(props)
	if !ok {
		return nil, "no resolvable block id"
	}

	q := &Quadra{
		Key:      quadra.NewKey(areaID, block),
		Title:    stringProp(props, PropTitle),
		Geometry: f.Geometry,
		Bound:    f.Geometry.Bound(),
		Counts:   make(map[string]float64, len(countFields)),
		Props:    props,
	}
	if v, ok := NumberProp(props, PropAreaM2); ok {
		q.AreaM2 = v
	} else {
		q.AreaM2 = geo.Area(f.Geometry)
	}
	for _, field := range countFields {
		if v, ok := NumberProp(props, field); ok {
			q.Counts[field] = v
		}
	}
	q.Centroid, _ = planar.CentroidArea(f.Geometry)
	return q, ""
}

func validPolygon(p orb.Polygon) bool {
	return len(p) > 0 && len(p[0]) >= 4
}

// ResolveBlockID prefers the canonical quadra_id property and falls back to
// the legacy "<label>: <id>" title. The text after the last colon is used.
func ResolveBlockID(props map[string]any) (string, bool) {
	if v, ok := props[PropQuadraID]; ok && v != nil {
		if s := scalarString(v); s != "" && !strings.Contains(s, ",") {
			return s, true
		}
	}
	title := stringProp(props, PropTitle)
	i := strings.LastIndex(title, ":")
	if i < 0 {
		return "", false
	}
	id := strings.TrimSpace(title[i+1:])
	if id == "" || strings.ContainsAny(id, ", ") {
		return "", false
	}
	return id, true
}

// NumberProp reads a numeric property that may arrive as a number or a
// numeric string.
func NumberProp(props map[string]any, key string) (float64, bool) {
	switch v := props[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(v), ",", ".")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok && v != nil {
		return scalarString(v)
	}
	return ""
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}
