// Package index provides keyed lookup over loaded areas and selection
// aggregates.
package index

import (
	"github.com/mohammed-shakir/quadra-map/internal/geo"
	"github.com/mohammed-shakir/quadra-map/internal/quadra"
)

// Index is read-only once built. Iteration order is the order of the areas
// passed to Build, then feature order inside each area.
type Index struct {
	byKey map[quadra.Key]*geo.Quadra
	order []*geo.Quadra
	areas map[string]*geo.Area
	ids   []string
}

func Build(areas []*geo.Area) *Index {
	n := 0
	for _, a := range areas {
		n += a.Len()
	}
	ix := &Index{
		byKey: make(map[quadra.Key]*geo.Quadra, n),
		order: make([]*geo.Quadra, 0, n),
		areas: make(map[string]*geo.Area, len(areas)),
		ids:   make([]string, 0, len(areas)),
	}
	for _, a := range areas {
		if _, dup := ix.areas[a.ID]; dup {
			continue
		}
		ix.areas[a.ID] = a
		ix.ids = append(ix.ids, a.ID)
		for _, q := range a.Quadras {
			ix.byKey[q.Key] = q
			ix.order = append(ix.order, q)
		}
	}
	return ix
}

func (ix *Index) Lookup(k quadra.Key) (*geo.Quadra, bool) {
	q, ok := ix.byKey[k]
	return q, ok
}

func (ix *Index) HasArea(id string) bool {
	_, ok := ix.areas[id]
	return ok
}

func (ix *Index) Area(id string) (*geo.Area, bool) {
	a, ok := ix.areas[id]
	return a, ok
}

// AreaIDs in index order.
func (ix *Index) AreaIDs() []string { return append([]string(nil), ix.ids...) }

// Quadras in iteration order. The slice must not be modified.
func (ix *Index) Quadras() []*geo.Quadra { return ix.order }

func (ix *Index) Len() int { return len(ix.order) }
