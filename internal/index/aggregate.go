package index

import (
	"fmt"
	"sort"

	"github.com/mohammed-shakir/quadra-map/internal/quadra"
	"github.com/mohammed-shakir/quadra-map/internal/selection"
)

// Filter is the set of property-count fields counted toward total imóveis.
type Filter struct {
	known []string
	on    map[string]bool
}

// NewFilter enables every known field.
func NewFilter(known []string) Filter {
	on := make(map[string]bool, len(known))
	for _, f := range known {
		on[f] = true
	}
	return Filter{known: append([]string(nil), known...), on: on}
}

// With returns a filter restricted to fields. Unknown names are rejected.
func (f Filter) With(fields []string) (Filter, error) {
	on := make(map[string]bool, len(fields))
	for _, name := range fields {
		if !f.isKnown(name) {
			return f, fmt.Errorf("unknown property field %q", name)
		}
		on[name] = true
	}
	return Filter{known: f.known, on: on}, nil
}

func (f Filter) isKnown(name string) bool {
	for _, k := range f.known {
		if k == name {
			return true
		}
	}
	return false
}

// Active lists enabled fields in known order.
func (f Filter) Active() []string {
	out := make([]string, 0, len(f.on))
	for _, k := range f.known {
		if f.on[k] {
			out = append(out, k)
		}
	}
	return out
}

func (f Filter) Known() []string { return append([]string(nil), f.known...) }

type AreaSummary struct {
	AreaID   string  `json:"areaId"`
	Selected int     `json:"selected"`
	Matched  int     `json:"matched"`
	AreaM2   float64 `json:"areaM2"`
	Imoveis  float64 `json:"imoveis"`
	Loaded   bool    `json:"loaded"`
}

type Summary struct {
	SelectedCount  int                `json:"selectedCount"`
	MatchedCount   int                `json:"matchedCount"`
	PendingCount   int                `json:"pendingCount"`
	Missing        []string           `json:"missing,omitempty"`
	TotalAreaM2    float64            `json:"totalAreaM2"`
	PropertyTotals map[string]float64 `json:"propertyTotals"`
	TotalImoveis   float64            `json:"totalImoveis"`
	ByArea         []AreaSummary      `json:"byArea"`
}

// Aggregate sums metrics over the selected keys whose area is loaded. Keys
// of unloaded areas count as selected and pending. Keys of loaded areas with
// no matching feature are reported in Missing.
func (ix *Index) Aggregate(sel selection.Set, f Filter) Summary {
	s := Summary{PropertyTotals: make(map[string]float64, len(f.on))}
	for _, field := range f.Active() {
		s.PropertyTotals[field] = 0
	}
	perArea := map[string]*AreaSummary{}

	for _, k := range sel.Keys() {
		s.SelectedCount++
		as := perArea[k.Area]
		if as == nil {
			as = &AreaSummary{AreaID: k.Area, Loaded: ix.HasArea(k.Area)}
			perArea[k.Area] = as
		}
		as.Selected++

		if !as.Loaded {
			s.PendingCount++
			continue
		}
		q, ok := ix.Lookup(k)
		if !ok {
			s.Missing = append(s.Missing, k.String())
			continue
		}
		s.MatchedCount++
		as.Matched++
		s.TotalAreaM2 += q.AreaM2
		as.AreaM2 += q.AreaM2
		for _, field := range f.Active() {
			v := q.Counts[field]
			s.PropertyTotals[field] += v
			s.TotalImoveis += v
			as.Imoveis += v
		}
	}

	s.ByArea = make([]AreaSummary, 0, len(perArea))
	for _, as := range perArea {
		s.ByArea = append(s.ByArea, *as)
	}
	sort.Slice(s.ByArea, func(i, j int) bool {
		return quadra.CompareAreaIDs(s.ByArea[i].AreaID, s.ByArea[j].AreaID) < 0
	})
	return s
}
