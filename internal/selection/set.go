// Package selection holds the immutable set of selected quadra keys.
package selection

import (
	"github.com/mohammed-shakir/quadra-map/internal/quadra"
)

// Set is never mutated in place; every operation returns a fresh copy so a
// reader holding an older Set never observes a partial update.
type Set struct {
	m map[quadra.Key]struct{}
}

func New(keys ...quadra.Key) Set {
	m := make(map[quadra.Key]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return Set{m: m}
}

// Parse builds a Set from a comma-joined field value.
func Parse(s string) (Set, []string) {
	keys, bad := quadra.Split(s)
	return New(keys...), bad
}

func (s Set) Len() int { return len(s.m) }

func (s Set) Has(k quadra.Key) bool {
	_, ok := s.m[k]
	return ok
}

func (s Set) clone(extra int) map[quadra.Key]struct{} {
	m := make(map[quadra.Key]struct{}, len(s.m)+extra)
	for k := range s.m {
		m[k] = struct{}{}
	}
	return m
}

// Toggle flips membership of k.
func (s Set) Toggle(k quadra.Key) Set {
	m := s.clone(1)
	if _, ok := m[k]; ok {
		delete(m, k)
	} else {
		m[k] = struct{}{}
	}
	return Set{m: m}
}

func (s Set) Add(keys ...quadra.Key) Set {
	m := s.clone(len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return Set{m: m}
}

func (s Set) Remove(keys ...quadra.Key) Set {
	m := s.clone(0)
	for _, k := range keys {
		delete(m, k)
	}
	return Set{m: m}
}

// RemoveArea drops every key of the given area and nothing else.
func (s Set) RemoveArea(area string) Set {
	m := make(map[quadra.Key]struct{}, len(s.m))
	for k := range s.m {
		if k.HasArea(area) {
			continue
		}
		m[k] = struct{}{}
	}
	return Set{m: m}
}

// Keys returns members in canonical (area, block) order.
func (s Set) Keys() []quadra.Key {
	out := make([]quadra.Key, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	quadra.Sort(out)
	return out
}

// Strings returns canonical-order keys as text.
func (s Set) Strings() []string {
	keys := s.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

// String is the form-field serialization.
func (s Set) String() string { return quadra.Join(s.Keys()) }

// Equal reports set equality.
func (s Set) Equal(o Set) bool {
	if len(s.m) != len(o.m) {
		return false
	}
	for k := range s.m {
		if _, ok := o.m[k]; !ok {
			return false
		}
	}
	return true
}

// AreaIDs lists the distinct areas referenced by the set.
func (s Set) AreaIDs() []string { return quadra.AreaIDs(s.Keys()) }
