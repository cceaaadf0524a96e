// Package quadra defines the composite quadra key and its textual contract.
package quadra

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedKey is returned for keys that are not "{areaId}-{blockId}".
var ErrMalformedKey = errors.New("malformed quadra key")

// Key identifies a quadra across all areas.
type Key struct {
	Area  string
	Block string
}

func NewKey(area, block string) Key {
	return Key{Area: strings.TrimSpace(area), Block: strings.TrimSpace(block)}
}

func (k Key) String() string { return k.Area + "-" + k.Block }

// HasArea reports whether k belongs to the given area.
func (k Key) HasArea(area string) bool { return k.Area == area }

// ParseKey splits on the first dash. The area part must be numeric, the
// block part may be any non-empty token without commas.
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	area, block, ok := strings.Cut(s, "-")
	if !ok {
		return Key{}, fmt.Errorf("%w: %q", ErrMalformedKey, s)
	}
	area = strings.TrimSpace(area)
	block = strings.TrimSpace(block)
	if !ValidAreaID(area) {
		return Key{}, fmt.Errorf("%w: area %q is not numeric", ErrMalformedKey, area)
	}
	if block == "" || strings.ContainsAny(block, ",") {
		return Key{}, fmt.Errorf("%w: block %q", ErrMalformedKey, block)
	}
	return Key{Area: area, Block: block}, nil
}

// ValidAreaID reports whether s is a non-empty run of ASCII digits.
func ValidAreaID(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Less orders by area (numeric) then block (numeric first, then lexicographic).
func Less(a, b Key) bool {
	if c := compareToken(a.Area, b.Area); c != 0 {
		return c < 0
	}
	return compareToken(a.Block, b.Block) < 0
}

// CompareAreaIDs orders area ids numerically.
func CompareAreaIDs(a, b string) int { return compareToken(a, b) }

func Sort(keys []Key) {
	sort.SliceStable(keys, func(i, j int) bool { return Less(keys[i], keys[j]) })
}

func compareToken(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return strings.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// Separator joins serialized keys inside a form field.
const Separator = ", "

// Join serializes keys in canonical order.
func Join(keys []Key) string {
	cp := append([]Key(nil), keys...)
	Sort(cp)
	parts := make([]string, len(cp))
	for i, k := range cp {
		parts[i] = k.String()
	}
	return strings.Join(parts, Separator)
}

// Split parses a comma-joined field value. Empty and malformed entries are
// reported in bad and left out; duplicates are collapsed.
func Split(s string) (keys []Key, bad []string) {
	seen := make(map[Key]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, err := ParseKey(part)
		if err != nil {
			bad = append(bad, part)
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys, bad
}

// AreaIDs returns the distinct areas referenced by keys, numerically sorted.
func AreaIDs(keys []Key) []string {
	seen := make(map[string]struct{}, len(keys))
	var out []string
	for _, k := range keys {
		if _, ok := seen[k.Area]; ok {
			continue
		}
		seen[k.Area] = struct{}{}
		out = append(out, k.Area)
	}
	SortAreaIDs(out)
	return out
}

// SortAreaIDs orders ids numerically, non-numeric ids last.
func SortAreaIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return compareToken(ids[i], ids[j]) < 0 })
}
