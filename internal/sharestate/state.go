// Package sharestate encodes and validates the shareable map snapshot.
package sharestate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/quadra-map/internal/quadra"
)

var ErrInvalid = errors.New("invalid shared map state")

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type State struct {
	LoadedAreaIDs     []string `json:"loadedAreaIds"`
	SelectedQuadraIDs []string `json:"selectedQuadraIds"`
	Center            LatLng   `json:"center"`
	Zoom              float64  `json:"zoom"`
}

// Keys returns the parsed selection. Only valid after Decode.
func (s State) Keys() []quadra.Key {
	out := make([]quadra.Key, 0, len(s.SelectedQuadraIDs))
	for _, id := range s.SelectedQuadraIDs {
		if k, err := quadra.ParseKey(id); err == nil {
			out = append(out, k)
		}
	}
	return out
}

func Encode(s State) ([]byte, error) {
	if s.LoadedAreaIDs == nil {
		s.LoadedAreaIDs = []string{}
	}
	if s.SelectedQuadraIDs == nil {
		s.SelectedQuadraIDs = []string{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode share state: %w", err)
	}
	return b, nil
}

// ETag is a stable content hash of an encoded state.
func ETag(b []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(b))
}

// Decode validates shape before returning anything: both id arrays must be
// present arrays of strings, center must carry numeric lat/lng and zoom must
// be a number. Any failure yields ErrInvalid and a zero State.
func Decode(raw []byte) (State, error) {
	raw = bytes.TrimSpace(raw)
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return State{}, fmt.Errorf("%w: not a JSON object", ErrInvalid)
	}

	var s State
	var err error
	if s.LoadedAreaIDs, err = stringArray(top, "loadedAreaIds"); err != nil {
		return State{}, err
	}
	if s.SelectedQuadraIDs, err = stringArray(top, "selectedQuadraIds"); err != nil {
		return State{}, err
	}
	if s.Center, err = center(top); err != nil {
		return State{}, err
	}
	if s.Zoom, err = number(top, "zoom"); err != nil {
		return State{}, err
	}
	if s.Zoom < 0 || s.Zoom > 22 {
		return State{}, fmt.Errorf("%w: zoom %v out of range", ErrInvalid, s.Zoom)
	}

	for _, id := range s.LoadedAreaIDs {
		if !quadra.ValidAreaID(id) {
			return State{}, fmt.Errorf("%w: area id %q", ErrInvalid, id)
		}
	}
	for _, id := range s.SelectedQuadraIDs {
		if _, err := quadra.ParseKey(id); err != nil {
			return State{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return s, nil
}

func stringArray(top map[string]json.RawMessage, field string) ([]string, error) {
	raw, ok := top[field]
	if !ok || isNull(raw) {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalid, field)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %s must be an array of strings", ErrInvalid, field)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func center(top map[string]json.RawMessage) (LatLng, error) {
	raw, ok := top["center"]
	if !ok || isNull(raw) {
		return LatLng{}, fmt.Errorf("%w: missing center", ErrInvalid)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return LatLng{}, fmt.Errorf("%w: center must be an object", ErrInvalid)
	}
	lat, err := number(obj, "lat")
	if err != nil {
		return LatLng{}, err
	}
	lng, err := number(obj, "lng")
	if err != nil {
		return LatLng{}, err
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return LatLng{}, fmt.Errorf("%w: center out of range", ErrInvalid)
	}
	return LatLng{Lat: lat, Lng: lng}, nil
}

func number(obj map[string]json.RawMessage, field string) (float64, error) {
	raw, ok := obj[field]
	if !ok || isNull(raw) {
		return 0, fmt.Errorf("%w: missing %s", ErrInvalid, field)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalid, field)
	}
	return f, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
