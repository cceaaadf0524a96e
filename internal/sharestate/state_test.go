package sharestate

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecode_Valid(t *testing.T) {
	s, err := Decode([]byte(`{"loadedAreaIds":["7"],"selectedQuadraIds":["7-10","7-11"],"center":{"lat":-23.22,"lng":-45.90},"zoom":16}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(s.LoadedAreaIDs, []string{"7"}) {
		t.Fatalf("areas=%v", s.LoadedAreaIDs)
	}
	if len(s.Keys()) != 2 || s.Center.Lat != -23.22 || s.Zoom != 16 {
		t.Fatalf("state=%+v", s)
	}
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"missing selection": `{"loadedAreaIds":["7"],"center":{"lat":-23.22,"lng":-45.90},"zoom":16}`,
		"null areas":        `{"loadedAreaIds":null,"selectedQuadraIds":[],"center":{"lat":0,"lng":0},"zoom":16}`,
		"string zoom":       `{"loadedAreaIds":[],"selectedQuadraIds":[],"center":{"lat":0,"lng":0},"zoom":"16"}`,
		"missing zoom":      `{"loadedAreaIds":[],"selectedQuadraIds":[],"center":{"lat":0,"lng":0}}`,
		"bad center":        `{"loadedAreaIds":[],"selectedQuadraIds":[],"center":[0,0],"zoom":16}`,
		"string lat":        `{"loadedAreaIds":[],"selectedQuadraIds":[],"center":{"lat":"0","lng":0},"zoom":16}`,
		"numeric ids":       `{"loadedAreaIds":[7],"selectedQuadraIds":[],"center":{"lat":0,"lng":0},"zoom":16}`,
		"bad key":           `{"loadedAreaIds":["7"],"selectedQuadraIds":["7"],"center":{"lat":0,"lng":0},"zoom":16}`,
		"bad area":          `{"loadedAreaIds":["x"],"selectedQuadraIds":[],"center":{"lat":0,"lng":0},"zoom":16}`,
		"not json":          `loadedAreaIds=7`,
		"array":             `[]`,
	}
	for name, raw := range cases {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: err=%v want ErrInvalid", name, err)
		}
	}
}

func TestEncodeDecode_RoundTripAndETag(t *testing.T) {
	in := State{
		LoadedAreaIDs:     []string{"3", "1"},
		SelectedQuadraIDs: []string{"1-2", "3-4"},
		Center:            LatLng{Lat: -23.2, Lng: -45.9},
		Zoom:              15,
	}
	b, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("got %+v want %+v", out, in)
	}
	b2, _ := Encode(out)
	if ETag(b) != ETag(b2) {
		t.Fatal("etag not stable")
	}
}

func TestEncode_EmptyArraysNotNull(t *testing.T) {
	b, err := Encode(State{Zoom: 13})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(b); err != nil {
		t.Fatalf("encoded empty state must decode: %v", err)
	}
}
