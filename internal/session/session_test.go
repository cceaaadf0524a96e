package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/quadra-map/internal/geo/geotest"
	"github.com/mohammed-shakir/quadra-map/internal/geocode"
	"github.com/mohammed-shakir/quadra-map/internal/sharestate"
)

var fields = []string{"residencial", "comercial"}

type areaFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	gate   chan struct{}
}

func (f *areaFetcher) Fetch(ctx context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	gate := f.gate
	body, ok := f.bodies[id]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, fmt.Errorf("area %s: status 404", id)
	}
	return body, nil
}

func block(id string, x float64, area float64, res float64) geotest.Block {
	return geotest.Block{
		ID: id, X: x, Y: -23.2200, AreaM2: area,
		Counts: map[string]float64{"residencial": res, "comercial": 1},
	}
}

func testFetcher() *areaFetcher {
	return &areaFetcher{bodies: map[string][]byte{
		"1":  geotest.AreaJSON(block("5", -45.9100, 10, 1), block("6", -45.9090, 20, 2)),
		"2":  geotest.AreaJSON(block("1", -45.9200, 5, 0)),
		"3":  geotest.AreaJSON(block("1", -45.9300, 5, 0)),
		"7":  geotest.AreaJSON(block("10", -45.9000, 100, 3), block("11", -45.8990, 50, 4)),
		"12": geotest.AreaJSON(block("5", -45.8800, 30, 5)),
	}}
}

func testSettings() Settings {
	return Settings{
		PropertyFields: fields,
		Palette:        []string{"#111111", "#222222", "#333333"},
		LabelMinZoom:   17,
		DefaultCenter:  sharestate.LatLng{Lat: -23.2195, Lng: -45.8995},
		DefaultZoom:    14,
		RadiusMeters:   150,
		H3Res:          10,
	}
}

func open(t *testing.T, deps Deps, opts Options) *Session {
	t.Helper()
	if deps.Fetcher == nil {
		deps.Fetcher = testFetcher()
	}
	if deps.Settings.PropertyFields == nil {
		deps.Settings = testSettings()
	}
	s, _, err := newSession(context.Background(), "s-1", deps, opts)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func settled(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.WaitSettled(ctx); err != nil {
		t.Fatalf("WaitSettled: %v", err)
	}
}

func TestToggle_OddCountsSelect(t *testing.T) {
	s := open(t, Deps{}, Options{AreaIDs: []string{"7"}})
	settled(t, s)

	seq := []string{"7-10", "7-11", "7-10", "7-10", "7-11", "7-11", "7-11"}
	for _, k := range seq {
		if _, err := s.Toggle(k); err != nil {
			t.Fatalf("Toggle(%s): %v", k, err)
		}
	}
	// 7-10 toggled 3x, 7-11 toggled 4x
	if got := s.Selection().String(); got != "7-10" {
		t.Fatalf("selection=%q", got)
	}
}

func TestToggle_UnknownQuadra(t *testing.T) {
	s := open(t, Deps{}, Options{AreaIDs: []string{"7"}})
	settled(t, s)
	if _, err := s.Toggle("7-99"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
	if _, err := s.Toggle("garbage"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err=%v", err)
	}
}

func TestRemoveArea_CascadesOnlyItsKeys(t *testing.T) {
	s := open(t, Deps{}, Options{Value: "1-5, 1-6, 12-5"})
	settled(t, s)

	if err := s.RemoveArea("1"); err != nil {
		t.Fatalf("RemoveArea: %v", err)
	}
	if got := s.Selection().String(); got != "12-5" {
		t.Fatalf("selection=%q", got)
	}
	if err := s.RemoveArea("1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second remove err=%v", err)
	}
}

func TestAggregate_PendingUntilAreaLoads(t *testing.T) {
	f := testFetcher()
	s := open(t, Deps{Fetcher: f}, Options{AreaIDs: []string{"7"}, Value: "7-10"})
	settled(t, s)

	snap, _ := s.Snapshot()
	if snap.Summary.TotalAreaM2 != 100 || snap.Summary.TotalImoveis != 4 {
		t.Fatalf("summary=%+v", snap.Summary)
	}

	f.mu.Lock()
	f.gate = make(chan struct{})
	f.mu.Unlock()

	// import selects a key of area 12 while the area is still loading
	raw := []byte(`{"loadedAreaIds":["7","12"],"selectedQuadraIds":["7-10","12-5"],"center":{"lat":-23.22,"lng":-45.9},"zoom":16}`)
	if err := s.Import(raw); err != nil {
		t.Fatalf("Import: %v", err)
	}
	snap, _ = s.Snapshot()
	if snap.Summary.SelectedCount != 2 || snap.Summary.PendingCount != 1 || snap.Summary.TotalAreaM2 != 100 {
		t.Fatalf("pending summary=%+v", snap.Summary)
	}

	close(f.gate)
	settled(t, s)
	snap, _ = s.Snapshot()
	if snap.Summary.TotalAreaM2 != 130 || snap.Summary.TotalImoveis != 10 || snap.Summary.PendingCount != 0 {
		t.Fatalf("loaded summary=%+v", snap.Summary)
	}
}

func TestImport_QueuesAreasAndReplacesSelection(t *testing.T) {
	s := open(t, Deps{}, Options{Value: "1-5"})
	settled(t, s)

	raw := []byte(`{"loadedAreaIds":["7"],"selectedQuadraIds":["7-10","7-11"],"center":{"lat":-23.22,"lng":-45.90},"zoom":16}`)
	if err := s.Import(raw); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got := s.Selection().String(); got != "7-10, 7-11" {
		t.Fatalf("selection=%q", got)
	}
	snap, _ := s.Snapshot()
	found := false
	for _, a := range snap.Areas {
		found = found || a.AreaID == "7"
	}
	if !found || snap.Viewport.Zoom != 16 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestImport_MalformedLeavesStateUntouched(t *testing.T) {
	s := open(t, Deps{}, Options{AreaIDs: []string{"7"}, Value: "7-10"})
	settled(t, s)
	before, _ := s.Snapshot()

	for _, raw := range []string{
		`{"loadedAreaIds":["2"],"center":{"lat":-23.22,"lng":-45.90},"zoom":16}`,
		`{"loadedAreaIds":["2"],"selectedQuadraIds":["2-1"],"center":{"lat":"x","lng":-45.90},"zoom":16}`,
		`{"loadedAreaIds":["2"],"selectedQuadraIds":["2-1"],"center":{"lat":-23.22,"lng":-45.90},"zoom":"16"}`,
		`not json`,
	} {
		if err := s.Import([]byte(raw)); !errors.Is(err, sharestate.ErrInvalid) {
			t.Fatalf("Import(%s) err=%v", raw, err)
		}
	}
	after, _ := s.Snapshot()
	if after.Value != before.Value || len(after.Areas) != len(before.Areas) || after.Viewport != before.Viewport {
		t.Fatalf("state changed: before=%+v after=%+v", before, after)
	}
}

func TestShare_RoundTripsThroughImport(t *testing.T) {
	s := open(t, Deps{}, Options{AreaIDs: []string{"7"}, Value: "7-11"})
	settled(t, s)
	if _, err := s.SetViewport(Viewport{Center: sharestate.LatLng{Lat: -23.2, Lng: -45.9}, Zoom: 18}); err != nil {
		t.Fatal(err)
	}
	st, err := s.Share()
	if err != nil {
		t.Fatal(err)
	}
	raw, err := sharestate.Encode(st)
	if err != nil {
		t.Fatal(err)
	}

	other := open(t, Deps{}, Options{})
	if err := other.Import(raw); err != nil {
		t.Fatalf("Import: %v", err)
	}
	settled(t, other)
	got, _ := other.Share()
	if got.Zoom != 18 || len(got.SelectedQuadraIDs) != 1 || got.SelectedQuadraIDs[0] != "7-11" || got.LoadedAreaIDs[0] != "7" {
		t.Fatalf("shared=%+v", got)
	}
}

func TestPatterns_StableAcrossRemoveAndReload(t *testing.T) {
	s := open(t, Deps{}, Options{})
	for _, id := range []string{"3", "1", "2"} {
		if _, err := s.AddArea(id); err != nil {
			t.Fatal(err)
		}
	}
	settled(t, s)
	if err := s.RemoveArea("1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddArea("1"); err != nil {
		t.Fatal(err)
	}
	settled(t, s)

	snap, _ := s.Snapshot()
	want := map[string]int{"3": 0, "1": 1, "2": 2}
	for _, a := range snap.Areas {
		if a.Pattern != want[a.AreaID] || a.Ordinal != want[a.AreaID] {
			t.Fatalf("area %s pattern=%d ordinal=%d want %d", a.AreaID, a.Pattern, a.Ordinal, want[a.AreaID])
		}
	}
	if snap.Areas[0].Color != "#111111" {
		t.Fatalf("color=%s", snap.Areas[0].Color)
	}
}

func TestReadOnly_BlocksMutationsOnly(t *testing.T) {
	s := open(t, Deps{}, Options{AreaIDs: []string{"7"}, Value: "7-10", ReadOnly: true})
	settled(t, s)

	if _, err := s.Toggle("7-11"); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("toggle err=%v", err)
	}
	if _, err := s.AddArea("2"); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("add err=%v", err)
	}
	if err := s.RemoveArea("7"); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("remove err=%v", err)
	}
	if _, err := s.RadiusSelect(sharestate.LatLng{Lat: -23.2195, Lng: -45.8995}, 100); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("radius err=%v", err)
	}
	if err := s.Import([]byte(`{"loadedAreaIds":[],"selectedQuadraIds":[],"center":{"lat":0,"lng":0},"zoom":3}`)); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("import err=%v", err)
	}
	if _, err := s.Save(context.Background()); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("save err=%v", err)
	}

	lat, lng := -23.2195, -45.8995
	if res, err := s.Locate(context.Background(), LocateRequest{Lat: &lat, Lng: &lng}); err != nil || res.Quadra == nil {
		t.Fatalf("locate res=%+v err=%v", res, err)
	}
	if _, err := s.Share(); err != nil {
		t.Fatalf("share: %v", err)
	}
}

func TestLabelsVisibleAtThreshold(t *testing.T) {
	s := open(t, Deps{}, Options{})
	cases := []struct {
		zoom float64
		want bool
	}{{16.9, false}, {17, true}, {19, true}}
	for _, c := range cases {
		got, err := s.SetViewport(Viewport{Center: sharestate.LatLng{Lat: -23, Lng: -45}, Zoom: c.zoom})
		if err != nil || got != c.want {
			t.Fatalf("zoom %v: visible=%v err=%v", c.zoom, got, err)
		}
	}
	if _, err := s.SetViewport(Viewport{Zoom: 30}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err=%v", err)
	}
}

func TestRadiusSelect_AddsCentroidsWithinRadius(t *testing.T) {
	s := open(t, Deps{}, Options{AreaIDs: []string{"7"}})
	settled(t, s)

	// centroid of 7-10 is about 100 m west of 7-11's
	added, err := s.RadiusSelect(sharestate.LatLng{Lat: -23.2195, Lng: -45.8995}, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(added) != 1 || added[0].String() != "7-10" {
		t.Fatalf("added=%v", added)
	}
	added, _ = s.RadiusSelect(sharestate.LatLng{Lat: -23.2195, Lng: -45.8990}, 150)
	if len(added) != 1 || added[0].String() != "7-11" {
		t.Fatalf("added=%v", added)
	}
	if _, err := s.RadiusSelect(sharestate.LatLng{}, 10_000); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err=%v", err)
	}
}

func TestLocate_GeolocationErrors(t *testing.T) {
	s := open(t, Deps{}, Options{})
	if _, err := s.Locate(context.Background(), LocateRequest{ErrorCode: 1}); !errors.Is(err, geocode.ErrPermissionDenied) {
		t.Fatalf("err=%v", err)
	}
	if _, err := s.Locate(context.Background(), LocateRequest{}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err=%v", err)
	}
	lat, lng := -10.0, -40.0
	res, err := s.Locate(context.Background(), LocateRequest{Lat: &lat, Lng: &lng})
	if err != nil || res.Quadra != nil {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

type fakeGeocoder struct {
	mu    sync.Mutex
	calls []string
}

func (g *fakeGeocoder) Search(_ context.Context, q string) ([]geocode.Place, error) {
	g.mu.Lock()
	g.calls = append(g.calls, q)
	g.mu.Unlock()
	return []geocode.Place{
		{PlaceID: 1, DisplayName: "inside", Point: orb.Point{-45.8995, -23.2195}},
		{PlaceID: 2, DisplayName: "outside", Point: orb.Point{-40, -10}},
	}, nil
}

func (g *fakeGeocoder) Reverse(context.Context, orb.Point) (string, error) { return "Rua X", nil }

func TestSearch_DebouncedAndHitTested(t *testing.T) {
	g := &fakeGeocoder{}
	st := testSettings()
	st.SearchDebounce = 40 * time.Millisecond
	s := open(t, Deps{Settings: st, Geocoder: g}, Options{AreaIDs: []string{"7"}})
	settled(t, s)

	first := make(chan error, 1)
	go func() {
		_, err := s.Search(context.Background(), "rua")
		first <- err
	}()
	time.Sleep(10 * time.Millisecond)
	hits, err := s.Search(context.Background(), "rua x")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if err := <-first; !errors.Is(err, geocode.ErrSuperseded) {
		t.Fatalf("first search err=%v", err)
	}
	if len(g.calls) != 1 || g.calls[0] != "rua x" {
		t.Fatalf("geocoder calls=%v", g.calls)
	}
	if len(hits) != 2 || hits[0].Quadra == nil || hits[0].Quadra.Key != "7-10" || hits[1].Quadra != nil {
		t.Fatalf("hits=%+v", hits)
	}
}

type savedRecorder struct {
	got []Saved
}

func (r *savedRecorder) SelectionSaved(_ context.Context, s Saved) { r.got = append(r.got, s) }

func TestSave_SortedAndNotified(t *testing.T) {
	rec := &savedRecorder{}
	s := open(t, Deps{Saved: rec}, Options{Value: "12-5,7-11, 7-10 ,7-10, bad"})
	v, err := s.Save(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != "7-10, 7-11, 12-5" {
		t.Fatalf("value=%q", v)
	}
	if len(rec.got) != 1 || rec.got[0].Count != 3 || rec.got[0].SessionID != "s-1" {
		t.Fatalf("saved=%+v", rec.got)
	}
}

func TestClose_RejectsFurtherUse(t *testing.T) {
	s := open(t, Deps{}, Options{AreaIDs: []string{"7"}})
	if !s.Close() || s.Close() {
		t.Fatal("Close should report true exactly once")
	}
	if _, err := s.Snapshot(); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v", err)
	}
}

func TestWaitSettled_CloseMidWaitReportsClosed(t *testing.T) {
	f := testFetcher()
	f.gate = make(chan struct{})
	s := open(t, Deps{Fetcher: f}, Options{AreaIDs: []string{"7"}})

	done := make(chan error, 1)
	go func() { done <- s.WaitSettled(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	s.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("err=%v want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitSettled did not return after Close")
	}
}
