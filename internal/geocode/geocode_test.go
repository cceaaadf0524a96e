package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
)

var sjcBox = orb.Bound{Min: orb.Point{-46.05, -23.32}, Max: orb.Point{-45.75, -23.05}}

func TestSearch_QueryShapeAndParsing(t *testing.T) {
	var gotUA string
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = map[string]string{}
		for k, v := range r.URL.Query() {
			gotQuery[k] = v[0]
		}
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[
			{"place_id":101,"display_name":"Rua A, Centro","lat":"-23.18","lon":"-45.88"},
			{"place_id":102,"display_name":"broken","lat":"x","lon":"-45.88"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "quadra-map-test", sjcBox, 5, srv.Client())
	got, err := c.Search(context.Background(), "  rua a ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].PlaceID != 101 || got[0].Point != (orb.Point{-45.88, -23.18}) {
		t.Fatalf("places=%+v", got)
	}
	if gotUA != "quadra-map-test" {
		t.Fatalf("user agent=%q", gotUA)
	}
	want := map[string]string{
		"format":  "json",
		"q":       "rua a",
		"viewbox": "-46.05,-23.05,-45.75,-23.32",
		"bounded": "1",
		"limit":   "5",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Fatalf("query %s=%q want %q", k, gotQuery[k], v)
		}
	}
}

func TestSearch_ZeroResultsAndBlank(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", sjcBox, 5, srv.Client())
	if got, err := c.Search(context.Background(), "nowhere"); err != nil || len(got) != 0 {
		t.Fatalf("got=%v err=%v", got, err)
	}
	if got, err := c.Search(context.Background(), "   "); err != nil || got != nil {
		t.Fatalf("blank got=%v err=%v", got, err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestSearch_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "", sjcBox, 5, srv.Client())
	if _, err := c.Search(context.Background(), "x"); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestReverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" || r.URL.Query().Get("lat") != "-23.18" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"display_name":"Praça X"}`))
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "", sjcBox, 5, srv.Client())
	name, err := c.Reverse(context.Background(), orb.Point{-45.88, -23.18})
	if err != nil || name != "Praça X" {
		t.Fatalf("name=%q err=%v", name, err)
	}
}

func TestDebouncer_OnlyLastOfBurstRuns(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * 5 * time.Millisecond)
			_, errs[i] = d.Wait(context.Background())
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrSuperseded):
			t.Fatalf("unexpected err %v", err)
		}
	}
	if ok != 1 || errs[2] != nil {
		t.Fatalf("errs=%v", errs)
	}
}

func TestDebouncer_LatestAfterWork(t *testing.T) {
	d := NewDebouncer(0)
	t1, err := d.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !d.Latest(t1) {
		t.Fatal("ticket should be latest")
	}
	_, _ = d.Wait(context.Background())
	if d.Latest(t1) {
		t.Fatal("older ticket reported latest")
	}
}

func TestPositionError(t *testing.T) {
	cases := map[int]error{
		1: ErrPermissionDenied,
		2: ErrPositionUnavailable,
		3: ErrPositionTimeout,
		9: ErrPositionUnknown,
	}
	for code, want := range cases {
		if err := PositionError(code); !errors.Is(err, want) {
			t.Fatalf("code %d: %v", code, err)
		}
	}
}
