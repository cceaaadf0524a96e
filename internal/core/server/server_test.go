package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammed-shakir/quadra-map/internal/arealoader"
	"github.com/mohammed-shakir/quadra-map/internal/core/health"
	"github.com/mohammed-shakir/quadra-map/internal/core/router"
	"github.com/mohammed-shakir/quadra-map/internal/fieldlist"
	"github.com/mohammed-shakir/quadra-map/internal/metrics"
	"github.com/mohammed-shakir/quadra-map/internal/printlayout"
	"github.com/mohammed-shakir/quadra-map/internal/session"
)

type noFetch struct{}

func (noFetch) Fetch(context.Context, string) ([]byte, error) {
	return nil, &arealoader.UpstreamStatusError{Code: http.StatusNotFound}
}

func TestHandlerRoutes(t *testing.T) {
	store := session.NewStore(context.Background(), session.Deps{Fetcher: noFetch{}}, 4, time.Minute)
	defer store.CloseAll()
	list, err := fieldlist.New(noFetch{}, nil, 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	api := &router.API{Sessions: store, Fields: list, Printer: &printlayout.Printer{}, Logger: slog.Default()}
	ready := map[string]health.Check{
		"redis": func(context.Context) error { return errors.New("down") },
	}
	p := metrics.Init(metrics.Config{NoRuntime: true})

	srv := httptest.NewServer(Handler(slog.Default(), api, ready, p.Handler()))
	defer srv.Close()

	cases := []struct {
		path string
		want int
		body string
	}{
		{"/healthz", http.StatusOK, ""},
		{"/readyz", http.StatusServiceUnavailable, `"redis":"down"`},
		{"/metrics", http.StatusOK, "quadra_map_build_info"},
		{"/sessions/unknown", http.StatusNotFound, "not_found"},
	}
	for _, c := range cases {
		resp, err := http.Get(srv.URL + c.path)
		if err != nil {
			t.Fatal(err)
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != c.want {
			t.Fatalf("%s: status=%d want %d", c.path, resp.StatusCode, c.want)
		}
		if c.body != "" && !strings.Contains(string(b), c.body) {
			t.Fatalf("%s: body %q lacks %q", c.path, b, c.body)
		}
	}
}
