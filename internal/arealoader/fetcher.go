package arealoader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohammed-shakir/quadra-map/internal/cache/areacache"
	"github.com/mohammed-shakir/quadra-map/internal/core/observability"
)

// Fetcher returns the raw FeatureCollection of one area.
type Fetcher interface {
	Fetch(ctx context.Context, areaID string) ([]byte, error)
}

// UpstreamStatusError is returned for non-2xx upstream responses.
type UpstreamStatusError struct {
	Code int
}

func (e *UpstreamStatusError) Error() string { return fmt.Sprintf("area api status %d", e.Code) }

const maxAreaBody = 32 << 20

type HTTPFetcher struct {
	base   string
	client *http.Client
}

func NewHTTPFetcher(base string, client *http.Client) *HTTPFetcher {
	return &HTTPFetcher{base: strings.TrimRight(base, "/"), client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, areaID string) ([]byte, error) {
	start := time.Now()
	body, err := f.fetch(ctx, areaID)
	observability.ObserveUpstream("area_api", time.Since(start).Seconds(), err)
	return body, err
}

func (f *HTTPFetcher) fetch(ctx context.Context, areaID string) ([]byte, error) {
	u := f.base + "/api/area/" + url.PathEscape(areaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build area request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("area api get %s: %w", areaID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &UpstreamStatusError{Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAreaBody))
	if err != nil {
		return nil, fmt.Errorf("read area %s: %w", areaID, err)
	}
	return body, nil
}

// CachingFetcher reads through a shared area cache. Cache failures degrade to
// the upstream fetch.
type CachingFetcher struct {
	next   Fetcher
	store  areacache.Store
	logger *slog.Logger
}

func NewCachingFetcher(next Fetcher, store areacache.Store, logger *slog.Logger) *CachingFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingFetcher{next: next, store: store, logger: logger}
}

func (c *CachingFetcher) Fetch(ctx context.Context, areaID string) ([]byte, error) {
	body, ok, err := c.store.Get(ctx, areaID)
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		c.logger.Warn("area cache get failed", "area_id", areaID, "err", err)
	case ok:
		return body, nil
	}

	body, err = c.next.Fetch(ctx, areaID)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return body, nil
	}
	if err := c.store.Put(ctx, areaID, body); err != nil {
		c.logger.Warn("area cache put failed", "area_id", areaID, "err", err)
	}
	return body, nil
}
