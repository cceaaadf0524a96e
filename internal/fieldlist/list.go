// Package fieldlist backs the "relação de quadras" form field: it turns the
// comma-joined value into labelled chips without opening a map session.
package fieldlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/quadra-map/internal/arealoader"
	"github.com/mohammed-shakir/quadra-map/internal/geo"
	"github.com/mohammed-shakir/quadra-map/internal/quadra"
	"github.com/mohammed-shakir/quadra-map/internal/selection"
)

var (
	ErrReadOnly = errors.New("field is read-only")
	ErrNotFound = errors.New("quadra not found")
	ErrInvalid  = errors.New("invalid quadra key")
)

type Detail struct {
	Key    string             `json:"key"`
	AreaID string             `json:"areaId"`
	Block  string             `json:"block"`
	Title  string             `json:"title"`
	AreaM2 float64            `json:"areaM2"`
	Counts map[string]float64 `json:"counts"`
	Props  map[string]any     `json:"properties"`
}

type Chip struct {
	Key       string  `json:"key"`
	Label     string  `json:"label"`
	Removable bool    `json:"removable"`
	Detail    *Detail `json:"detail,omitempty"`
}

type Chips struct {
	Value   string   `json:"value"`
	Chips   []Chip   `json:"chips"`
	Invalid []string `json:"invalid,omitempty"`
	// Unavailable lists areas whose metadata could not be fetched.
	Unavailable []string `json:"unavailable,omitempty"`
}

// BatchCache reads raw area documents for many ids in one round trip.
type BatchCache interface {
	MGet(ctx context.Context, areaIDs []string) (map[string][]byte, error)
}

// List caches parsed areas across requests.
type List struct {
	fetch  arealoader.Fetcher
	batch  BatchCache
	fields []string
	cache  *lru.Cache[string, *geo.Area]
	logger *slog.Logger
}

type Option func(*List)

// WithBatchCache consults c for every area missing from the in-process
// cache before fetching them one by one.
func WithBatchCache(c BatchCache) Option {
	return func(l *List) { l.batch = c }
}

func New(fetch arealoader.Fetcher, countFields []string, size int, logger *slog.Logger, opts ...Option) (*List, error) {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New[string, *geo.Area](size)
	if err != nil {
		return nil, fmt.Errorf("fieldlist cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &List{fetch: fetch, fields: countFields, cache: c, logger: logger}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

func (l *List) area(ctx context.Context, id string) (*geo.Area, error) {
	if a, ok := l.cache.Get(id); ok {
		return a, nil
	}
	raw, err := l.fetch.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return l.parse(id, raw)
}

func (l *List) parse(id string, raw []byte) (*geo.Area, error) {
	a, rejected, err := geo.ParseArea(id, raw, l.fields)
	if err != nil {
		return nil, err
	}
	if len(rejected) > 0 {
		l.logger.Warn("area features rejected", "area_id", id, "count", len(rejected))
	}
	l.cache.Add(id, a)
	return a, nil
}

// fromBatch moves ids found in the batch cache into out and returns the rest.
func (l *List) fromBatch(ctx context.Context, ids []string, out map[string]*geo.Area) []string {
	if l.batch == nil || len(ids) == 0 {
		return ids
	}
	got, err := l.batch.MGet(ctx, ids)
	if err != nil {
		l.logger.Warn("field list batch cache read failed", "areas", len(ids), "err", err)
		return ids
	}
	var rest []string
	for _, id := range ids {
		raw, ok := got[id]
		if !ok {
			rest = append(rest, id)
			continue
		}
		a, err := l.parse(id, raw)
		if err != nil {
			l.logger.Warn("cached area unreadable; refetching", "area_id", id, "err", err)
			rest = append(rest, id)
			continue
		}
		out[id] = a
	}
	return rest
}

// areas fetches ids concurrently; failures are reported, not returned.
func (l *List) areas(ctx context.Context, ids []string) (map[string]*geo.Area, []string) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		out     = make(map[string]*geo.Area, len(ids))
		failed  []string
		missing []string
	)
	for _, id := range ids {
		if a, ok := l.cache.Get(id); ok {
			out[id] = a
			continue
		}
		missing = append(missing, id)
	}
	for _, id := range l.fromBatch(ctx, missing, out) {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			a, err := l.area(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				l.logger.Warn("field list area fetch failed", "area_id", id, "err", err)
				failed = append(failed, id)
				return
			}
			out[id] = a
		}(id)
	}
	wg.Wait()
	quadra.SortAreaIDs(failed)
	return out, failed
}

func detailOf(q *geo.Quadra) *Detail {
	return &Detail{
		Key:    q.Key.String(),
		AreaID: q.Key.Area,
		Block:  q.Key.Block,
		Title:  q.Title,
		AreaM2: q.AreaM2,
		Counts: q.Counts,
		Props:  q.Props,
	}
}

// Chips parses value and labels each key, sorted by area then block.
func (l *List) Chips(ctx context.Context, value string, readOnly bool) Chips {
	sel, bad := selection.Parse(value)
	loaded, failed := l.areas(ctx, sel.AreaIDs())

	res := Chips{Value: sel.String(), Invalid: bad, Unavailable: failed, Chips: []Chip{}}
	for _, k := range sel.Keys() {
		c := Chip{
			Key:       k.String(),
			Label:     fmt.Sprintf("Área %s · Quadra %s", k.Area, k.Block),
			Removable: !readOnly,
		}
		if a, ok := loaded[k.Area]; ok {
			if q, ok := a.Lookup(k.Block); ok {
				c.Detail = detailOf(q)
			}
		}
		res.Chips = append(res.Chips, c)
	}
	return res
}

// Remove drops key from value and returns the canonical new value.
func Remove(value, key string, readOnly bool) (string, error) {
	if readOnly {
		return "", ErrReadOnly
	}
	k, err := quadra.ParseKey(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	sel, _ := selection.Parse(value)
	if !sel.Has(k) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, k)
	}
	return sel.Remove(k).String(), nil
}

// Detail returns the feature behind key.
func (l *List) Detail(ctx context.Context, key string) (*Detail, error) {
	k, err := quadra.ParseKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	a, err := l.area(ctx, k.Area)
	if err != nil {
		return nil, err
	}
	q, ok := a.Lookup(k.Block)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, k)
	}
	return detailOf(q), nil
}

// Invalidate forgets cached areas so the next lookup refetches them.
func (l *List) Invalidate(ids ...string) {
	for _, id := range ids {
		l.cache.Remove(id)
	}
}
