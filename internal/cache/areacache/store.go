// Package areacache keeps raw area GeoJSON shared across sessions.
package areacache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/quadra-map/internal/cache/redisstore"
	"github.com/mohammed-shakir/quadra-map/internal/core/observability"
)

type Store interface {
	Get(ctx context.Context, areaID string) ([]byte, bool, error)
	MGet(ctx context.Context, areaIDs []string) (map[string][]byte, error)
	Put(ctx context.Context, areaID string, body []byte) error
	Invalidate(ctx context.Context, areaIDs ...string) error
}

type redisAreaStore struct {
	cli       *redisstore.Client
	ns        string
	ttl       time.Duration
	opTimeout time.Duration
}

// NewRedisStore namespaces keys by the area API base so two upstreams never
// share entries.
func NewRedisStore(cli *redisstore.Client, apiBase string, ttl, opTimeout time.Duration) Store {
	return &redisAreaStore{
		cli:       cli,
		ns:        Namespace(apiBase),
		ttl:       ttl,
		opTimeout: opTimeout,
	}
}

func Namespace(apiBase string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.TrimRight(strings.TrimSpace(apiBase), "/")))
}

// Key is the Redis key of one area document.
func Key(ns, areaID string) string {
	return "area:" + ns + ":" + strings.TrimSpace(areaID)
}

func (s *redisAreaStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *redisAreaStore) Get(ctx context.Context, areaID string) ([]byte, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	b, ok, err := s.cli.Get(ctx, Key(s.ns, areaID))
	if err != nil {
		return nil, false, fmt.Errorf("areacache get %s: %w", areaID, err)
	}
	if ok {
		observability.IncCacheHit()
	} else {
		observability.IncCacheMiss()
	}
	return b, ok, nil
}

func (s *redisAreaStore) MGet(ctx context.Context, areaIDs []string) (map[string][]byte, error) {
	if len(areaIDs) == 0 {
		return map[string][]byte{}, nil
	}
	keys := make([]string, len(areaIDs))
	for i, id := range areaIDs {
		keys[i] = Key(s.ns, id)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	raw, err := s.cli.MGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("areacache mget %d areas: %w", len(keys), err)
	}
	out := make(map[string][]byte, len(raw))
	for i, id := range areaIDs {
		if v, ok := raw[keys[i]]; ok {
			out[id] = v
			observability.IncCacheHit()
		} else {
			observability.IncCacheMiss()
		}
	}
	return out, nil
}

func (s *redisAreaStore) Put(ctx context.Context, areaID string, body []byte) error {
	if s.ttl <= 0 || len(body) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.cli.Set(ctx, Key(s.ns, areaID), body, s.ttl); err != nil {
		return fmt.Errorf("areacache put %s: %w", areaID, err)
	}
	return nil
}

func (s *redisAreaStore) Invalidate(ctx context.Context, areaIDs ...string) error {
	if len(areaIDs) == 0 {
		return nil
	}
	keys := make([]string, len(areaIDs))
	for i, id := range areaIDs {
		keys[i] = Key(s.ns, id)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.cli.Del(ctx, keys...); err != nil {
		return fmt.Errorf("areacache invalidate %d areas: %w", len(keys), err)
	}
	return nil
}

// Noop is used when no Redis is configured.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (Noop) MGet(context.Context, []string) (map[string][]byte, error) {
	return map[string][]byte{}, nil
}

func (Noop) Put(context.Context, string, []byte) error { return nil }

func (Noop) Invalidate(context.Context, ...string) error { return nil }
