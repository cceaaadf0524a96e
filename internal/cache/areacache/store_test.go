package areacache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/quadra-map/internal/cache/redisstore"
)

func newMini(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	cli, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	return cli, mr
}

func TestRedisAreaStore_RoundTripAndInvalidate(t *testing.T) {
	cli, mr := newMini(t)
	s := NewRedisStore(cli, "http://geo.local/", time.Minute, time.Second)
	ctx := context.Background()

	if err := s.Put(ctx, "7", []byte(`{"type":"FeatureCollection"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	key := Key(Namespace("http://geo.local"), "7")
	if !mr.Exists(key) {
		t.Fatalf("expected key %q in redis; keys=%v", key, mr.Keys())
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl=%v", ttl)
	}

	b, ok, err := s.Get(ctx, "7")
	if err != nil || !ok || len(b) == 0 {
		t.Fatalf("Get ok=%v err=%v", ok, err)
	}

	got, err := s.MGet(ctx, []string{"7", "8"})
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if _, ok := got["7"]; !ok || len(got) != 1 {
		t.Fatalf("MGet=%v", got)
	}

	if err := s.Invalidate(ctx, "7"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "7"); ok {
		t.Fatal("area still cached after invalidate")
	}
}

func TestRedisAreaStore_NamespacesByBase(t *testing.T) {
	cli, _ := newMini(t)
	a := NewRedisStore(cli, "http://a", time.Minute, 0)
	b := NewRedisStore(cli, "http://b", time.Minute, 0)
	ctx := context.Background()

	_ = a.Put(ctx, "1", []byte("a"))
	if _, ok, _ := b.Get(ctx, "1"); ok {
		t.Fatal("stores with different bases must not share entries")
	}
}

func TestRedisAreaStore_ZeroTTLDisablesWrites(t *testing.T) {
	cli, mr := newMini(t)
	s := NewRedisStore(cli, "http://a", 0, 0)
	_ = s.Put(context.Background(), "1", []byte("a"))
	if len(mr.Keys()) != 0 {
		t.Fatalf("keys=%v", mr.Keys())
	}
}
