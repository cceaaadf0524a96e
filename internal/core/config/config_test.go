package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.Addr != ":8090" {
		t.Fatalf("addr=%q", cfg.Addr)
	}
	if cfg.SearchDebounce != 500*time.Millisecond {
		t.Fatalf("debounce=%v", cfg.SearchDebounce)
	}
	if len(cfg.PropertyFields) == 0 || len(cfg.AreaPalette) == 0 {
		t.Fatal("expected default fields and palette")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("AREA_API_BASE", "http://geo.local/")
	t.Setenv("PROPERTY_FIELDS", "a, b,,c")
	t.Setenv("HIT_TEST_H3_RES", "42")
	t.Setenv("KAFKA_ENABLED", "yes")
	t.Setenv("SESSION_TTL", "90s")

	cfg := FromEnv()
	if cfg.AreaAPIBase != "http://geo.local" {
		t.Fatalf("base=%q", cfg.AreaAPIBase)
	}
	if !reflect.DeepEqual(cfg.PropertyFields, []string{"a", "b", "c"}) {
		t.Fatalf("fields=%v", cfg.PropertyFields)
	}
	if cfg.HitTestH3Res != 15 {
		t.Fatalf("res=%d want clamp to 15", cfg.HitTestH3Res)
	}
	if !cfg.Kafka.Enabled || cfg.SessionTTL != 90*time.Second {
		t.Fatalf("kafka=%v ttl=%v", cfg.Kafka.Enabled, cfg.SessionTTL)
	}
}

func TestFromEnv_ProcessSettings(t *testing.T) {
	cfg := FromEnv()
	if cfg.LogConsole || cfg.LogSampleN != 0 || cfg.RedisPoolSize != 32 || cfg.Build != (BuildInfo{}) {
		t.Fatalf("defaults: console=%v sample=%d pool=%d build=%+v",
			cfg.LogConsole, cfg.LogSampleN, cfg.RedisPoolSize, cfg.Build)
	}

	t.Setenv("LOG_CONSOLE", "true")
	t.Setenv("LOG_SAMPLE_N", "10")
	t.Setenv("REDIS_POOL_SIZE", "8")
	t.Setenv("BUILD_VERSION", "1.4.0")
	t.Setenv("BUILD_REVISION", "abc123")
	t.Setenv("BUILD_BRANCH", "main")
	t.Setenv("BUILD_DATE", "2026-10-01")

	cfg = FromEnv()
	if !cfg.LogConsole || cfg.LogSampleN != 10 || cfg.RedisPoolSize != 8 {
		t.Fatalf("console=%v sample=%d pool=%d", cfg.LogConsole, cfg.LogSampleN, cfg.RedisPoolSize)
	}
	want := BuildInfo{Version: "1.4.0", Revision: "abc123", Branch: "main", BuildDate: "2026-10-01"}
	if cfg.Build != want {
		t.Fatalf("build=%+v", cfg.Build)
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "test.env")
	if err := os.WriteFile(p, []byte("LABEL_MIN_ZOOM=18.5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("LABEL_MIN_ZOOM") })

	cfg := Load(p)
	if cfg.LabelMinZoom != 18.5 {
		t.Fatalf("label zoom=%v", cfg.LabelMinZoom)
	}
}

func TestSplitCSV(t *testing.T) {
	if got := SplitCSV(" a,,b "); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("got %v", got)
	}
}
