package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type KafkaCfg struct {
	Enabled     bool
	Brokers     string
	UpdateTopic string
	SavedTopic  string
	GroupID     string
}

// BBox is a lon/lat box in EPSG:4326.
type BBox struct {
	MinLon, MinLat float64
	MaxLon, MaxLat float64
}

// BuildInfo identifies the running binary on /metrics.
type BuildInfo struct {
	Version   string
	Revision  string
	Branch    string
	BuildDate string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int
	Build      BuildInfo

	AreaAPIBase      string
	AreaCacheTTL     time.Duration
	AreaFetchTimeout time.Duration
	RedisAddr        string
	RedisPoolSize    int
	CacheOpTimeout   time.Duration

	PropertyFields []string
	AreaPalette    []string

	NominatimURL       string
	NominatimUserAgent string
	SearchBox          BBox
	SearchLimit        int
	SearchDebounce     time.Duration

	LabelMinZoom     float64
	DefaultCenterLat float64
	DefaultCenterLng float64
	DefaultZoom      float64
	RadiusMeters     float64
	HitTestH3Res     int

	SessionMax int
	SessionTTL time.Duration

	PrintTileURL      string
	PrintReadyTimeout time.Duration
	PrintMapHeight    int
	PrintMapWidth     int

	Kafka KafkaCfg
}

// Load reads an optional .env file then the process environment.
func Load(envFiles ...string) Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}
	return FromEnv()
}

func FromEnv() Config {
	res := getint("HIT_TEST_H3_RES", 10)
	if res > 15 {
		res = 15
	}

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),
		Build: BuildInfo{
			Version:   getenv("BUILD_VERSION", ""),
			Revision:  getenv("BUILD_REVISION", ""),
			Branch:    getenv("BUILD_BRANCH", ""),
			BuildDate: getenv("BUILD_DATE", ""),
		},

		AreaAPIBase:      strings.TrimRight(getenv("AREA_API_BASE", "http://localhost:3000"), "/"),
		AreaCacheTTL:     getduration("AREA_CACHE_TTL", 5*time.Minute),
		AreaFetchTimeout: getduration("AREA_FETCH_TIMEOUT", 15*time.Second),
		RedisAddr:        getenv("REDIS_ADDR", ""),
		RedisPoolSize:    getint("REDIS_POOL_SIZE", 32),
		CacheOpTimeout:   getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),

		PropertyFields: getlist("PROPERTY_FIELDS", []string{
			"residencial", "comercial", "terreno_baldio", "ponto_estrategico", "outros",
		}),
		AreaPalette: getlist("AREA_PALETTE", []string{
			"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
			"#46f0f0", "#f032e6", "#bcf60c", "#008080", "#9a6324",
		}),

		NominatimURL:       getenv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent: getenv("NOMINATIM_USER_AGENT", "quadra-map/1.0"),
		SearchBox: BBox{
			MinLon: getfloat("SEARCH_BOX_MIN_LON", -46.05),
			MinLat: getfloat("SEARCH_BOX_MIN_LAT", -23.32),
			MaxLon: getfloat("SEARCH_BOX_MAX_LON", -45.75),
			MaxLat: getfloat("SEARCH_BOX_MAX_LAT", -23.05),
		},
		SearchLimit:    getint("SEARCH_LIMIT", 5),
		SearchDebounce: getduration("SEARCH_DEBOUNCE", 500*time.Millisecond),

		LabelMinZoom:     getfloat("LABEL_MIN_ZOOM", 17),
		DefaultCenterLat: getfloat("DEFAULT_CENTER_LAT", -23.1896),
		DefaultCenterLng: getfloat("DEFAULT_CENTER_LNG", -45.8841),
		DefaultZoom:      getfloat("DEFAULT_ZOOM", 14),
		RadiusMeters:     getfloat("RADIUS_METERS", 150),
		HitTestH3Res:     res,

		SessionMax: getint("SESSION_MAX", 1024),
		SessionTTL: getduration("SESSION_TTL", 30*time.Minute),

		PrintTileURL:      getenv("PRINT_TILE_URL", "https://a.basemaps.cartocdn.com/light_all/{z}/{x}/{y}.png"),
		PrintReadyTimeout: getduration("PRINT_READY_TIMEOUT", 20*time.Second),
		PrintMapHeight:    getint("PRINT_MAP_HEIGHT", 700),
		PrintMapWidth:     getint("PRINT_MAP_WIDTH", 1000),

		Kafka: KafkaCfg{
			Enabled:     getbool("KAFKA_ENABLED", false),
			Brokers:     getenv("KAFKA_BROKERS", "localhost:9092"),
			UpdateTopic: getenv("KAFKA_AREA_TOPIC", "area-updates"),
			SavedTopic:  getenv("KAFKA_SAVED_TOPIC", "quadra-selections"),
			GroupID:     getenv("KAFKA_GROUP_ID", "quadra-map"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "a, b,c" into [a b c]; empty input keeps the default
func getlist(k string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	var out []string
	for p := range strings.SplitSeq(v, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// SplitCSV splits a comma-separated list, dropping blanks.
func SplitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
