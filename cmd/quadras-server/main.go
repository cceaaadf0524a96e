package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/quadra-map/internal/arealoader"
	"github.com/mohammed-shakir/quadra-map/internal/cache/areacache"
	"github.com/mohammed-shakir/quadra-map/internal/cache/redisstore"
	"github.com/mohammed-shakir/quadra-map/internal/core/config"
	"github.com/mohammed-shakir/quadra-map/internal/core/health"
	"github.com/mohammed-shakir/quadra-map/internal/core/httpclient"
	"github.com/mohammed-shakir/quadra-map/internal/core/observability"
	"github.com/mohammed-shakir/quadra-map/internal/core/router"
	"github.com/mohammed-shakir/quadra-map/internal/core/server"
	"github.com/mohammed-shakir/quadra-map/internal/events"
	"github.com/mohammed-shakir/quadra-map/internal/fieldlist"
	"github.com/mohammed-shakir/quadra-map/internal/geocode"
	"github.com/mohammed-shakir/quadra-map/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/quadra-map/internal/logger"
	"github.com/mohammed-shakir/quadra-map/internal/metrics"
	"github.com/mohammed-shakir/quadra-map/internal/printlayout"
	"github.com/mohammed-shakir/quadra-map/internal/session"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load(".env")

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "quadra-map",
		Component: "server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	if cfg.Build.Version == "" {
		cfg.Build.Version = Version
	}
	p := metrics.Init(metrics.Config{Build: cfg.Build})
	observability.Init(p.Registerer())

	appLog.Info("starting quadra-map",
		"addr", cfg.Addr,
		"version", p.Build().Version,
		"area_api", cfg.AreaAPIBase,
		"redis", cfg.RedisAddr != "",
		"kafka", cfg.Kafka.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ready := map[string]health.Check{}
	var areaStore areacache.Store = areacache.Noop{}
	if cfg.RedisAddr != "" {
		rc, err := redisstore.New(ctx, cfg.RedisAddr,
			redisstore.WithPoolSize(cfg.RedisPoolSize),
			redisstore.WithDialTimeout(2*time.Second),
			redisstore.WithReadTimeout(cfg.CacheOpTimeout),
		)
		if err != nil {
			appLog.Error("redis unavailable", "addr", cfg.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = rc.Close() }()
		areaStore = areacache.NewRedisStore(rc, cfg.AreaAPIBase, cfg.AreaCacheTTL, cfg.CacheOpTimeout)
		ready["redis"] = rc.Ping
	}

	hc := httpclient.NewOutbound(cfg.AreaFetchTimeout)
	fetch := arealoader.NewCachingFetcher(arealoader.NewHTTPFetcher(cfg.AreaAPIBase, hc), areaStore, appLog)

	box := orb.Bound{
		Min: orb.Point{cfg.SearchBox.MinLon, cfg.SearchBox.MinLat},
		Max: orb.Point{cfg.SearchBox.MaxLon, cfg.SearchBox.MaxLat},
	}
	geocoder := geocode.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, box, cfg.SearchLimit, hc)

	list, err := fieldlist.New(fetch, cfg.PropertyFields, 256, appLog, fieldlist.WithBatchCache(areaStore))
	if err != nil {
		appLog.Error("field list setup failed", "err", err)
		return 1
	}

	deps := session.Deps{
		Settings: session.SettingsFromConfig(cfg),
		Fetcher:  fetch,
		Geocoder: geocoder,
		Logger:   appLog,
	}

	if cfg.Kafka.Enabled {
		pub, err := events.NewPublisher(config.SplitCSV(cfg.Kafka.Brokers), cfg.Kafka.SavedTopic, 1024, appLog)
		if err != nil {
			appLog.Error("kafka producer setup failed", "err", err)
			return 1
		}
		defer func() { _ = pub.Close() }()
		deps.Saved = pub

		cons := kafkaconsumer.New(kafkaconsumer.ConfigFrom(cfg.Kafka), appLog, &zl, areaStore, list)
		go func() {
			if err := cons.Start(ctx); err != nil {
				appLog.Error("area invalidation consumer stopped", "err", err)
			}
		}()
	}

	sessions := session.NewStore(ctx, deps, cfg.SessionMax, cfg.SessionTTL)
	defer sessions.CloseAll()
	p.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "session_store_entries",
		Help: "Entries held in the session LRU, including idle ones not yet expired.",
	}, func() float64 { return float64(sessions.Len()) }))

	api := &router.API{
		Sessions: sessions,
		Fields:   list,
		Printer: &printlayout.Printer{
			TileURL:      cfg.PrintTileURL,
			ReadyTimeout: cfg.PrintReadyTimeout,
			Defaults:     printlayout.DefaultOptions(cfg.PrintMapWidth, cfg.PrintMapHeight),
			Logger:       appLog,
		},
		Logger: appLog,
	}

	if err := server.Run(ctx, cfg, appLog, server.Handler(appLog, api, ready, p.Handler())); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
