// Package metrics owns the Prometheus registry served on /metrics.
package metrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/quadra-map/internal/core/config"
)

// Namespace prefixes the collectors this package registers itself.
const Namespace = "quadra_map"

type Config struct {
	Build config.BuildInfo
	// skips go/process collectors, used by tests that diff payloads
	NoRuntime bool
}

// Provider is the registry plus the build the process reported at startup.
type Provider struct {
	reg   *prometheus.Registry
	build config.BuildInfo
}

func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()
	if !cfg.NoRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: Namespace}),
		)
	}

	b := cfg.Build
	if b.Version == "" {
		b.Version = "dev"
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Running quadra-map build; always 1.",
		ConstLabels: prometheus.Labels{
			"version":    b.Version,
			"revision":   b.Revision,
			"branch":     b.Branch,
			"build_date": b.BuildDate,
			"go_version": runtime.Version(),
		},
	}, func() float64 { return 1 }))

	return &Provider{reg: reg, build: b}
}

// Build returns the build labels after defaulting.
func (p *Provider) Build() config.BuildInfo { return p.build }

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }
