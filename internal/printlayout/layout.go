// Package printlayout renders a printable SVG of a map session: basemap
// tiles, quadra polygons, a legend, a summary table and the selection list.
package printlayout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/quadra-map/internal/core/observability"
	"github.com/mohammed-shakir/quadra-map/internal/geo"
	"github.com/mohammed-shakir/quadra-map/internal/index"
	"github.com/mohammed-shakir/quadra-map/internal/selection"
)

type Options struct {
	ShowLegend  bool `json:"showLegend"`
	ShowSummary bool `json:"showSummary"`
	ShowList    bool `json:"showList"`
	Monochrome  bool `json:"monochrome"`
	MapHeight   int  `json:"mapHeight"`
	MapWidth    int  `json:"mapWidth"`
}

func DefaultOptions(width, height int) Options {
	return Options{
		ShowLegend:  true,
		ShowSummary: true,
		ShowList:    true,
		MapHeight:   height,
		MapWidth:    width,
	}
}

const (
	minMapSide = 200
	maxMapSide = 4000
)

func (o Options) normalized(def Options) Options {
	if o.MapHeight <= 0 {
		o.MapHeight = def.MapHeight
	}
	if o.MapWidth <= 0 {
		o.MapWidth = def.MapWidth
	}
	o.MapHeight = clampInt(o.MapHeight, minMapSide, maxMapSide)
	o.MapWidth = clampInt(o.MapWidth, minMapSide, maxMapSide)
	return o
}

func (o Options) mode() string {
	if o.Monochrome {
		return "mono"
	}
	return "color"
}

// AreaStyle is the stable per-area look assigned when the area first loaded.
type AreaStyle struct {
	ID      string
	Color   string
	Pattern int
}

type Input struct {
	Quadras  []*geo.Quadra
	Selected selection.Set
	Areas    []AreaStyle
	Center   orb.Point
	Zoom     float64
	Summary  index.Summary
	Labels   bool
}

// Source is what a print job reads from.
type Source interface {
	WaitSettled(ctx context.Context) error
	PrintInput() Input
}

type Result struct {
	SVG []byte
	// Partial is set when layers were still loading at the ready deadline.
	Partial bool
}

type Printer struct {
	TileURL      string
	ReadyTimeout time.Duration
	Defaults     Options
	Logger       *slog.Logger
}

// Print waits until src reports its layers settled, bounded by ReadyTimeout,
// then renders whatever is loaded.
func (p *Printer) Print(ctx context.Context, src Source, opts Options) (Result, error) {
	start := time.Now()
	opts = opts.normalized(p.Defaults)

	res, err := p.print(ctx, src, opts)
	observability.ObservePrint(opts.mode(), time.Since(start).Seconds(), err)
	return res, err
}

func (p *Printer) print(ctx context.Context, src Source, opts Options) (Result, error) {
	var res Result

	wctx, cancel := ctx, context.CancelFunc(func() {})
	if p.ReadyTimeout > 0 {
		wctx, cancel = context.WithTimeout(ctx, p.ReadyTimeout)
	}
	err := src.WaitSettled(wctx)
	cancel()
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return res, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		res.Partial = true
		if p.Logger != nil {
			p.Logger.Warn("print ready timeout; rendering loaded layers", "timeout", p.ReadyTimeout)
		}
	default:
		return res, err
	}

	res.SVG = Render(src.PrintInput(), opts, p.TileURL)
	return res, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
