// quadractl runs map-session operations from the shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"

	"github.com/mohammed-shakir/quadra-map/internal/arealoader"
	"github.com/mohammed-shakir/quadra-map/internal/core/config"
	"github.com/mohammed-shakir/quadra-map/internal/core/httpclient"
	"github.com/mohammed-shakir/quadra-map/internal/logger"
	"github.com/mohammed-shakir/quadra-map/internal/printlayout"
	"github.com/mohammed-shakir/quadra-map/internal/selection"
	"github.com/mohammed-shakir/quadra-map/internal/session"
)

type PrintCmd struct {
	State      string `arg:"positional,required" help:"shared map state JSON file, - for stdin"`
	Out        string `arg:"-o,--out" help:"output SVG file" default:"-"`
	Monochrome bool   `arg:"--mono" help:"fill selected quadras with patterns"`
	NoLegend   bool   `arg:"--no-legend"`
	NoSummary  bool   `arg:"--no-summary"`
	NoList     bool   `arg:"--no-list"`
	Width      int    `arg:"--width" help:"map width in px"`
	Height     int    `arg:"--height" help:"map height in px"`
}

type LocateCmd struct {
	Lat   float64  `arg:"--lat,required"`
	Lng   float64  `arg:"--lng,required"`
	Areas []string `arg:"--area,required,separate" help:"area id to load, repeatable"`
}

type NormalizeCmd struct {
	Value string `arg:"positional,required" help:"comma-separated quadra keys"`
}

type Args struct {
	Print     *PrintCmd     `arg:"subcommand:print" help:"render a shared map state to SVG"`
	Locate    *LocateCmd    `arg:"subcommand:locate" help:"find the quadra containing a position"`
	Normalize *NormalizeCmd `arg:"subcommand:normalize" help:"sort and de-duplicate a quadra list"`

	AreaAPI string `arg:"--area-api,env:AREA_API_BASE" help:"area API base URL"`
	Verbose bool   `arg:"-v,--verbose"`
}

func (Args) Description() string {
	return "quadractl: offline tools for quadra selection maps"
}

func main() {
	var args Args
	p := arg.MustParse(&args)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand")
	}

	cfg := config.Load(".env")
	if args.AreaAPI != "" {
		cfg.AreaAPIBase = args.AreaAPI
	}
	level := "warn"
	if args.Verbose {
		level = "debug"
	}
	zl := logger.Build(logger.Config{Level: level, Console: true, Component: "quadractl"}, os.Stderr)
	log := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case args.Print != nil:
		err = runPrint(ctx, cfg, log, args.Print)
	case args.Locate != nil:
		err = runLocate(ctx, cfg, log, args.Locate)
	case args.Normalize != nil:
		err = runNormalize(os.Stdout, os.Stderr, args.Normalize.Value)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "quadractl:", err)
		stop()
		os.Exit(1)
	}
}

func newStore(ctx context.Context, cfg config.Config, log *slog.Logger) *session.Store {
	fetch := arealoader.NewHTTPFetcher(cfg.AreaAPIBase, httpclient.NewOutbound(cfg.AreaFetchTimeout))
	return session.NewStore(ctx, session.Deps{
		Settings: session.SettingsFromConfig(cfg),
		Fetcher:  fetch,
		Logger:   log,
	}, 1, 0)
}

func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func runPrint(ctx context.Context, cfg config.Config, log *slog.Logger, cmd *PrintCmd) error {
	raw, err := readInput(cmd.State)
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	store := newStore(ctx, cfg, log)
	defer store.CloseAll()

	s, _, err := store.Open(session.Options{})
	if err != nil {
		return err
	}
	if err := s.Import(raw); err != nil {
		return fmt.Errorf("import state: %w", err)
	}

	opts := printlayout.Options{
		ShowLegend:  !cmd.NoLegend,
		ShowSummary: !cmd.NoSummary,
		ShowList:    !cmd.NoList,
		Monochrome:  cmd.Monochrome,
		MapWidth:    cmd.Width,
		MapHeight:   cmd.Height,
	}
	pr := &printlayout.Printer{
		TileURL:      cfg.PrintTileURL,
		ReadyTimeout: cfg.PrintReadyTimeout,
		Defaults:     printlayout.DefaultOptions(cfg.PrintMapWidth, cfg.PrintMapHeight),
		Logger:       log,
	}
	res, err := pr.Print(ctx, s, opts)
	if err != nil {
		return err
	}
	if res.Partial {
		log.Warn("some areas were still loading; output is partial")
	}

	if cmd.Out == "-" {
		_, err = os.Stdout.Write(res.SVG)
		return err
	}
	return os.WriteFile(cmd.Out, res.SVG, 0o644)
}

func runLocate(ctx context.Context, cfg config.Config, log *slog.Logger, cmd *LocateCmd) error {
	store := newStore(ctx, cfg, log)
	defer store.CloseAll()

	s, _, err := store.Open(session.Options{AreaIDs: cmd.Areas, ReadOnly: true})
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, cfg.AreaFetchTimeout+5*time.Second)
	defer cancel()
	if err := s.WaitSettled(wctx); err != nil {
		return err
	}

	res, err := s.Locate(ctx, session.LocateRequest{Lat: &cmd.Lat, Lng: &cmd.Lng})
	if err != nil {
		return err
	}
	if res.Quadra == nil {
		return fmt.Errorf("no loaded quadra contains %v,%v", cmd.Lat, cmd.Lng)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Quadra)
}

func runNormalize(out, errOut io.Writer, value string) error {
	sel, bad := selection.Parse(value)
	for _, b := range bad {
		fmt.Fprintf(errOut, "dropped malformed key %q\n", b)
	}
	_, err := fmt.Fprintln(out, sel.String())
	return err
}
