// Package logger builds the process zerolog logger and carries request,
// session and area identifiers through context.
package logger

import (
	"context"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Config struct {
	Level     string
	Console   bool
	SampleN   int
	Service   string
	Component string
}

type ctxKey string

// context fields, in the order they appear on a log line
var ctxFields = []ctxKey{"request_id", "session_id", "area_id", "component"}

func with(ctx context.Context, k ctxKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, k, v)
}

// WithRequestID tags ctx with reqID, minting one when empty.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return with(ctx, "request_id", reqID)
}

func WithSession(ctx context.Context, id string) context.Context {
	return with(ctx, "session_id", id)
}

func WithArea(ctx context.Context, areaID string) context.Context {
	return with(ctx, "area_id", areaID)
}

func WithComponent(ctx context.Context, component string) context.Context {
	return with(ctx, "component", component)
}

func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	base := zerolog.New(out)
	if cfg.SampleN > 1 {
		n := uint32(math.MaxUint32)
		if uint64(cfg.SampleN) < math.MaxUint32 {
			n = uint32(cfg.SampleN)
		}
		base = base.Sample(&zerolog.BasicSampler{N: n})
	}

	zc := base.With().Timestamp()
	if cfg.Service != "" {
		zc = zc.Str("service", cfg.Service)
	}
	if cfg.Component != "" {
		zc = zc.Str("component", cfg.Component)
	}
	return zc.Logger()
}

// FromContext returns a child of parent carrying the identifiers found in ctx.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	base := zerolog.New(io.Discard)
	if parent != nil {
		base = *parent
	}
	zc := base.With()
	for _, k := range ctxFields {
		if s, ok := ctx.Value(k).(string); ok && s != "" {
			zc = zc.Str(string(k), s)
		}
	}
	l := zc.Logger()
	return &l
}
