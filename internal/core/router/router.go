// Package router exposes map sessions and the quadra field list over HTTP.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/quadra-map/internal/arealoader"
	"github.com/mohammed-shakir/quadra-map/internal/core/observability"
	"github.com/mohammed-shakir/quadra-map/internal/fieldlist"
	"github.com/mohammed-shakir/quadra-map/internal/geocode"
	"github.com/mohammed-shakir/quadra-map/internal/printlayout"
	"github.com/mohammed-shakir/quadra-map/internal/session"
	"github.com/mohammed-shakir/quadra-map/internal/sharestate"
)

const maxBody = 1 << 20

type API struct {
	Sessions *session.Store
	Fields   *fieldlist.List
	Printer  *printlayout.Printer
	Logger   *slog.Logger
}

// Mount registers every API route on r.
func (a *API) Mount(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(instrument)

		r.Post("/sessions", a.openSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", a.getSession)
			r.Delete("/", a.closeSession)
			r.Post("/areas", a.addArea)
			r.Delete("/areas/{area}", a.removeArea)
			r.Post("/toggle", a.toggle)
			r.Post("/radius", a.radius)
			r.Post("/locate", a.locate)
			r.Get("/search", a.search)
			r.Put("/viewport", a.viewport)
			r.Put("/filter", a.filter)
			r.Get("/share", a.share)
			r.Post("/import", a.importState)
			r.Post("/save", a.save)
			r.Post("/print", a.print)
		})

		r.Get("/quadras/chips", a.chips)
		r.Post("/quadras/remove", a.removeChip)
		r.Get("/quadras/{key}", a.detail)
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// instrument records request metrics by route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	})
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// classify maps domain errors to a status and a stable code.
func classify(err error) (int, string) {
	var se *arealoader.UpstreamStatusError
	switch {
	case errors.Is(err, session.ErrReadOnly), errors.Is(err, fieldlist.ErrReadOnly):
		return http.StatusConflict, "read_only"
	case errors.Is(err, session.ErrNotFound), errors.Is(err, fieldlist.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrClosed), errors.Is(err, arealoader.ErrClosed):
		return http.StatusGone, "session_closed"
	case errors.Is(err, session.ErrInvalid),
		errors.Is(err, sharestate.ErrInvalid),
		errors.Is(err, fieldlist.ErrInvalid),
		errors.Is(err, arealoader.ErrInvalidAreaID):
		return http.StatusUnprocessableEntity, "invalid"
	case errors.Is(err, geocode.ErrPermissionDenied),
		errors.Is(err, geocode.ErrPositionUnavailable),
		errors.Is(err, geocode.ErrPositionTimeout),
		errors.Is(err, geocode.ErrPositionUnknown):
		return http.StatusUnprocessableEntity, "geolocation"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &se) && se.Code == http.StatusNotFound:
		return http.StatusNotFound, "not_found"
	}
	return http.StatusBadGateway, "upstream"
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		// client went away
		return
	}
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusBadGateway || status == http.StatusGatewayTimeout {
		a.Logger.WarnContext(r.Context(), "upstream failure", "path", r.URL.Path, "err", err)
		msg = "upstream service unavailable"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "bad_request"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body; an empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
