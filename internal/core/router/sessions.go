package router

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/quadra-map/internal/geocode"
	"github.com/mohammed-shakir/quadra-map/internal/logger"
	"github.com/mohammed-shakir/quadra-map/internal/session"
	"github.com/mohammed-shakir/quadra-map/internal/sharestate"
)

// withSession resolves {id} or answers 404.
func (a *API) withSession(w http.ResponseWriter, r *http.Request) (*session.Session, *http.Request, bool) {
	id := chi.URLParam(r, "id")
	s, ok := a.Sessions.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "session not found", Code: "not_found"})
		return nil, r, false
	}
	return s, r.WithContext(logger.WithSession(r.Context(), id)), true
}

type openResponse struct {
	session.Snapshot
	Dropped []string `json:"dropped,omitempty"`
}

func (a *API) openSession(w http.ResponseWriter, r *http.Request) {
	var opts session.Options
	if err := decodeJSON(r, &opts); err != nil {
		badRequest(w, err)
		return
	}
	s, dropped, err := a.Sessions.Open(opts)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	snap, err := s.Snapshot()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+s.ID())
	writeJSON(w, http.StatusCreated, openResponse{Snapshot: snap, Dropped: dropped})
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	s, r, ok := a.withSession(w, r)
	if !ok {
		return
	}
	snap, err := s.Snapshot()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) closeSession(w http.ResponseWriter, r *http.Request) {
	if !a.Sessions.Close(chi.URLParam(r, "id")) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "session not found", Code: "not_found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) addArea(w http.ResponseWriter, r *http.Request) {
	s, r, ok := a.withSession(w, r)
	if !ok {
		return
	}
	var req struct {
		AreaID string `json:"areaId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	st, err := s.AddArea(req.AreaID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (a *API) removeArea(w http.ResponseWriter, r *http.Request) {
	s, r, ok := a.withSession(w, r)
	if !ok {
		return
	}
	if err := s.RemoveArea(chi.URLParam(r, "area")); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.snapshot(w, r, s)
}

func (a *API) snapshot(w http.ResponseWriter, r *http.Request, s *session.Session) {
	snap, err := s.Snapshot()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) toggle(w http.ResponseWriter, r *http.Request) {
	s, r, ok := a.withSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Key string `json:"key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if _, err := s.Toggle(req.Key); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.snapshot(w, r, s)
}

func (a *API) radius(w http.ResponseWriter, r *http.Request) {
	s, r, ok := a.withSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Lat          float64 `json:"lat"`
		Lng          float64 `json:"lng"`
		RadiusMeters float64 `json:"radiusMeters"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	added, err := s.RadiusSelect(sharestate.LatLng{Lat: req.Lat, Lng: req.Lng}, req.RadiusMeters)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	keys := make([]string, len(added))
	for i, k := range added {
		keys[i] = k.String()
	}
	snap, err := s.Snapshot()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Added   []string         `json:"added"`
		Session session.Snapshot `json:"session"`
	}{keys, snap})
}

func (a *API) locate(w http.ResponseWriter, r *http.Request) {
	s, r, ok := a.withSession(w, r)
	if !ok {
		return
	}
	var req session.LocateRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	res, err := s.Locate(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type searchResponse struct {
	Superseded bool                `json:"superseded"`
	Results    []session.SearchHit `json:"results"`
}

func (a *API) search(w http.ResponseWriter, r *http.Request) {
	s, r, ok := a.withSession(w, r)
	if !ok {
		return
	}
	hits, err := s.Search(r.Context(), r.URL.Query().Get("q"))
	switch {
	case errors.Is(err, geocode.ErrSuperseded):
		writeJSON(w, http.StatusOK, searchResponse{Superseded: true, Results: []session.SearchHit{}})
		return
	case err != nil:
		a.writeError(w, r, err)
		return
	}
	if hits == nil {
		hits = []session.SearchHit{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: hits})
}

func (a *API) viewport(w http.ResponseWriter, r *http.Request) {
	s, r, ok := a.withSession(w, r)
	if !ok {
		return
	}
	var vp session.Viewport
	if err := decodeJSON(r, &vp); err != nil {
		badRequest(w, err)
		return
	}
	labels, err := s.SetViewport(vp)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		LabelsVisible bool `json:"labelsVisible"`
	}{labels})
}

func (a *API) filter(w http.ResponseWriter, r *http.Request) {
	s, r, ok := a.withSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Fields []string `json:"fields"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	sum, err := s.SetFilter(req.Fields)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (a *API) share(w http.ResponseWriter, r *http.Request) {
	s, r, ok := a.withSession(w, r)
	if !ok {
		return
	}
	st, err := s.Share()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	b, err := sharestate.Encode(st)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	etag := sharestate.ETag(b)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (a *API) importState(w http.ResponseWriter, r *http.Request) {
	s, r, ok := a.withSession(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		badRequest(w, err)
		return
	}
	if err := s.Import(raw); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.snapshot(w, r, s)
}

func (a *API) save(w http.ResponseWriter, r *http.Request) {
	s, r, ok := a.withSession(w, r)
	if !ok {
		return
	}
	v, err := s.Save(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Value string `json:"value"`
	}{v})
}

func (a *API) print(w http.ResponseWriter, r *http.Request) {
	s, r, ok := a.withSession(w, r)
	if !ok {
		return
	}
	// fields absent from the body keep the configured defaults
	opts := a.Printer.Defaults
	if err := decodeJSON(r, &opts); err != nil {
		badRequest(w, err)
		return
	}
	res, err := a.Printer.Print(r.Context(), s, opts)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("X-Print-Partial", strconv.FormatBool(res.Partial))
	_, _ = w.Write(res.SVG)
}
