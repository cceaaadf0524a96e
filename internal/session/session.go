// Package session owns one interactive map-selection lifecycle: the areas it
// loaded, the selected quadras, the property filter and the viewport.
//
// All selection state is replaced, never mutated in place, so snapshots handed
// to printing or HTTP encoding never tear.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/quadra-map/internal/arealoader"
	"github.com/mohammed-shakir/quadra-map/internal/core/config"
	"github.com/mohammed-shakir/quadra-map/internal/core/observability"
	"github.com/mohammed-shakir/quadra-map/internal/geo"
	"github.com/mohammed-shakir/quadra-map/internal/geocode"
	"github.com/mohammed-shakir/quadra-map/internal/index"
	"github.com/mohammed-shakir/quadra-map/internal/printlayout"
	"github.com/mohammed-shakir/quadra-map/internal/quadra"
	"github.com/mohammed-shakir/quadra-map/internal/selection"
	"github.com/mohammed-shakir/quadra-map/internal/sharestate"
	"github.com/mohammed-shakir/quadra-map/internal/spatial"
)

var (
	ErrReadOnly = errors.New("session is read-only")
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("session closed")
	ErrInvalid  = errors.New("invalid request")
)

const maxRadiusMeters = 5000

type Geocoder interface {
	Search(ctx context.Context, q string) ([]geocode.Place, error)
	Reverse(ctx context.Context, pt orb.Point) (string, error)
}

type Saved struct {
	SessionID string    `json:"session_id"`
	Value     string    `json:"value"`
	Count     int       `json:"count"`
	At        time.Time `json:"ts"`
}

type SaveListener interface {
	SelectionSaved(ctx context.Context, s Saved)
}

type Settings struct {
	PropertyFields []string
	Palette        []string
	LabelMinZoom   float64
	DefaultCenter  sharestate.LatLng
	DefaultZoom    float64
	RadiusMeters   float64
	H3Res          int
	SearchDebounce time.Duration
}

func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		PropertyFields: cfg.PropertyFields,
		Palette:        cfg.AreaPalette,
		LabelMinZoom:   cfg.LabelMinZoom,
		DefaultCenter:  sharestate.LatLng{Lat: cfg.DefaultCenterLat, Lng: cfg.DefaultCenterLng},
		DefaultZoom:    cfg.DefaultZoom,
		RadiusMeters:   cfg.RadiusMeters,
		H3Res:          cfg.HitTestH3Res,
		SearchDebounce: cfg.SearchDebounce,
	}
}

type Deps struct {
	Settings Settings
	Fetcher  arealoader.Fetcher
	Geocoder Geocoder
	Saved    SaveListener
	Logger   *slog.Logger
}

type Options struct {
	AreaIDs  []string `json:"areaIds"`
	Value    string   `json:"value"`
	ReadOnly bool     `json:"readOnly"`
}

type Viewport struct {
	Center sharestate.LatLng `json:"center"`
	Zoom   float64           `json:"zoom"`
}

func (v Viewport) validate() error {
	switch {
	case v.Zoom < 0 || v.Zoom > 22:
		return fmt.Errorf("%w: zoom %v out of range", ErrInvalid, v.Zoom)
	case v.Center.Lat < -90 || v.Center.Lat > 90:
		return fmt.Errorf("%w: lat %v out of range", ErrInvalid, v.Center.Lat)
	case v.Center.Lng < -180 || v.Center.Lng > 180:
		return fmt.Errorf("%w: lng %v out of range", ErrInvalid, v.Center.Lng)
	}
	return nil
}

type view struct {
	version uint64
	ix      *index.Index
	hits    *spatial.HitTester
}

type Session struct {
	id       string
	readOnly bool
	st       Settings
	loader   *arealoader.Loader
	geocoder Geocoder
	saved    SaveListener
	debounce *geocode.Debouncer
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	created  time.Time

	mu       sync.Mutex
	closed   bool
	sel      selection.Set
	filter   index.Filter
	viewport Viewport
	ordinals map[string]int
	nextOrd  int
	cur      *view
}

func newSession(parent context.Context, id string, deps Deps, opts Options) (*Session, []string, error) {
	st := deps.Settings
	vp := Viewport{Center: st.DefaultCenter, Zoom: st.DefaultZoom}
	if err := vp.validate(); err != nil {
		return nil, nil, err
	}
	for _, a := range opts.AreaIDs {
		if !quadra.ValidAreaID(a) {
			return nil, nil, fmt.Errorf("%w: area id %q", ErrInvalid, a)
		}
	}

	lg := deps.Logger
	if lg == nil {
		lg = slog.Default()
	}
	lg = lg.With("session_id", id)

	sel, bad := selection.Parse(opts.Value)
	if len(bad) > 0 {
		lg.Warn("dropped malformed quadra keys", "keys", bad)
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:       id,
		readOnly: opts.ReadOnly,
		st:       st,
		loader:   arealoader.New(ctx, deps.Fetcher, st.PropertyFields, lg),
		geocoder: deps.Geocoder,
		saved:    deps.Saved,
		debounce: geocode.NewDebouncer(st.SearchDebounce),
		logger:   lg,
		ctx:      ctx,
		cancel:   cancel,
		created:  time.Now(),
		sel:      sel,
		filter:   index.NewFilter(st.PropertyFields),
		viewport: vp,
		ordinals: make(map[string]int),
	}

	// seed from the explicit ids first, then from areas implied by the value
	seed := append(append([]string(nil), opts.AreaIDs...), sel.AreaIDs()...)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range seed {
		if _, err := s.ensureLocked(a); err != nil {
			cancel()
			return nil, nil, err
		}
	}
	return s, bad, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) ensureLocked(areaID string) (bool, error) {
	started, err := s.loader.Ensure(areaID)
	switch {
	case errors.Is(err, arealoader.ErrInvalidAreaID):
		return false, fmt.Errorf("%w: %v", ErrInvalid, err)
	case errors.Is(err, arealoader.ErrClosed):
		return false, ErrClosed
	case err != nil:
		return false, err
	}
	if _, ok := s.ordinals[areaID]; !ok {
		s.ordinals[areaID] = s.nextOrd
		s.nextOrd++
	}
	return started, nil
}

func (s *Session) checkLocked(mutating bool) error {
	if s.closed {
		return ErrClosed
	}
	if mutating && s.readOnly {
		return ErrReadOnly
	}
	return nil
}

// viewLocked rebuilds the index whenever the loader reports a change.
func (s *Session) viewLocked() *view {
	v := s.loader.Version()
	if s.cur != nil && s.cur.version == v {
		return s.cur
	}
	ix := index.Build(s.loader.Areas())
	s.cur = &view{
		version: v,
		ix:      ix,
		hits:    spatial.NewHitTester(ix.Quadras(), s.st.H3Res),
	}
	return s.cur
}

// AddArea queues areaID for loading.
func (s *Session) AddArea(areaID string) (arealoader.AreaState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(true); err != nil {
		return arealoader.AreaState{}, err
	}
	if _, err := s.ensureLocked(areaID); err != nil {
		return arealoader.AreaState{}, err
	}
	st, _ := s.loader.State(areaID)
	return st, nil
}

// RemoveArea unloads areaID and drops every selected key of that area.
func (s *Session) RemoveArea(areaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(true); err != nil {
		return err
	}
	if !s.loader.Remove(areaID) {
		return fmt.Errorf("%w: area %s", ErrNotFound, areaID)
	}
	s.sel = s.sel.RemoveArea(areaID)
	return nil
}

// Toggle flips membership of key. Selecting requires the quadra to be loaded;
// deselecting a stale key is always allowed.
func (s *Session) Toggle(key string) (bool, error) {
	k, err := quadra.ParseKey(key)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(true); err != nil {
		return false, err
	}
	if !s.sel.Has(k) {
		if _, ok := s.viewLocked().ix.Lookup(k); !ok {
			return false, fmt.Errorf("%w: quadra %s", ErrNotFound, k)
		}
	}
	s.sel = s.sel.Toggle(k)
	return s.sel.Has(k), nil
}

// RadiusSelect adds every loaded quadra whose centroid lies within meters of
// center. A non-positive radius uses the configured default.
func (s *Session) RadiusSelect(center sharestate.LatLng, meters float64) ([]quadra.Key, error) {
	if meters <= 0 {
		meters = s.st.RadiusMeters
	}
	if meters > maxRadiusMeters {
		return nil, fmt.Errorf("%w: radius %vm exceeds %dm", ErrInvalid, meters, maxRadiusMeters)
	}
	if err := (Viewport{Center: center}).validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(true); err != nil {
		return nil, err
	}
	within := spatial.WithinRadius(s.viewLocked().ix.Quadras(), orb.Point{center.Lng, center.Lat}, meters)
	var added []quadra.Key
	for _, q := range within {
		if !s.sel.Has(q.Key) {
			added = append(added, q.Key)
		}
	}
	s.sel = s.sel.Add(added...)
	quadra.Sort(added)
	return added, nil
}

type Hit struct {
	Key    string         `json:"key"`
	AreaID string         `json:"areaId"`
	Title  string         `json:"title"`
	Props  map[string]any `json:"properties,omitempty"`
}

func hitOf(q *geo.Quadra) *Hit {
	return &Hit{Key: q.Key.String(), AreaID: q.Key.Area, Title: q.Title, Props: q.Props}
}

type LocateRequest struct {
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	ErrorCode int      `json:"errorCode"`
}

type LocateResult struct {
	Point   sharestate.LatLng `json:"point"`
	Quadra  *Hit              `json:"quadra"`
	Address string            `json:"address,omitempty"`
}

// Locate reports the first loaded quadra containing the position. A browser
// geolocation error code is mapped to its user-facing error instead.
func (s *Session) Locate(ctx context.Context, req LocateRequest) (LocateResult, error) {
	if req.ErrorCode != 0 {
		return LocateResult{}, geocode.PositionError(req.ErrorCode)
	}
	if req.Lat == nil || req.Lng == nil {
		return LocateResult{}, fmt.Errorf("%w: lat and lng are required", ErrInvalid)
	}
	pt := sharestate.LatLng{Lat: *req.Lat, Lng: *req.Lng}
	if err := (Viewport{Center: pt}).validate(); err != nil {
		return LocateResult{}, err
	}

	s.mu.Lock()
	if err := s.checkLocked(false); err != nil {
		s.mu.Unlock()
		return LocateResult{}, err
	}
	hits := s.viewLocked().hits
	s.mu.Unlock()

	res := LocateResult{Point: pt}
	q, ok := hits.Locate(orb.Point{pt.Lng, pt.Lat})
	observability.ObserveHitTest("locate", ok)
	if ok {
		res.Quadra = hitOf(q)
	}
	if s.geocoder != nil {
		rctx, cancel := s.bind(ctx)
		defer cancel()
		addr, err := s.geocoder.Reverse(rctx, orb.Point{pt.Lng, pt.Lat})
		if err != nil {
			s.logger.Warn("reverse geocode failed", "err", err)
		} else {
			res.Address = addr
		}
	}
	return res, nil
}

type SearchHit struct {
	Place  geocode.Place `json:"place"`
	Quadra *Hit          `json:"quadra"`
}

// Search geocodes q and hit-tests each result. Calls arriving within the
// debounce window supersede earlier ones, which fail with
// geocode.ErrSuperseded.
func (s *Session) Search(ctx context.Context, q string) ([]SearchHit, error) {
	if s.geocoder == nil {
		return nil, fmt.Errorf("%w: address search disabled", ErrNotFound)
	}
	s.mu.Lock()
	err := s.checkLocked(false)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.bind(ctx)
	defer cancel()
	ticket, err := s.debounce.Wait(ctx)
	if err != nil {
		return nil, err
	}
	places, err := s.geocoder.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if !s.debounce.Latest(ticket) {
		return nil, geocode.ErrSuperseded
	}

	s.mu.Lock()
	hits := s.viewLocked().hits
	s.mu.Unlock()

	out := make([]SearchHit, 0, len(places))
	for _, p := range places {
		h := SearchHit{Place: p}
		if q, ok := hits.Locate(p.Point); ok {
			h.Quadra = hitOf(q)
		}
		observability.ObserveHitTest("search", h.Quadra != nil)
		out = append(out, h)
	}
	return out, nil
}

// bind derives a context that is also cancelled when the session closes.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// SetViewport stores the map view and reports whether block labels show.
func (s *Session) SetViewport(vp Viewport) (bool, error) {
	if err := vp.validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(false); err != nil {
		return false, err
	}
	s.viewport = vp
	return s.labelsVisibleLocked(), nil
}

func (s *Session) labelsVisibleLocked() bool { return s.viewport.Zoom >= s.st.LabelMinZoom }

// SetFilter replaces the set of property fields counted toward total imóveis.
func (s *Session) SetFilter(fields []string) (index.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(false); err != nil {
		return index.Summary{}, err
	}
	f, err := s.filter.With(fields)
	if err != nil {
		return index.Summary{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	s.filter = f
	return s.viewLocked().ix.Aggregate(s.sel, s.filter), nil
}

// Share snapshots the areas that are loaded or loading, the selection and the
// viewport.
func (s *Session) Share() (sharestate.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(false); err != nil {
		return sharestate.State{}, err
	}
	var ids []string
	for _, st := range s.loader.States() {
		if st.Status != arealoader.StatusError {
			ids = append(ids, st.AreaID)
		}
	}
	return sharestate.State{
		LoadedAreaIDs:     ids,
		SelectedQuadraIDs: s.sel.Strings(),
		Center:            s.viewport.Center,
		Zoom:              s.viewport.Zoom,
	}, nil
}

// Import validates raw completely before applying it: listed areas are
// queued, the selection is replaced and the viewport moves.
func (s *Session) Import(raw []byte) error {
	st, err := sharestate.Decode(raw)
	if err != nil {
		return err
	}
	vp := Viewport{Center: st.Center, Zoom: st.Zoom}
	if err := vp.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(true); err != nil {
		return err
	}
	for _, a := range st.LoadedAreaIDs {
		if _, err := s.ensureLocked(a); err != nil {
			return err
		}
	}
	s.sel = selection.New(st.Keys()...)
	s.viewport = vp
	return nil
}

// Save returns the sorted comma-joined selection and notifies listeners.
func (s *Session) Save(ctx context.Context) (string, error) {
	s.mu.Lock()
	if err := s.checkLocked(true); err != nil {
		s.mu.Unlock()
		return "", err
	}
	sel := s.sel
	s.mu.Unlock()

	value := sel.String()
	if s.saved != nil {
		s.saved.SelectionSaved(ctx, Saved{SessionID: s.id, Value: value, Count: sel.Len(), At: time.Now().UTC()})
	}
	return value, nil
}

type AreaView struct {
	arealoader.AreaState
	Ordinal int    `json:"ordinal"`
	Color   string `json:"color"`
	Pattern int    `json:"pattern"`
}

type FilterView struct {
	Known  []string `json:"known"`
	Active []string `json:"active"`
}

type Snapshot struct {
	ID            string        `json:"id"`
	ReadOnly      bool          `json:"readOnly"`
	Created       time.Time     `json:"created"`
	Areas         []AreaView    `json:"areas"`
	Selected      []string      `json:"selected"`
	Value         string        `json:"value"`
	Viewport      Viewport      `json:"viewport"`
	LabelsVisible bool          `json:"labelsVisible"`
	Filter        FilterView    `json:"filter"`
	Summary       index.Summary `json:"summary"`
}

func (s *Session) styleLocked(areaID string) (int, string, int) {
	ord := s.ordinals[areaID]
	color := ""
	if n := len(s.st.Palette); n > 0 {
		color = s.st.Palette[ord%n]
	}
	return ord, color, ord % printlayout.PatternCount
}

func (s *Session) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(false); err != nil {
		return Snapshot{}, err
	}
	states := s.loader.States()
	areas := make([]AreaView, 0, len(states))
	for _, st := range states {
		ord, color, pat := s.styleLocked(st.AreaID)
		areas = append(areas, AreaView{AreaState: st, Ordinal: ord, Color: color, Pattern: pat})
	}
	return Snapshot{
		ID:            s.id,
		ReadOnly:      s.readOnly,
		Created:       s.created,
		Areas:         areas,
		Selected:      s.sel.Strings(),
		Value:         s.sel.String(),
		Viewport:      s.viewport,
		LabelsVisible: s.labelsVisibleLocked(),
		Filter:        FilterView{Known: s.filter.Known(), Active: s.filter.Active()},
		Summary:       s.viewLocked().ix.Aggregate(s.sel, s.filter),
	}, nil
}

// Selection returns the current immutable selection.
func (s *Session) Selection() selection.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel
}

// WaitSettled blocks until no area of the session is loading.
func (s *Session) WaitSettled(ctx context.Context) error {
	wctx, cancel := s.bind(ctx)
	defer cancel()
	err := s.loader.WaitSettled(wctx)
	if ctx.Err() != nil {
		return err
	}
	if s.ctx.Err() != nil || errors.Is(err, arealoader.ErrClosed) {
		// closed under the caller; whatever settled is not printable
		return ErrClosed
	}
	return err
}

// PrintInput captures what the print layout draws.
func (s *Session) PrintInput() printlayout.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.viewLocked()
	in := printlayout.Input{
		Quadras:  v.ix.Quadras(),
		Selected: s.sel,
		Center:   orb.Point{s.viewport.Center.Lng, s.viewport.Center.Lat},
		Zoom:     s.viewport.Zoom,
		Summary:  v.ix.Aggregate(s.sel, s.filter),
		Labels:   s.labelsVisibleLocked(),
	}
	for _, id := range v.ix.AreaIDs() {
		_, color, pat := s.styleLocked(id)
		in.Areas = append(in.Areas, printlayout.AreaStyle{ID: id, Color: color, Pattern: pat})
	}
	return in
}

// Close cancels in-flight work. It is safe to call more than once and reports
// whether this call closed the session.
func (s *Session) Close() bool {
	if !s.shut() {
		return false
	}
	s.loader.Close()
	return true
}

// shut marks the session closed and cancels its fetches without waiting for
// them to exit.
func (s *Session) shut() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	return true
}
