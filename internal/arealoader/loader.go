// Package arealoader fetches area feature collections for one map session.
//
// Each area id moves through loading -> loaded | error. Requests for an id that
// is loading or loaded are not re-issued; ids in error can be retried. Results
// that arrive after the area was removed, re-requested or the loader closed are
// dropped.
package arealoader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mohammed-shakir/quadra-map/internal/core/observability"
	"github.com/mohammed-shakir/quadra-map/internal/geo"
	"github.com/mohammed-shakir/quadra-map/internal/quadra"
)

var (
	ErrClosed        = errors.New("area loader closed")
	ErrInvalidAreaID = errors.New("invalid area id")
)

// FailedMessage is the only error text exposed for a failed area.
const FailedMessage = "failed to load area"

type Status string

const (
	StatusLoading Status = "loading"
	StatusLoaded  Status = "loaded"
	StatusError   Status = "error"
)

type AreaState struct {
	AreaID   string `json:"areaId"`
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	Features int    `json:"features"`
}

type entry struct {
	token  uint64
	status Status
	area   *geo.Area
	err    error
	cancel context.CancelFunc
	done   chan struct{}
}

type Loader struct {
	fetch  Fetcher
	fields []string
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	next    uint64
	version uint64
	closed  bool
	wg      sync.WaitGroup
}

// New binds the loader to parent; cancelling parent has the same effect as Close.
func New(parent context.Context, fetch Fetcher, countFields []string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Loader{
		fetch:   fetch,
		fields:  append([]string(nil), countFields...),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
	}
}

// Ensure starts loading areaID unless it is already loading or loaded.
// It reports whether a fetch was issued.
func (l *Loader) Ensure(areaID string) (bool, error) {
	if !quadra.ValidAreaID(areaID) {
		return false, fmt.Errorf("%w: %q", ErrInvalidAreaID, areaID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.ctx.Err() != nil {
		return false, ErrClosed
	}
	if e, ok := l.entries[areaID]; ok && e.status != StatusError {
		observability.ObserveAreaLoad(observability.AreaDeduped)
		return false, nil
	}

	l.next++
	ctx, cancel := context.WithCancel(l.ctx)
	e := &entry{
		token:  l.next,
		status: StatusLoading,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if _, ok := l.entries[areaID]; !ok {
		l.order = append(l.order, areaID)
	}
	l.entries[areaID] = e
	l.version++

	l.wg.Add(1)
	go l.load(ctx, areaID, e)
	return true, nil
}

func (l *Loader) load(ctx context.Context, areaID string, e *entry) {
	defer l.wg.Done()
	defer close(e.done)
	defer e.cancel()

	area, err := l.fetchArea(ctx, areaID)

	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.entries[areaID]
	if l.closed || !ok || cur.token != e.token {
		observability.ObserveAreaLoad(observability.AreaCancelled)
		return
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			observability.ObserveAreaLoad(observability.AreaCancelled)
		} else {
			observability.ObserveAreaLoad(observability.AreaFailed)
		}
		l.logger.Warn("area load failed", "area_id", areaID, "err", err)
		e.status, e.err = StatusError, err
	} else {
		observability.ObserveAreaLoad(observability.AreaLoaded)
		e.status, e.area = StatusLoaded, area
	}
	l.version++
}

func (l *Loader) fetchArea(ctx context.Context, areaID string) (*geo.Area, error) {
	raw, err := l.fetch.Fetch(ctx, areaID)
	if err != nil {
		return nil, err
	}
	area, rejected, err := geo.ParseArea(areaID, raw, l.fields)
	if err != nil {
		return nil, err
	}
	for _, r := range rejected {
		l.logger.Warn("area feature rejected", "area_id", areaID, "index", r.Index, "reason", r.Reason)
	}
	return area, nil
}

// Remove forgets areaID and cancels its fetch if one is in flight.
func (l *Loader) Remove(areaID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[areaID]
	if !ok {
		return false
	}
	e.cancel()
	delete(l.entries, areaID)
	for i, id := range l.order {
		if id == areaID {
			l.order = append(l.order[:i:i], l.order[i+1:]...)
			break
		}
	}
	l.version++
	return true
}

// Areas returns the loaded areas in first-request order.
func (l *Loader) Areas() []*geo.Area {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*geo.Area, 0, len(l.order))
	for _, id := range l.order {
		if e := l.entries[id]; e.status == StatusLoaded {
			out = append(out, e.area)
		}
	}
	return out
}

// States lists every tracked area in request order.
func (l *Loader) States() []AreaState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AreaState, 0, len(l.order))
	for _, id := range l.order {
		e := l.entries[id]
		st := AreaState{AreaID: id, Status: e.status}
		switch e.status {
		case StatusLoaded:
			st.Features = e.area.Len()
		case StatusError:
			st.Error = FailedMessage
		}
		out = append(out, st)
	}
	return out
}

func (l *Loader) State(areaID string) (AreaState, bool) {
	for _, st := range l.States() {
		if st.AreaID == areaID {
			return st, true
		}
	}
	return AreaState{}, false
}

// Version changes whenever the set of areas or any status changes.
func (l *Loader) Version() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// WaitSettled blocks until no tracked area is loading.
func (l *Loader) WaitSettled(ctx context.Context) error {
	for {
		l.mu.Lock()
		var pending []chan struct{}
		for _, e := range l.entries {
			if e.status == StatusLoading {
				pending = append(pending, e.done)
			}
		}
		closed := l.closed
		l.mu.Unlock()

		if len(pending) == 0 {
			return nil
		}
		if closed {
			return ErrClosed
		}
		for _, ch := range pending {
			select {
			case <-ch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Close cancels in-flight fetches and waits for their goroutines to exit.
func (l *Loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()
}
