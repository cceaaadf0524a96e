package geocode

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrSuperseded = errors.New("superseded")

// Debouncer lets only the latest of a burst of calls through.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	seq     uint64
	pending chan struct{}
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Wait blocks for the debounce delay. It returns ErrSuperseded as soon as a
// newer call arrives. The returned ticket can be checked with Latest after
// the debounced work finishes.
func (d *Debouncer) Wait(ctx context.Context) (uint64, error) {
	d.mu.Lock()
	if d.pending != nil {
		close(d.pending)
	}
	ch := make(chan struct{})
	d.pending = ch
	d.seq++
	ticket := d.seq
	d.mu.Unlock()

	if d.delay > 0 {
		t := time.NewTimer(d.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ch:
			return ticket, ErrSuperseded
		case <-ctx.Done():
			return ticket, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seq != ticket {
		return ticket, ErrSuperseded
	}
	d.pending = nil
	return ticket, nil
}

// Latest reports whether no call started after ticket.
func (d *Debouncer) Latest(ticket uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq == ticket
}
