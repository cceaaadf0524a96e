package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mohammed-shakir/quadra-map/internal/core/observability"
)

// Store keeps open sessions in a size-bounded LRU with an idle TTL. A session
// pushed out by size or idleness is closed.
type Store struct {
	ctx  context.Context
	deps Deps
	lru  *expirable.LRU[string, *Session]

	draining sync.WaitGroup
}

func NewStore(ctx context.Context, deps Deps, max int, ttl time.Duration) *Store {
	if max <= 0 {
		max = 1024
	}
	s := &Store{ctx: ctx, deps: deps}
	s.lru = expirable.NewLRU[string, *Session](max, s.evicted, ttl)
	return s
}

// evicted runs under the LRU lock, so the wait for the session's fetch
// goroutines happens off it.
func (s *Store) evicted(_ string, sess *Session) {
	if !sess.shut() {
		return
	}
	observability.SessionClosed("evicted")
	sess.logger.Info("session evicted")
	s.draining.Add(1)
	go func() {
		defer s.draining.Done()
		sess.loader.Close()
	}()
}

// Open creates a session and returns it with any malformed keys that were
// dropped from opts.Value.
func (s *Store) Open(opts Options) (*Session, []string, error) {
	sess, dropped, err := newSession(s.ctx, uuid.NewString(), s.deps, opts)
	if err != nil {
		return nil, nil, err
	}
	s.lru.Add(sess.ID(), sess)
	observability.SessionOpened()
	sess.logger.Info("session opened", "read_only", opts.ReadOnly, "areas", len(opts.AreaIDs))
	return sess, dropped, nil
}

// Get returns an open session and restarts its idle timer.
func (s *Store) Get(id string) (*Session, bool) {
	sess, ok := s.lru.Get(id)
	if !ok {
		return nil, false
	}
	s.lru.Add(id, sess)
	return sess, true
}

func (s *Store) Close(id string) bool {
	sess, ok := s.lru.Peek(id)
	if !ok {
		return false
	}
	if sess.Close() {
		observability.SessionClosed("closed")
		sess.logger.Info("session closed")
	}
	s.lru.Remove(id)
	return true
}

func (s *Store) Len() int { return s.lru.Len() }

// CloseAll closes every session; used on shutdown.
func (s *Store) CloseAll() {
	s.lru.Purge()
	s.draining.Wait()
}
