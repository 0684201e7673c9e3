// Package session keeps one contact workflow per visitor, keyed by a
// cookie, and tears idle ones down.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Zachkp/portfolio/internal/contact"
	"github.com/google/uuid"
)

// Session is one visit: its workflow plus the notices waiting to be shown.
type Session struct {
	ID       string
	Workflow *contact.Workflow

	mu       sync.Mutex
	notices  []string
	lastSeen time.Time

	// used orders sessions by recency; guarded by the registry lock.
	used uint64
}

// Notify queues the failure notice; it is shown once by TakeNotices.
func (s *Session) Notify(err *contact.DispatchError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, err.UserMessage())
}

// TakeNotices returns and clears the pending notices.
func (s *Session) TakeNotices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Factory builds the workflow for a new session; n receives its failure
// notices.
type Factory func(n contact.Notifier) *contact.Workflow

type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	uses     uint64

	factory Factory
	idle    time.Duration
	limit   int
	now     func() time.Time
	log     *slog.Logger
}

// NewRegistry builds an empty registry. Sessions idle for longer than idle
// are swept; at most limit are kept, a non-positive limit meaning 10000.
func NewRegistry(factory Factory, idle time.Duration, limit int, log *slog.Logger) *Registry {
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	if limit <= 0 {
		limit = 10000
	}
	return &Registry{
		sessions: make(map[string]*Session),
		factory:  factory,
		idle:     idle,
		limit:    limit,
		now:      time.Now,
		log:      log.With("component", "sessions"),
	}
}

// GetOrCreate returns the live session for id, or a fresh one with a new
// id when id is unknown or empty. created reports which happened.
func (r *Registry) GetOrCreate(id string) (s *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if s, ok := r.sessions[id]; ok && id != "" {
		r.use(s, now)
		return s, false
	}

	for len(r.sessions) >= r.limit {
		r.evictOldest(now)
	}

	s = &Session{ID: uuid.NewString()}
	s.Workflow = r.factory(s)
	r.use(s, now)
	r.sessions[s.ID] = s
	return s, true
}

// use marks s as the most recently seen session. mu must be held.
func (r *Registry) use(s *Session, now time.Time) {
	r.uses++
	s.used = r.uses
	s.touch(now)
}

// evictOldest closes the least recently seen session. mu must be held.
func (r *Registry) evictOldest(now time.Time) {
	var oldest *Session
	for _, s := range r.sessions {
		if oldest == nil || s.used < oldest.used {
			oldest = s
		}
	}
	if oldest == nil {
		return
	}
	oldest.Workflow.Close()
	delete(r.sessions, oldest.ID)
	r.log.Debug("evicted session at capacity", "idle", oldest.idleSince(now))
}

// Get returns the session for id without creating one.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		r.use(s, r.now())
	}
	return s, ok
}

// Sweep closes and forgets sessions idle for longer than the idle timeout.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for id, s := range r.sessions {
		if s.idleSince(now) > r.idle {
			s.Workflow.Close()
			delete(r.sessions, id)
			n++
		}
	}
	if n > 0 {
		r.log.Debug("expired idle sessions", "count", n)
	}
	return n
}

// CloseAll tears every session down.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.Workflow.Close()
		delete(r.sessions, id)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run sweeps periodically until ctx is done, then closes every session.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
