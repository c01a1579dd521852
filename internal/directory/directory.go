// Package directory holds the in-memory table of live conversational
// sessions and the per-identity exclusive scope serializing work on them.
package directory

import (
	"log/slog"
	"sync"
	"time"

	"github.com/madakixo/jayy-bot/internal/types"
)

// Directory maps each requester to at most one live session. All engine and
// bridge work for one requester runs inside With, so a user event and a
// settlement signal for the same identity can never interleave. Sessions are
// volatile; a restart loses them and the pending-unlock path recovers paid
// progress.
type Directory struct {
	mu       sync.Mutex
	sessions map[types.RequesterID]*types.Session
	locks    map[types.RequesterID]*sync.Mutex

	idleTTL time.Duration
}

// New creates an empty Directory. Sessions in states before AwaitingPayment
// are evicted after idleTTL of inactivity.
func New(idleTTL time.Duration) *Directory {
	return &Directory{
		sessions: make(map[types.RequesterID]*types.Session),
		locks:    make(map[types.RequesterID]*sync.Mutex),
		idleTTL:  idleTTL,
	}
}

func (d *Directory) lockFor(id types.RequesterID) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[id]
	if !ok {
		l = &sync.Mutex{}
		d.locks[id] = l
	}
	return l
}

// With runs fn under the requester's exclusive scope. fn receives the live
// session (nil if none) and returns the session to keep; returning nil
// removes it. A returned session always has its Requester and activity
// timestamps maintained here.
func (d *Directory) With(id types.RequesterID, fn func(*types.Session) *types.Session) {
	l := d.lockFor(id)
	l.Lock()
	defer l.Unlock()

	d.mu.Lock()
	current := d.sessions[id]
	d.mu.Unlock()

	next := fn(current)

	d.mu.Lock()
	defer d.mu.Unlock()
	if next == nil {
		delete(d.sessions, id)
		return
	}
	next.Requester = id
	now := time.Now()
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.LastActivityAt = now
	d.sessions[id] = next
}

// Snapshot returns copies of all live sessions. Callers must not treat the
// copies as live; mutations go through With.
func (d *Directory) Snapshot() []types.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, *s)
	}
	return out
}

// Len returns the number of live sessions.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

// Sweep evicts sessions idle past the TTL. Sessions awaiting payment are
// exempt: the gateway's own checkout expiry governs those, and a settlement
// arriving after eviction would land in the pending-unlock path anyway.
// Eviction is pure removal; durable stores are never touched.
func (d *Directory) Sweep(now time.Time) int {
	idle := make([]types.RequesterID, 0)
	d.mu.Lock()
	for id, s := range d.sessions {
		if s.State == types.StateAwaitingPayment {
			continue
		}
		if now.Sub(s.LastActivityAt) > d.idleTTL {
			idle = append(idle, id)
		}
	}
	d.mu.Unlock()

	evicted := 0
	for _, id := range idle {
		d.With(id, func(s *types.Session) *types.Session {
			if s == nil || s.State == types.StateAwaitingPayment {
				return s
			}
			if now.Sub(s.LastActivityAt) > d.idleTTL {
				slog.Info("evicting idle session", "requester", id, "state", s.State)
				evicted++
				return nil
			}
			return s
		})
	}
	return evicted
}
