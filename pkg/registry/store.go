// Package registry tracks per-peer session state for the UDP engine: a
// bounded map from peer address to Session, guarded by a mutex and swept
// on a timer for TASK_LIFETIME/FINALIZE_GRACE expiry.
package registry

import (
	"fmt"
	"sync"
	"time"
)

// ErrFull is returned by Insert when the registry is already at its
// configured session ceiling and the key is not already present.
var ErrFull = fmt.Errorf("registry: at session capacity")

// SweepStats summarizes the outcome of one Sweep call, for logging/metrics.
type SweepStats struct {
	Expired     int // AWAITING_ANSWER sessions past TASK_LIFETIME, dropped
	Finalized   int // FINALIZED sessions past FINALIZE_GRACE, dropped
	Retransmits []PeerKey
}

// slot pairs a PeerKey with its Session, so the store's single map can both
// look a session up by key and enumerate all live keys without a second
// index structure.
type slot struct {
	key  PeerKey
	sess Session
}

// Store is the peer registry: a mutex-guarded map of live sessions, bounded
// at a configured session ceiling. The UDP engine's dispatch loop is its
// only writer in normal operation; the mutex exists so a diagnostics
// goroutine can safely call Len/Keys concurrently.
type Store struct {
	mu   sync.Mutex
	live map[string]slot
	max  int
}

// NewStore builds a registry bounded at maxSessions concurrent peers.
func NewStore(maxSessions int) *Store {
	return &Store{
		live: make(map[string]slot, maxSessions),
		max:  maxSessions,
	}
}

// Lookup returns the session for key, if one exists.
func (s *Store) Lookup(key PeerKey) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.live[key.String()]
	if !ok {
		return Session{}, false
	}
	return sl.sess, true
}

// Insert creates a new session for key, refusing to do so if the registry
// is already at capacity. Inserting over an existing key behaves like Save.
func (s *Store) Insert(key PeerKey, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key.String()
	if _, exists := s.live[k]; !exists && len(s.live) >= s.max {
		return ErrFull
	}
	s.live[k] = slot{key: key, sess: sess}
	return nil
}

// Save overwrites the session for an already-registered key. Callers must
// have obtained key via a prior Insert (directly or via Keys).
func (s *Store) Save(key PeerKey, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[key.String()] = slot{key: key, sess: sess}
	return nil
}

// Erase removes a session entirely.
func (s *Store) Erase(key PeerKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, key.String())
}

// Keys returns a snapshot of all currently registered peer keys. The
// snapshot may be stale by the time the caller acts on it if another
// goroutine mutates the registry concurrently; the UDP engine's
// single-threaded dispatch loop is the only writer in practice, so callers
// there see a consistent view.
func (s *Store) Keys() []PeerKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PeerKey, 0, len(s.live))
	for _, sl := range s.live {
		out = append(out, sl.key)
	}
	return out
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Sweep walks every live session and evicts those past policy lifetime:
// AWAITING_ANSWER sessions older than taskLifetime, and FINALIZED sessions
// older than finalizeGrace past their FinalizedAt. It also reports the keys
// of AWAITING_ANSWER sessions still alive, for the caller's proactive
// retransmit scan — the sweep and the scan walk the registry together so
// the engine doesn't need a second full pass.
func (s *Store) Sweep(now time.Time, taskLifetime, finalizeGrace time.Duration) SweepStats {
	var stats SweepStats
	for _, key := range s.Keys() {
		sess, ok := s.Lookup(key)
		if !ok {
			continue
		}
		switch sess.Phase {
		case PhaseAwaitingAnswer:
			if sess.Age(now) > taskLifetime {
				s.Erase(key)
				stats.Expired++
				continue
			}
			stats.Retransmits = append(stats.Retransmits, key)
		case PhaseFinalized:
			if sess.FinalizedAge(now) > finalizeGrace {
				s.Erase(key)
				stats.Finalized++
			}
		}
	}
	return stats
}
