// Package session implements the process-local, sharded session store:
// §5's "mapping from session id to Session, guarded by a mutex-per-entry (or
// equivalent sharded lock)". Generalized from the teacher's single
// mutex-guarded map with global LRU eviction into N independently-locked
// shards, each with its own LRU eviction bound, so unrelated sessions never
// contend on the same lock. Two distinct locks are at play: the shard lock
// (WithLock) guards the map structure and is held only for brief
// read/mutate access, never across external I/O; the per-entry call lock
// (Acquire) serializes one session's whole request dispatch, including any
// I/O it performs, without blocking unrelated sessions in the same shard.
package session

import (
	"crypto/sha1"
	"encoding/binary"
	"sort"
	"sync"
	"time"

	"github.com/larachado/coordinator/internal/domain"
)

const shardCount = 32

// Session is the process-local memory for one conversational thread.
type Session struct {
	ID           string
	Transcript   []domain.Turn
	Requirements domain.Requirements
	State        domain.ScopingState
	LastResult   *ChatResult
}

// ChatResult is the most recently completed chat result set, kept so a
// session can answer follow-up questions about its last search without
// recomputing it.
type ChatResult struct {
	Properties      []domain.EnrichedCandidate
	SearchSummary   string
	TotalFound      int
	CommunityReport *domain.CommunityReport
}

type entry struct {
	session    Session
	lastAccess time.Time
	callMu     sync.Mutex // serializes one session's request dispatch, held across external I/O
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Store is the sharded, capacity-bounded session map. Capacity is enforced
// per shard: with N sessions spread roughly evenly across shardCount
// shards, the store-wide capacity configured via SESSION_CAPACITY divides
// cleanly into a per-shard budget.
type Store struct {
	shards   [shardCount]*shard
	capacity int // per-shard capacity
}

// New builds a Store with the given store-wide capacity (default 1024, per
// §3/§6's SESSION_CAPACITY).
func New(totalCapacity int) *Store {
	if totalCapacity <= 0 {
		totalCapacity = 1024
	}
	perShard := totalCapacity / shardCount
	if perShard < 1 {
		perShard = 1
	}
	s := &Store{capacity: perShard}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	h := sha1.Sum([]byte(id))
	idx := binary.BigEndian.Uint32(h[:4]) % shardCount
	return s.shards[idx]
}

// WithLock runs fn with the session identified by id locked for the
// duration of the call, creating it lazily on first reference. External I/O
// must never happen inside fn: per §5, the shard lock backing this call is
// held only while reading/mutating the transcript and requirements, never
// across a network call — holding it longer would block every other
// session hashed to the same shard. Serializing concurrent requests for the
// *same* session across external I/O is Acquire's job, not this one's.
func (s *Store) WithLock(id string, fn func(sess *Session)) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e := s.lookupOrCreateLocked(sh, id)
	fn(&e.session)
}

// Acquire serializes one session's full request dispatch — including any
// external I/O the caller performs — without holding the shard lock for
// that duration. The shard lock is taken only long enough to look up or
// create the entry; the returned release func must be called once the
// request (and all its WithLock calls) is done, per §5's "concurrent
// requests for the same session id are serialized; concurrent requests for
// different sessions run in parallel."
func (s *Store) Acquire(id string) (release func()) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	e := s.lookupOrCreateLocked(sh, id)
	sh.mu.Unlock()

	e.callMu.Lock()
	return e.callMu.Unlock
}

// lookupOrCreateLocked returns id's entry, creating it and running eviction
// if this is a first reference. Called with sh.mu held.
func (s *Store) lookupOrCreateLocked(sh *shard, id string) *entry {
	e, ok := sh.entries[id]
	if !ok {
		e = &entry{session: Session{ID: id, State: domain.StateGathering}}
		sh.entries[id] = e
		s.evictIfNeededLocked(sh)
	}
	e.lastAccess = time.Now()
	return e
}

// evictIfNeededLocked drops the least-recently-accessed entries in sh until
// it is under the per-shard capacity, skipping any entry whose callMu is
// currently held (an in-flight request dispatch) so eviction never yanks
// state out from under a running request. Called with sh.mu held.
func (s *Store) evictIfNeededLocked(sh *shard) {
	over := len(sh.entries) - s.capacity
	if over <= 0 {
		return
	}

	type candidate struct {
		id string
		at time.Time
	}
	candidates := make([]candidate, 0, len(sh.entries))
	for id, e := range sh.entries {
		candidates = append(candidates, candidate{id, e.lastAccess})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].at.Before(candidates[j].at) })

	evicted := 0
	for _, c := range candidates {
		if evicted >= over {
			return
		}
		e := sh.entries[c.id]
		if !e.callMu.TryLock() {
			continue // in-flight; leave it for a later pass
		}
		e.callMu.Unlock()
		delete(sh.entries, c.id)
		evicted++
	}
}

// Len returns the total number of sessions currently held, across shards.
// For tests/metrics only; takes each shard's lock briefly.
func (s *Store) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.entries)
		sh.mu.Unlock()
	}
	return total
}
