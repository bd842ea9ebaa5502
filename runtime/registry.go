package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const shardCount = 32

var _ contract.IRegistry = (*Registry)(nil)

type Set map[uuid.UUID]contract.Session

type shard struct {
	mu       sync.RWMutex
	sessions map[string]Set // identity -> live connections
}

// Registry tracks live connections keyed by identity.
// Identities are spread over independent shards so that fan-out for one
// identity never waits on registration traffic of unrelated identities.
// For a given identity every mutation happens under the same shard lock.
type Registry struct {
	shards [shardCount]*shard
	count  atomic.Int64
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{sessions: make(map[string]Set)}
	}
	return r
}

func (r *Registry) shardFor(identity domain.Identity) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity.String()))
	return r.shards[h.Sum32()%shardCount]
}

// Register adds a connection to its identity's set.
// Registering the same connection twice is a no-op.
func (r *Registry) Register(session contract.Session) {
	key := session.Identity().String()
	s := r.shardFor(session.Identity())
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sessions[key]
	if !ok {
		set = make(Set)
		s.sessions[key] = set
	}
	if _, exists := set[session.ID()]; exists {
		return
	}
	set[session.ID()] = session
	r.count.Add(1)
}

// Unregister removes a connection and prunes the identity entry when its
// set becomes empty, so that no empty sets are left behind.
func (r *Registry) Unregister(session contract.Session) {
	key := session.Identity().String()
	s := r.shardFor(session.Identity())
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sessions[key]
	if !ok {
		return
	}
	if _, exists := set[session.ID()]; !exists {
		return
	}
	delete(set, session.ID())
	r.count.Add(-1)
	if len(set) == 0 {
		delete(s.sessions, key)
	}
}

// ConnectionsFor returns a snapshot of the identity's live connections.
// An offline identity yields an empty slice, never an error.
func (r *Registry) ConnectionsFor(identity domain.Identity) []contract.Session {
	s := r.shardFor(identity)
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.sessions[identity.String()]
	sessions := make([]contract.Session, 0, len(set))
	for _, session := range set {
		sessions = append(sessions, session)
	}
	return sessions
}

// Count is the number of live connections across all identities.
func (r *Registry) Count() int {
	return int(r.count.Load())
}

// Online is the number of identities holding at least one connection.
func (r *Registry) Online() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.sessions)
		s.mu.RUnlock()
	}
	return total
}

// Snapshot counts live connections per identity kind.
func (r *Registry) Snapshot() map[domain.Kind]int {
	snapshot := make(map[domain.Kind]int)
	for _, s := range r.shards {
		s.mu.RLock()
		for _, set := range s.sessions {
			for _, session := range set {
				snapshot[session.Identity().Kind]++
			}
		}
		s.mu.RUnlock()
	}
	return snapshot
}
