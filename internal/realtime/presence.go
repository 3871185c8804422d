package realtime

import (
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Presence maps identities to their open connections and tracks last-seen
// times for identities that have gone fully offline.
//
// Concurrency model: the registry is sharded by identity hash so unrelated
// identities never contend on the same mutex. Removal of the last connection
// and the last-seen stamp happen under one shard lock, so a racing unregister
// cannot resurrect a stale last-seen value.
//
// The registry is pure bookkeeping: presence transitions are returned to the
// caller, which decides whether to broadcast them.
type Presence struct {
	log    *slog.Logger
	shards [presenceShards]presenceShard
}

type presenceShard struct {
	mu       sync.RWMutex
	entries  map[string]map[string]*Conn // identity -> conn id -> conn
	lastSeen map[string]time.Time
}

// NewPresence constructs an empty presence registry.
func NewPresence(log *slog.Logger) *Presence {
	p := &Presence{log: log}
	for i := range p.shards {
		p.shards[i].entries = make(map[string]map[string]*Conn)
		p.shards[i].lastSeen = make(map[string]time.Time)
	}
	return p
}

func (p *Presence) shard(identity string) *presenceShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return &p.shards[h.Sum32()%presenceShards]
}

// Register adds a connection to the identity's set (idempotent per conn id)
// and reports whether the identity transitioned from offline to online.
func (p *Presence) Register(identity string, conn *Conn) bool {
	if identity == "" || conn == nil {
		return false
	}

	s := p.shard(identity)
	s.mu.Lock()
	set, existed := s.entries[identity]
	if set == nil {
		set = make(map[string]*Conn, 2)
		s.entries[identity] = set
	}
	set[conn.ID] = conn
	s.lastSeen[identity] = time.Now().UTC()
	s.mu.Unlock()

	p.log.Info("presence.register", "identity", identity, "conn_id", conn.ID)
	return !existed
}

// Unregister removes a connection from the identity's set. If the set becomes
// empty the identity entry is deleted and last-seen is stamped. Unknown
// identity/connection pairs are a no-op. The return value reports whether the
// identity transitioned to fully offline.
func (p *Presence) Unregister(identity string, conn *Conn) bool {
	if identity == "" || conn == nil {
		return false
	}

	s := p.shard(identity)
	s.mu.Lock()
	set, ok := s.entries[identity]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(set, conn.ID)
	offline := len(set) == 0
	if offline {
		delete(s.entries, identity)
		s.lastSeen[identity] = time.Now().UTC()
	}
	s.mu.Unlock()

	p.log.Info("presence.unregister", "identity", identity, "conn_id", conn.ID, "offline", offline)
	return offline
}

// IsOnline reports whether the identity has at least one open connection.
func (p *Presence) IsOnline(identity string) bool {
	if identity == "" {
		return false
	}
	s := p.shard(identity)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.entries[identity] {
		if c.IsOpen() {
			return true
		}
	}
	return false
}

// LastSeen returns the recorded last-seen time for an identity.
func (p *Presence) LastSeen(identity string) (time.Time, bool) {
	s := p.shard(identity)
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lastSeen[identity]
	return t, ok
}

// Conns returns a snapshot of the identity's connections.
func (p *Presence) Conns(identity string) []*Conn {
	s := p.shard(identity)
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.entries[identity]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Online returns a sorted snapshot of identities with at least one open
// connection.
func (p *Presence) Online() []string {
	var out []string
	for i := range p.shards {
		s := &p.shards[i]
		s.mu.RLock()
		for identity, set := range s.entries {
			for _, c := range set {
				if c.IsOpen() {
					out = append(out, identity)
					break
				}
			}
		}
		s.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}
