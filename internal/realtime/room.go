package realtime

import (
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
)

// Membership records which room a connection belongs to and under which
// identity it joined.
type Membership struct {
	Room     string
	Identity string
	Conn     *Conn
}

// Rooms tracks ephemeral meeting rooms: room code -> identity -> connection.
//
// Membership is authoritative: broadcast targets come from the room roster,
// never from the presence registry. A reverse index (conn id -> membership)
// makes close-path cleanup O(1) without scanning shards.
//
// One connection belongs to at most one room. Joining a second room (or the
// same room again) first detaches the prior membership and the detached
// membership is returned so the caller can emit a leave for it.
type Rooms struct {
	log    *slog.Logger
	shards [roomShards]roomShard

	// reverse index is guarded by its own mutex because memberships cross
	// shard boundaries when a connection moves between rooms.
	revMu sync.RWMutex
	rev   map[string]Membership // conn id -> membership
}

type roomShard struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Conn // room -> identity -> conn
}

// NewRooms constructs an empty room registry.
func NewRooms(log *slog.Logger) *Rooms {
	r := &Rooms{log: log, rev: make(map[string]Membership)}
	for i := range r.shards {
		r.shards[i].rooms = make(map[string]map[string]*Conn)
	}
	return r
}

func (r *Rooms) shard(room string) *roomShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(room))
	return &r.shards[h.Sum32()%roomShards]
}

// Join adds the connection to a room under the given identity.
//
// A join replaces any prior membership of the same connection, and a second
// connection joining under the same identity replaces the first one in the
// roster. Both displaced memberships are returned (prior: this connection's
// old room; displaced: the roster slot it took over) so the caller can emit
// leave events for them. Closed connections are refused.
func (r *Rooms) Join(room, identity string, conn *Conn) (prior Membership, hadPrior bool, displaced Membership, hadDisplaced bool) {
	if room == "" || identity == "" || conn == nil || !conn.IsOpen() {
		return Membership{}, false, Membership{}, false
	}

	// Detach any prior membership of this connection first.
	prior, hadPrior = r.Leave(conn)
	if hadPrior && prior.Room == room && prior.Identity == identity {
		// Re-join of the same slot is idempotent; don't report a leave.
		hadPrior = false
	}

	s := r.shard(room)
	s.mu.Lock()
	members := s.rooms[room]
	if members == nil {
		members = make(map[string]*Conn, 4)
		s.rooms[room] = members
	}
	if old, ok := members[identity]; ok && old != conn {
		displaced = Membership{Room: room, Identity: identity, Conn: old}
		hadDisplaced = true
	}
	members[identity] = conn
	s.mu.Unlock()

	r.revMu.Lock()
	if hadDisplaced {
		delete(r.rev, displaced.Conn.ID)
	}
	r.rev[conn.ID] = Membership{Room: room, Identity: identity, Conn: conn}
	r.revMu.Unlock()

	r.log.Info("room.join", "room", room, "identity", identity, "conn_id", conn.ID)
	return prior, hadPrior, displaced, hadDisplaced
}

// Leave detaches the connection from its room, if any. The removed membership
// is returned exactly once; a second Leave for the same connection reports
// false, which keeps abrupt-close and explicit-leave paths from double-firing
// participant-left events.
func (r *Rooms) Leave(conn *Conn) (Membership, bool) {
	if conn == nil {
		return Membership{}, false
	}

	r.revMu.Lock()
	m, ok := r.rev[conn.ID]
	if ok {
		delete(r.rev, conn.ID)
	}
	r.revMu.Unlock()
	if !ok {
		return Membership{}, false
	}

	s := r.shard(m.Room)
	s.mu.Lock()
	members := s.rooms[m.Room]
	// Only remove the slot if it still points at this connection; a newer
	// connection may have taken over the identity in the meantime.
	if members != nil && members[m.Identity] == conn {
		delete(members, m.Identity)
		if len(members) == 0 {
			delete(s.rooms, m.Room)
		}
	}
	s.mu.Unlock()

	r.log.Info("room.leave", "room", m.Room, "identity", m.Identity, "conn_id", conn.ID)
	return m, true
}

// RoomOf returns the connection's current membership.
func (r *Rooms) RoomOf(conn *Conn) (Membership, bool) {
	if conn == nil {
		return Membership{}, false
	}
	r.revMu.RLock()
	defer r.revMu.RUnlock()
	m, ok := r.rev[conn.ID]
	return m, ok
}

// Members returns the sorted identities currently in a room.
func (r *Rooms) Members(room string) []string {
	s := r.shard(room)
	s.mu.RLock()
	members := s.rooms[room]
	out := make([]string, 0, len(members))
	for identity := range members {
		out = append(out, identity)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// MemberConns returns a snapshot of connections in a room.
func (r *Rooms) MemberConns(room string) []*Conn {
	s := r.shard(room)
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.rooms[room]
	if len(members) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// MemberConn returns the connection a given identity holds in a room.
func (r *Rooms) MemberConn(room, identity string) (*Conn, bool) {
	s := r.shard(room)
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.rooms[room][identity]
	return c, ok
}

// Close removes a whole room and returns its final roster. Callers use the
// roster to notify members and close their sockets.
func (r *Rooms) Close(room string) []Membership {
	s := r.shard(room)
	s.mu.Lock()
	members := s.rooms[room]
	delete(s.rooms, room)
	s.mu.Unlock()

	if len(members) == 0 {
		return nil
	}
	out := make([]Membership, 0, len(members))
	r.revMu.Lock()
	for identity, c := range members {
		delete(r.rev, c.ID)
		out = append(out, Membership{Room: room, Identity: identity, Conn: c})
	}
	r.revMu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })

	r.log.Info("room.close", "room", room, "members", len(out))
	return out
}

// List returns the sorted codes of all non-empty rooms.
func (r *Rooms) List() []string {
	var out []string
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for room := range s.rooms {
			out = append(out, room)
		}
		s.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}
