package realtime

import (
	"encoding/json"
	"log/slog"
)

// Relay fans payloads out to connections tracked by a presence registry.
//
// Delivery is best effort: a slow consumer's frame is dropped rather than
// blocking the sender, and drops are counted per endpoint. The relay never
// closes connections; gateways own their lifecycles.
type Relay struct {
	log      *slog.Logger
	presence *Presence
	metrics  *Metrics
	endpoint string
}

// NewRelay binds a relay to one endpoint's presence registry.
func NewRelay(log *slog.Logger, presence *Presence, metrics *Metrics, endpoint string) *Relay {
	return &Relay{log: log, presence: presence, metrics: metrics, endpoint: endpoint}
}

// Encode marshals a payload for the wire. Marshal failures are programmer
// errors (all payload types are plain structs) and are logged, not returned.
func (r *Relay) Encode(v any) ([]byte, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		r.log.Error("relay.encode_failed", "endpoint", r.endpoint, "error", err)
		return nil, false
	}
	return data, true
}

// ToConn delivers to a single connection.
func (r *Relay) ToConn(conn *Conn, payload []byte) bool {
	if conn.TrySend(payload) {
		r.metrics.MessageOut(r.endpoint)
		return true
	}
	r.metrics.Dropped(r.endpoint)
	r.log.Warn("relay.drop", "endpoint", r.endpoint, "conn_id", connID(conn))
	return false
}

// ToIdentity delivers to every open connection of one identity and reports
// whether at least one delivery succeeded.
func (r *Relay) ToIdentity(identity string, payload []byte) bool {
	delivered := false
	for _, conn := range r.presence.Conns(identity) {
		if r.ToConn(conn, payload) {
			delivered = true
		}
	}
	return delivered
}

// ToAll delivers to every tracked connection, skipping the excluded identity
// (pass "" to include everyone).
func (r *Relay) ToAll(payload []byte, exclude string) {
	for _, identity := range r.presence.Online() {
		if identity == exclude {
			continue
		}
		r.ToIdentity(identity, payload)
	}
}

// ToConns delivers to a connection snapshot, skipping the excluded conn
// (nil to include everyone). Used for room-scoped fan-out where the roster,
// not presence, is authoritative.
func (r *Relay) ToConns(conns []*Conn, payload []byte, exclude *Conn) {
	for _, conn := range conns {
		if conn == exclude {
			continue
		}
		r.ToConn(conn, payload)
	}
}

func connID(c *Conn) string {
	if c == nil {
		return ""
	}
	return c.ID
}
