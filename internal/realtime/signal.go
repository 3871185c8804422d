package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"

	rtcv1 "github.com/MoiChung-nwc/Chunk-Meet/contracts/rtc/v1"
)

// SendFunc delivers an encoded frame to one identity and reports whether at
// least one connection accepted it.
type SendFunc func(identity string, payload []byte) bool

// OnlineFunc reports whether an identity is reachable on the relevant plane
// (presence-wide for calls and file transfer, room-scoped for meetings).
type OnlineFunc func(identity string) bool

// SignalRelay forwards WebRTC negotiation payloads between peers.
//
// Payloads are opaque: the relay never inspects SDP or ICE fields, including
// end-of-candidates markers where the candidate is JSON null. The only
// mutation is stamping the sender, so a client can never impersonate another
// identity by filling in "from" itself.
type SignalRelay struct {
	log      *slog.Logger
	online   OnlineFunc
	send     SendFunc
	metrics  *Metrics
	endpoint string
}

var errNoRecipient = errors.New("realtime: signal recipient missing")

// NewSignalRelay wires a relay to its reachability and delivery functions.
// Frames dropped before delivery (self-addressed, offline peer) count against
// the endpoint's dropped metric; delivered frames are counted downstream.
func NewSignalRelay(log *slog.Logger, online OnlineFunc, send SendFunc, metrics *Metrics, endpoint string) *SignalRelay {
	return &SignalRelay{log: log, online: online, send: send, metrics: metrics, endpoint: endpoint}
}

// Forward relays one signaling frame from the authenticated sender to the
// addressed peer. Frames addressed to the sender itself or to an offline peer
// are dropped silently; negotiation retries are the client's concern.
func (s *SignalRelay) Forward(from string, in rtcv1.Inbound) error {
	if in.To == "" {
		return errNoRecipient
	}
	if in.To == from {
		s.metrics.Dropped(s.endpoint)
		s.log.Debug("signal.self_drop", "identity", from, "type", in.Type)
		return nil
	}
	if !s.online(in.To) {
		s.metrics.Dropped(s.endpoint)
		s.log.Debug("signal.offline_drop", "from", from, "to", in.To, "type", in.Type)
		return nil
	}

	payload, err := stampFrom(in.Raw, from)
	if err != nil {
		return err
	}
	if !s.send(in.To, payload) {
		s.log.Warn("signal.deliver_failed", "from", from, "to", in.To, "type", in.Type)
	}
	return nil
}

// stampFrom overwrites the "from" field with the authenticated identity while
// preserving every other field byte-for-byte semantically (SDP blobs, ICE
// candidates, nulls and all).
func stampFrom(raw json.RawMessage, from string) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	stamped, err := json.Marshal(from)
	if err != nil {
		return nil, err
	}
	fields["from"] = stamped
	return json.Marshal(fields)
}
