package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	rtcv1 "github.com/MoiChung-nwc/Chunk-Meet/contracts/rtc/v1"
)

// SignalingHandler drives the /ws/signaling endpoint used for one-to-one call
// negotiation. Presence on this plane is what the call coordinator's
// readiness probe observes.
type SignalingHandler struct {
	log      *slog.Logger
	presence *Presence
	relay    *Relay
	signal   *SignalRelay
}

// NewSignalingHandler wires the one-to-one signaling plane together.
func NewSignalingHandler(log *slog.Logger, presence *Presence, relay *Relay, metrics *Metrics) *SignalingHandler {
	h := &SignalingHandler{log: log, presence: presence, relay: relay}
	h.signal = NewSignalRelay(log, presence.IsOnline, relay.ToIdentity, metrics, "signaling")
	return h
}

func (h *SignalingHandler) Connected(_ context.Context, conn *Conn) error {
	h.presence.Register(conn.Identity, conn)
	return nil
}

func (h *SignalingHandler) Closed(conn *Conn, _ string) {
	h.presence.Unregister(conn.Identity, conn)
}

func (h *SignalingHandler) Message(_ context.Context, conn *Conn, in rtcv1.Inbound) error {
	switch in.Type {
	case rtcv1.TypeJoin:
		// Presence was registered on connect; join is an idempotent refresh.
		h.presence.Register(conn.Identity, conn)
		return nil

	case rtcv1.TypeOffer, rtcv1.TypeAnswer, rtcv1.TypeICE, rtcv1.TypeICECandidate,
		rtcv1.TypeEndCall, rtcv1.TypeHangup, rtcv1.TypeChat:
		// end-call, hangup and in-call chat ride the same opaque relay as
		// SDP and ICE frames.
		return h.signal.Forward(conn.Identity, in)

	case rtcv1.TypeReady:
		// One-way readiness ping; no echo back to the sender.
		peer := strings.TrimSpace(in.To)
		if peer == "" || peer == conn.Identity {
			return nil
		}
		payload, ok := h.relay.Encode(rtcv1.CallEvent{Type: rtcv1.TypePeerReady, From: conn.Identity})
		if !ok {
			return errors.New("encode failed")
		}
		h.relay.ToIdentity(peer, payload)
		return nil

	default:
		return fmt.Errorf("unsupported type: %s", in.Type)
	}
}
