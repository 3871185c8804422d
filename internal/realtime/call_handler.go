package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	rtcv1 "github.com/MoiChung-nwc/Chunk-Meet/contracts/rtc/v1"
)

// CallHandler drives the /ws/call endpoint. The socket is a control channel
// only: invites, acceptance, rejection and hangups. Media negotiation rides
// the signaling plane.
type CallHandler struct {
	log         *slog.Logger
	presence    *Presence
	relay       *Relay
	coordinator *Coordinator
}

// NewCallHandler wires the call-control plane together.
func NewCallHandler(log *slog.Logger, presence *Presence, relay *Relay, coordinator *Coordinator) *CallHandler {
	return &CallHandler{log: log, presence: presence, relay: relay, coordinator: coordinator}
}

func (h *CallHandler) Connected(_ context.Context, conn *Conn) error {
	h.presence.Register(conn.Identity, conn)
	return nil
}

// Closed always unregisters. A peer that ends a call and wants further
// invites keeps the socket open or reconnects; registry state tracks sockets,
// nothing else.
func (h *CallHandler) Closed(conn *Conn, _ string) {
	h.presence.Unregister(conn.Identity, conn)
	// A vanished peer cannot ring or answer; cancel anything in flight.
	h.coordinator.CancelAll(conn.Identity)
}

func (h *CallHandler) Message(_ context.Context, conn *Conn, in rtcv1.Inbound) error {
	peer := strings.TrimSpace(in.To)
	if peer == "" {
		return errors.New("missing to")
	}
	if peer == conn.Identity {
		return errors.New("cannot call yourself")
	}

	switch in.Type {
	case rtcv1.TypeCall, rtcv1.TypeStartCall:
		h.coordinator.Start(conn.Identity, peer, h.relay)
	case rtcv1.TypeAcceptCall:
		h.coordinator.Accept(conn.Identity, peer, h.relay)
	case rtcv1.TypeRejectCall:
		h.coordinator.Reject(conn.Identity, peer, h.relay)
	case rtcv1.TypeHangup, rtcv1.TypeEndCall:
		h.coordinator.Hangup(conn.Identity, peer, h.relay)
	default:
		return fmt.Errorf("unsupported type: %s", in.Type)
	}
	return nil
}
