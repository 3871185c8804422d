package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	rtcv1 "github.com/MoiChung-nwc/Chunk-Meet/contracts/rtc/v1"
	"github.com/MoiChung-nwc/Chunk-Meet/internal/auth"
)

// MeetingHandler drives the /ws/meeting endpoint: room membership, in-room
// chat, room-scoped WebRTC negotiation, screen-share announcements and host
// teardown.
//
// The room roster is the only source of truth for fan-out targets. An abrupt
// disconnect and an explicit leave take the same path and emit exactly one
// participant-left, guarded by the registry's one-shot Leave.
type MeetingHandler struct {
	log    *slog.Logger
	rooms  *Rooms
	relay  *Relay
	store  Store
	policy auth.Policy
}

// NewMeetingHandler wires the meeting plane together.
func NewMeetingHandler(log *slog.Logger, rooms *Rooms, relay *Relay, store Store, policy auth.Policy) *MeetingHandler {
	return &MeetingHandler{log: log, rooms: rooms, relay: relay, store: store, policy: policy}
}

func (h *MeetingHandler) Connected(context.Context, *Conn) error { return nil }

// Closed treats an abrupt disconnect as a leave.
func (h *MeetingHandler) Closed(conn *Conn, _ string) {
	if m, ok := h.rooms.Leave(conn); ok {
		h.announceLeft(m.Room, m.Identity)
	}
}

func (h *MeetingHandler) Message(ctx context.Context, conn *Conn, in rtcv1.Inbound) error {
	switch in.Type {
	case rtcv1.TypeJoin:
		return h.onJoin(conn, in)
	case rtcv1.TypeLeave:
		if m, ok := h.rooms.Leave(conn); ok {
			h.announceLeft(m.Room, m.Identity)
		}
		return nil

	case rtcv1.TypeMeetingChat:
		return h.onChat(ctx, conn, in)
	case rtcv1.TypeGetMeetingHistory:
		return h.onHistory(ctx, conn, in)

	case rtcv1.TypeOffer, rtcv1.TypeAnswer, rtcv1.TypeICE, rtcv1.TypeICECandidate,
		rtcv1.TypeFileOffer, rtcv1.TypeFileAnswer, rtcv1.TypeFileCancel:
		// In-meeting file negotiation rides the same room-scoped relay.
		m, ok := h.rooms.RoomOf(conn)
		if !ok {
			return errors.New("join a meeting first")
		}
		return h.roomSignal(m.Room).Forward(conn.Identity, in)

	case rtcv1.TypeScreenShare:
		return h.onScreenShare(conn, in)
	case rtcv1.TypeEndMeeting:
		return h.onEndMeeting(conn, in)

	default:
		return fmt.Errorf("unsupported type: %s", in.Type)
	}
}

func (h *MeetingHandler) onJoin(conn *Conn, in rtcv1.Inbound) error {
	code := strings.TrimSpace(in.MeetingCode)
	if code == "" {
		return errors.New("missing meetingCode")
	}

	prior, hadPrior, displaced, hadDisplaced := h.rooms.Join(code, conn.Identity, conn)
	if hadPrior {
		h.announceLeft(prior.Room, prior.Identity)
	}
	if hadDisplaced {
		// The older connection under the same identity lost its roster slot.
		displaced.Conn.Close()
	}

	// Joiner gets the roster; the room learns about the joiner.
	if payload, ok := h.relay.Encode(rtcv1.ParticipantList{Type: rtcv1.TypeParticipantList, Participants: h.rooms.Members(code)}); ok {
		h.relay.ToConn(conn, payload)
	}
	if payload, ok := h.relay.Encode(rtcv1.ParticipantEvent{Type: rtcv1.TypeParticipantJoined, Email: conn.Identity}); ok {
		h.relay.ToConns(h.rooms.MemberConns(code), payload, conn)
	}
	return nil
}

func (h *MeetingHandler) announceLeft(room, identity string) {
	conns := h.rooms.MemberConns(room)
	if len(conns) == 0 {
		return
	}
	if payload, ok := h.relay.Encode(rtcv1.ParticipantEvent{Type: rtcv1.TypeParticipantLeft, Email: identity}); ok {
		h.relay.ToConns(conns, payload, nil)
	}
	if payload, ok := h.relay.Encode(rtcv1.ParticipantList{Type: rtcv1.TypeParticipantList, Participants: h.rooms.Members(room)}); ok {
		h.relay.ToConns(conns, payload, nil)
	}
}

func (h *MeetingHandler) onChat(ctx context.Context, conn *Conn, in rtcv1.Inbound) error {
	m, ok := h.rooms.RoomOf(conn)
	if !ok {
		return errors.New("join a meeting first")
	}
	body, err := validateBody(in.Message)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	stored, err := h.store.Append(ctx, AppendInput{
		Scope:      MeetingScope(m.Room),
		Sender:     conn.Identity,
		SenderName: conn.Attr("name"),
		Body:       body,
		Now:        now,
	})
	if err != nil {
		return fmt.Errorf("store append: %w", err)
	}

	payload, ok2 := h.relay.Encode(rtcv1.ChatMessage{
		Type:        rtcv1.TypeMeetingChat,
		MeetingCode: m.Room,
		Sender:      stored.Sender,
		SenderName:  stored.SenderName,
		Message:     stored.Body,
		Timestamp:   stored.ServerTS.Format(time.RFC3339),
	})
	if !ok2 {
		return errors.New("encode failed")
	}
	h.relay.ToConns(h.rooms.MemberConns(m.Room), payload, nil)
	return nil
}

func (h *MeetingHandler) onHistory(ctx context.Context, conn *Conn, in rtcv1.Inbound) error {
	m, ok := h.rooms.RoomOf(conn)
	if !ok {
		return errors.New("join a meeting first")
	}
	code := strings.TrimSpace(in.MeetingCode)
	if code != "" && code != m.Room {
		return errors.New("not in that meeting")
	}

	out, err := h.store.History(ctx, HistoryInput{Scope: MeetingScope(m.Room)})
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	items := make([]rtcv1.HistoryItem, 0, len(out.Messages))
	for _, msg := range out.Messages {
		items = append(items, rtcv1.HistoryItem{
			Sender:     msg.Sender,
			SenderName: msg.SenderName,
			Message:    msg.Body,
			Timestamp:  msg.ServerTS.Format(time.RFC3339),
		})
	}
	payload, ok2 := h.relay.Encode(rtcv1.History{Type: rtcv1.TypeMeetingHistory, MeetingCode: m.Room, Messages: items})
	if !ok2 {
		return errors.New("encode failed")
	}
	if !conn.TrySend(payload) {
		return errors.New("backpressure: history")
	}
	return nil
}

func (h *MeetingHandler) onScreenShare(conn *Conn, in rtcv1.Inbound) error {
	m, ok := h.rooms.RoomOf(conn)
	if !ok {
		return errors.New("join a meeting first")
	}
	payload, ok2 := h.relay.Encode(rtcv1.ScreenShare{Type: rtcv1.TypeScreenShare, Email: conn.Identity, Active: in.Active})
	if !ok2 {
		return errors.New("encode failed")
	}
	h.relay.ToConns(h.rooms.MemberConns(m.Room), payload, conn)
	return nil
}

func (h *MeetingHandler) onEndMeeting(conn *Conn, in rtcv1.Inbound) error {
	m, ok := h.rooms.RoomOf(conn)
	if !ok {
		return errors.New("join a meeting first")
	}
	if code := strings.TrimSpace(in.MeetingCode); code != "" && code != m.Room {
		return errors.New("not in that meeting")
	}
	if !h.policy.CanEndMeeting(conn.Identity, m.Room) {
		return errors.New("not allowed")
	}

	members := h.rooms.Close(m.Room)
	payload, ok2 := h.relay.Encode(rtcv1.MeetingEnded{Type: rtcv1.TypeMeetingEnded, MeetingCode: m.Room, EndedBy: conn.Identity})
	if !ok2 {
		return errors.New("encode failed")
	}
	for _, member := range members {
		h.relay.ToConn(member.Conn, payload)
		if member.Conn != conn {
			member.Conn.Close()
		}
	}
	h.log.Info("meeting.ended", "room", m.Room, "ended_by", conn.Identity, "members", len(members))
	return nil
}

// roomSignal builds a signaling relay scoped to one room: a peer is reachable
// only through its slot in that room, so negotiation can never leak across
// meetings.
func (h *MeetingHandler) roomSignal(room string) *SignalRelay {
	online := func(identity string) bool {
		c, ok := h.rooms.MemberConn(room, identity)
		return ok && c.IsOpen()
	}
	send := func(identity string, payload []byte) bool {
		c, ok := h.rooms.MemberConn(room, identity)
		if !ok {
			return false
		}
		return h.relay.ToConn(c, payload)
	}
	return NewSignalRelay(h.log, online, send, h.relay.metrics, h.relay.endpoint)
}
