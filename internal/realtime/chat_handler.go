package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	rtcv1 "github.com/MoiChung-nwc/Chunk-Meet/contracts/rtc/v1"
)

// ChatHandler drives the /ws/chat endpoint: presence announcements, direct
// and group messaging, typing, read receipts and history.
type ChatHandler struct {
	log      *slog.Logger
	presence *Presence
	relay    *Relay
	store    Store
}

// NewChatHandler wires the chat plane together.
func NewChatHandler(log *slog.Logger, presence *Presence, relay *Relay, store Store) *ChatHandler {
	return &ChatHandler{log: log, presence: presence, relay: relay, store: store}
}

// Connected registers the identity and announces the presence transition.
// The new connection always receives the current online snapshot.
func (h *ChatHandler) Connected(_ context.Context, conn *Conn) error {
	cameOnline := h.presence.Register(conn.Identity, conn)
	if cameOnline {
		if payload, ok := h.relay.Encode(rtcv1.UserStatus{Type: rtcv1.TypeUserStatus, Email: conn.Identity, Online: true}); ok {
			h.relay.ToAll(payload, conn.Identity)
		}
	}
	h.sendOnlineUsers(conn)
	return nil
}

// Closed unregisters the connection and, when the identity's last connection
// is gone, announces it offline.
func (h *ChatHandler) Closed(conn *Conn, _ string) {
	if h.presence.Unregister(conn.Identity, conn) {
		if payload, ok := h.relay.Encode(rtcv1.UserStatus{Type: rtcv1.TypeUserStatus, Email: conn.Identity, Online: false}); ok {
			h.relay.ToAll(payload, conn.Identity)
		}
	}
}

// Message dispatches one decoded chat-plane frame.
func (h *ChatHandler) Message(ctx context.Context, conn *Conn, in rtcv1.Inbound) error {
	switch in.Type {
	case rtcv1.TypeJoin:
		return h.onJoin(ctx, conn, in)
	case rtcv1.TypeLeave:
		conn.SetAttr("conversation", "")
		return nil

	case rtcv1.TypeChat:
		return h.onChat(ctx, conn, in)
	case rtcv1.TypeTyping:
		return h.onTyping(conn, in)
	case rtcv1.TypeReadUpdate:
		return h.onReadUpdate(ctx, conn, in)
	case rtcv1.TypeGetHistory:
		return h.onHistory(ctx, conn, DirectScope(strings.TrimSpace(in.ConversationID)), rtcv1.TypeChatHistory)
	case rtcv1.TypeRequestOnlineUsers:
		h.sendOnlineUsers(conn)
		return nil

	case rtcv1.TypeJoinGroup, rtcv1.TypeLeaveGroup:
		// Group membership is authoritative in the store; the socket-level
		// join is an acknowledgement only.
		return nil
	case rtcv1.TypeGroupChat:
		return h.onGroupChat(ctx, conn, in)
	case rtcv1.TypeTypingGroup:
		return h.onTypingGroup(ctx, conn, in)
	case rtcv1.TypeGetGroupHistory:
		return h.onHistory(ctx, conn, GroupScope(strings.TrimSpace(in.GroupID)), rtcv1.TypeGroupHistory)

	default:
		return fmt.Errorf("unsupported type: %s", in.Type)
	}
}

func (h *ChatHandler) onJoin(ctx context.Context, conn *Conn, in rtcv1.Inbound) error {
	convID := strings.TrimSpace(in.ConversationID)
	if convID == "" {
		return errors.New("missing conversationId")
	}
	conn.SetAttr("conversation", convID)

	payload, ok := h.relay.Encode(rtcv1.Joined{Type: rtcv1.TypeJoined, ConversationID: convID, Email: conn.Identity})
	if !ok {
		return errors.New("encode failed")
	}
	if !conn.TrySend(payload) {
		return errors.New("backpressure: joined")
	}

	// A joining client immediately needs the backlog and the presence snapshot.
	if err := h.onHistory(ctx, conn, DirectScope(convID), rtcv1.TypeChatHistory); err != nil {
		return err
	}
	h.sendOnlineUsers(conn)
	return nil
}

func (h *ChatHandler) onChat(ctx context.Context, conn *Conn, in rtcv1.Inbound) error {
	convID := strings.TrimSpace(in.ConversationID)
	if convID == "" {
		return errors.New("missing conversationId")
	}
	to := strings.TrimSpace(in.To)
	if to == "" {
		return errors.New("missing to")
	}
	if to == conn.Identity {
		return errors.New("cannot message yourself")
	}
	body, err := validateBody(in.Message)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	stored, err := h.store.Append(ctx, AppendInput{
		Scope:      DirectScope(convID),
		Sender:     conn.Identity,
		SenderName: conn.Attr("name"),
		Body:       body,
		Now:        now,
	})
	if err != nil {
		return fmt.Errorf("store append: %w", err)
	}

	payload, ok := h.relay.Encode(rtcv1.ChatMessage{
		Type:           rtcv1.TypeChat,
		ConversationID: convID,
		Sender:         stored.Sender,
		SenderName:     stored.SenderName,
		Message:        stored.Body,
		Timestamp:      stored.ServerTS.Format(time.RFC3339),
	})
	if !ok {
		return errors.New("encode failed")
	}

	h.relay.ToIdentity(to, payload)
	// Echo to every connection of the sender so other tabs stay in sync.
	h.relay.ToIdentity(conn.Identity, payload)
	return nil
}

func (h *ChatHandler) onTyping(conn *Conn, in rtcv1.Inbound) error {
	to := strings.TrimSpace(in.To)
	if to == "" || to == conn.Identity {
		return nil
	}
	payload, ok := h.relay.Encode(rtcv1.Typing{
		Type:           rtcv1.TypeTyping,
		From:           conn.Identity,
		ConversationID: strings.TrimSpace(in.ConversationID),
	})
	if !ok {
		return errors.New("encode failed")
	}
	h.relay.ToIdentity(to, payload)
	return nil
}

func (h *ChatHandler) onReadUpdate(ctx context.Context, conn *Conn, in rtcv1.Inbound) error {
	convID := strings.TrimSpace(in.ConversationID)
	if convID == "" {
		return errors.New("missing conversationId")
	}
	if err := h.store.MarkRead(ctx, DirectScope(convID), conn.Identity, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	// Read receipts update conversation previews everywhere, so every online
	// client hears about them, including the reader's other tabs.
	if payload, ok := h.relay.Encode(rtcv1.ReadUpdate{Type: rtcv1.TypeReadUpdate, ConversationID: convID, Reader: conn.Identity}); ok {
		h.relay.ToAll(payload, "")
	}
	return nil
}

// NotifyGroup fans a group lifecycle event (created, updated, member changes,
// deleted) to every member's online connections. Called by the group CRUD
// surface, which owns rosters; the socket plane only delivers.
func (h *ChatHandler) NotifyGroup(ctx context.Context, eventType, groupID string) error {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return errors.New("missing groupId")
	}
	members, err := h.store.Participants(ctx, groupID)
	if err != nil {
		return fmt.Errorf("group roster: %w", err)
	}

	payload, ok := h.relay.Encode(rtcv1.GroupEvent{Type: eventType, GroupID: groupID})
	if !ok {
		return errors.New("encode failed")
	}
	for _, member := range members {
		h.relay.ToIdentity(member, payload)
	}
	return nil
}

func (h *ChatHandler) onGroupChat(ctx context.Context, conn *Conn, in rtcv1.Inbound) error {
	groupID := strings.TrimSpace(in.GroupID)
	if groupID == "" {
		return errors.New("missing groupId")
	}
	body, err := validateBody(in.Message)
	if err != nil {
		return err
	}

	members, err := h.store.Participants(ctx, groupID)
	if err != nil {
		return fmt.Errorf("group roster: %w", err)
	}
	if !containsString(members, conn.Identity) {
		return errors.New("not a group member")
	}

	now := time.Now().UTC()
	stored, err := h.store.Append(ctx, AppendInput{
		Scope:      GroupScope(groupID),
		Sender:     conn.Identity,
		SenderName: conn.Attr("name"),
		Body:       body,
		Now:        now,
	})
	if err != nil {
		return fmt.Errorf("store append: %w", err)
	}

	payload, ok := h.relay.Encode(rtcv1.ChatMessage{
		Type:       rtcv1.TypeGroupChat,
		GroupID:    groupID,
		Sender:     stored.Sender,
		SenderName: stored.SenderName,
		Message:    stored.Body,
		Timestamp:  stored.ServerTS.Format(time.RFC3339),
	})
	if !ok {
		return errors.New("encode failed")
	}
	for _, member := range members {
		h.relay.ToIdentity(member, payload)
	}
	return nil
}

func (h *ChatHandler) onTypingGroup(ctx context.Context, conn *Conn, in rtcv1.Inbound) error {
	groupID := strings.TrimSpace(in.GroupID)
	if groupID == "" {
		return errors.New("missing groupId")
	}
	members, err := h.store.Participants(ctx, groupID)
	if err != nil {
		return fmt.Errorf("group roster: %w", err)
	}
	if !containsString(members, conn.Identity) {
		return errors.New("not a group member")
	}

	payload, ok := h.relay.Encode(rtcv1.Typing{Type: rtcv1.TypeTypingGroup, From: conn.Identity, GroupID: groupID})
	if !ok {
		return errors.New("encode failed")
	}
	for _, member := range members {
		if member == conn.Identity {
			continue
		}
		h.relay.ToIdentity(member, payload)
	}
	return nil
}

func (h *ChatHandler) onHistory(ctx context.Context, conn *Conn, scope Scope, replyType string) error {
	if !scope.Valid() {
		return ErrInvalidScope
	}
	out, err := h.store.History(ctx, HistoryInput{Scope: scope})
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	items := make([]rtcv1.HistoryItem, 0, len(out.Messages))
	for _, m := range out.Messages {
		items = append(items, rtcv1.HistoryItem{
			Sender:     m.Sender,
			SenderName: m.SenderName,
			Message:    m.Body,
			Timestamp:  m.ServerTS.Format(time.RFC3339),
		})
	}

	reply := rtcv1.History{Type: replyType, Messages: items}
	switch scope.Kind {
	case ScopeDirect:
		reply.ConversationID = scope.Key
	case ScopeGroup:
		reply.GroupID = scope.Key
	case ScopeMeeting:
		reply.MeetingCode = scope.Key
	}

	payload, ok := h.relay.Encode(reply)
	if !ok {
		return errors.New("encode failed")
	}
	if !conn.TrySend(payload) {
		return errors.New("backpressure: history")
	}
	return nil
}

func (h *ChatHandler) sendOnlineUsers(conn *Conn) {
	if payload, ok := h.relay.Encode(rtcv1.OnlineUsers{Type: rtcv1.TypeOnlineUsers, Users: h.presence.Online()}); ok {
		h.relay.ToConn(conn, payload)
	}
}

// ---- shared helpers ----

func validateBody(raw string) (string, error) {
	body := strings.TrimSpace(raw)
	if body == "" {
		return "", errors.New("empty message")
	}
	if len([]rune(body)) > maxMessageChars {
		return "", fmt.Errorf("message too long: max=%d chars", maxMessageChars)
	}
	return body, nil
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
