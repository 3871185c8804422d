// Package v1 defines the Chunk-Meet realtime wire contract.
//
// Every message is a flat JSON object with a required "type" discriminator.
// The package is shared between the server and clients to keep the protocol
// authoritative, and is intentionally dependency-light.
package v1

import (
	"encoding/json"
	"errors"
	"strings"
)

// Client-originated type constants (wire-stable).
const (
	TypeJoin       = "join"
	TypeLeave      = "leave"
	TypeJoinGroup  = "join-group"
	TypeLeaveGroup = "leave-group"

	TypeChat        = "chat"
	TypeGroupChat   = "group-chat"
	TypeMeetingChat = "meeting-chat"
	TypeTyping      = "typing"
	TypeTypingGroup = "typing-group"
	TypeReadUpdate  = "read-update"

	TypeRequestOnlineUsers = "request-online-users"
	TypeGetHistory         = "get-history"
	TypeGetGroupHistory    = "get-group-history"
	TypeGetMeetingHistory  = "get-meeting-history"

	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICE          = "ice"
	TypeICECandidate = "ice-candidate"
	TypeReady        = "ready"

	TypeCall       = "call"
	TypeStartCall  = "start-call"
	TypeAcceptCall = "accept-call"
	TypeRejectCall = "reject-call"
	TypeHangup     = "hangup"
	TypeEndCall    = "end-call"

	TypeFileOffer  = "file-offer"
	TypeFileAnswer = "file-answer"
	TypeFileCancel = "file-cancel"

	TypeScreenShare = "screen-share"
	TypeEndMeeting  = "end-meeting"
)

// Server-originated type constants (wire-stable).
const (
	TypeJoined         = "joined"
	TypeChatHistory    = "chat-history"
	TypeGroupHistory   = "group-history"
	TypeMeetingHistory = "meeting-history"

	TypeOnlineUsers = "online-users"
	TypeUserStatus  = "user-status"

	TypeParticipantJoined = "participant-joined"
	TypeParticipantLeft   = "participant-left"
	TypeParticipantList   = "participant-list"
	TypeMeetingEnded      = "meeting-ended"

	TypeIncomingCall = "incoming-call"
	TypePeerReady    = "peer-ready"
	TypeCallFailed   = "call-failed"

	TypeError = "error"

	TypeGroupCreated       = "group-created"
	TypeGroupUpdated       = "group-updated"
	TypeGroupMemberAdded   = "group-member-added"
	TypeGroupMemberRemoved = "group-member-removed"
	TypeGroupRoleUpdated   = "group-role-updated"
	TypeGroupDeleted       = "group-deleted"
)

// ErrMissingType is returned when an inbound message carries no discriminator.
var ErrMissingType = errors.New("rtc: missing type field")

// Inbound is the decoded superset of client message fields.
//
// Payloads are feature-specific; unknown fields are preserved verbatim in Raw
// so signaling payloads can be relayed opaquely.
type Inbound struct {
	Type string `json:"type"`

	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	ConversationID string `json:"conversationId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
	MeetingCode    string `json:"meetingCode,omitempty"`

	Message string `json:"message,omitempty"`
	Active  bool   `json:"active,omitempty"`

	// Raw is the original wire bytes of the message, kept for opaque relay.
	Raw json.RawMessage `json:"-"`
}

// DecodeInbound parses a client message and enforces the type discriminator.
func DecodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, err
	}
	if strings.TrimSpace(in.Type) == "" {
		return Inbound{}, ErrMissingType
	}
	in.Raw = append(json.RawMessage(nil), data...)
	return in, nil
}

// ---- Server payloads ----

// Joined acknowledges a conversation join.
type Joined struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Email          string `json:"email"`
}

// HistoryItem is one persisted message as rendered on the wire.
type HistoryItem struct {
	Sender     string `json:"sender"`
	SenderName string `json:"senderName,omitempty"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

// History carries a window of persisted messages for one scope.
type History struct {
	Type           string        `json:"type"`
	ConversationID string        `json:"conversationId,omitempty"`
	GroupID        string        `json:"groupId,omitempty"`
	MeetingCode    string        `json:"meetingCode,omitempty"`
	Messages       []HistoryItem `json:"messages"`
}

// ChatMessage is a live chat message fanned out to a conversation or group.
type ChatMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
	MeetingCode    string `json:"meetingCode,omitempty"`
	Sender         string `json:"sender"`
	SenderName     string `json:"senderName,omitempty"`
	Message        string `json:"message"`
	Timestamp      string `json:"timestamp"`
}

// Typing notifies peers that someone is composing.
type Typing struct {
	Type           string `json:"type"`
	From           string `json:"from"`
	ConversationID string `json:"conversationId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
}

// ReadUpdate broadcasts a read cursor change.
type ReadUpdate struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Reader         string `json:"reader"`
}

// OnlineUsers is a presence snapshot.
type OnlineUsers struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// UserStatus announces a presence transition for one identity.
type UserStatus struct {
	Type   string `json:"type"`
	Email  string `json:"email"`
	Online bool   `json:"online"`
}

// ParticipantEvent announces a single join/leave inside a meeting.
type ParticipantEvent struct {
	Type  string `json:"type"`
	Email string `json:"email"`
}

// ParticipantList is the full roster of a meeting.
type ParticipantList struct {
	Type         string   `json:"type"`
	Participants []string `json:"participants"`
}

// ScreenShare announces a screen-share state change.
type ScreenShare struct {
	Type   string `json:"type"`
	Email  string `json:"email"`
	Active bool   `json:"active"`
}

// CallEvent is a one-shot call notification (incoming-call, accept-call,
// reject-call, hangup, call-failed, peer-ready).
type CallEvent struct {
	Type   string `json:"type"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// MeetingEnded announces that the host closed a meeting.
type MeetingEnded struct {
	Type        string `json:"type"`
	MeetingCode string `json:"meetingCode"`
	EndedBy     string `json:"endedBy"`
}

// Error reports a rejected client message. The connection stays open unless
// the violation is fatal (rate limiting, protocol abuse).
type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GroupEvent notifies members about group lifecycle changes driven by the
// management layer (create/update/membership/role/delete).
type GroupEvent struct {
	Type    string `json:"type"`
	GroupID string `json:"groupId"`
}
