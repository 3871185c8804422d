package realtime

import (
	"context"
	"errors"
	"time"
)

// ScopeKind discriminates the three chat planes.
type ScopeKind string

const (
	ScopeDirect  ScopeKind = "direct"
	ScopeGroup   ScopeKind = "group"
	ScopeMeeting ScopeKind = "meeting"
)

// Scope identifies one message stream: a direct conversation, a group, or a
// meeting's ephemeral chat.
type Scope struct {
	Kind ScopeKind
	Key  string
}

func DirectScope(conversationID string) Scope {
	return Scope{Kind: ScopeDirect, Key: conversationID}
}

func GroupScope(groupID string) Scope { return Scope{Kind: ScopeGroup, Key: groupID} }

func MeetingScope(code string) Scope { return Scope{Kind: ScopeMeeting, Key: code} }

// Valid reports whether the scope carries a known kind and a key.
func (s Scope) Valid() bool {
	switch s.Kind {
	case ScopeDirect, ScopeGroup, ScopeMeeting:
		return s.Key != ""
	default:
		return false
	}
}

// lockKey is the string hashed for per-scope write serialization.
func (s Scope) lockKey() string { return string(s.Kind) + ":" + s.Key }

// StoredMessage is the canonical persisted message representation.
type StoredMessage struct {
	Scope       Scope
	ServerMsgID string
	Seq         int64
	Sender      string
	SenderName  string
	Body        string
	ServerTS    time.Time
}

// ErrInvalidScope is returned for appends and queries on a malformed scope.
var ErrInvalidScope = errors.New("realtime: invalid scope")

// Store persists chat messages, read cursors and group rosters.
//
// Requirements:
//   - Monotonic seq per scope, gap-free under concurrent appends
//   - History ordered by seq ASC with after-seq paging
//   - Read cursors move forward only
type Store interface {
	Append(ctx context.Context, in AppendInput) (StoredMessage, error)
	History(ctx context.Context, in HistoryInput) (HistoryResult, error)
	MarkRead(ctx context.Context, scope Scope, reader string, now time.Time) error
	Participants(ctx context.Context, groupID string) ([]string, error)
	Close() error
}

// AppendInput describes a message append request.
type AppendInput struct {
	Scope      Scope
	Sender     string
	SenderName string
	Body       string
	Now        time.Time
}

// HistoryInput describes a history query request.
type HistoryInput struct {
	Scope    Scope
	AfterSeq *int64
	Limit    int
}

// HistoryResult contains the retrieved history window.
type HistoryResult struct {
	Messages []StoredMessage
	HasMore  bool
}

func clampHistoryLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
