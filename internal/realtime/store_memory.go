package realtime

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

const (
	memMaxMessagesPerScope = 10_000
)

// InMemoryStore is a dev-only fallback when the database is not configured.
// It mirrors the Postgres store's semantics closely enough for CI and smoke
// runs: monotonic per-scope sequences, after-seq paging, forward-only read
// cursors and a mutable group roster.
type InMemoryStore struct {
	mu      sync.Mutex
	streams map[string]*memStream
	cursors map[string]map[string]time.Time // scope lock key -> reader -> read at
	groups  map[string][]string             // group id -> sorted members
}

type memStream struct {
	seq  int64
	msgs []StoredMessage // ordered by seq
}

// NewInMemoryStore constructs an in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		streams: make(map[string]*memStream),
		cursors: make(map[string]map[string]time.Time),
		groups:  make(map[string][]string),
	}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// Append persists a message with monotonic per-scope sequence allocation.
func (s *InMemoryStore) Append(ctx context.Context, in AppendInput) (StoredMessage, error) {
	if !in.Scope.Valid() {
		return StoredMessage{}, ErrInvalidScope
	}
	if in.Sender == "" || in.Body == "" {
		return StoredMessage{}, errors.New("invalid input")
	}
	if err := ctx.Err(); err != nil {
		return StoredMessage{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	serverMsgID, err := NewServerMsgID(now)
	if err != nil {
		return StoredMessage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := in.Scope.lockKey()
	st := s.streams[key]
	if st == nil {
		st = &memStream{msgs: make([]StoredMessage, 0, 256)}
		s.streams[key] = st
	}

	st.seq++
	msg := StoredMessage{
		Scope:       in.Scope,
		ServerMsgID: serverMsgID,
		Seq:         st.seq,
		Sender:      in.Sender,
		SenderName:  in.SenderName,
		Body:        in.Body,
		ServerTS:    now,
	}
	st.msgs = append(st.msgs, msg)

	// Bound memory to avoid unbounded growth in dev.
	if len(st.msgs) > memMaxMessagesPerScope {
		st.msgs = st.msgs[len(st.msgs)-memMaxMessagesPerScope:]
	}

	return msg, nil
}

// History returns messages ordered by seq ASC with paging via after_seq.
func (s *InMemoryStore) History(ctx context.Context, in HistoryInput) (HistoryResult, error) {
	if !in.Scope.Valid() {
		return HistoryResult{}, ErrInvalidScope
	}
	if err := ctx.Err(); err != nil {
		return HistoryResult{}, err
	}

	limit := clampHistoryLimit(in.Limit)
	fetch := limit + 1

	s.mu.Lock()
	st := s.streams[in.Scope.lockKey()]
	var snap []StoredMessage
	if st != nil {
		snap = append([]StoredMessage(nil), st.msgs...)
	}
	s.mu.Unlock()

	if len(snap) == 0 {
		return HistoryResult{}, nil
	}

	start := 0
	if in.AfterSeq != nil {
		after := *in.AfterSeq
		start = sort.Search(len(snap), func(i int) bool { return snap[i].Seq > after })
		if start >= len(snap) {
			return HistoryResult{}, nil
		}
	}

	end := start + fetch
	if end > len(snap) {
		end = len(snap)
	}
	out := snap[start:end]

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}

	return HistoryResult{Messages: out, HasMore: hasMore}, nil
}

// MarkRead advances the reader's cursor; cursors never move backwards.
func (s *InMemoryStore) MarkRead(ctx context.Context, scope Scope, reader string, now time.Time) error {
	if !scope.Valid() {
		return ErrInvalidScope
	}
	if reader == "" {
		return errors.New("missing reader")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := scope.lockKey()
	readers := s.cursors[key]
	if readers == nil {
		readers = make(map[string]time.Time)
		s.cursors[key] = readers
	}
	if prev, ok := readers[reader]; !ok || now.After(prev) {
		readers[reader] = now
	}
	return nil
}

// Participants returns the sorted roster of a group.
func (s *InMemoryStore) Participants(ctx context.Context, groupID string) ([]string, error) {
	if groupID == "" {
		return nil, errors.New("missing group id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.groups[groupID]
	if len(members) == 0 {
		return nil, nil
	}
	return append([]string(nil), members...), nil
}

// SetParticipants replaces a group's roster. Used by tests and the dev
// profile where the management plane is not wired to a database.
func (s *InMemoryStore) SetParticipants(groupID string, members []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dst := append([]string(nil), members...)
	sort.Strings(dst)
	s.groups[groupID] = dst
}

// ReadAt reports the reader's cursor position, for tests and debugging.
func (s *InMemoryStore) ReadAt(scope Scope, reader string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.cursors[scope.lockKey()][reader]
	return t, ok
}
