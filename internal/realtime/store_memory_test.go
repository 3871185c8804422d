package realtime

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryStore_AppendAllocatesMonotonicSeqPerScope(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		msg, err := s.Append(ctx, AppendInput{
			Scope:  DirectScope("conv-1"),
			Sender: "a@x",
			Body:   "hello",
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if msg.Seq != int64(i) {
			t.Fatalf("seq: got %d want %d", msg.Seq, i)
		}
		if msg.ServerMsgID == "" {
			t.Fatalf("server msg id must be stamped")
		}
	}

	// A different scope kind with the same key has its own sequence.
	msg, err := s.Append(ctx, AppendInput{Scope: GroupScope("conv-1"), Sender: "a@x", Body: "hi"})
	if err != nil {
		t.Fatalf("append group: %v", err)
	}
	if msg.Seq != 1 {
		t.Fatalf("group scope seq should start at 1, got %d", msg.Seq)
	}
}

func TestInMemoryStore_AppendRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	ctx := context.Background()

	if _, err := s.Append(ctx, AppendInput{Scope: Scope{Kind: "bogus", Key: "k"}, Sender: "a@x", Body: "m"}); err == nil {
		t.Fatalf("invalid scope must be rejected")
	}
	if _, err := s.Append(ctx, AppendInput{Scope: DirectScope("c"), Body: "m"}); err == nil {
		t.Fatalf("missing sender must be rejected")
	}
	if _, err := s.Append(ctx, AppendInput{Scope: DirectScope("c"), Sender: "a@x"}); err == nil {
		t.Fatalf("empty body must be rejected")
	}
}

func TestInMemoryStore_HistoryPagesByAfterSeq(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	ctx := context.Background()
	scope := MeetingScope("meet-1")

	for i := 0; i < 5; i++ {
		if _, err := s.Append(ctx, AppendInput{Scope: scope, Sender: "a@x", Body: "m"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	out, err := s.History(ctx, HistoryInput{Scope: scope, Limit: 2})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(out.Messages) != 2 || !out.HasMore {
		t.Fatalf("first page: len=%d hasMore=%v", len(out.Messages), out.HasMore)
	}
	if out.Messages[0].Seq != 1 || out.Messages[1].Seq != 2 {
		t.Fatalf("ordering: %d,%d", out.Messages[0].Seq, out.Messages[1].Seq)
	}

	after := out.Messages[1].Seq
	out, err = s.History(ctx, HistoryInput{Scope: scope, AfterSeq: &after, Limit: 10})
	if err != nil {
		t.Fatalf("history page 2: %v", err)
	}
	if len(out.Messages) != 3 || out.HasMore {
		t.Fatalf("second page: len=%d hasMore=%v", len(out.Messages), out.HasMore)
	}
	if out.Messages[0].Seq != 3 {
		t.Fatalf("paging must resume after seq %d, got %d", after, out.Messages[0].Seq)
	}
}

func TestInMemoryStore_MarkReadMovesForwardOnly(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	ctx := context.Background()
	scope := DirectScope("conv-2")

	later := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	if err := s.MarkRead(ctx, scope, "a@x", later); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := s.MarkRead(ctx, scope, "a@x", earlier); err != nil {
		t.Fatalf("mark read older: %v", err)
	}

	got, ok := s.ReadAt(scope, "a@x")
	if !ok || !got.Equal(later) {
		t.Fatalf("cursor must not move backwards: got %v ok=%v", got, ok)
	}
}

func TestInMemoryStore_Participants(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	ctx := context.Background()

	s.SetParticipants("grp-1", []string{"c@x", "a@x", "b@x"})

	members, err := s.Participants(ctx, "grp-1")
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	want := []string{"a@x", "b@x", "c@x"}
	if len(members) != 3 {
		t.Fatalf("roster size: %d", len(members))
	}
	for i := range want {
		if members[i] != want[i] {
			t.Fatalf("roster[%d]: got %q want %q", i, members[i], want[i])
		}
	}

	if _, err := s.Participants(ctx, ""); err == nil {
		t.Fatalf("missing group id must error")
	}
}
