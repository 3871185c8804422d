package realtime

import (
	"testing"
)

func TestRelay_ToIdentityDeliversToEveryConn(t *testing.T) {
	t.Parallel()

	presence := NewPresence(testLogger())
	relay := NewRelay(testLogger(), presence, nil, "chat")

	c1 := NewConn("c-1", "alice@x", 4)
	c2 := NewConn("c-2", "alice@x", 4)
	presence.Register("alice@x", c1)
	presence.Register("alice@x", c2)

	if !relay.ToIdentity("alice@x", []byte(`{"type":"ping"}`)) {
		t.Fatalf("expected at least one delivery")
	}
	for _, c := range []*Conn{c1, c2} {
		select {
		case <-c.Outbound():
		default:
			t.Fatalf("no frame queued on %s", c.ID)
		}
	}

	c1.Close()
	c2.Close()
	presence.Unregister("alice@x", c1)
	presence.Unregister("alice@x", c2)
	if relay.ToIdentity("alice@x", []byte(`{"type":"ping"}`)) {
		t.Fatalf("delivery to a closed identity must report false")
	}
}

func TestRelay_ToAllSkipsExcludedIdentity(t *testing.T) {
	t.Parallel()

	presence := NewPresence(testLogger())
	relay := NewRelay(testLogger(), presence, nil, "chat")

	a := NewConn("c-a", "a@x", 4)
	b := NewConn("c-b", "b@x", 4)
	presence.Register("a@x", a)
	presence.Register("b@x", b)

	relay.ToAll([]byte(`{"type":"ping"}`), "a@x")

	select {
	case <-a.Outbound():
		t.Fatalf("excluded identity received the broadcast")
	default:
	}
	select {
	case <-b.Outbound():
	default:
		t.Fatalf("broadcast missed b@x")
	}
}

func TestRelay_ToConnsExcludesOneConn(t *testing.T) {
	t.Parallel()

	relay := NewRelay(testLogger(), nil, nil, "meeting")

	a := NewConn("c-a", "a@x", 4)
	b := NewConn("c-b", "b@x", 4)
	c := NewConn("c-c", "c@x", 4)

	relay.ToConns([]*Conn{a, b, c}, []byte(`{"type":"ping"}`), b)

	for _, conn := range []*Conn{a, c} {
		select {
		case <-conn.Outbound():
		default:
			t.Fatalf("fan-out missed %s", conn.ID)
		}
	}
	select {
	case <-b.Outbound():
		t.Fatalf("excluded conn received the fan-out")
	default:
	}
}

func TestRelay_BackpressureDropsNotBlocks(t *testing.T) {
	t.Parallel()

	relay := NewRelay(testLogger(), nil, nil, "chat")

	slow := NewConn("c-slow", "a@x", 1)
	if !relay.ToConn(slow, []byte("one")) {
		t.Fatalf("first frame should fit")
	}
	// Queue full: the frame is dropped, the call returns immediately.
	if relay.ToConn(slow, []byte("two")) {
		t.Fatalf("second frame should be dropped")
	}
}
