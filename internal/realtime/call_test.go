package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	rtcv1 "github.com/MoiChung-nwc/Chunk-Meet/contracts/rtc/v1"
)

// callSink records frames delivered per identity.
type callSink struct {
	mu     sync.Mutex
	frames map[string][]rtcv1.CallEvent
}

func newCallSink() *callSink {
	return &callSink{frames: make(map[string][]rtcv1.CallEvent)}
}

func (s *callSink) send(identity string, payload []byte) bool {
	var ev rtcv1.CallEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return false
	}
	s.mu.Lock()
	s.frames[identity] = append(s.frames[identity], ev)
	s.mu.Unlock()
	return true
}

func (s *callSink) events(identity string) []rtcv1.CallEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rtcv1.CallEvent(nil), s.frames[identity]...)
}

func (s *callSink) waitFor(t *testing.T, identity, wantType string, timeout time.Duration) rtcv1.CallEvent {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, ev := range s.events(identity) {
			if ev.Type == wantType {
				return ev
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("no %q delivered to %s within %v; got %+v", wantType, identity, timeout, s.events(identity))
	return rtcv1.CallEvent{}
}

func alwaysOnline(string) bool { return true }
func neverOnline(string) bool  { return false }

func testCallRelay() *Relay {
	return NewRelay(testLogger(), NewPresence(testLogger()), nil, "call")
}

func TestCoordinator_StartOfflineCalleeFailsImmediately(t *testing.T) {
	t.Parallel()

	sink := newCallSink()
	c := NewCoordinator(testLogger(), neverOnline, neverOnline, sink.send, nil)

	c.Start("caller@x", "callee@x", testCallRelay())

	ev := sink.waitFor(t, "caller@x", rtcv1.TypeCallFailed, time.Second)
	if ev.Reason != "offline" {
		t.Fatalf("want reason offline, got %q", ev.Reason)
	}
	if len(sink.events("callee@x")) != 0 {
		t.Fatalf("offline callee must not be invited")
	}
}

func TestCoordinator_StartOnlineCalleeGetsInvite(t *testing.T) {
	t.Parallel()

	sink := newCallSink()
	c := NewCoordinator(testLogger(), alwaysOnline, alwaysOnline, sink.send, nil)

	c.Start("caller@x", "callee@x", testCallRelay())

	ev := sink.waitFor(t, "callee@x", rtcv1.TypeIncomingCall, time.Second)
	if ev.From != "caller@x" {
		t.Fatalf("invite must carry the caller, got %q", ev.From)
	}
}

func TestCoordinator_AcceptNotifiesCallerOnceWhenReadyOnRetry(t *testing.T) {
	t.Parallel()

	sink := newCallSink()

	var mu sync.Mutex
	probes := 0
	ready := func(string) bool {
		mu.Lock()
		defer mu.Unlock()
		probes++
		return probes >= 2
	}

	c := NewCoordinator(testLogger(), alwaysOnline, ready, sink.send, nil,
		WithReadyProbe(3, 5*time.Millisecond))

	c.Accept("callee@x", "caller@x", testCallRelay())

	ev := sink.waitFor(t, "caller@x", rtcv1.TypeAcceptCall, time.Second)
	if ev.From != "callee@x" {
		t.Fatalf("accept must carry the acceptor, got %q", ev.From)
	}

	// Give a superseded probe time to misfire if the once-guard were broken.
	time.Sleep(30 * time.Millisecond)
	count := 0
	for _, e := range sink.events("caller@x") {
		if e.Type == rtcv1.TypeAcceptCall {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("caller must be notified exactly once, got %d", count)
	}
}

func TestCoordinator_AcceptNeverReadyStaysSilent(t *testing.T) {
	t.Parallel()

	sink := newCallSink()
	c := NewCoordinator(testLogger(), alwaysOnline, neverOnline, sink.send, nil,
		WithReadyProbe(2, 5*time.Millisecond))

	c.Accept("callee@x", "caller@x", testCallRelay())

	// Exhausted probes are logged and counted, never notified; the pending
	// entry is cleared so a later accept can try again.
	time.Sleep(50 * time.Millisecond)
	if evs := sink.events("caller@x"); len(evs) != 0 {
		t.Fatalf("exhausted probe must not notify the caller, got %+v", evs)
	}

	c.mu.Lock()
	pending := len(c.pending)
	c.mu.Unlock()
	if pending != 0 {
		t.Fatalf("pending map must be cleared after exhaustion, got %d", pending)
	}
}

func TestCoordinator_HangupCancelsPendingAccept(t *testing.T) {
	t.Parallel()

	sink := newCallSink()

	// Readiness stays false long enough for the hangup to land first.
	c := NewCoordinator(testLogger(), alwaysOnline, neverOnline, sink.send, nil,
		WithReadyProbe(50, 10*time.Millisecond))

	relay := testCallRelay()
	c.Accept("callee@x", "caller@x", relay)
	c.Hangup("caller@x", "callee@x", relay)

	sink.waitFor(t, "callee@x", rtcv1.TypeHangup, time.Second)

	time.Sleep(50 * time.Millisecond)
	for _, ev := range sink.events("caller@x") {
		if ev.Type == rtcv1.TypeAcceptCall || ev.Type == rtcv1.TypeCallFailed {
			t.Fatalf("cancelled probe must stay silent, got %+v", ev)
		}
	}
}

func TestCoordinator_SelfCallIsRejected(t *testing.T) {
	t.Parallel()

	sink := newCallSink()
	c := NewCoordinator(testLogger(), alwaysOnline, alwaysOnline, sink.send, nil)

	relay := testCallRelay()
	c.Start("a@x", "a@x", relay)
	c.Accept("a@x", "a@x", relay)
	c.Hangup("a@x", "a@x", relay)

	time.Sleep(20 * time.Millisecond)
	if len(sink.events("a@x")) != 0 {
		t.Fatalf("self-addressed control frames must be dropped")
	}
}
