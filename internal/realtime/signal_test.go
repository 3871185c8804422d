package realtime

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	rtcv1 "github.com/MoiChung-nwc/Chunk-Meet/contracts/rtc/v1"
)

type signalSink struct {
	mu     sync.Mutex
	frames map[string][][]byte
}

func newSignalSink() *signalSink {
	return &signalSink{frames: make(map[string][][]byte)}
}

func (s *signalSink) send(identity string, payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[identity] = append(s.frames[identity], payload)
	return true
}

func (s *signalSink) got(identity string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.frames[identity]...)
}

func decodeInbound(t *testing.T, raw string) rtcv1.Inbound {
	t.Helper()
	in, err := rtcv1.DecodeInbound([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return in
}

func TestSignalRelay_StampsAuthenticatedSender(t *testing.T) {
	t.Parallel()

	sink := newSignalSink()
	sr := NewSignalRelay(testLogger(), alwaysOnline, sink.send, nil, "signaling")

	// The client lies about "from"; the relay must overwrite it.
	in := decodeInbound(t, `{"type":"offer","from":"mallory@x","to":"bob@x","sdp":"v=0 fake"}`)
	if err := sr.Forward("alice@x", in); err != nil {
		t.Fatalf("forward: %v", err)
	}

	frames := sink.got("bob@x")
	if len(frames) != 1 {
		t.Fatalf("want 1 frame, got %d", len(frames))
	}

	var out map[string]any
	if err := json.Unmarshal(frames[0], &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["from"] != "alice@x" {
		t.Fatalf("from must be the authenticated sender, got %v", out["from"])
	}
	if out["sdp"] != "v=0 fake" {
		t.Fatalf("opaque payload fields must survive, got %v", out["sdp"])
	}
}

func TestSignalRelay_ForwardsNullCandidate(t *testing.T) {
	t.Parallel()

	sink := newSignalSink()
	sr := NewSignalRelay(testLogger(), alwaysOnline, sink.send, nil, "signaling")

	// A null candidate is the end-of-candidates marker and must reach the peer.
	in := decodeInbound(t, `{"type":"ice-candidate","to":"bob@x","candidate":null}`)
	if err := sr.Forward("alice@x", in); err != nil {
		t.Fatalf("forward: %v", err)
	}

	frames := sink.got("bob@x")
	if len(frames) != 1 {
		t.Fatalf("null candidate was dropped")
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(frames[0], &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	raw, ok := out["candidate"]
	if !ok || string(raw) != "null" {
		t.Fatalf("candidate must stay null, got %q present=%v", raw, ok)
	}
}

func TestSignalRelay_DropsSelfAddressed(t *testing.T) {
	t.Parallel()

	sink := newSignalSink()
	sr := NewSignalRelay(testLogger(), alwaysOnline, sink.send, nil, "signaling")

	in := decodeInbound(t, `{"type":"offer","to":"alice@x"}`)
	if err := sr.Forward("alice@x", in); err != nil {
		t.Fatalf("self drop should be silent: %v", err)
	}
	if len(sink.got("alice@x")) != 0 {
		t.Fatalf("self-addressed frame must not be delivered")
	}
}

func TestSignalRelay_DropsOfflinePeer(t *testing.T) {
	t.Parallel()

	sink := newSignalSink()
	sr := NewSignalRelay(testLogger(), neverOnline, sink.send, nil, "signaling")

	in := decodeInbound(t, `{"type":"answer","to":"bob@x"}`)
	if err := sr.Forward("alice@x", in); err != nil {
		t.Fatalf("offline drop should be silent: %v", err)
	}
	if len(sink.got("bob@x")) != 0 {
		t.Fatalf("offline peer must not receive frames")
	}
}

func TestSignalRelay_CountsPreDeliveryDrops(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	sink := newSignalSink()
	sr := NewSignalRelay(testLogger(), neverOnline, sink.send, metrics, "signaling")

	if err := sr.Forward("alice@x", decodeInbound(t, `{"type":"offer","to":"alice@x"}`)); err != nil {
		t.Fatalf("self drop: %v", err)
	}
	if err := sr.Forward("alice@x", decodeInbound(t, `{"type":"offer","to":"bob@x"}`)); err != nil {
		t.Fatalf("offline drop: %v", err)
	}

	got := testutil.ToFloat64(metrics.dropped.WithLabelValues("signaling"))
	if got != 2 {
		t.Fatalf("dropped counter: got %v want 2", got)
	}
}

func TestSignalRelay_MissingRecipientErrors(t *testing.T) {
	t.Parallel()

	sr := NewSignalRelay(testLogger(), alwaysOnline, newSignalSink().send, nil, "signaling")

	in := decodeInbound(t, `{"type":"offer"}`)
	if err := sr.Forward("alice@x", in); err == nil {
		t.Fatalf("missing to must be an error")
	}
}
