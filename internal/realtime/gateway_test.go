package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	rtcv1 "github.com/MoiChung-nwc/Chunk-Meet/contracts/rtc/v1"
	"github.com/MoiChung-nwc/Chunk-Meet/internal/auth"
)

func newChatGatewayServer(t *testing.T, originRequired bool) *httptest.Server {
	t.Helper()

	store := NewInMemoryStore()
	presence := NewPresence(testLogger())
	relay := NewRelay(testLogger(), presence, nil, "chat")
	handler := NewChatHandler(testLogger(), presence, relay, store)

	gw := NewGateway(testLogger(), auth.NewStaticAuthenticator(nil), handler, nil, GatewayConfig{
		Endpoint:       "chat",
		OriginRequired: originRequired,
		AllowedOrigins: []string{"http://localhost"},
	})

	ts := httptest.NewServer(gw)
	t.Cleanup(ts.Close)
	return ts
}

func dialChat(t *testing.T, ts *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := strings.Replace(ts.URL, "http://", "ws://", 1)
	if token != "" {
		url += "?token=" + token
	}
	return websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://localhost"}},
	})
}

func readTyped(t *testing.T, c *websocket.Conn, wantType string) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			t.Fatalf("read waiting for %q: %v", wantType, err)
		}
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			t.Fatalf("bad frame %q: %v", data, err)
		}
		if probe.Type == wantType {
			return data
		}
	}
}

func TestGateway_RejectsMissingToken(t *testing.T) {
	t.Parallel()

	ts := newChatGatewayServer(t, false)

	_, resp, err := dialChat(t, ts, "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 401, got status=%d err=%v", status, err)
	}
}

func TestGateway_RejectsDisallowedOrigin(t *testing.T) {
	t.Parallel()

	ts := newChatGatewayServer(t, true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := strings.Replace(ts.URL, "http://", "ws://", 1) + "?token=a@x"
	_, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://evil.example"}},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 403, got status=%d err=%v", status, err)
	}
}

func TestGateway_ChatEndToEnd(t *testing.T) {
	t.Parallel()

	ts := newChatGatewayServer(t, false)

	a, _, err := dialChat(t, ts, "a@x")
	if err != nil {
		t.Fatalf("dial a: %v", err)
	}
	defer a.Close(websocket.StatusNormalClosure, "bye")

	readTyped(t, a, rtcv1.TypeOnlineUsers)

	b, _, err := dialChat(t, ts, "b@x")
	if err != nil {
		t.Fatalf("dial b: %v", err)
	}
	defer b.Close(websocket.StatusNormalClosure, "bye")

	readTyped(t, b, rtcv1.TypeOnlineUsers)
	readTyped(t, a, rtcv1.TypeUserStatus)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg := `{"type":"chat","to":"b@x","conversationId":"conv-ab","message":"over the wire"}`
	if err := a.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}

	var got rtcv1.ChatMessage
	if err := json.Unmarshal(readTyped(t, b, rtcv1.TypeChat), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Sender != "a@x" || got.Message != "over the wire" {
		t.Fatalf("delivered: %+v", got)
	}
}

func TestGateway_InvalidJSONGetsErrorFrame(t *testing.T) {
	t.Parallel()

	ts := newChatGatewayServer(t, false)

	a, _, err := dialChat(t, ts, "a@x")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer a.Close(websocket.StatusNormalClosure, "bye")
	readTyped(t, a, rtcv1.TypeOnlineUsers)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	var got rtcv1.Error
	if err := json.Unmarshal(readTyped(t, a, rtcv1.TypeError), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Code != "bad_message" {
		t.Fatalf("error frame: %+v", got)
	}
}
