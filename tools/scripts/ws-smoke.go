// Package main provides a CI-friendly WebSocket smoke test for the
// Chunk-Meet realtime server.
//
// It validates:
//   - handshake auth via the token query parameter
//   - presence snapshot and user-status fanout on the chat plane
//   - direct chat delivery between two clients
//   - call invite -> accept across the call and signaling planes
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

type frame map[string]any

type smokeClient struct {
	name string
	conn *websocket.Conn
}

func main() {
	var (
		baseURL = flag.String("url", "ws://127.0.0.1:8080", "Server base URL (ws:// or wss://)")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		userA   = flag.String("user-a", "alice@smoke.test", "First identity token")
		userB   = flag.String("user-b", "bob@smoke.test", "Second identity token")
		convID  = flag.String("conv", "smoke-conv-1", "Conversation ID")
		text    = flag.String("text", "hello chunk-meet", "Message text to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	root := context.Background()

	chatA := mustConnect(root, "chat-A", *baseURL+"/ws/chat", *origin, *userA, *timeout)
	defer closeWS(chatA.conn)

	mustReceiveType(root, chatA, "online-users", *timeout)

	chatB := mustConnect(root, "chat-B", *baseURL+"/ws/chat", *origin, *userB, *timeout)
	defer closeWS(chatB.conn)

	mustReceiveType(root, chatB, "online-users", *timeout)
	status := mustReceiveType(root, chatA, "user-status", *timeout)
	if status["email"] != *userB || status["online"] != true {
		fatalf("user-status mismatch: %v", status)
	}

	if *verbose {
		fmt.Printf("chat sockets up: %s, %s\n", *userA, *userB)
	}

	mustSendJSON(root, chatA, frame{
		"type":           "chat",
		"to":             *userB,
		"conversationId": *convID,
		"message":        *text,
	}, *timeout)

	got := mustReceiveType(root, chatB, "chat", *timeout)
	if got["sender"] != *userA || got["message"] != *text {
		fatalf("chat delivery mismatch: %v", got)
	}
	if *verbose {
		fmt.Printf("chat delivered: %v\n", got)
	}

	// Call plane: B needs a call socket to be invited and a signaling socket
	// so the acceptance readiness probe can succeed.
	callA := mustConnect(root, "call-A", *baseURL+"/ws/call", *origin, *userA, *timeout)
	defer closeWS(callA.conn)
	callB := mustConnect(root, "call-B", *baseURL+"/ws/call", *origin, *userB, *timeout)
	defer closeWS(callB.conn)
	sigB := mustConnect(root, "sig-B", *baseURL+"/ws/signaling", *origin, *userB, *timeout)
	defer closeWS(sigB.conn)

	mustSendJSON(root, callA, frame{"type": "start-call", "to": *userB}, *timeout)
	invite := mustReceiveType(root, callB, "incoming-call", *timeout)
	if invite["from"] != *userA {
		fatalf("invite from mismatch: %v", invite)
	}

	mustSendJSON(root, callB, frame{"type": "accept-call", "to": *userA}, *timeout)
	accept := mustReceiveType(root, callA, "accept-call", *timeout)
	if accept["from"] != *userB {
		fatalf("accept from mismatch: %v", accept)
	}

	fmt.Printf("OK: chat conv=%s, call %s -> %s accepted\n", *convID, *userA, *userB)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin, token string, timeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, wsURL+"?token="+url.QueryEscape(token), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{origin}},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("%s: dial %s: %v", name, wsURL, err)
	}
	conn.SetReadLimit(maxReadBytes)
	return &smokeClient{name: name, conn: conn}
}

func mustSendJSON(parent context.Context, c *smokeClient, f frame, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	data, err := json.Marshal(f)
	if err != nil {
		fatalf("%s: marshal: %v", c.name, err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		fatalf("%s: write: %v", c.name, err)
	}
}

// mustReceiveType reads frames until one carries the wanted type.
// Unrelated frames (typing, presence churn) are skipped.
func mustReceiveType(parent context.Context, c *smokeClient, wantType string, timeout time.Duration) frame {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			fatalf("%s: read waiting for %q: %v", c.name, wantType, err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			fatalf("%s: bad frame %q: %v", c.name, data, err)
		}
		if f["type"] == wantType {
			return f
		}
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "smoke done")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
