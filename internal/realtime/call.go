package realtime

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtcv1 "github.com/MoiChung-nwc/Chunk-Meet/contracts/rtc/v1"
)

// Coordinator drives one-to-one call setup: invite, accept with a bounded
// readiness probe, reject and hangup.
//
// Accepting a call races against the acceptor's signaling socket coming up,
// so acceptance is confirmed to the caller only once the acceptor is ready on
// the signaling plane, probed a fixed number of times. The probe runs in its
// own goroutine under a context so a concurrent hangup or reject cancels it;
// no lock is held across the probe sleeps.
type Coordinator struct {
	log     *slog.Logger
	online  OnlineFunc // call-plane reachability for invites
	ready   OnlineFunc // signaling-plane readiness for acceptance
	send    SendFunc
	metrics *Metrics

	attempts int
	interval time.Duration

	mu      sync.Mutex
	pending map[string]pendingAccept
}

type pendingAccept struct {
	id     string
	cancel context.CancelFunc
}

// CoordinatorOption customizes probe behavior (mainly for tests).
type CoordinatorOption func(*Coordinator)

// WithReadyProbe overrides the readiness probe's attempt count and interval.
func WithReadyProbe(attempts int, interval time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if interval > 0 {
			c.interval = interval
		}
	}
}

// NewCoordinator wires a coordinator to the call-plane reachability check,
// the signaling-plane readiness check and the call-plane delivery function.
func NewCoordinator(log *slog.Logger, online, ready OnlineFunc, send SendFunc, metrics *Metrics, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		log:      log,
		online:   online,
		ready:    ready,
		send:     send,
		metrics:  metrics,
		attempts: callReadyAttempts,
		interval: callReadyInterval,
		pending:  make(map[string]pendingAccept),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func pairKey(a, b string) string { return a + "|" + b }

// Start invites the callee. An offline callee fails the call immediately with
// a reasoned call-failed back to the caller; the invite is never queued.
func (c *Coordinator) Start(caller, callee string, relay *Relay) {
	if callee == "" || callee == caller {
		return
	}
	if !c.online(callee) {
		c.metrics.CallFailed()
		c.log.Info("call.failed", "caller", caller, "callee", callee, "reason", "offline")
		if payload, ok := relay.Encode(rtcv1.CallEvent{Type: rtcv1.TypeCallFailed, To: callee, Reason: "offline"}); ok {
			c.send(caller, payload)
		}
		return
	}
	if payload, ok := relay.Encode(rtcv1.CallEvent{Type: rtcv1.TypeIncomingCall, From: caller}); ok {
		c.send(callee, payload)
	}
	c.log.Info("call.invite", "caller", caller, "callee", callee)
}

// Accept confirms the call to the caller once the acceptor is reachable on
// the signaling plane. The probe retries a bounded number of times; if the
// acceptor never becomes ready the failure is logged and counted, nothing is
// resurrected. The caller is notified at most once per attempt, and a
// concurrent Hangup or Reject for the pair cancels the probe before it fires.
func (c *Coordinator) Accept(callee, caller string, relay *Relay) {
	if caller == "" || caller == callee {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	attemptID := uuid.NewString()
	key := pairKey(caller, callee)

	c.mu.Lock()
	if prev, ok := c.pending[key]; ok {
		prev.cancel()
	}
	c.pending[key] = pendingAccept{id: attemptID, cancel: cancel}
	c.mu.Unlock()

	go c.probeReady(ctx, key, attemptID, callee, caller, relay)
}

func (c *Coordinator) probeReady(ctx context.Context, key, attemptID, callee, caller string, relay *Relay) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for attempt := 1; attempt <= c.attempts; attempt++ {
		select {
		case <-ctx.Done():
			c.log.Debug("call.accept_cancelled", "caller", caller, "callee", callee)
			return
		case <-timer.C:
		}

		if c.ready(callee) {
			if !c.finishAttempt(key, attemptID) {
				return
			}
			if payload, ok := relay.Encode(rtcv1.CallEvent{Type: rtcv1.TypeAcceptCall, From: callee}); ok {
				c.send(caller, payload)
			}
			c.log.Info("call.accepted", "caller", caller, "callee", callee, "probe_attempt", attempt)
			return
		}
		timer.Reset(c.interval)
	}

	if !c.finishAttempt(key, attemptID) {
		return
	}
	c.metrics.CallFailed()
	c.log.Warn("call.accept_undelivered", "caller", caller, "callee", callee, "attempts", c.attempts)
}

// finishAttempt removes the pending entry if it still belongs to this attempt
// and reports whether this attempt won the race. A superseded or cancelled
// attempt must stay silent.
func (c *Coordinator) finishAttempt(key, attemptID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.pending[key]
	if !ok || cur.id != attemptID {
		return false
	}
	delete(c.pending, key)
	return true
}

// Reject declines an invite and cancels any in-flight acceptance probe for
// the pair.
func (c *Coordinator) Reject(callee, caller string, relay *Relay) {
	if caller == "" || caller == callee {
		return
	}
	c.cancelPair(caller, callee)
	if payload, ok := relay.Encode(rtcv1.CallEvent{Type: rtcv1.TypeRejectCall, From: callee}); ok {
		c.send(caller, payload)
	}
	c.log.Info("call.rejected", "caller", caller, "callee", callee)
}

// Hangup tears the call down in either direction: it cancels acceptance
// probes for both orientations of the pair and relays the hangup to the peer.
func (c *Coordinator) Hangup(from, to string, relay *Relay) {
	if to == "" || to == from {
		return
	}
	c.cancelPair(from, to)
	if payload, ok := relay.Encode(rtcv1.CallEvent{Type: rtcv1.TypeHangup, From: from}); ok {
		c.send(to, payload)
	}
	c.log.Info("call.hangup", "from", from, "to", to)
}

// CancelAll cancels every in-flight acceptance probe involving the identity,
// in either role. Called when the identity's last call socket disappears.
func (c *Coordinator) CancelAll(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, p := range c.pending {
		caller, callee, ok := strings.Cut(key, "|")
		if !ok {
			continue
		}
		if caller == identity || callee == identity {
			p.cancel()
			delete(c.pending, key)
		}
	}
}

func (c *Coordinator) cancelPair(a, b string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range []string{pairKey(a, b), pairKey(b, a)} {
		if p, ok := c.pending[key]; ok {
			p.cancel()
			delete(c.pending, key)
		}
	}
}
