package realtime

import "time"

// Security/performance limits shared across the websocket gateways.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// Max chat message length (runes).
	maxMessageChars = 4000

	defaultSendQueueSize = 256
	minSendQueueSize     = 32

	defaultWriteTimeout = 5 * time.Second
	defaultReadIdle     = 2 * time.Minute
	closeGrace          = 1 * time.Second

	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	maxPingFailures = 3
)

const (
	// Heartbeat defaults (overridable via config).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)

const (
	// Shard counts for the presence and room registries. Bucketed locking keeps
	// unrelated identities/rooms from contending on one mutex.
	presenceShards = 32
	roomShards     = 32
)

const (
	// Call-acceptance readiness probe: bounded retries with a fixed delay,
	// because acceptance and signaling-socket readiness can race.
	callReadyAttempts = 3
	callReadyInterval = 1 * time.Second
)
