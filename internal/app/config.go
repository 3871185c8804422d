package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Handshake auth. When the PASETO public key is unset the server falls
	// back to the dev authenticator, which treats tokens as emails.
	AuthPasetoPublicKeyHex string
	AuthIssuer             string
	AuthClockSkew          time.Duration

	WSOriginRequired bool
	WSAllowedOrigins []string
	WSDevInsecure    bool

	WSWriteTimeout      time.Duration
	WSReadIdleTimeout   time.Duration
	WSSendQueue         int
	WSHeartbeatInterval time.Duration
	WSHeartbeatTimeout  time.Duration
	WSRateEvents        int
	WSRateWindow        time.Duration

	CallReadyAttempts int
	CallReadyInterval time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("CM_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("CM_LOG_LEVEL", "info"),
		LogFormat: EnvString("CM_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("CM_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("CM_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("CM_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("CM_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("CM_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("CM_DATABASE_URL", ""),
		DBSchema:    EnvString("CM_DB_SCHEMA", "chunkmeet"),
		DBMaxConns:  EnvInt32("CM_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("CM_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("CM_READINESS_REQUIRE_DB", false),

		AuthPasetoPublicKeyHex: EnvString("CM_AUTH_PASETO_PUBLIC_KEY", ""),
		AuthIssuer:             EnvString("CM_AUTH_ISSUER", "chunkmeet-identity"),
		AuthClockSkew:          EnvDuration("CM_AUTH_CLOCK_SKEW", 30*time.Second),

		WSOriginRequired: EnvBool("CM_WS_ORIGIN_REQUIRED", true),
		WSAllowedOrigins: EnvCSV("CM_WS_ALLOWED_ORIGINS", "http://localhost,http://127.0.0.1"),
		WSDevInsecure:    EnvBool("CM_WS_DEV_INSECURE", false),

		WSWriteTimeout:      EnvDuration("CM_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadIdleTimeout:   EnvDuration("CM_WS_READ_IDLE_TIMEOUT", 2*time.Minute),
		WSSendQueue:         EnvInt("CM_WS_SEND_QUEUE", 256),
		WSHeartbeatInterval: EnvDuration("CM_WS_HEARTBEAT_INTERVAL", 25*time.Second),
		WSHeartbeatTimeout:  EnvDuration("CM_WS_HEARTBEAT_TIMEOUT", 5*time.Second),
		WSRateEvents:        EnvInt("CM_WS_RATE_EVENTS", 120),
		WSRateWindow:        EnvDuration("CM_WS_RATE_WINDOW", 10*time.Second),

		CallReadyAttempts: EnvInt("CM_CALL_READY_ATTEMPTS", 3),
		CallReadyInterval: EnvDuration("CM_CALL_READY_INTERVAL", time.Second),
	}
}
