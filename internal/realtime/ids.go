package realtime

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// newULID returns a 26-char ULID. ULIDs are lexicographically sortable which
// makes connection and message ids pleasant to trace in logs.
func newULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewConnID returns the ULID used as a connection id.
func NewConnID(now time.Time) (string, error) {
	return newULID(now)
}

// NewServerMsgID returns the ULID stamped on persisted messages.
func NewServerMsgID(now time.Time) (string, error) {
	return newULID(now)
}
