package realtime

import (
	"context"
	"fmt"
	"log/slog"

	rtcv1 "github.com/MoiChung-nwc/Chunk-Meet/contracts/rtc/v1"
)

// FileHandler drives the /ws/file endpoint. File transfer rides its own
// WebRTC data channel; the server only relays the negotiation frames and the
// transfer control messages, never file bytes.
type FileHandler struct {
	log      *slog.Logger
	presence *Presence
	signal   *SignalRelay
}

// NewFileHandler wires the file-transfer signaling plane together.
func NewFileHandler(log *slog.Logger, presence *Presence, relay *Relay, metrics *Metrics) *FileHandler {
	return &FileHandler{
		log:      log,
		presence: presence,
		signal:   NewSignalRelay(log, presence.IsOnline, relay.ToIdentity, metrics, "file"),
	}
}

func (h *FileHandler) Connected(_ context.Context, conn *Conn) error {
	h.presence.Register(conn.Identity, conn)
	return nil
}

func (h *FileHandler) Closed(conn *Conn, _ string) {
	h.presence.Unregister(conn.Identity, conn)
}

func (h *FileHandler) Message(_ context.Context, conn *Conn, in rtcv1.Inbound) error {
	switch in.Type {
	case rtcv1.TypeFileOffer, rtcv1.TypeFileAnswer, rtcv1.TypeFileCancel,
		rtcv1.TypeOffer, rtcv1.TypeAnswer, rtcv1.TypeICE, rtcv1.TypeICECandidate:
		return h.signal.Forward(conn.Identity, in)
	default:
		return fmt.Errorf("unsupported type: %s", in.Type)
	}
}
