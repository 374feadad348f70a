package comm

import (
	"encoding/json"
)

// Message types exchanged with web clients and over NATS.
const (
	TypeStart     = "start"
	TypeSkip      = "skip"
	TypeStop      = "stop"
	TypeFrame     = "frame"
	TypeCountdown = "countdown"
	TypeStopped   = "stopped"
	TypeError     = "error"
	TypeRefresh   = "qr-refresh"
)

type WSMessage struct {
	Type     string          `json:"type"` // e.g. "start", "frame"
	Data     json.RawMessage `json:"data,omitempty"`
	SocketId string          `json:"socketid"`
}

// NewMessage marshals data into a WSMessage of type t.
func NewMessage(t, socketId string, data interface{}) (*WSMessage, error) {
	msg := &WSMessage{Type: t, SocketId: socketId}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return msg, nil
}

type Frame struct {
	Payload   string `json:"payload"`
	Image     string `json:"image"` // data:image/png;base64,...
	Timestamp int64  `json:"timestamp"`
	Seq       uint64 `json:"seq"`
}

type Countdown struct {
	Remaining int `json:"remaining"`
}

// Error codes let clients react to a failure without matching its text.
const (
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeMissingFields  = "missing_fields"
	ErrCodeStorage        = "storage"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeRefresh        = "refresh_failed"
)

type ErrorData struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// RefreshEvent is published for every rendered frame. It never carries the constant.
type RefreshEvent struct {
	SocketId   string `json:"socketid"`
	CardNumber string `json:"card_number"`
	Timestamp  int64  `json:"timestamp"`
	Suffix     string `json:"suffix"`
	Seq        uint64 `json:"seq"`
}
