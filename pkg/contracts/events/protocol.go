// Package events contains message contract definitions for WebSocket
// communication in the ScaleTrend service.
package events

import (
	"encoding/json"
	"time"
)

// Protocol version
const (
	ProtocolVersion = "1.0"
	ProtocolName    = "scaletrend-window-protocol"
)

// MessageType identifies a frame on the window socket.
type MessageType string

const (
	// MessageTypeConnected is the server greeting sent once after upgrade.
	MessageTypeConnected MessageType = "connected"
	// MessageTypeWindow is a client frame selecting new date bounds.
	MessageTypeWindow MessageType = "window"
	// MessageTypeSummary is a server frame carrying a recomputed summary.
	MessageTypeSummary MessageType = "summary"
	// MessageTypeError is a server frame carrying a structured error.
	MessageTypeError MessageType = "error"
	// MessageTypePing and MessageTypePong keep idle connections alive at the
	// application level for clients that cannot send control frames.
	MessageTypePing MessageType = "ping"
	MessageTypePong MessageType = "pong"
)

// ConnectedPayload is the payload of the greeting frame.
type ConnectedPayload struct {
	ClientID string `json:"client_id"`
	Protocol string `json:"protocol"`
}

// Frame is the envelope every message on the window socket travels in.
type Frame struct {
	Version   string          `json:"version"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	TraceID   string          `json:"trace_id,omitempty"`
}

// ProtocolError is the payload of an error frame.
type ProtocolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

// Protocol error codes
const (
	ErrCodeInvalidFrame    = "INVALID_FRAME"
	ErrCodeUnknownAnalysis = "UNKNOWN_ANALYSIS"
	ErrCodeInvalidWindow   = "INVALID_WINDOW"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeServerError     = "SERVER_ERROR"
)

// NewFrame wraps a marshaled payload in a protocol frame.
func NewFrame(t MessageType, payload json.RawMessage) Frame {
	return Frame{
		Version:   ProtocolVersion,
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}
