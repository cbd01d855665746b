package webui

import (
	"time"

	"eegstream/metrics"
)

// Message types pushed to live view clients.
const (
	// MessageTypeSamples carries a batch of consumed samples.
	MessageTypeSamples = "samples"

	// MessageTypeStats carries the pipeline status after each collection.
	MessageTypeStats = "stats"

	// MessageTypeInitial is sent once on connect with the current window.
	MessageTypeInitial = "initial"

	// MessageTypeError reports a server-side problem.
	MessageTypeError = "error"
)

// WSMessage is the envelope of every WebSocket message.
type WSMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NewWSMessage stamps a message with the current time.
func NewWSMessage(msgType string, data any) WSMessage {
	return WSMessage{Type: msgType, Timestamp: time.Now(), Data: data}
}

// SamplesData is a run of consecutive samples; FirstIndex is the stream
// position of Samples[0] so clients can detect gaps.
type SamplesData struct {
	FirstIndex int64     `json:"first_index"`
	Samples    []float32 `json:"samples"`
}

// InitialData is the state a client needs to draw its first frame.
type InitialData struct {
	Window SamplesData            `json:"window"`
	Points int                    `json:"points"`
	Status metrics.PipelineStatus `json:"status"`
}

// ErrorData describes an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewSamplesMessage wraps a sample batch.
func NewSamplesMessage(firstIndex int64, samples []float32) WSMessage {
	return NewWSMessage(MessageTypeSamples, SamplesData{FirstIndex: firstIndex, Samples: samples})
}

// NewStatsMessage wraps a pipeline status.
func NewStatsMessage(status metrics.PipelineStatus) WSMessage {
	return NewWSMessage(MessageTypeStats, status)
}

// NewErrorMessage wraps an error.
func NewErrorMessage(code, message string) WSMessage {
	return NewWSMessage(MessageTypeError, ErrorData{Code: code, Message: message})
}
