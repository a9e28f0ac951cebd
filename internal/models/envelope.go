package models

import (
	"encoding/json"
	"time"
)

// Envelope is the uniform response shape returned by every vendor proxy.
// Payload keys (data, articles, results) and echoed request fields live in Fields.
type Envelope struct {
	Success   bool
	Error     string
	Timestamp time.Time
	Fields    map[string]any
}

// NewSuccess builds a successful envelope carrying payload under payloadKey.
func NewSuccess(payloadKey string, payload any, now time.Time) *Envelope {
	return &Envelope{
		Success:   true,
		Timestamp: now,
		Fields:    map[string]any{payloadKey: payload},
	}
}

// NewFailure builds an error envelope. Failed envelopes never carry payload fields.
func NewFailure(message string, now time.Time) *Envelope {
	return &Envelope{
		Success:   false,
		Error:     message,
		Timestamp: now,
	}
}

// With echoes a request field into the envelope.
func (e *Envelope) With(key string, value any) *Envelope {
	if !e.Success {
		return e
	}
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// MarshalJSON flattens Fields next to success/error/timestamp.
func (e Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["success"] = e.Success
	out["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	if !e.Success {
		out["error"] = e.Error
	}
	return json.Marshal(out)
}
