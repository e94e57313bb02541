package models

import "time"

// MessageEnvelope is the wire format of every message on the broker.
type MessageEnvelope struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	Type      string                 `json:"type,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
	Metadata  Metadata               `json:"metadata"`
}

type Metadata struct {
	TraceID   string `json:"trace_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	// Attempts counts deliveries that already failed and were re-published.
	Attempts int                    `json:"attempts,omitempty"`
	DLQ      map[string]interface{} `json:"dlq,omitempty"`
}
