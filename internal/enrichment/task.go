package enrichment

import (
	"encoding/json"
	"fmt"
	"time"

	"leadintake/internal/lead"
	"leadintake/pkg/models"
)

const MessageType = "lead.enrichment"

// Task is the deferred full-field write that follows a minimal insert.
type Task struct {
	LeadID    string      `json:"lead_id"`
	TenantID  string      `json:"tenant_id"`
	Fields    lead.Fields `json:"fields"`
	CreatedAt time.Time   `json:"created_at"`
}

func (t Task) Validate() error {
	if t.LeadID == "" || t.TenantID == "" {
		return fmt.Errorf("enrichment task needs lead_id and tenant_id")
	}
	return nil
}

// Envelope wraps the task for the broker. The envelope ID is the lead ID so
// tasks of one lead land on one partition.
func (t Task) Envelope(source, requestID, traceID string) (models.MessageEnvelope, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return models.MessageEnvelope{}, fmt.Errorf("failed to encode enrichment task: %w", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.MessageEnvelope{}, fmt.Errorf("failed to encode enrichment task: %w", err)
	}

	env := models.NewMessageEnvelopeBuilder().
		WithID(t.LeadID).
		WithSource(source).
		WithType(MessageType).
		WithPayload(payload).
		WithTenantID(t.TenantID).
		WithRequestID(requestID).
		WithTraceID(traceID).
		Build()
	return *env, nil
}

// FromEnvelope decodes a task published by Envelope.
func FromEnvelope(msg models.MessageEnvelope) (Task, error) {
	var t Task
	body, err := json.Marshal(msg.Payload)
	if err != nil {
		return t, fmt.Errorf("failed to read enrichment payload: %w", err)
	}
	if err := json.Unmarshal(body, &t); err != nil {
		return t, fmt.Errorf("failed to decode enrichment payload: %w", err)
	}
	if t.TenantID == "" {
		t.TenantID = msg.Metadata.TenantID
	}
	return t, t.Validate()
}
