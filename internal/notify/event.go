package notify

import "time"

const MessageTypeNewLead = "new_lead_notification"

// Event tells subscribers a lead arrived. It is never persisted.
type Event struct {
	LeadID           string `json:"leadId,omitempty"`
	Name             string `json:"name"`
	Source           string `json:"source"`
	IsNew            bool   `json:"isNew"`
	ProcessingTimeMs *int64 `json:"processingTimeMs,omitempty"`
}

// Message is the websocket frame sent to subscribers.
type Message struct {
	Type      string    `json:"type"`
	Data      Event     `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

func NewMessage(ev Event, now time.Time) Message {
	return Message{Type: MessageTypeNewLead, Data: ev, Timestamp: now.UTC()}
}

// relayed is what travels between instances.
type relayed struct {
	Origin   string  `json:"origin"`
	TenantID string  `json:"tenant_id"`
	Message  Message `json:"message"`
}
