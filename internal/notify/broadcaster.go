package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"leadintake/internal/logger"
	"leadintake/pkg/errors"
	"leadintake/pkg/metrics"
)

const relayTimeout = 2 * time.Second

// Broadcaster delivers lead notifications to this instance's subscribers and,
// with a relay, to every other instance. Delivery is best effort.
type Broadcaster struct {
	hub    *Hub
	relay  Relay
	origin string
	logger logger.Logger
}

func NewBroadcaster(hub *Hub, relay Relay, log logger.Logger) *Broadcaster {
	return &Broadcaster{
		hub:    hub,
		relay:  relay,
		origin: uuid.NewString(),
		logger: log,
	}
}

// Notify never fails and never waits on the network: local subscribers are
// served from a non-blocking queue and the relay publish runs detached.
func (b *Broadcaster) Notify(ctx context.Context, tenantID string, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.failed(ctx, errors.RecoverPanic(r), tenantID)
		}
	}()

	msg := NewMessage(ev, time.Now())
	if _, err := b.hub.Deliver(tenantID, msg); err != nil {
		b.failed(ctx, err, tenantID)
		return
	}

	if b.relay == nil {
		return
	}
	data, err := json.Marshal(relayed{Origin: b.origin, TenantID: tenantID, Message: msg})
	if err != nil {
		b.failed(ctx, err, tenantID)
		return
	}

	detached := context.WithoutCancel(ctx)
	errors.SafeGo(func() {
		pubCtx, cancel := context.WithTimeout(detached, relayTimeout)
		defer cancel()
		if err := b.relay.Publish(pubCtx, data); err != nil {
			metrics.IncNotification("relay_error")
			b.failed(detached, err, tenantID)
		}
	}, func(err error) {
		b.failed(detached, err, tenantID)
	})
}

// Run feeds notifications relayed by other instances to local subscribers
// until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	if b.relay == nil {
		<-ctx.Done()
		return nil
	}
	return b.relay.Subscribe(ctx, b.receive)
}

func (b *Broadcaster) receive(data []byte) {
	var r relayed
	if err := json.Unmarshal(data, &r); err != nil {
		metrics.IncNotification("error")
		b.logger.Warnw("Discarding undecodable relayed notification", "error", err)
		return
	}
	if r.Origin == b.origin {
		return
	}
	if _, err := b.hub.Deliver(r.TenantID, r.Message); err != nil {
		b.failed(context.Background(), err, r.TenantID)
	}
}

func (b *Broadcaster) failed(ctx context.Context, err error, tenantID string) {
	metrics.IncNotification("error")
	b.logger.WarnwCtx(ctx, "Notification not delivered",
		"error", errors.ErrNotification.WithCause(err),
		"tenant_id", tenantID,
	)
}
