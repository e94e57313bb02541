package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"leadintake/internal/constants"
	"leadintake/internal/logger"
	"leadintake/pkg/metrics"
)

const writeTimeout = 5 * time.Second

type subscriber struct {
	send    chan []byte
	dropped chan struct{}
	once    sync.Once
}

func (s *subscriber) drop() {
	s.once.Do(func() { close(s.dropped) })
}

// Hub holds the websocket subscribers of this instance, grouped by tenant.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
	accept *websocket.AcceptOptions
	logger logger.Logger
}

func NewHub(buffer int, log logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = constants.DefaultClientBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: buffer,
		// The CRM UI is served from its own origin.
		accept: &websocket.AcceptOptions{InsecureSkipVerify: true},
		logger: log,
	}
}

func (h *Hub) register(tenantID string) *subscriber {
	s := &subscriber{
		send:    make(chan []byte, h.buffer),
		dropped: make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[tenantID] == nil {
		h.subs[tenantID] = make(map[*subscriber]struct{})
	}
	h.subs[tenantID][s] = struct{}{}
	return s
}

func (h *Hub) unregister(tenantID string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[tenantID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, tenantID)
		}
	}
}

// Subscribers counts the connected subscribers of a tenant.
func (h *Hub) Subscribers(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tenantID])
}

// Deliver queues msg for every subscriber of tenantID without blocking.
// A subscriber whose buffer is full is disconnected.
func (h *Hub) Deliver(tenantID string, msg Message) (int, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}

	var slow []*subscriber
	delivered := 0

	h.mu.RLock()
	for s := range h.subs[tenantID] {
		select {
		case s.send <- b:
			delivered++
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		s.drop()
		h.unregister(tenantID, s)
		metrics.IncNotification("dropped")
	}
	if delivered > 0 {
		metrics.IncNotification("delivered")
	}
	return delivered, nil
}

// Serve upgrades the request and streams the tenant's notifications until
// the client leaves, the request context ends or the client is dropped.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, tenantID string) error {
	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	s := h.register(tenantID)
	defer h.unregister(tenantID, s)

	h.logger.DebugwCtx(r.Context(), "Notification subscriber connected", "tenant_id", tenantID)

	// Subscribers never send; CloseRead handles their control frames.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.dropped:
			h.logger.WarnwCtx(r.Context(), "Dropping slow notification subscriber", "tenant_id", tenantID)
			return conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
		case b := <-s.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
