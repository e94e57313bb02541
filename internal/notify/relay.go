package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"leadintake/internal/config"
	"leadintake/internal/constants"
)

// Relay fans notifications out to every instance of the service.
type Relay interface {
	Publish(ctx context.Context, data []byte) error
	// Subscribe calls fn for every relayed payload until ctx is done.
	Subscribe(ctx context.Context, fn func(data []byte)) error
	Close() error
}

type RedisRelay struct {
	client  *redis.Client
	channel string
}

func NewRedisRelay(client *redis.Client, channel string) *RedisRelay {
	if channel == "" {
		channel = constants.DefaultNotificationChannel
	}
	return &RedisRelay{client: client, channel: channel}
}

func (r *RedisRelay) Publish(ctx context.Context, data []byte) error {
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

func (r *RedisRelay) Subscribe(ctx context.Context, fn func([]byte)) error {
	ps := r.client.Subscribe(ctx, r.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe failed: %w", err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn([]byte(msg.Payload))
		}
	}
}

// Close is a no-op: the redis client is shared and closed by its owner.
func (r *RedisRelay) Close() error {
	return nil
}

type NATSRelay struct {
	conn    *nats.Conn
	subject string
}

func NewNATSRelay(cfg config.NotificationsConfig) (*NATSRelay, error) {
	name := cfg.NATS.Name
	if name == "" {
		name = constants.ServiceIntake
	}
	conn, err := nats.Connect(cfg.NATS.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	subject := cfg.Channel
	if subject == "" {
		subject = constants.DefaultNotificationChannel
	}
	return &NATSRelay{conn: conn, subject: subject}, nil
}

// Conn exposes the connection for health checks.
func (r *NATSRelay) Conn() *nats.Conn {
	return r.conn
}

func (r *NATSRelay) Publish(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.conn.Publish(r.subject, data)
}

func (r *NATSRelay) Subscribe(ctx context.Context, fn func([]byte)) error {
	sub, err := r.conn.Subscribe(r.subject, func(m *nats.Msg) {
		fn(m.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe failed: %w", err)
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}

func (r *NATSRelay) Close() error {
	r.conn.Close()
	return nil
}
