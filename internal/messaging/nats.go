// Package messaging provides the NATS JetStream transport used to deliver
// trip events at-least-once.
package messaging

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Stream and subject layout. Trip events are partitioned by entity id at
// publish time, so ordering holds per id within a partition but retries and
// replays can still reorder deliveries; the reconciler tolerates that.
const (
	TripStream   = "TRIPS"
	TripSubjects = "trips.events.>"
	TripQueue    = "trip-ingest"

	DLQStream   = "TRIPS_DLQ"
	DLQSubjects = "trips.dlq.>"
)

// EventSubject returns the publish subject for one event's entity id.
func EventSubject(entityID string) string {
	if entityID == "" {
		return "trips.events.unknown"
	}
	return fmt.Sprintf("trips.events.%s", entityID)
}

// Config holds NATS connection configuration.
type Config struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultConfig returns sensible connection defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "tripstream",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Client wraps a NATS connection with JetStream enabled.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// Connect establishes the connection and JetStream context.
func Connect(cfg Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return &Client{conn: conn, js: js}, nil
}

// EnsureStream creates or updates a durable stream for the given subjects.
func (c *Client) EnsureStream(ctx context.Context, name string, subjects []string) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create/update stream %s: %w", name, err)
	}
	return stream, nil
}

// EnsureConsumer creates or updates a durable explicit-ack consumer.
// Unacknowledged messages are redelivered after the ack wait, which is what
// gives the pipeline its at-least-once delivery.
func (c *Client) EnsureConsumer(ctx context.Context, streamName, durable string) (jetstream.Consumer, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", streamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          durable,
		Durable:       durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    -1,
		MaxAckPending: 1000,
	})
	if err != nil {
		return nil, fmt.Errorf("create/update consumer %s: %w", durable, err)
	}
	return consumer, nil
}

// Publish sends a message and waits for the stream's acknowledgment.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error) {
	return c.js.Publish(ctx, subject, data)
}

// IsConnected reports connection health.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Drain gracefully closes the connection, letting in-flight messages finish.
func (c *Client) Drain() error {
	return c.conn.Drain()
}

// Close closes the connection immediately.
func (c *Client) Close() {
	c.conn.Close()
}
