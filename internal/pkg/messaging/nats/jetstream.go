// Package nats implements messaging.Bus on NATS JetStream.
//
// All saga topics are captured by one stream, retained for a day whether or
// not a consumer exists yet. Each (group, topic) pair gets its own durable
// consumer with explicit acks: a nil handler result acks, a permanent error
// terminates the message and any other error naks it for redelivery after
// RetryDelay, up to MaxDeliver attempts.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/messaging"
)

// Config holds the connection, stream and consumer settings.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name identifies the connection on the server.
	Name string

	// Stream is the JetStream stream capturing every topic.
	Stream string

	// Topics are the subjects the stream captures.
	Topics []string

	// MaxReconnects is the maximum number of reconnection attempts. -1 is infinite.
	MaxReconnects int

	// ReconnectWait is the pause between reconnection attempts.
	ReconnectWait time.Duration

	// AckWait is how long the server waits for an ack before redelivering.
	AckWait time.Duration

	// MaxDeliver bounds delivery attempts per message.
	MaxDeliver int

	// RetryDelay is the nak delay applied when a handler fails.
	RetryDelay time.Duration

	// DuplicateWindow is how long the stream remembers message ids.
	DuplicateWindow time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:             nats.DefaultURL,
		Name:            "saga-client",
		Stream:          "SAGA",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		AckWait:         30 * time.Second,
		MaxDeliver:      5,
		RetryDelay:      2 * time.Second,
		DuplicateWindow: 2 * time.Minute,
	}
}

// Bus is a JetStream-backed messaging.Bus.
type Bus struct {
	cfg    Config
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger

	mu        sync.Mutex
	consumers []jetstream.ConsumeContext
}

// Connect dials NATS and creates or updates the stream.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("nats: create JetStream context: %w", err)
	}

	bus := &Bus{cfg: cfg, conn: conn, js: js, logger: logger}
	if err := bus.ensureStream(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return bus, nil
}

// streamConfig keeps messages by age rather than by consumer interest, so a
// topic published before its consumer group first subscribes is still
// delivered once that group comes up.
func streamConfig(cfg Config) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   cfg.Topics,
		Retention:  jetstream.LimitsPolicy,
		Storage:    jetstream.FileStorage,
		MaxAge:     24 * time.Hour,
		Duplicates: cfg.DuplicateWindow,
	}
}

func (b *Bus) ensureStream(ctx context.Context) error {
	_, err := b.js.CreateOrUpdateStream(ctx, streamConfig(b.cfg))
	if err != nil {
		return fmt.Errorf("nats: create/update stream %s: %w", b.cfg.Stream, err)
	}
	return nil
}

// Publish sends msg and waits for the stream ack.
func (b *Bus) Publish(ctx context.Context, msg *messaging.Message) error {
	var opts []jetstream.PublishOpt
	if msg.ID != "" {
		opts = append(opts, jetstream.WithMsgID(msg.ID))
	}
	if _, err := b.js.PublishMsg(ctx, toNatsMsg(msg), opts...); err != nil {
		return fmt.Errorf("nats: publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe creates (or resumes) the durable consumer for group on topic.
func (b *Bus) Subscribe(ctx context.Context, topic, group string, handler messaging.Handler) (func(), error) {
	name := ConsumerName(group, topic)
	consumer, err := b.js.CreateOrUpdateConsumer(ctx, b.cfg.Stream, jetstream.ConsumerConfig{
		Name:          name,
		Durable:       name,
		FilterSubject: topic,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       b.cfg.AckWait,
		MaxDeliver:    b.cfg.MaxDeliver,
		MaxAckPending: 256,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats: create/update consumer %s: %w", name, err)
	}

	cc, err := consumer.Consume(func(jm jetstream.Msg) {
		msg := fromJetStream(jm)
		err := handler(ctx, msg)
		switch {
		case err == nil:
			if ackErr := jm.Ack(); ackErr != nil {
				b.logger.Error("ack failed", "topic", topic, "error", ackErr)
			}
		case messaging.IsPermanent(err):
			b.logger.Error("message dropped", "topic", topic, "transaction_id", msg.Key, "error", err)
			_ = jm.Term()
		default:
			b.logger.Warn("message will be redelivered",
				"topic", topic,
				"transaction_id", msg.Key,
				"attempt", msg.Attempt,
				"error", err,
			)
			_ = jm.NakWithDelay(b.cfg.RetryDelay)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats: consume %s: %w", name, err)
	}

	b.mu.Lock()
	b.consumers = append(b.consumers, cc)
	b.mu.Unlock()

	return cc.Stop, nil
}

// Close stops all consumers and drains the connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	for _, cc := range b.consumers {
		cc.Stop()
	}
	b.consumers = nil
	b.mu.Unlock()

	return b.conn.Drain()
}

// IsConnected reports the connection state for health checks.
func (b *Bus) IsConnected() bool {
	return b.conn.IsConnected()
}

// ErrDisconnected is returned by Ping while the client is reconnecting.
var ErrDisconnected = errors.New("nats: not connected")

// Ping fits httpserver.CheckFunc.
func (b *Bus) Ping(context.Context) error {
	if !b.IsConnected() {
		return ErrDisconnected
	}
	return nil
}

// ConsumerName derives a durable consumer name. Durable names may not
// contain '.', '*', '>' or whitespace.
func ConsumerName(group, topic string) string {
	r := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_")
	return r.Replace(group + "-" + topic)
}

func toNatsMsg(msg *messaging.Message) *nats.Msg {
	nm := nats.NewMsg(msg.Topic)
	nm.Data = msg.Data
	for k, v := range msg.Headers {
		nm.Header.Set(k, v)
	}
	if msg.Key != "" {
		nm.Header.Set(headerKey, msg.Key)
	}
	return nm
}

const headerKey = "Saga-Key"

func fromJetStream(jm jetstream.Msg) *messaging.Message {
	msg := &messaging.Message{
		Topic:     jm.Subject(),
		Data:      jm.Data(),
		Attempt:   1,
		Timestamp: time.Now(),
	}
	headers := jm.Headers()
	if len(headers) > 0 {
		msg.Headers = make(map[string]string, len(headers))
		for k := range headers {
			if k == headerKey {
				msg.Key = headers.Get(k)
				continue
			}
			msg.Headers[k] = headers.Get(k)
		}
	}
	if md, err := jm.Metadata(); err == nil && md != nil {
		msg.Attempt = int(md.NumDelivered)
		msg.Timestamp = md.Timestamp
	}
	return msg
}

var _ messaging.Bus = (*Bus)(nil)
