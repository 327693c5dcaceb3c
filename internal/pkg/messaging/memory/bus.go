// Package memory is an in-process messaging.Bus. Messages are queued in
// publish order and delivered when Drain is called, which makes complete
// saga runs deterministic in tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/messaging"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("memory bus: closed")

const maxDeliveries = 100000

type subscription struct {
	id      int
	group   string
	handler messaging.Handler
}

// Bus implements messaging.Bus.
type Bus struct {
	mu          sync.Mutex
	nextID      int
	subs        map[string][]subscription
	queue       []*messaging.Message
	published   []*messaging.Message
	dropped     []*messaging.Message
	maxAttempts int
	failPublish func(msg *messaging.Message) error
	closed      bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithMaxAttempts sets how many times a failing handler sees a message
// before it is dropped. Default 3.
func WithMaxAttempts(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.maxAttempts = n
		}
	}
}

// WithPublishHook lets tests fail publishes selectively.
func WithPublishHook(fn func(msg *messaging.Message) error) Option {
	return func(b *Bus) {
		b.failPublish = fn
	}
}

// New returns an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:        make(map[string][]subscription),
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish queues a copy of msg.
func (b *Bus) Publish(ctx context.Context, msg *messaging.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.failPublish != nil {
		if err := b.failPublish(msg); err != nil {
			return err
		}
	}

	cp := *msg
	cp.Data = append([]byte(nil), msg.Data...)
	if msg.Headers != nil {
		cp.Headers = make(map[string]string, len(msg.Headers))
		for k, v := range msg.Headers {
			cp.Headers[k] = v
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.queue = append(b.queue, &cp)
	b.published = append(b.published, &cp)
	return nil
}

// Subscribe registers handler for topic. A group receives each message once.
func (b *Bus) Subscribe(_ context.Context, topic, group string, handler messaging.Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs[topic] {
		if s.group == group {
			return nil, fmt.Errorf("memory bus: group %q already consumes %q", group, topic)
		}
	}

	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, group: group, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[topic]
		for i, s := range subs {
			if s.id == id {
				b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}, nil
}

// Drain delivers queued messages, including those published by handlers
// while draining, until the queue is empty.
func (b *Bus) Drain(ctx context.Context) error {
	for delivered := 0; ; delivered++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if delivered >= maxDeliveries {
			return errors.New("memory bus: delivery limit reached, is a handler looping?")
		}

		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return nil
		}
		msg := b.queue[0]
		b.queue = b.queue[1:]
		subs := append([]subscription(nil), b.subs[msg.Topic]...)
		b.mu.Unlock()

		for _, s := range subs {
			b.deliver(ctx, s, msg)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, s subscription, msg *messaging.Message) {
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		cp := *msg
		cp.Attempt = attempt
		cp.Timestamp = time.Now()

		err := s.handler(ctx, &cp)
		if err == nil {
			return
		}
		if messaging.IsPermanent(err) {
			break
		}
	}

	b.mu.Lock()
	b.dropped = append(b.dropped, msg)
	b.mu.Unlock()
}

// Published returns every message accepted so far, in publish order.
func (b *Bus) Published() []*messaging.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*messaging.Message(nil), b.published...)
}

// PublishedOn returns the messages published on topic.
func (b *Bus) PublishedOn(topic string) []*messaging.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*messaging.Message
	for _, m := range b.published {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Dropped returns messages no handler could process.
func (b *Bus) Dropped() []*messaging.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*messaging.Message(nil), b.dropped...)
}

// Close rejects further publishes.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

var _ messaging.Bus = (*Bus)(nil)
