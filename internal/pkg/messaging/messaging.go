// Package messaging defines the publish/subscribe port the saga services talk
// through. Implementations live in the nats (JetStream) and memory packages.
package messaging

import (
	"context"
	"errors"
	"time"
)

// Message is one envelope travelling on a topic.
type Message struct {
	// Topic is the logical channel name (e.g. "payment_success").
	Topic string

	// Key orders messages: two messages with the same key are delivered to a
	// topic's consumers in publish order. The saga uses the transaction id.
	Key string

	// ID deduplicates re-publishes of the same hop. Optional.
	ID string

	// Data is the serialised payload.
	Data []byte

	// Headers carry request ids and trace context.
	Headers map[string]string

	// Attempt is the 1-based delivery attempt, filled in by subscribers.
	Attempt int

	// Timestamp is when the message was received.
	Timestamp time.Time
}

// Header returns the header value for key, or "" if absent.
func (m *Message) Header(key string) string {
	if m == nil || m.Headers == nil {
		return ""
	}
	return m.Headers[key]
}

// SetHeader sets a header, allocating the map on first use.
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}

// Handler processes a received message.
//
// Returning nil acknowledges the message. Returning an error makes it
// eligible for redelivery, unless the error is wrapped with Permanent.
type Handler func(ctx context.Context, msg *Message) error

// Publisher publishes messages. Publish must not return before the broker
// has accepted the message.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// Subscriber binds handlers to topics.
type Subscriber interface {
	// Subscribe starts a durable consumer named group on topic. The returned
	// function stops it.
	Subscribe(ctx context.Context, topic, group string, handler Handler) (func(), error)
}

// Bus combines both sides of the broker connection.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// ErrPermanent marks a failure redelivery cannot fix.
var ErrPermanent = errors.New("permanent failure")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() []error { return []error{e.err, ErrPermanent} }

// Permanent wraps err so subscribers drop the message instead of redelivering it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
