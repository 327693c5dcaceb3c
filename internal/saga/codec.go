package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/messaging"
)

// Encode serialises the envelope to its JSON wire shape.
func Encode(e Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("saga: encode event %q: %w", e.TransactionID, err)
	}
	return b, nil
}

// Decode parses the JSON wire shape. Envelopes without a transaction id
// are rejected because nothing downstream can key them.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("saga: decode event: %w", err)
	}
	if e.TransactionID == "" {
		return Event{}, errors.New("saga: decode event: missing transactionId")
	}
	return e, nil
}

// MessageID is the dedupe id of one hop: the same envelope published twice
// to the same topic yields the same id.
func MessageID(e Event, topic Topic) string {
	return fmt.Sprintf("%s:%s:%d", e.TransactionID, topic, len(e.History))
}

// NewMessage builds the bus message for publishing e on topic, keyed by the
// transaction id.
func NewMessage(e Event, topic Topic) (*messaging.Message, error) {
	data, err := Encode(e)
	if err != nil {
		return nil, err
	}
	return &messaging.Message{
		Topic: string(topic),
		Key:   e.TransactionID,
		ID:    MessageID(e, topic),
		Data:  data,
	}, nil
}

// EventHandlerFunc handles a decoded envelope.
type EventHandlerFunc func(ctx context.Context, e Event, msg *messaging.Message) error

// EventHandler adapts fn to a messaging.Handler. Payloads that do not
// decode are dropped: redelivering them cannot help.
func EventHandler(fn EventHandlerFunc) messaging.Handler {
	return func(ctx context.Context, msg *messaging.Message) error {
		e, err := Decode(msg.Data)
		if err != nil {
			return messaging.Permanent(fmt.Errorf("topic %s: %w", msg.Topic, err))
		}
		return fn(ctx, e, msg)
	}
}
