package coordinator

import (
	"context"
	"fmt"

	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/interceptors"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/messaging"
	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

// Bindings returns the orchestrator's inbound topics and their handlers.
func (o *Orchestrator) Bindings() map[saga.Topic]saga.EventHandlerFunc {
	return map[saga.Topic]saga.EventHandlerFunc{
		saga.TopicStartSaga: func(ctx context.Context, e saga.Event, _ *messaging.Message) error {
			return o.StartSaga(ctx, e)
		},
		saga.TopicBaseOrchestrator: func(ctx context.Context, e saga.Event, _ *messaging.Message) error {
			return o.ContinueSaga(ctx, e)
		},
		saga.TopicFinishSuccess: func(ctx context.Context, e saga.Event, _ *messaging.Message) error {
			return o.FinishSagaSuccess(ctx, e)
		},
		saga.TopicFinishFail: func(ctx context.Context, e saga.Event, _ *messaging.Message) error {
			return o.FinishSagaFail(ctx, e)
		},
	}
}

// Subscribe binds every inbound topic on sub under the consumer group. The
// returned function stops all of them.
func (o *Orchestrator) Subscribe(ctx context.Context, sub messaging.Subscriber, group string, chain ...interceptors.Interceptor) (func(), error) {
	return subscribeAll(ctx, sub, group, o.Bindings(), chain...)
}

func subscribeAll(
	ctx context.Context,
	sub messaging.Subscriber,
	group string,
	bindings map[saga.Topic]saga.EventHandlerFunc,
	chain ...interceptors.Interceptor,
) (func(), error) {
	var stops []func()
	stopAll := func() {
		for _, stop := range stops {
			stop()
		}
	}

	// Iterate in declaration order so subscription is deterministic.
	for _, topic := range saga.Topics() {
		fn, ok := bindings[topic]
		if !ok {
			continue
		}
		h := interceptors.Chain(saga.EventHandler(fn), chain...)
		stop, err := sub.Subscribe(ctx, string(topic), group, h)
		if err != nil {
			stopAll()
			return nil, fmt.Errorf("coordinator: subscribe %s: %w", topic, err)
		}
		stops = append(stops, stop)
	}
	return stopAll, nil
}
