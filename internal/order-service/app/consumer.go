package app

import (
	"context"
	"fmt"

	"github.com/jcmexdev/orchestrated-sagas/internal/order-service/ports"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/interceptors"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/messaging"
	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

// SubscribeNotifyEnding feeds notify_ending into svc.
func SubscribeNotifyEnding(ctx context.Context, sub messaging.Subscriber, group string, svc ports.EventService, chain ...interceptors.Interceptor) (func(), error) {
	h := interceptors.Chain(saga.EventHandler(func(ctx context.Context, e saga.Event, _ *messaging.Message) error {
		return svc.NotifyEnding(ctx, e)
	}), chain...)

	stop, err := sub.Subscribe(ctx, string(saga.TopicNotifyEnding), group, h)
	if err != nil {
		return nil, fmt.Errorf("order: subscribe %s: %w", saga.TopicNotifyEnding, err)
	}
	return stop, nil
}
