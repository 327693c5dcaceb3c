package app

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inventoryredis "github.com/jcmexdev/orchestrated-sagas/internal/inventory-service/adapters/redis"
	"github.com/jcmexdev/orchestrated-sagas/internal/participant"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/cache"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/messaging"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/messaging/memory"
	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

func newTestService(t *testing.T) (*Service, *inventoryredis.Repository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := cache.NewRedisCache(mr.Addr(), 0, "inventory")
	t.Cleanup(func() { _ = c.Close() })

	repo := inventoryredis.New(c)
	require.NoError(t, repo.Seed(context.Background(), inventoryredis.InitialStock))
	return NewService(repo, nil), repo, mr
}

func event(lines map[string]int) saga.Event {
	e := saga.Event{TransactionID: "T1", OrderID: "O1", Payload: saga.Payload{ID: "O1", TransactionID: "T1"}}
	for code, qty := range lines {
		e.Payload.Products = append(e.Payload.Products, saga.OrderProduct{
			Product:  saga.Product{Code: code, UnitValue: 1},
			Quantity: qty,
		})
	}
	return e
}

func TestService_Execute(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		lines   map[string]int
		wantErr string
	}{
		{"in stock", map[string]int{"COMIC_BOOKS": 3}, ""},
		{"empty", map[string]int{}, "Products List is empty!"},
		{"zero quantity", map[string]int{"MOVIES": 0}, "Quantity of product MOVIES must be positive"},
		{"unknown", map[string]int{"GAMES": 1}, "Inventory not found by informed product: GAMES"},
		{"out of stock", map[string]int{"BOOKS": 3}, "Product is out of stock! BOOKS has 2, requested 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t)

			_, err := svc.Execute(ctx, event(tt.lines))
			if tt.wantErr == "" {
				require.NoError(t, err)
				n, err := repo.Stock(ctx, "COMIC_BOOKS")
				require.NoError(t, err)
				assert.Equal(t, 7, n)
				return
			}
			require.Error(t, err)
			assert.True(t, saga.IsValidation(err))
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestService_ExecuteTwiceIsDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService(t)

	_, err := svc.Execute(ctx, event(map[string]int{"MUSIC": 2}))
	require.NoError(t, err)
	_, err = svc.Execute(ctx, event(map[string]int{"MUSIC": 2}))
	require.Error(t, err)
	assert.True(t, saga.IsValidation(err))

	n, err := repo.Stock(ctx, "MUSIC")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestService_Compensate(t *testing.T) {
	ctx := context.Background()

	t.Run("releases reserved stock", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		_, err := svc.Execute(ctx, event(map[string]int{"MUSIC": 2}))
		require.NoError(t, err)

		_, comp, err := svc.Compensate(ctx, event(map[string]int{"MUSIC": 2}))
		require.NoError(t, err)
		assert.Equal(t, participant.Reversed, comp)

		n, err := repo.Stock(ctx, "MUSIC")
		require.NoError(t, err)
		assert.Equal(t, 9, n)
	})

	t.Run("nothing to release", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, comp, err := svc.Compensate(ctx, event(map[string]int{"MUSIC": 2}))
		require.NoError(t, err)
		assert.Equal(t, participant.NothingToReverse, comp)
	})

	t.Run("store down", func(t *testing.T) {
		svc, _, mr := newTestService(t)
		mr.Close()
		_, _, err := svc.Compensate(ctx, event(map[string]int{"MUSIC": 2}))
		assert.True(t, saga.IsInfrastructure(err))
	})
}

func TestService_UnreportedReservationIsReleased(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService(t)

	failed := false
	bus := memory.New(memory.WithPublishHook(func(m *messaging.Message) error {
		if m.Topic == string(saga.TopicBaseOrchestrator) && !failed {
			failed = true
			return errors.New("broker down")
		}
		return nil
	}))
	h := participant.New(svc, bus, participant.WithMaxAttempts(3))
	e := event(map[string]int{"MOVIES": 2})

	require.Error(t, h.HandleStep(ctx, e, 1))
	n, err := repo.Stock(ctx, "MOVIES")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.NoError(t, h.HandleStep(ctx, e, 2))
	published := bus.PublishedOn(string(saga.TopicBaseOrchestrator))
	require.Len(t, published, 1)
	reported, err := saga.Decode(published[0].Data)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusRollbackPending, reported.Status)

	n, err = repo.Stock(ctx, "MOVIES")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}
