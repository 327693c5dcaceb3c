package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/messaging"
)

func newTestEvent() Event {
	return Event{
		TransactionID: "T1",
		OrderID:       "order-1",
		Payload: Payload{
			ID:            "order-1",
			TransactionID: "T1",
			Products: []OrderProduct{
				{Product: Product{Code: "BOOKS", UnitValue: 10}, Quantity: 2},
				{Product: Product{Code: "MOVIES", UnitValue: 2.5}, Quantity: 1},
			},
		},
	}
}

func TestEvent_TransitionAppendsWithoutAliasing(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	base := newTestEvent()

	first := base.Transition(SourceOrchestrator, StatusSuccess, "Saga started!", at)
	second := first.Transition(SourceProductValidation, StatusSuccess, "ok", at.Add(time.Second))
	// Branch from the same parent: must not clobber second's entry.
	other := first.Transition(SourceProductValidation, StatusRollbackPending, "boom", at.Add(2*time.Second))

	assert.Empty(t, base.History)
	require.Len(t, first.History, 1)
	require.Len(t, second.History, 2)
	require.Len(t, other.History, 2)

	assert.Equal(t, "Saga started!", second.History[0].Message)
	assert.Equal(t, "ok", second.History[1].Message)
	assert.Equal(t, "boom", other.History[1].Message)

	assert.Equal(t, SourceProductValidation, second.Source)
	assert.Equal(t, StatusSuccess, second.Status)
	assert.Equal(t, StatusRollbackPending, other.Status)
	assert.Equal(t, SourceOrchestrator, first.Source)
}

func TestEvent_HistoryIsMonotonic(t *testing.T) {
	e := newTestEvent()
	steps := []struct {
		source Source
		status Status
	}{
		{SourceOrchestrator, StatusSuccess},
		{SourceProductValidation, StatusSuccess},
		{SourcePayment, StatusSuccess},
		{SourceInventory, StatusRollbackPending},
		{SourcePayment, StatusFail},
		{SourceProductValidation, StatusFail},
		{SourceOrchestrator, StatusFail},
	}

	snapshot := []History{}
	for i, step := range steps {
		e = e.Transition(step.source, step.status, fmt.Sprintf("step %d", i), time.Unix(int64(i), 0))
		require.Len(t, e.History, i+1)
		assert.Equal(t, snapshot, e.History[:i], "earlier entries must be unchanged")
		snapshot = append([]History(nil), e.History...)
	}
}

func TestEvent_WithTotalsCopiesPayload(t *testing.T) {
	base := newTestEvent()
	annotated := base.WithTotals(base.Payload.Amount(), base.Payload.Items())

	assert.InDelta(t, 22.5, annotated.Payload.TotalAmount, 1e-9)
	assert.Equal(t, 3, annotated.Payload.TotalItems)
	assert.Zero(t, base.Payload.TotalAmount)

	annotated.Payload.Products[0].Quantity = 99
	assert.Equal(t, 2, base.Payload.Products[0].Quantity)
}

func TestEvent_LastHistory(t *testing.T) {
	_, ok := newTestEvent().LastHistory()
	assert.False(t, ok)

	e := newTestEvent().Transition(SourcePayment, StatusFail, "refund", time.Unix(1, 0))
	last, ok := e.LastHistory()
	require.True(t, ok)
	assert.Equal(t, "refund", last.Message)
}

func TestEncode_WireShape(t *testing.T) {
	e := newTestEvent().Transition(SourceOrchestrator, StatusSuccess, "Saga started!", time.Unix(0, 0).UTC())
	data, err := Encode(e)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.NotContains(t, raw, "id", "id is absent before persistence")
	assert.Equal(t, "T1", raw["transactionId"])
	assert.Equal(t, "order-1", raw["orderId"])
	assert.Equal(t, "ORCHESTRATOR", raw["source"])
	assert.Equal(t, "SUCCESS", raw["status"])

	payload := raw["payload"].(map[string]any)
	assert.NotContains(t, payload, "totalAmount")
	assert.Len(t, payload["products"], 2)

	history := raw["history"].([]any)
	require.Len(t, history, 1)
	entry := history[0].(map[string]any)
	assert.Equal(t, "Saga started!", entry["message"])
	assert.Contains(t, entry, "createdAt")
}

func TestDecode(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		data, err := Encode(newTestEvent())
		require.NoError(t, err)
		e, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, "T1", e.TransactionID)
		assert.Len(t, e.Payload.Products, 2)
	})

	t.Run("missing transaction id", func(t *testing.T) {
		_, err := Decode([]byte(`{"orderId":"o"}`))
		require.Error(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := Decode([]byte(`{`))
		require.Error(t, err)
	})
}

func TestNewMessage(t *testing.T) {
	e := newTestEvent().Transition(SourceOrchestrator, StatusSuccess, "Saga started!", time.Unix(0, 0))
	msg, err := NewMessage(e, TopicProductValidationSuccess)
	require.NoError(t, err)

	assert.Equal(t, "product_validation_success", msg.Topic)
	assert.Equal(t, "T1", msg.Key)
	assert.Equal(t, "T1:product_validation_success:1", msg.ID)
}

func TestEventHandler_DropsUndecodablePayloads(t *testing.T) {
	called := false
	h := EventHandler(func(ctx context.Context, e Event, msg *messaging.Message) error {
		called = true
		return nil
	})

	err := h(context.Background(), &messaging.Message{Topic: "start_saga", Data: []byte("nope")})
	require.Error(t, err)
	assert.True(t, messaging.IsPermanent(err))
	assert.False(t, called)
}

func TestErrorTaxonomy(t *testing.T) {
	validation := fmt.Errorf("wrapped: %w", NewValidationError("amount %v too low", 0.05))
	infra := Infrastructure("payment: find", errors.New("connection refused"))
	config := fmt.Errorf("route: %w", &ConfigurationError{Source: SourceOrder, Status: StatusSuccess})

	assert.True(t, IsValidation(validation))
	assert.False(t, IsInfrastructure(validation))
	assert.Equal(t, "wrapped: amount 0.05 too low", validation.Error())

	assert.True(t, IsInfrastructure(infra))
	assert.False(t, IsValidation(infra))
	assert.Equal(t, "payment: find: connection refused", infra.Error())

	assert.True(t, IsConfiguration(config))
	assert.Nil(t, Infrastructure("noop", nil))
}

func TestTopicNames(t *testing.T) {
	names := TopicNames()
	require.Len(t, names, len(Topics()))
	assert.Equal(t, "start_saga", names[0])
	assert.Equal(t, "notify_ending", names[len(names)-1])
}
