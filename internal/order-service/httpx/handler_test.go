package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/orchestrated-sagas/internal/order-service/domain"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/interceptors"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/interceptors/constants"
	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

type stubOrders struct {
	created []domain.OrderItem
	key     string
	err     error
}

func (s *stubOrders) CreateOrder(ctx context.Context, items []domain.OrderItem) (*domain.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = items
	s.key = interceptors.GetMetadataValue(ctx, constants.ContextKeyIdempotencyKey)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Order{
		ID:            "O1",
		TransactionID: "T1",
		Items:         items,
		Status:        domain.StatusPending,
		CreatedAt:     at,
		UpdatedAt:     at,
	}, nil
}

func (s *stubOrders) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	if id != "O1" {
		return nil, saga.NewValidationError("Order %s not found", id)
	}
	return &domain.Order{ID: "O1", TransactionID: "T1", Status: domain.StatusCompleted}, nil
}

type stubEvents struct {
	filters domain.EventFilters
	err     error
}

func (s *stubEvents) NotifyEnding(context.Context, saga.Event) error { return nil }

func (s *stubEvents) FindAll(context.Context) ([]saga.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []saga.Event{{ID: "E2", TransactionID: "T2"}, {ID: "E1", TransactionID: "T1"}}, nil
}

func (s *stubEvents) FindByFilters(_ context.Context, f domain.EventFilters) (*saga.Event, error) {
	s.filters = f
	if f.Empty() {
		return nil, saga.NewValidationError("OrderID or TransactionID must be informed")
	}
	return &saga.Event{ID: "E1", OrderID: f.OrderID, TransactionID: "T1", Status: saga.StatusSuccess}, nil
}

func newTestServer(orders *stubOrders, events *stubEvents) http.Handler {
	return NewRouter(NewHandler(orders, events))
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateOrder(t *testing.T) {
	orders := &stubOrders{}
	h := newTestServer(orders, &stubEvents{})

	body := `{"products":[{"product":{"code":"BOOKS","unitValue":15},"quantity":2}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/order", strings.NewReader(body))
	req.Header.Set(constants.HeaderXIdempotencyKey, "checkout-1")
	rec := do(t, h, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(constants.HeaderXRequestId))
	assert.Equal(t, "checkout-1", orders.key)
	assert.Equal(t, []domain.OrderItem{{ProductCode: "BOOKS", Quantity: 2, UnitValue: 15}}, orders.created)

	var resp OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "O1", resp.ID)
	assert.Equal(t, "T1", resp.TransactionID)
	assert.Equal(t, "PENDING", resp.Status)
	assert.InDelta(t, 30.0, resp.TotalAmount, 1e-9)
	assert.Equal(t, "2024-05-01T12:00:00Z", resp.CreatedAt)
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := map[string]struct {
		body   string
		err    error
		status int
		code   string
	}{
		"bad json":   {`{`, nil, http.StatusBadRequest, "invalid_json"},
		"validation": {`{"products":[]}`, saga.NewValidationError("Products List is empty!"), http.StatusBadRequest, "validation_error"},
		"infra":      {`{"products":[]}`, saga.Infrastructure("order: save order", errors.New("disk full")), http.StatusInternalServerError, "internal_error"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			h := newTestServer(&stubOrders{err: tc.err}, &stubEvents{})
			rec := do(t, h, httptest.NewRequest(http.MethodPost, "/api/order", strings.NewReader(tc.body)))

			require.Equal(t, tc.status, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.code, resp.Error)
			assert.NotContains(t, rec.Body.String(), "disk full")
		})
	}
}

func TestGetOrderByID(t *testing.T) {
	h := newTestServer(&stubOrders{}, &stubEvents{})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/order/O1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"COMPLETED"`)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/order/O2", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Order O2 not found")
}

func TestFindByFilters(t *testing.T) {
	events := &stubEvents{}
	h := newTestServer(&stubOrders{}, events)

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/event?orderId=O1&transactionId=T1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.EventFilters{OrderID: "O1", TransactionID: "T1"}, events.filters)

	var e saga.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, saga.StatusSuccess, e.Status)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/event", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "OrderID or TransactionID must be informed")
}

func TestFindAll(t *testing.T) {
	h := newTestServer(&stubOrders{}, &stubEvents{})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/event/all", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var events []saga.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, "E2", events[0].ID)

	h = newTestServer(&stubOrders{}, &stubEvents{err: errors.New("boom")})
	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/event/all", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
