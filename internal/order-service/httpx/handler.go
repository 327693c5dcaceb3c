package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/orchestrated-sagas/internal/order-service/domain"
	"github.com/jcmexdev/orchestrated-sagas/internal/order-service/ports"
	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

// Handler serves the order API: checkout and saga history queries.
type Handler struct {
	orders ports.OrderService
	events ports.EventService
}

func NewHandler(orders ports.OrderService, events ports.EventService) *Handler {
	return &Handler{orders: orders, events: events}
}

// CreateOrder persists the order and starts its saga. The response does not
// wait for the saga: its outcome is queried through the event endpoints.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	items := make([]domain.OrderItem, 0, len(req.Products))
	for _, p := range req.Products {
		items = append(items, domain.OrderItem{
			ProductCode: p.Product.Code,
			Quantity:    p.Quantity,
			UnitValue:   p.Product.UnitValue,
		})
	}

	order, err := h.orders.CreateOrder(r.Context(), items)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapOrderToResponse(order))
}

// GetOrderByID returns the order and its current status.
func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

// FindByFilters returns the latest saga event for ?orderId= or ?transactionId=.
func (h *Handler) FindByFilters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	e, err := h.events.FindByFilters(r.Context(), domain.EventFilters{
		OrderID:       q.Get("orderId"),
		TransactionID: q.Get("transactionId"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// FindAll lists every saga event, newest first.
func (h *Handler) FindAll(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.FindAll(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func mapOrderToResponse(o *domain.Order) OrderResponse {
	products := make([]CreateOrderProductDTO, len(o.Items))
	for i, it := range o.Items {
		products[i] = CreateOrderProductDTO{
			Product:  ProductDTO{Code: it.ProductCode, UnitValue: it.UnitValue},
			Quantity: it.Quantity,
		}
	}
	return OrderResponse{
		ID:            o.ID,
		TransactionID: o.TransactionID,
		Status:        string(o.Status),
		TotalAmount:   o.Total(),
		Products:      products,
		CreatedAt:     o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// writeServiceError maps business errors to 400 and anything else to 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if saga.IsValidation(err) {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
