// Package saga defines the event envelope that carries one checkout saga
// between the orchestrator and its participants.
//
// An Event is a value. Every hop works on its own copy and records the
// decision it took by appending exactly one History entry via Transition;
// existing entries are never modified.
package saga

import (
	"time"
)

// Product is a catalog item referenced by an order line.
type Product struct {
	Code      string  `json:"code"`
	UnitValue float64 `json:"unitValue"`
}

// OrderProduct is one order line.
type OrderProduct struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Payload is the business data of the order travelling with the saga.
type Payload struct {
	ID            string         `json:"id"`
	TransactionID string         `json:"transactionId"`
	TotalAmount   float64        `json:"totalAmount,omitempty"`
	TotalItems    int            `json:"totalItems,omitempty"`
	Products      []OrderProduct `json:"products"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Amount returns the sum of quantity * unit value over all lines.
func (p Payload) Amount() float64 {
	var total float64
	for _, line := range p.Products {
		total += float64(line.Quantity) * line.Product.UnitValue
	}
	return total
}

// Items returns the sum of quantities over all lines.
func (p Payload) Items() int {
	var total int
	for _, line := range p.Products {
		total += line.Quantity
	}
	return total
}

// History is one entry of the audit trail.
type History struct {
	Source    Source    `json:"source"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Event is the saga envelope.
type Event struct {
	// ID is assigned by the order service store on first persistence.
	ID            string    `json:"id,omitempty"`
	TransactionID string    `json:"transactionId"`
	OrderID       string    `json:"orderId"`
	Payload       Payload   `json:"payload"`
	Source        Source    `json:"source,omitempty"`
	Status        Status    `json:"status,omitempty"`
	History       []History `json:"history"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Clone returns a deep copy that shares no slices with e.
func (e Event) Clone() Event {
	out := e
	if e.Payload.Products != nil {
		out.Payload.Products = make([]OrderProduct, len(e.Payload.Products))
		copy(out.Payload.Products, e.Payload.Products)
	}
	if e.History != nil {
		out.History = make([]History, len(e.History))
		copy(out.History, e.History)
	}
	return out
}

// Transition returns a copy of e with the given source and status and one
// new history entry recording message.
func (e Event) Transition(source Source, status Status, message string, at time.Time) Event {
	out := e.Clone()
	out.Source = source
	out.Status = status
	out.History = append(out.History, History{
		Source:    source,
		Status:    status,
		Message:   message,
		CreatedAt: at,
	})
	return out
}

// WithTotals returns a copy of e whose payload carries the computed totals.
func (e Event) WithTotals(amount float64, items int) Event {
	out := e.Clone()
	out.Payload.TotalAmount = amount
	out.Payload.TotalItems = items
	return out
}

// LastHistory returns the most recent history entry.
func (e Event) LastHistory() (History, bool) {
	if len(e.History) == 0 {
		return History{}, false
	}
	return e.History[len(e.History)-1], true
}
