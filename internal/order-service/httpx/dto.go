package httpx

type CreateOrderRequest struct {
	Products []CreateOrderProductDTO `json:"products"`
}

type CreateOrderProductDTO struct {
	Product  ProductDTO `json:"product"`
	Quantity int        `json:"quantity"`
}

type ProductDTO struct {
	Code      string  `json:"code"`
	UnitValue float64 `json:"unitValue"`
}

type OrderResponse struct {
	ID            string                  `json:"id"`
	TransactionID string                  `json:"transactionId"`
	Status        string                  `json:"status"`
	TotalAmount   float64                 `json:"totalAmount"`
	Products      []CreateOrderProductDTO `json:"products"`
	CreatedAt     string                  `json:"createdAt"`
	UpdatedAt     string                  `json:"updatedAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
