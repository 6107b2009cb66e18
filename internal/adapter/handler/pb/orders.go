// Package pb holds the bookstore.v1.OrderService messages and service
// descriptor. Messages travel as JSON through the codec registered in codec.go.
package pb

type OrderItem struct {
	BookID   int64 `json:"book_id"`
	Quantity int32 `json:"quantity"`
}

type PlaceOrderRequest struct {
	Items          []*OrderItem `json:"items"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
}

func (r *PlaceOrderRequest) GetItems() []*OrderItem {
	if r == nil {
		return nil
	}
	return r.Items
}

func (r *PlaceOrderRequest) GetIdempotencyKey() string {
	if r == nil {
		return ""
	}
	return r.IdempotencyKey
}

type PlaceOrderResponse struct {
	Order   *Order `json:"order"`
	Created bool   `json:"created"`
}

type OrderLine struct {
	LineNo          int32  `json:"line_no"`
	BookID          int64  `json:"book_id"`
	Title           string `json:"title"`
	Quantity        int32  `json:"quantity"`
	PriceAtPurchase string `json:"price_at_purchase"`
}

type Order struct {
	ID          string       `json:"id"`
	UserID      int64        `json:"user_id"`
	CreatedAt   string       `json:"created_at"`
	TotalAmount string       `json:"total_amount"`
	Status      string       `json:"status"`
	Lines       []*OrderLine `json:"lines"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

func (r *GetOrderRequest) GetOrderID() string {
	if r == nil {
		return ""
	}
	return r.OrderID
}

type ListOrdersRequest struct {
	// All lists every user's orders; admin only.
	All bool `json:"all,omitempty"`
}

func (r *ListOrdersRequest) GetAll() bool {
	return r != nil && r.All
}

type ListOrdersResponse struct {
	Orders []*Order `json:"orders"`
}

type SetOrderStatusRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

func (r *SetOrderStatusRequest) GetOrderID() string {
	if r == nil {
		return ""
	}
	return r.OrderID
}

func (r *SetOrderStatusRequest) GetStatus() string {
	if r == nil {
		return ""
	}
	return r.Status
}
