package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/bookstore-orders/internal/core/domain"
	"github.com/rl1809/bookstore-orders/internal/core/service"
)

// Pinger reports storage health for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPHandler struct {
	orders    *service.OrderService
	inventory *service.InventoryService
	health    []Pinger
	logger    *slog.Logger
}

func NewHTTPHandler(orders *service.OrderService, inventory *service.InventoryService, logger *slog.Logger, health ...Pinger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{orders: orders, inventory: inventory, health: health, logger: logger}
}

type PlaceOrderHTTPRequest struct {
	Items []OrderItemHTTPRequest `json:"items"`
}

// OrderItemHTTPRequest defaults a missing quantity to 1.
type OrderItemHTTPRequest struct {
	BookID   int64 `json:"book_id"`
	Quantity *int  `json:"quantity"`
}

func (it OrderItemHTTPRequest) lineRequest() domain.LineRequest {
	qty := 1
	if it.Quantity != nil {
		qty = *it.Quantity
	}
	return domain.LineRequest{BookID: it.BookID, Quantity: qty}
}

type OrderLineHTTPResponse struct {
	LineNo          int    `json:"line_no"`
	BookID          int64  `json:"book_id"`
	Title           string `json:"title"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase string `json:"price_at_purchase"`
	Subtotal        string `json:"subtotal"`
}

type OrderHTTPResponse struct {
	ID          string                  `json:"id"`
	UserID      int64                   `json:"user_id"`
	CreatedAt   time.Time               `json:"created_at"`
	TotalAmount string                  `json:"total_amount"`
	Status      string                  `json:"status"`
	Items       []OrderLineHTTPResponse `json:"items"`
}

type BookHTTPResponse struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Price           string `json:"price"`
	StockQuantity   int    `json:"stock_quantity"`
	PublicationDate string `json:"publication_date,omitempty"`
}

type SetStatusHTTPRequest struct {
	Status string `json:"status"`
}

type AdjustStockHTTPRequest struct {
	Delta int `json:"delta"`
}

func toOrderResponse(o domain.Order) OrderHTTPResponse {
	items := make([]OrderLineHTTPResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, OrderLineHTTPResponse{
			LineNo:          l.LineNo,
			BookID:          l.BookID,
			Title:           l.BookTitle,
			Quantity:        l.Quantity,
			PriceAtPurchase: l.PriceAtPurchase.StringFixed(2),
			Subtotal:        l.Subtotal().StringFixed(2),
		})
	}
	return OrderHTTPResponse{
		ID:          o.ID,
		UserID:      o.UserID,
		CreatedAt:   o.CreatedAt,
		TotalAmount: o.TotalAmount.StringFixed(2),
		Status:      string(o.Status),
		Items:       items,
	}
}

func toOrderResponses(orders []domain.Order) []OrderHTTPResponse {
	out := make([]OrderHTTPResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req PlaceOrderHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errInvalidRequest)
		return
	}

	lines := make([]domain.LineRequest, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, it.lineRequest())
	}

	res, err := h.orders.PlaceOrder(r.Context(), service.PlaceOrderInput{
		UserID:         userID,
		Lines:          lines,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if !res.Created {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/api/orders/"+res.Order.ID)
	writeJSON(w, status, toOrderResponse(res.Order))
}

func (h *HTTPHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	orders, err := h.orders.ListUserOrders(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *HTTPHandler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAllOrders(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	order, err := h.orders.GetOrder(r.Context(), userID, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errInvalidRequest)
		return
	}

	order, err := h.orders.SetOrderStatus(r.Context(), chi.URLParam(r, "orderID"), req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil {
		h.writeError(w, r, domain.ErrBookNotFound)
		return
	}

	book, err := h.inventory.GetBook(r.Context(), bookID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := BookHTTPResponse{
		ID:            book.ID,
		Title:         book.Title,
		Price:         book.Price.StringFixed(2),
		StockQuantity: book.StockQuantity,
	}
	if book.PublicationDate != nil {
		resp.PublicationDate = book.PublicationDate.Format(time.DateOnly)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil {
		h.writeError(w, r, domain.ErrBookNotFound)
		return
	}

	var req AdjustStockHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errInvalidRequest)
		return
	}

	qty, err := h.inventory.AdjustStock(r.Context(), bookID, req.Delta)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"book_id": bookID, "stock_quantity": qty})
}

// RequireAdmin rejects callers without the admin role. It must run after
// authentication.
func (h *HTTPHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())
		ok, err := h.orders.IsAdmin(r.Context(), userID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if !ok {
			h.writeError(w, r, domain.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, p := range h.health {
		if err := p.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", slog.Any("error", err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
