package handler

import (
	"errors"
	"log/slog"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/rl1809/bookstore-orders/internal/core/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	BookID    int64  `json:"book_id,omitempty"`
	Available *int   `json:"available,omitempty"`
	Requested *int   `json:"requested,omitempty"`
}

var errInvalidRequest = errors.New("invalid request body")

func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusBadRequest, "empty_cart"
	case errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusBadRequest, "invalid_status"
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrBookNotFound):
		return http.StatusNotFound, "book_not_found"
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "order_not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate_request"
	case errors.Is(err, domain.ErrInvalidStockAdjustment):
		return http.StatusConflict, "invalid_stock_adjustment"
	default:
		return http.StatusInternalServerError, "storage_failure"
	}
}

// writeError hides storage details behind "internal error". Handlers that
// can hit storage go through HTTPHandler.writeError, which logs them.
func writeError(w http.ResponseWriter, err error) {
	status, code := httpStatus(err)
	resp := errorResponse{Error: err.Error(), Code: code}

	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		resp.BookID = stockErr.BookID
		resp.Available = &stockErr.Available
		resp.Requested = &stockErr.Requested
	}
	if status == http.StatusInternalServerError {
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := httpStatus(err); status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	writeError(w, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
