package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *HTTPHandler, auth *Authenticator, limiter *RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(AccessLog(h.logger))

	r.Get("/health", h.HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Route("/api/orders", func(r chi.Router) {
			r.With(limiter.Middleware).Post("/", h.PlaceOrder)
			r.Get("/", h.ListMyOrders)
			r.Get("/{orderID}", h.GetOrder)

			r.Group(func(r chi.Router) {
				r.Use(h.RequireAdmin)
				r.Get("/admin/all", h.ListAllOrders)
				r.Put("/admin/status/{orderID}", h.SetOrderStatus)
			})
		})

		r.Route("/api/books", func(r chi.Router) {
			r.Get("/{bookID}", h.GetBook)
			r.With(h.RequireAdmin).Put("/{bookID}/stock", h.AdjustStock)
		})
	})

	return r
}

func AccessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
