package http

import (
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Orders   *OrdersHandler
	Payments *PaymentsHandler
}

type RouterConfig struct {
	RequestTimeout time.Duration
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
}

func NewRouter(h Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware(cfg.Metrics))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler(cfg.Gatherer))

	r.Route("/api/v1", func(r chi.Router) {
		// provider callbacks carry no customer identity
		r.Post("/payments/mpesa/callback", h.Payments.MpesaCallback)

		r.Group(func(r chi.Router) {
			r.Use(MockAuthMiddleware)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.Cart.GetCart)
				r.Get("/summary", h.Cart.Summary)
				r.Post("/items", h.Cart.AddItem)
				r.Put("/items/{product_id}", h.Cart.UpdateQuantity)
				r.Delete("/items/{product_id}", h.Cart.RemoveItem)
			})

			r.Post("/checkout", h.Checkout.Begin)
			r.Route("/checkout/{checkout_id}", func(r chi.Router) {
				r.Get("/", h.Checkout.Get)
				r.Delete("/", h.Checkout.Abandon)
				r.Put("/shipping", h.Checkout.UpdateShipping)
				r.Put("/payment", h.Checkout.UpdatePayment)
				r.Put("/terms", h.Checkout.AcceptTerms)
				r.Post("/next", h.Checkout.Next)
				r.Post("/back", h.Checkout.Back)
				r.Post("/submit", h.Checkout.Submit)
			})

			r.Get("/orders", h.Orders.ListOrders)
			r.Get("/orders/{order_id}", h.Orders.GetOrder)
		})
	})

	return otelhttp.NewHandler(r, "storefront",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}))
}
