package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	custommiddleware "github.com/mmeshcher/marketplace-system/internal/middleware"
	"github.com/mmeshcher/marketplace-system/internal/model"
)

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// SetupRouter настраивает HTTP-маршруты и middleware сервиса маркетплейса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/user/balance", h.GetBalance)
			r.Get("/notifications", h.GetNotifications)
			r.Post("/notifications/{notificationID}/read", h.MarkNotificationRead)
			r.Get("/orders/{orderID}", h.GetOrder)

			r.Group(func(r chi.Router) {
				r.Use(custommiddleware.RequireRole(model.RoleCustomer))

				r.Post("/orders", h.Checkout)
				r.Get("/orders", h.GetOrders)
				r.Post("/orders/{orderID}/cancel", h.Cancel)
				r.Post("/orders/{orderID}/return", h.Return)
			})

			r.Route("/shop", func(r chi.Router) {
				r.Use(custommiddleware.RequireRole(model.RoleSeller))

				r.Get("/orders", h.GetShopOrders)
				r.Post("/orders/{orderID}/status", h.UpdateOrderStatus)
				r.Post("/cancellations/{cancellationID}/resolve", h.ResolveCancellation)
				r.Post("/returns/{returnID}/approve", h.ApproveReturn)
				r.Get("/payouts", h.GetPayouts)
				r.Get("/payouts/summary", h.GetPayoutSummary)
				r.Post("/payouts/{payoutID}/process", h.ProcessPayout)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
