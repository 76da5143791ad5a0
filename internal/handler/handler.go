// Package handler содержит HTTP-обработчики API сервиса маркетплейса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/marketplace-system/internal/lifecycle"
	"github.com/mmeshcher/marketplace-system/internal/middleware"
	"github.com/mmeshcher/marketplace-system/internal/model"
	"github.com/mmeshcher/marketplace-system/internal/repository"
	"github.com/mmeshcher/marketplace-system/internal/service"
	"github.com/mmeshcher/marketplace-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string, role model.UserRole, shopName string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (*model.User, error)
	Checkout(ctx context.Context, customerID, shopID int64, total float64) (*model.Order, error)
	GetOrder(ctx context.Context, userID int64, role model.UserRole, orderID string) (*model.Order, error)
	GetCustomerOrders(ctx context.Context, customerID int64) ([]model.Order, error)
	GetShopOrders(ctx context.Context, sellerID int64) ([]model.Order, error)
	SubmitCancellation(ctx context.Context, customerID int64, orderID, reason, detail string) (bool, error)
	ResolveCancellation(ctx context.Context, sellerID int64, cancellationID string, approve bool) error
	SubmitReturn(ctx context.Context, customerID int64, orderID, reason, method, packaging string, proofURLs []string) (*model.OrderReturn, error)
	ProcessReturnRefund(ctx context.Context, sellerID int64, returnID string, amount float64, sellerNotes string) error
	UpdateSellerStatus(ctx context.Context, sellerID int64, orderID string, target model.OrderStatus) error
	GetLoyaltyBalance(ctx context.Context, userID int64) (float64, error)
	GetPayouts(ctx context.Context, sellerID int64) ([]model.PayoutRecord, error)
	GetPayoutSummary(ctx context.Context, sellerID int64) (*model.PayoutSummary, error)
	ProcessPayout(ctx context.Context, sellerID, payoutID int64) error
	GetNotifications(ctx context.Context, userID int64) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID int64) error
}

// Handler реализует HTTP-обработчики API сервиса маркетплейса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// writeError сопоставляет доменную ошибку с HTTP-статусом. Текст доменной
// ошибки отдаётся клиенту как есть; внутренние ошибки скрываются.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrReturnNotFound),
		errors.Is(err, repository.ErrCancellationNotFound),
		errors.Is(err, repository.ErrPayoutNotFound),
		errors.Is(err, repository.ErrShopNotFound),
		errors.Is(err, repository.ErrNotificationNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, lifecycle.ErrIllegalTransition),
		errors.Is(err, repository.ErrOrderStateChanged),
		errors.Is(err, repository.ErrReturnProcessed),
		errors.Is(err, repository.ErrCancellationResolved),
		errors.Is(err, repository.ErrPayoutProcessed),
		errors.Is(err, repository.ErrUserExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrNotOwner):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrInvalidCredentials):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	default:
		h.logger.Error("internal error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type registerRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=customer seller"`
	ShopName string `json:"shop_name"`
}

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	role := model.UserRole(req.Role)

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, role, req.ShopName)
	if err != nil {
		h.writeError(w, err)
		return
	}

	token, err := h.authMiddleware.IssueToken(userID, role)
	if err != nil {
		h.logger.Error("issue token error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// Login выполняет аутентификацию пользователя и выпуск токена.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	token, err := h.authMiddleware.IssueToken(u.ID, u.Role)
	if err != nil {
		h.logger.Error("issue token error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

type checkoutRequest struct {
	ShopID int64   `json:"shop_id" validate:"required"`
	Total  float64 `json:"total" validate:"required,gt=0"`
}

type orderResponse struct {
	ID        string  `json:"id"`
	ShopID    int64   `json:"shop_id"`
	Total     float64 `json:"total"`
	Status    string  `json:"status"`
	Paid      bool    `json:"paid"`
	Shipped   bool    `json:"shipped"`
	Delivered bool    `json:"delivered"`
	CreatedAt string  `json:"created_at"`
}

func toOrderResponse(o *model.Order) orderResponse {
	return orderResponse{
		ID:        o.ID,
		ShopID:    o.ShopID,
		Total:     float64(o.TotalCents) / 100,
		Status:    string(o.Status),
		Paid:      o.Paid,
		Shipped:   o.Shipped,
		Delivered: o.Delivered,
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
}

// Checkout создаёт новый заказ текущего покупателя.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req checkoutRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	o, err := h.service.Checkout(r.Context(), userID, req.ShopID, req.Total)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// GetOrders возвращает список заказов текущего покупателя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.service.GetCustomerOrders(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetOrder возвращает заказ по идентификатору с проверкой владения.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	role, _ := middleware.GetRoleFromContext(r.Context())

	o, err := h.service.GetOrder(r.Context(), userID, role, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required"`
	Detail string `json:"detail"`
}

type cancelResponse struct {
	Instant bool   `json:"instant"`
	Status  string `json:"status"`
}

// Cancel обрабатывает запрос покупателя на отмену заказа.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req cancelRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	instant, err := h.service.SubmitCancellation(r.Context(), userID, chi.URLParam(r, "orderID"), req.Reason, req.Detail)
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := string(model.OrderStatusCancelPending)
	if instant {
		status = string(model.OrderStatusCancelled)
	}

	writeJSON(w, http.StatusOK, cancelResponse{Instant: instant, Status: status})
}

type returnRequest struct {
	Reason    string   `json:"reason" validate:"required"`
	Method    string   `json:"method" validate:"required,oneof=pickup dropoff courier"`
	Packaging string   `json:"packaging"`
	ProofURLs []string `json:"proof_urls" validate:"dive,proof_url"`
}

type returnResponse struct {
	ID        string   `json:"id"`
	OrderID   string   `json:"order_id"`
	Status    string   `json:"status"`
	Reason    string   `json:"reason"`
	Method    string   `json:"method"`
	ProofURLs []string `json:"proof_urls"`
}

// Return обрабатывает запрос покупателя на возврат заказа.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req returnRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ret, err := h.service.SubmitReturn(r.Context(), userID, chi.URLParam(r, "orderID"),
		req.Reason, req.Method, req.Packaging, req.ProofURLs)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, returnResponse{
		ID:        ret.ID,
		OrderID:   ret.OrderID,
		Status:    string(ret.Status),
		Reason:    ret.Reason,
		Method:    ret.Method,
		ProofURLs: ret.ProofURLs,
	})
}

type balanceResponse struct {
	Current float64 `json:"current"`
}

// GetBalance возвращает баланс бонусных баллов текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	balance, err := h.service.GetLoyaltyBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{Current: balance})
}

// GetShopOrders возвращает список заказов магазина текущего продавца.
func (h *Handler) GetShopOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.service.GetShopOrders(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

type sellerStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateOrderStatus применяет запрошенный продавцом статус заказа.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req sellerStatusRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.UpdateSellerStatus(r.Context(), userID, chi.URLParam(r, "orderID"), model.OrderStatus(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type resolveCancellationRequest struct {
	Approve *bool `json:"approve" validate:"required"`
}

// ResolveCancellation обрабатывает решение продавца по отложенной отмене.
func (h *Handler) ResolveCancellation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req resolveCancellationRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.ResolveCancellation(r.Context(), userID, chi.URLParam(r, "cancellationID"), *req.Approve)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type refundRequest struct {
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	SellerNotes string  `json:"seller_notes"`
}

// ApproveReturn обрабатывает одобрение возврата продавцом с начислением
// бонусных баллов покупателю.
func (h *Handler) ApproveReturn(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req refundRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.ProcessReturnRefund(r.Context(), userID, chi.URLParam(r, "returnID"), req.Amount, req.SellerNotes)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type payoutResponse struct {
	ID          int64   `json:"id"`
	OrderID     string  `json:"order_id"`
	Gross       float64 `json:"gross"`
	Commission  float64 `json:"commission"`
	Processing  float64 `json:"processing_fee"`
	Withholding float64 `json:"withholding_tax"`
	Net         float64 `json:"net"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
}

// GetPayouts возвращает журнал выплат магазина текущего продавца.
func (h *Handler) GetPayouts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	payouts, err := h.service.GetPayouts(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if len(payouts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]payoutResponse, 0, len(payouts))
	for _, p := range payouts {
		resp = append(resp, payoutResponse{
			ID:          p.ID,
			OrderID:     p.OrderID,
			Gross:       float64(p.GrossCents) / 100,
			Commission:  float64(p.CommissionCents) / 100,
			Processing:  float64(p.ProcessingCents) / 100,
			Withholding: float64(p.WithholdingCents) / 100,
			Net:         float64(p.NetCents) / 100,
			Status:      string(p.Status),
			CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type payoutSummaryResponse struct {
	Pending   float64 `json:"pending"`
	Processed float64 `json:"processed"`
}

// GetPayoutSummary возвращает агрегированные суммы выплат магазина продавца.
func (h *Handler) GetPayoutSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	summary, err := h.service.GetPayoutSummary(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, payoutSummaryResponse{
		Pending:   float64(summary.PendingCents) / 100,
		Processed: float64(summary.ProcessedCents) / 100,
	})
}

// ProcessPayout переводит выплату текущего продавца в статус processed.
func (h *Handler) ProcessPayout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	payoutID, err := parseID(chi.URLParam(r, "payoutID"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.ProcessPayout(r.Context(), userID, payoutID); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type notificationResponse struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

// GetNotifications возвращает уведомления текущего пользователя.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	notifications, err := h.service.GetNotifications(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if len(notifications) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		resp = append(resp, notificationResponse{
			ID:        n.ID,
			Title:     n.Title,
			Message:   n.Message,
			Type:      n.Type,
			Read:      n.Read,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// MarkNotificationRead помечает уведомление текущего пользователя прочитанным.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	notificationID, err := parseID(chi.URLParam(r, "notificationID"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.MarkNotificationRead(r.Context(), userID, notificationID); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
