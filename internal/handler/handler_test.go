package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/marketplace-system/internal/lifecycle"
	"github.com/mmeshcher/marketplace-system/internal/middleware"
	"github.com/mmeshcher/marketplace-system/internal/model"
	"github.com/mmeshcher/marketplace-system/internal/repository"
	"github.com/mmeshcher/marketplace-system/internal/service"
)

type stubService struct {
	registerUserID int64
	registerErr    error

	authUser *model.User
	authErr  error

	checkoutOrder *model.Order
	checkoutErr   error

	order    *model.Order
	orderErr error

	customerOrders []model.Order
	shopOrders     []model.Order
	ordersErr      error

	cancelInstant bool
	cancelErr     error

	resolveErr error

	returnResp *model.OrderReturn
	returnErr  error

	refundErr error

	statusErr error

	balance    float64
	balanceErr error

	payouts       []model.PayoutRecord
	payoutSummary *model.PayoutSummary
	payoutErr     error

	notifications []model.Notification
	notifErr      error
}

func (s *stubService) RegisterUser(ctx context.Context, login, password string, role model.UserRole, shopName string) (int64, error) {
	return s.registerUserID, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) Checkout(ctx context.Context, customerID, shopID int64, total float64) (*model.Order, error) {
	return s.checkoutOrder, s.checkoutErr
}

func (s *stubService) GetOrder(ctx context.Context, userID int64, role model.UserRole, orderID string) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubService) GetCustomerOrders(ctx context.Context, customerID int64) ([]model.Order, error) {
	return s.customerOrders, s.ordersErr
}

func (s *stubService) GetShopOrders(ctx context.Context, sellerID int64) ([]model.Order, error) {
	return s.shopOrders, s.ordersErr
}

func (s *stubService) SubmitCancellation(ctx context.Context, customerID int64, orderID, reason, detail string) (bool, error) {
	return s.cancelInstant, s.cancelErr
}

func (s *stubService) ResolveCancellation(ctx context.Context, sellerID int64, cancellationID string, approve bool) error {
	return s.resolveErr
}

func (s *stubService) SubmitReturn(ctx context.Context, customerID int64, orderID, reason, method, packaging string, proofURLs []string) (*model.OrderReturn, error) {
	return s.returnResp, s.returnErr
}

func (s *stubService) ProcessReturnRefund(ctx context.Context, sellerID int64, returnID string, amount float64, sellerNotes string) error {
	return s.refundErr
}

func (s *stubService) UpdateSellerStatus(ctx context.Context, sellerID int64, orderID string, target model.OrderStatus) error {
	return s.statusErr
}

func (s *stubService) GetLoyaltyBalance(ctx context.Context, userID int64) (float64, error) {
	return s.balance, s.balanceErr
}

func (s *stubService) GetPayouts(ctx context.Context, sellerID int64) ([]model.PayoutRecord, error) {
	return s.payouts, s.payoutErr
}

func (s *stubService) GetPayoutSummary(ctx context.Context, sellerID int64) (*model.PayoutSummary, error) {
	return s.payoutSummary, s.payoutErr
}

func (s *stubService) ProcessPayout(ctx context.Context, sellerID, payoutID int64) error {
	return s.payoutErr
}

func (s *stubService) GetNotifications(ctx context.Context, userID int64) ([]model.Notification, error) {
	return s.notifications, s.notifErr
}

func (s *stubService) MarkNotificationRead(ctx context.Context, userID, notificationID int64) error {
	return s.notifErr
}

type testEnv struct {
	handler *Handler
	auth    *middleware.AuthMiddleware
	router  http.Handler
}

func newTestEnv(t *testing.T, svc Service) *testEnv {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")
	h := NewHandler(svc, logger, auth)

	return &testEnv{
		handler: h,
		auth:    auth,
		router:  h.SetupRouter(),
	}
}

func (e *testEnv) request(t *testing.T, method, path string, body any, userID int64, role model.UserRole) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != 0 {
		token, err := e.auth.IssueToken(userID, role)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]any
		svc        *stubService
		wantStatus int
	}{
		{
			name:       "success",
			body:       map[string]any{"login": "user", "password": "secret1", "role": "customer"},
			svc:        &stubService{registerUserID: 42},
			wantStatus: http.StatusOK,
		},
		{
			name:       "duplicate login",
			body:       map[string]any{"login": "user", "password": "secret1", "role": "customer"},
			svc:        &stubService{registerErr: repository.ErrUserExists},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "unknown role",
			body:       map[string]any{"login": "user", "password": "secret1", "role": "admin"},
			svc:        &stubService{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "short password",
			body:       map[string]any{"login": "user", "password": "123", "role": "customer"},
			svc:        &stubService{},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, tt.svc)

			rec := e.request(t, http.MethodPost, "/api/user/register", tt.body, 0, "")

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			if tt.wantStatus == http.StatusOK {
				var resp tokenResponse
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
					t.Fatalf("decode response: %v", err)
				}
				if resp.Token == "" {
					t.Fatalf("expected token in response")
				}
			}
		})
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	e := newTestEnv(t, &stubService{
		authErr: service.ErrInvalidCredentials,
	})

	rec := e.request(t, http.MethodPost, "/api/user/login",
		map[string]any{"login": "user", "password": "wrong"}, 0, "")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestCancel(t *testing.T) {
	tests := []struct {
		name        string
		svc         *stubService
		wantStatus  int
		wantInstant bool
	}{
		{"instant", &stubService{cancelInstant: true}, http.StatusOK, true},
		{"pending review", &stubService{cancelInstant: false}, http.StatusOK, false},
		{"order not found", &stubService{cancelErr: repository.ErrOrderNotFound}, http.StatusNotFound, false},
		{"terminal order", &stubService{cancelErr: lifecycle.ErrIllegalTransition}, http.StatusConflict, false},
		{"concurrent change", &stubService{cancelErr: repository.ErrOrderStateChanged}, http.StatusConflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, tt.svc)

			rec := e.request(t, http.MethodPost, "/api/orders/abc/cancel",
				map[string]any{"reason": "Ordered by mistake"}, 1, model.RoleCustomer)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			if tt.wantStatus == http.StatusOK {
				var resp cancelResponse
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
					t.Fatalf("decode response: %v", err)
				}
				if resp.Instant != tt.wantInstant {
					t.Fatalf("instant = %v, want %v", resp.Instant, tt.wantInstant)
				}
			}
		})
	}
}

func TestCancel_RequiresAuth(t *testing.T) {
	e := newTestEnv(t, &stubService{})

	rec := e.request(t, http.MethodPost, "/api/orders/abc/cancel",
		map[string]any{"reason": "x"}, 0, "")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestCancel_SellerForbidden(t *testing.T) {
	e := newTestEnv(t, &stubService{})

	rec := e.request(t, http.MethodPost, "/api/orders/abc/cancel",
		map[string]any{"reason": "x"}, 1, model.RoleSeller)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestReturn(t *testing.T) {
	ret := &model.OrderReturn{
		ID:        "ret-1",
		OrderID:   "abc",
		Status:    model.ReturnPending,
		Reason:    "damaged",
		Method:    "pickup",
		ProofURLs: []string{"https://cdn.example.com/p1.jpg"},
	}
	e := newTestEnv(t, &stubService{returnResp: ret})

	rec := e.request(t, http.MethodPost, "/api/orders/abc/return", map[string]any{
		"reason":     "damaged",
		"method":     "pickup",
		"proof_urls": []string{"https://cdn.example.com/p1.jpg"},
	}, 1, model.RoleCustomer)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	var resp returnResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "ret-1" || resp.Status != "pending" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestReturn_InvalidBody(t *testing.T) {
	e := newTestEnv(t, &stubService{})

	rec := e.request(t, http.MethodPost, "/api/orders/abc/return", map[string]any{
		"reason": "damaged",
		"method": "teleport",
	}, 1, model.RoleCustomer)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	tests := []struct {
		name       string
		svc        *stubService
		role       model.UserRole
		wantStatus int
	}{
		{"seller ok", &stubService{}, model.RoleSeller, http.StatusOK},
		{"customer forbidden", &stubService{}, model.RoleCustomer, http.StatusForbidden},
		{"illegal transition", &stubService{statusErr: lifecycle.ErrIllegalTransition}, model.RoleSeller, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, tt.svc)

			rec := e.request(t, http.MethodPost, "/api/shop/orders/abc/status",
				map[string]any{"status": "to_receive"}, 1, tt.role)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestApproveReturn_AlreadyProcessed(t *testing.T) {
	e := newTestEnv(t, &stubService{refundErr: repository.ErrReturnProcessed})

	rec := e.request(t, http.MethodPost, "/api/shop/returns/ret-1/approve",
		map[string]any{"amount": 500.0}, 1, model.RoleSeller)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestGetOrders_Empty(t *testing.T) {
	e := newTestEnv(t, &stubService{})

	rec := e.request(t, http.MethodGet, "/api/orders", nil, 1, model.RoleCustomer)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestGetBalance(t *testing.T) {
	e := newTestEnv(t, &stubService{balance: 17.5})

	rec := e.request(t, http.MethodGet, "/api/user/balance", nil, 1, model.RoleCustomer)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp balanceResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Current != 17.5 {
		t.Fatalf("balance = %v, want 17.5", resp.Current)
	}
}
