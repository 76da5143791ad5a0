// Package service реализует бизнес-логику жизненного цикла заказов маркетплейса.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/marketplace-system/internal/lifecycle"
	"github.com/mmeshcher/marketplace-system/internal/model"
	"github.com/mmeshcher/marketplace-system/internal/repository"
)

// ErrNotOwner возвращается, если пользователь не имеет прав на объект.
var (
	ErrNotOwner = errors.New("resource does not belong to user")
	// ErrInvalidCredentials возвращается при неверном логине или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidAmount возвращается при некорректной сумме операции.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte, role model.UserRole) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	CreateShop(ctx context.Context, ownerID int64, name string) (int64, error)
	GetShopByOwner(ctx context.Context, ownerID int64) (*model.Shop, error)
	GetShopByID(ctx context.Context, id int64) (*model.Shop, error)
	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrderByID(ctx context.Context, id string) (*model.Order, error)
	GetOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error)
	GetOrdersByShop(ctx context.Context, shopID int64) ([]model.Order, error)
	ApplyCancellation(ctx context.Context, c *model.OrderCancellation, expected, next model.OrderStatus, n *model.Notification) error
	GetCancellationByID(ctx context.Context, id string) (*model.OrderCancellation, error)
	ResolveCancellation(ctx context.Context, cancellationID, orderID string, resolution model.CancellationStatus, expected, next model.OrderStatus, n *model.Notification) error
	ApplyReturn(ctx context.Context, ret *model.OrderReturn, expected model.OrderStatus, n *model.Notification) error
	GetReturnByID(ctx context.Context, id string) (*model.OrderReturn, error)
	ProcessReturnRefund(ctx context.Context, returnID, orderID string, customerID, amountCents int64, sellerNotes string, n *model.Notification) error
	ApplySellerStatus(ctx context.Context, orderID string, expected, next model.OrderStatus, payout *model.PayoutRecord, n *model.Notification) error
	GetPayoutsByShop(ctx context.Context, shopID int64) ([]model.PayoutRecord, error)
	GetPayoutSummary(ctx context.Context, shopID int64) (*model.PayoutSummary, error)
	MarkPayoutProcessed(ctx context.Context, payoutID, shopID int64) error
	GetNotificationsByUser(ctx context.Context, userID int64) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID int64) error
}

// Notifier описывает контракт шлюза push-уведомлений.
type Notifier interface {
	Notify(ctx context.Context, userID int64, notificationType string) error
}

// Fees содержит ставки комиссии, эквайринга и налога для расчёта выплат.
type Fees struct {
	CommissionRate     float64
	ProcessingFeeRate  float64
	WithholdingTaxRate float64
}

// Service координирует жизненный цикл заказов: вычисляет переход статуса
// по таблице lifecycle и применяет его вместе с зависимыми записями.
type Service struct {
	repo     Repository
	notifier Notifier
	fees     Fees
	logger   *zap.Logger
}

// NewService создаёт новый сервис с указанным репозиторием и шлюзом уведомлений.
func NewService(repo Repository, notifier Notifier, fees Fees, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		fees:     fees,
		logger:   logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя. Для продавца дополнительно
// создаётся магазин с указанным названием.
func (s *Service) RegisterUser(ctx context.Context, login, password string, role model.UserRole, shopName string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.repo.CreateUser(ctx, login, hash, role)
	if err != nil {
		return 0, err
	}

	if role == model.RoleSeller {
		if shopName == "" {
			shopName = login
		}
		if _, err := s.repo.CreateShop(ctx, id, shopName); err != nil {
			return 0, err
		}
	}

	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// Checkout создаёт новый заказ покупателя в статусе to_pay.
func (s *Service) Checkout(ctx context.Context, customerID, shopID int64, total float64) (*model.Order, error) {
	totalCents := toCents(total)
	if totalCents <= 0 {
		return nil, ErrInvalidAmount
	}

	if _, err := s.repo.GetShopByID(ctx, shopID); err != nil {
		return nil, err
	}

	o := &model.Order{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		ShopID:     shopID,
		TotalCents: totalCents,
		Status:     model.OrderStatusToPay,
		CreatedAt:  time.Now(),
	}

	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return nil, err
	}

	return o, nil
}

// GetOrder возвращает заказ, если он принадлежит пользователю:
// покупателю напрямую либо продавцу через его магазин.
func (s *Service) GetOrder(ctx context.Context, userID int64, role model.UserRole, orderID string) (*model.Order, error) {
	o, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch role {
	case model.RoleCustomer:
		if o.CustomerID != userID {
			return nil, ErrNotOwner
		}
	case model.RoleSeller:
		shop, err := s.repo.GetShopByOwner(ctx, userID)
		if err != nil {
			return nil, err
		}
		if o.ShopID != shop.ID {
			return nil, ErrNotOwner
		}
	default:
		return nil, ErrNotOwner
	}

	return o, nil
}

// GetCustomerOrders возвращает список заказов покупателя.
func (s *Service) GetCustomerOrders(ctx context.Context, customerID int64) ([]model.Order, error) {
	return s.repo.GetOrdersByCustomer(ctx, customerID)
}

// GetShopOrders возвращает список заказов магазина продавца.
func (s *Service) GetShopOrders(ctx context.Context, sellerID int64) ([]model.Order, error) {
	shop, err := s.repo.GetShopByOwner(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetOrdersByShop(ctx, shop.ID)
}

// SubmitCancellation обрабатывает запрос покупателя на отмену заказа.
// До отправки заказ отменяется мгновенно; после отправки создаётся
// отложенная отмена, требующая рассмотрения продавцом. Возвращает признак
// мгновенной отмены.
func (s *Service) SubmitCancellation(ctx context.Context, customerID int64, orderID, reason, detail string) (bool, error) {
	o, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if o.CustomerID != customerID {
		return false, ErrNotOwner
	}

	next, err := lifecycle.Next(o.Status, lifecycle.EventCustomerCancel)
	if err != nil {
		return false, err
	}

	instant := lifecycle.InstantCancel(o.Status)

	c := &model.OrderCancellation{
		ID:      uuid.NewString(),
		OrderID: o.ID,
		Reason:  reason,
		Detail:  detail,
		Status:  model.CancellationPendingReview,
	}
	notificationType := "order_cancel_requested"
	if instant {
		c.Status = model.CancellationApproved
		notificationType = "order_cancelled"
	}

	shop, err := s.repo.GetShopByID(ctx, o.ShopID)
	if err != nil {
		return false, err
	}

	n := &model.Notification{
		RecipientID: shop.OwnerID,
		Title:       "Отмена заказа",
		Message:     fmt.Sprintf("Покупатель запросил отмену заказа %s: %s", o.ID, reason),
		Type:        notificationType,
	}

	if err := s.repo.ApplyCancellation(ctx, c, o.Status, next, n); err != nil {
		return false, err
	}

	s.pushNudge(ctx, shop.OwnerID, notificationType)

	return instant, nil
}

// ResolveCancellation обрабатывает решение продавца по отложенной отмене:
// одобрение переводит заказ в cancelled, отказ возвращает его в to_receive.
func (s *Service) ResolveCancellation(ctx context.Context, sellerID int64, cancellationID string, approve bool) error {
	c, err := s.repo.GetCancellationByID(ctx, cancellationID)
	if err != nil {
		return err
	}

	o, err := s.repo.GetOrderByID(ctx, c.OrderID)
	if err != nil {
		return err
	}

	shop, err := s.repo.GetShopByOwner(ctx, sellerID)
	if err != nil {
		return err
	}
	if o.ShopID != shop.ID {
		return ErrNotOwner
	}

	event := lifecycle.EventSellerRejectCancel
	resolution := model.CancellationRejected
	notificationType := "order_cancel_rejected"
	message := fmt.Sprintf("Продавец отклонил отмену заказа %s", o.ID)
	if approve {
		event = lifecycle.EventSellerApproveCancel
		resolution = model.CancellationApproved
		notificationType = "order_cancelled"
		message = fmt.Sprintf("Продавец одобрил отмену заказа %s", o.ID)
	}

	next, err := lifecycle.Next(o.Status, event)
	if err != nil {
		return err
	}

	n := &model.Notification{
		RecipientID: o.CustomerID,
		Title:       "Отмена заказа",
		Message:     message,
		Type:        notificationType,
	}

	if err := s.repo.ResolveCancellation(ctx, c.ID, o.ID, resolution, o.Status, next, n); err != nil {
		return err
	}

	s.pushNudge(ctx, o.CustomerID, notificationType)

	return nil
}

// SubmitReturn обрабатывает запрос покупателя на возврат заказа.
// Заказ переводится в refund_pending из любого нетерминального статуса.
func (s *Service) SubmitReturn(ctx context.Context, customerID int64, orderID, reason, method, packaging string, proofURLs []string) (*model.OrderReturn, error) {
	o, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customerID {
		return nil, ErrNotOwner
	}

	if _, err := lifecycle.Next(o.Status, lifecycle.EventReturnRequested); err != nil {
		return nil, err
	}

	ret := &model.OrderReturn{
		ID:        uuid.NewString(),
		OrderID:   o.ID,
		Reason:    reason,
		Method:    method,
		Packaging: packaging,
		ProofURLs: proofURLs,
		Status:    model.ReturnPending,
	}

	shop, err := s.repo.GetShopByID(ctx, o.ShopID)
	if err != nil {
		return nil, err
	}

	n := &model.Notification{
		RecipientID: shop.OwnerID,
		Title:       "Возврат заказа",
		Message:     fmt.Sprintf("Покупатель оформил возврат заказа %s: %s", o.ID, reason),
		Type:        "order_return_requested",
	}

	if err := s.repo.ApplyReturn(ctx, ret, o.Status, n); err != nil {
		return nil, err
	}

	s.pushNudge(ctx, shop.OwnerID, "order_return_requested")

	return ret, nil
}

// ProcessReturnRefund обрабатывает одобрение возврата продавцом: возврат
// переходит в approved, покупателю начисляются бонусные баллы на сумму
// возврата, заказ переводится в refunded. Повторная обработка одного и
// того же возврата отклоняется.
func (s *Service) ProcessReturnRefund(ctx context.Context, sellerID int64, returnID string, amount float64, sellerNotes string) error {
	amountCents := toCents(amount)
	if amountCents <= 0 {
		return ErrInvalidAmount
	}

	ret, err := s.repo.GetReturnByID(ctx, returnID)
	if err != nil {
		return err
	}

	o, err := s.repo.GetOrderByID(ctx, ret.OrderID)
	if err != nil {
		return err
	}

	shop, err := s.repo.GetShopByOwner(ctx, sellerID)
	if err != nil {
		return err
	}
	if o.ShopID != shop.ID {
		return ErrNotOwner
	}

	if _, err := lifecycle.Next(o.Status, lifecycle.EventReturnApproved); err != nil {
		return err
	}

	n := &model.Notification{
		RecipientID: o.CustomerID,
		Title:       "Возврат одобрен",
		Message:     fmt.Sprintf("Возврат по заказу %s одобрен, баллы начислены на ваш счёт", o.ID),
		Type:        "order_refunded",
	}

	if err := s.repo.ProcessReturnRefund(ctx, ret.ID, o.ID, o.CustomerID, amountCents, sellerNotes, n); err != nil {
		return err
	}

	s.pushNudge(ctx, o.CustomerID, "order_refunded")

	return nil
}

// UpdateSellerStatus применяет запрошенный продавцом статус заказа.
// Допустимы только переходы подтверждения оплаты, отправки и доставки;
// переход в completed дополнительно создаёт запись о выплате продавцу.
func (s *Service) UpdateSellerStatus(ctx context.Context, sellerID int64, orderID string, target model.OrderStatus) error {
	o, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	shop, err := s.repo.GetShopByOwner(ctx, sellerID)
	if err != nil {
		return err
	}
	if o.ShopID != shop.ID {
		return ErrNotOwner
	}

	event, err := lifecycle.EventForSellerStatus(target)
	if err != nil {
		return err
	}

	next, err := lifecycle.Next(o.Status, event)
	if err != nil {
		return err
	}

	var payout *model.PayoutRecord
	if next == model.OrderStatusCompleted {
		payout = s.computePayout(o)
	}

	notificationType := "order_status_" + string(next)
	n := &model.Notification{
		RecipientID: o.CustomerID,
		Title:       "Статус заказа изменён",
		Message:     fmt.Sprintf("Заказ %s переведён в статус %s", o.ID, next),
		Type:        notificationType,
	}

	if err := s.repo.ApplySellerStatus(ctx, o.ID, o.Status, next, payout, n); err != nil {
		return err
	}

	s.pushNudge(ctx, o.CustomerID, notificationType)

	return nil
}

// computePayout рассчитывает выплату продавцу по завершённому заказу.
func (s *Service) computePayout(o *model.Order) *model.PayoutRecord {
	gross := o.TotalCents
	commission := roundRate(gross, s.fees.CommissionRate)
	processing := roundRate(gross, s.fees.ProcessingFeeRate)
	withholding := roundRate(gross, s.fees.WithholdingTaxRate)

	return &model.PayoutRecord{
		ShopID:           o.ShopID,
		OrderID:          o.ID,
		GrossCents:       gross,
		CommissionCents:  commission,
		ProcessingCents:  processing,
		WithholdingCents: withholding,
		NetCents:         gross - commission - processing - withholding,
		Status:           model.PayoutPending,
	}
}

// GetLoyaltyBalance возвращает баланс бонусных баллов пользователя в рублях.
func (s *Service) GetLoyaltyBalance(ctx context.Context, userID int64) (float64, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return float64(u.LoyaltyCents) / 100, nil
}

// GetPayouts возвращает журнал выплат магазина продавца.
func (s *Service) GetPayouts(ctx context.Context, sellerID int64) ([]model.PayoutRecord, error) {
	shop, err := s.repo.GetShopByOwner(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetPayoutsByShop(ctx, shop.ID)
}

// GetPayoutSummary возвращает агрегированные суммы выплат магазина продавца.
func (s *Service) GetPayoutSummary(ctx context.Context, sellerID int64) (*model.PayoutSummary, error) {
	shop, err := s.repo.GetShopByOwner(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetPayoutSummary(ctx, shop.ID)
}

// ProcessPayout переводит выплату магазина продавца в статус processed.
func (s *Service) ProcessPayout(ctx context.Context, sellerID, payoutID int64) error {
	shop, err := s.repo.GetShopByOwner(ctx, sellerID)
	if err != nil {
		return err
	}
	return s.repo.MarkPayoutProcessed(ctx, payoutID, shop.ID)
}

// GetNotifications возвращает уведомления пользователя.
func (s *Service) GetNotifications(ctx context.Context, userID int64) ([]model.Notification, error) {
	return s.repo.GetNotificationsByUser(ctx, userID)
}

// MarkNotificationRead помечает уведомление пользователя прочитанным.
func (s *Service) MarkNotificationRead(ctx context.Context, userID, notificationID int64) error {
	return s.repo.MarkNotificationRead(ctx, notificationID, userID)
}

// pushNudge отправляет сигнал шлюзу push-уведомлений после успешного
// перехода. Ошибка доставки не влияет на результат операции.
func (s *Service) pushNudge(ctx context.Context, userID int64, notificationType string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, notificationType); err != nil {
		s.logger.Warn("push nudge failed",
			zap.Int64("userID", userID),
			zap.String("type", notificationType),
			zap.Error(err),
		)
	}
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func roundRate(cents int64, rate float64) int64 {
	return int64(math.Round(float64(cents) * rate))
}
