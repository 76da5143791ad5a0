// Package model содержит доменные сущности маркетплейса.
package model

import "time"

// UserRole определяет роль пользователя в маркетплейсе.
type UserRole string

const (
	RoleCustomer UserRole = "customer"
	RoleSeller   UserRole = "seller"
)

// User представляет зарегистрированного пользователя маркетплейса.
// Баланс бонусных баллов хранится в копейках.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	Role         UserRole
	LoyaltyCents int64
	CreatedAt    time.Time
}

// Shop представляет магазин продавца.
type Shop struct {
	ID        int64
	OwnerID   int64
	Name      string
	CreatedAt time.Time
}

// OrderStatus описывает стадию жизненного цикла заказа.
type OrderStatus string

const (
	OrderStatusToPay         OrderStatus = "to_pay"
	OrderStatusToShip        OrderStatus = "to_ship"
	OrderStatusToReceive     OrderStatus = "to_receive"
	OrderStatusCompleted     OrderStatus = "completed"
	OrderStatusCancelled     OrderStatus = "cancelled"
	OrderStatusCancelPending OrderStatus = "cancel_pending"
	OrderStatusRefundPending OrderStatus = "refund_pending"
	OrderStatusRefunded      OrderStatus = "refunded"
)

// Order описывает заказ покупателя в магазине. Сумма хранится в копейках.
type Order struct {
	ID         string
	CustomerID int64
	ShopID     int64
	TotalCents int64
	Status     OrderStatus
	Paid       bool
	Shipped    bool
	Delivered  bool
	CreatedAt  time.Time
}

// CancellationStatus описывает резолюцию запроса на отмену заказа.
type CancellationStatus string

const (
	CancellationApproved      CancellationStatus = "approved"
	CancellationPendingReview CancellationStatus = "pending_review"
	CancellationRejected      CancellationStatus = "rejected"
)

// OrderCancellation описывает запрос покупателя на отмену заказа.
// Причина неизменяема; резолюцию меняет только продавец.
type OrderCancellation struct {
	ID        string
	OrderID   string
	Reason    string
	Detail    string
	Status    CancellationStatus
	CreatedAt time.Time
}

// ReturnStatus описывает резолюцию запроса на возврат.
type ReturnStatus string

const (
	ReturnPending  ReturnStatus = "pending"
	ReturnApproved ReturnStatus = "approved"
)

// OrderReturn описывает запрос покупателя на возврат заказа.
type OrderReturn struct {
	ID          string
	OrderID     string
	Reason      string
	Method      string
	Packaging   string
	ProofURLs   []string
	Status      ReturnStatus
	RefundCents int64
	SellerNotes string
	CreatedAt   time.Time
}

// LoyaltyKind описывает вид операции по бонусному счёту.
type LoyaltyKind string

const (
	LoyaltyKindReturnRefund LoyaltyKind = "return_refund"
)

// LoyaltyTransaction представляет запись append-only журнала бонусных баллов.
type LoyaltyTransaction struct {
	ID          int64
	UserID      int64
	OrderID     string
	AmountCents int64
	Kind        LoyaltyKind
	CreatedAt   time.Time
}

// PayoutStatus описывает состояние выплаты продавцу.
type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutProcessed PayoutStatus = "processed"
)

// PayoutRecord представляет запись журнала выплат продавцу по заказу.
// Все суммы в копейках; после создания меняется только статус.
type PayoutRecord struct {
	ID               int64
	ShopID           int64
	OrderID          string
	GrossCents       int64
	CommissionCents  int64
	ProcessingCents  int64
	WithholdingCents int64
	NetCents         int64
	Status           PayoutStatus
	CreatedAt        time.Time
}

// PayoutSummary содержит агрегированные суммы выплат магазина.
type PayoutSummary struct {
	ShopID         int64
	PendingCents   int64
	ProcessedCents int64
}

// Notification представляет уведомление пользователю, создаваемое
// как побочный эффект перехода статуса заказа.
type Notification struct {
	ID          int64
	RecipientID int64
	Title       string
	Message     string
	Type        string
	Read        bool
	CreatedAt   time.Time
}
