// Package lifecycle описывает машину состояний жизненного цикла заказа.
// Все переходы статуса заказа определены единой таблицей; любой переход,
// отсутствующий в таблице, отклоняется с типизированной ошибкой.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/mmeshcher/marketplace-system/internal/model"
)

// Event описывает событие жизненного цикла заказа.
type Event string

const (
	// EventCustomerCancel — покупатель запросил отмену заказа.
	EventCustomerCancel Event = "customer_cancel"
	// EventSellerApproveCancel — продавец одобрил отложенную отмену.
	EventSellerApproveCancel Event = "seller_approve_cancel"
	// EventSellerRejectCancel — продавец отклонил отложенную отмену.
	EventSellerRejectCancel Event = "seller_reject_cancel"
	// EventPaymentConfirmed — продавец подтвердил оплату заказа.
	EventPaymentConfirmed Event = "payment_confirmed"
	// EventShipped — продавец отметил заказ отправленным.
	EventShipped Event = "shipped"
	// EventDelivered — продавец отметил заказ доставленным.
	EventDelivered Event = "delivered"
	// EventReturnRequested — покупатель оформил возврат.
	EventReturnRequested Event = "return_requested"
	// EventReturnApproved — продавец одобрил возврат.
	EventReturnApproved Event = "return_approved"
)

// ErrIllegalTransition возвращается при попытке перехода, отсутствующего в таблице.
var ErrIllegalTransition = errors.New("illegal order status transition")

type edge struct {
	from  model.OrderStatus
	event Event
}

// transitions — единственный источник правды о допустимых рёбрах машины состояний.
var transitions = map[edge]model.OrderStatus{
	{model.OrderStatusToPay, EventCustomerCancel}:     model.OrderStatusCancelled,
	{model.OrderStatusToShip, EventCustomerCancel}:    model.OrderStatusCancelled,
	{model.OrderStatusToReceive, EventCustomerCancel}: model.OrderStatusCancelPending,

	{model.OrderStatusCancelPending, EventSellerApproveCancel}: model.OrderStatusCancelled,
	{model.OrderStatusCancelPending, EventSellerRejectCancel}:  model.OrderStatusToReceive,

	{model.OrderStatusToPay, EventPaymentConfirmed}: model.OrderStatusToShip,
	{model.OrderStatusToShip, EventShipped}:         model.OrderStatusToReceive,
	{model.OrderStatusToReceive, EventDelivered}:    model.OrderStatusCompleted,

	{model.OrderStatusToPay, EventReturnRequested}:         model.OrderStatusRefundPending,
	{model.OrderStatusToShip, EventReturnRequested}:        model.OrderStatusRefundPending,
	{model.OrderStatusToReceive, EventReturnRequested}:     model.OrderStatusRefundPending,
	{model.OrderStatusCancelPending, EventReturnRequested}: model.OrderStatusRefundPending,

	{model.OrderStatusRefundPending, EventReturnApproved}: model.OrderStatusRefunded,
}

// Next возвращает статус, в который заказ переходит из состояния current
// по событию event. Для ребра, отсутствующего в таблице, возвращается
// ErrIllegalTransition.
func Next(current model.OrderStatus, event Event) (model.OrderStatus, error) {
	next, ok := transitions[edge{current, event}]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrIllegalTransition, event, current)
	}
	return next, nil
}

// IsTerminal сообщает, является ли статус конечным: из конечного статуса
// не существует ни одного ребра.
func IsTerminal(status model.OrderStatus) bool {
	switch status {
	case model.OrderStatusCompleted, model.OrderStatusCancelled, model.OrderStatusRefunded:
		return true
	}
	return false
}

// InstantCancel сообщает, отменяется ли заказ из данного статуса мгновенно,
// без рассмотрения продавцом.
func InstantCancel(status model.OrderStatus) bool {
	return status == model.OrderStatusToPay || status == model.OrderStatusToShip
}

// EventForSellerStatus сопоставляет целевой статус из запроса продавца
// с событием машины состояний. Продавец может двигать заказ только по
// рёбрам оплаты, отправки и доставки.
func EventForSellerStatus(target model.OrderStatus) (Event, error) {
	switch target {
	case model.OrderStatusToShip:
		return EventPaymentConfirmed, nil
	case model.OrderStatusToReceive:
		return EventShipped, nil
	case model.OrderStatusCompleted:
		return EventDelivered, nil
	}
	return "", fmt.Errorf("%w: seller cannot set status %q", ErrIllegalTransition, target)
}
