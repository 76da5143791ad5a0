package lifecycle

import (
	"errors"
	"testing"

	"github.com/mmeshcher/marketplace-system/internal/model"
)

func TestNext_LegalTransitions(t *testing.T) {
	tests := []struct {
		name    string
		current model.OrderStatus
		event   Event
		want    model.OrderStatus
	}{
		{"cancel before payment", model.OrderStatusToPay, EventCustomerCancel, model.OrderStatusCancelled},
		{"cancel before shipment", model.OrderStatusToShip, EventCustomerCancel, model.OrderStatusCancelled},
		{"cancel after shipment needs review", model.OrderStatusToReceive, EventCustomerCancel, model.OrderStatusCancelPending},
		{"seller approves pending cancel", model.OrderStatusCancelPending, EventSellerApproveCancel, model.OrderStatusCancelled},
		{"seller rejects pending cancel", model.OrderStatusCancelPending, EventSellerRejectCancel, model.OrderStatusToReceive},
		{"payment confirmed", model.OrderStatusToPay, EventPaymentConfirmed, model.OrderStatusToShip},
		{"shipped", model.OrderStatusToShip, EventShipped, model.OrderStatusToReceive},
		{"delivered", model.OrderStatusToReceive, EventDelivered, model.OrderStatusCompleted},
		{"return from to_pay", model.OrderStatusToPay, EventReturnRequested, model.OrderStatusRefundPending},
		{"return from to_receive", model.OrderStatusToReceive, EventReturnRequested, model.OrderStatusRefundPending},
		{"return approved", model.OrderStatusRefundPending, EventReturnApproved, model.OrderStatusRefunded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.current, tt.event)
			if err != nil {
				t.Fatalf("Next(%s, %s) error: %v", tt.current, tt.event, err)
			}
			if got != tt.want {
				t.Fatalf("Next(%s, %s) = %s, want %s", tt.current, tt.event, got, tt.want)
			}
		})
	}
}

func TestNext_IllegalTransitions(t *testing.T) {
	tests := []struct {
		name    string
		current model.OrderStatus
		event   Event
	}{
		{"cancel completed order", model.OrderStatusCompleted, EventCustomerCancel},
		{"cancel cancelled order", model.OrderStatusCancelled, EventCustomerCancel},
		{"return on refunded order", model.OrderStatusRefunded, EventReturnRequested},
		{"return on completed order", model.OrderStatusCompleted, EventReturnRequested},
		{"ship unpaid order", model.OrderStatusToPay, EventShipped},
		{"deliver unshipped order", model.OrderStatusToShip, EventDelivered},
		{"approve cancel without request", model.OrderStatusToReceive, EventSellerApproveCancel},
		{"approve return without request", model.OrderStatusToReceive, EventReturnApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Next(tt.current, tt.event)
			if !errors.Is(err, ErrIllegalTransition) {
				t.Fatalf("Next(%s, %s) = %v, want ErrIllegalTransition", tt.current, tt.event, err)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, status := range []model.OrderStatus{
		model.OrderStatusCompleted,
		model.OrderStatusCancelled,
		model.OrderStatusRefunded,
	} {
		if !IsTerminal(status) {
			t.Fatalf("IsTerminal(%s) = false, want true", status)
		}
	}

	for _, status := range []model.OrderStatus{
		model.OrderStatusToPay,
		model.OrderStatusToShip,
		model.OrderStatusToReceive,
		model.OrderStatusCancelPending,
		model.OrderStatusRefundPending,
	} {
		if IsTerminal(status) {
			t.Fatalf("IsTerminal(%s) = true, want false", status)
		}
	}
}

func TestTerminalStatesHaveNoEdges(t *testing.T) {
	for e := range transitions {
		if IsTerminal(e.from) {
			t.Fatalf("terminal status %s has outgoing edge %s", e.from, e.event)
		}
	}
}

func TestInstantCancel(t *testing.T) {
	if !InstantCancel(model.OrderStatusToPay) {
		t.Fatalf("to_pay must cancel instantly")
	}
	if !InstantCancel(model.OrderStatusToShip) {
		t.Fatalf("to_ship must cancel instantly")
	}
	if InstantCancel(model.OrderStatusToReceive) {
		t.Fatalf("to_receive must not cancel instantly")
	}
}

func TestEventForSellerStatus(t *testing.T) {
	tests := []struct {
		target  model.OrderStatus
		want    Event
		wantErr bool
	}{
		{model.OrderStatusToShip, EventPaymentConfirmed, false},
		{model.OrderStatusToReceive, EventShipped, false},
		{model.OrderStatusCompleted, EventDelivered, false},
		{model.OrderStatusCancelled, "", true},
		{model.OrderStatusRefunded, "", true},
		{"bogus", "", true},
	}

	for _, tt := range tests {
		got, err := EventForSellerStatus(tt.target)
		if tt.wantErr {
			if !errors.Is(err, ErrIllegalTransition) {
				t.Fatalf("EventForSellerStatus(%s) = %v, want ErrIllegalTransition", tt.target, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("EventForSellerStatus(%s) error: %v", tt.target, err)
		}
		if got != tt.want {
			t.Fatalf("EventForSellerStatus(%s) = %s, want %s", tt.target, got, tt.want)
		}
	}
}
