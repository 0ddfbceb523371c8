package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Business event types published by the order and payment services.
const (
	TypeOrderCreated     = "ORDER_CREATED"
	TypeOrderStatus      = "ORDER_STATUS"
	TypePayment          = "PAYMENT"
	TypeOrderCancelled   = "ORDER_CANCELLED"
	TypeDeliveryAssigned = "DELIVERY_ASSIGNED"
)

var (
	// ErrInvalidEvent marks payloads that cannot be decoded or miss required fields.
	ErrInvalidEvent = errors.New("events: invalid business event")
	// ErrUnknownEventType marks events whose type has no notification mapping.
	ErrUnknownEventType = errors.New("events: unknown business event type")
)

// BusinessEvent is a change in the wider platform that should notify a user.
type BusinessEvent struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	OrderID string `json:"orderId"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// Decode parses and validates a JSON business event.
func Decode(data []byte) (BusinessEvent, error) {
	var event BusinessEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return BusinessEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	event.Type = strings.ToUpper(strings.TrimSpace(event.Type))
	event.UserID = strings.TrimSpace(event.UserID)
	event.OrderID = strings.TrimSpace(event.OrderID)
	event.Status = strings.TrimSpace(event.Status)

	switch {
	case event.Type == "":
		return BusinessEvent{}, fmt.Errorf("%w: type is required", ErrInvalidEvent)
	case event.UserID == "":
		return BusinessEvent{}, fmt.Errorf("%w: userId is required", ErrInvalidEvent)
	case event.OrderID == "":
		return BusinessEvent{}, fmt.Errorf("%w: orderId is required", ErrInvalidEvent)
	case event.Type == TypeOrderStatus && event.Status == "":
		return BusinessEvent{}, fmt.Errorf("%w: status is required for %s", ErrInvalidEvent, TypeOrderStatus)
	}
	return event, nil
}

// defaultMessage fills in a human readable message when the producer sent none.
func (e BusinessEvent) defaultMessage() string {
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	switch e.Type {
	case TypeOrderCreated:
		return fmt.Sprintf("You have received a new order #%s", e.OrderID)
	case TypeOrderStatus:
		return fmt.Sprintf("Your order #%s is now %s", e.OrderID, strings.ToLower(e.Status))
	case TypePayment:
		return fmt.Sprintf("Payment for order #%s has been processed", e.OrderID)
	case TypeOrderCancelled:
		return fmt.Sprintf("Order #%s has been cancelled", e.OrderID)
	case TypeDeliveryAssigned:
		return fmt.Sprintf("A delivery partner has been assigned to order #%s", e.OrderID)
	default:
		return ""
	}
}
