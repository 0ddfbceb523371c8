package events

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cooktodor/notifier/internal/services"
	"github.com/cooktodor/notifier/pkg/logger"
	"github.com/cooktodor/notifier/pkg/metrics"
)

// Notifier is the subset of the notification service driven by business events.
type Notifier interface {
	SendOrderStatus(ctx context.Context, userID, orderID, status, message string) (*services.NotificationDTO, error)
	SendPayment(ctx context.Context, userID, orderID, message string) (*services.NotificationDTO, error)
	SendOrderCreated(ctx context.Context, userID, orderID, message string) (*services.NotificationDTO, error)
	SendOrderCancelled(ctx context.Context, userID, orderID, message string) (*services.NotificationDTO, error)
	SendDeliveryAssigned(ctx context.Context, userID, orderID, message string) (*services.NotificationDTO, error)
}

var _ Notifier = (*services.NotificationService)(nil)

// Handler turns raw business events into notifications.
type Handler struct {
	notifier Notifier
	log      *zap.Logger
}

// NewHandler constructs a handler that creates notifications through notifier.
func NewHandler(notifier Notifier) (*Handler, error) {
	if notifier == nil {
		return nil, errors.New("events: notifier is required")
	}
	return &Handler{notifier: notifier, log: logger.WithModule("events")}, nil
}

// Handle decodes one message and creates the matching notification.
func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	event, err := Decode(payload)
	if err != nil {
		metrics.BusinessEvents.WithLabelValues("unknown", "invalid").Inc()
		return err
	}

	if err := h.route(ctx, event); err != nil {
		result := "failed"
		if errors.Is(err, ErrUnknownEventType) {
			result = "invalid"
		}
		metrics.BusinessEvents.WithLabelValues(event.Type, result).Inc()
		return err
	}

	metrics.BusinessEvents.WithLabelValues(event.Type, "handled").Inc()
	h.log.Debug("business event handled",
		zap.String("type", event.Type),
		zap.String("user_id", event.UserID),
		zap.String("order_id", event.OrderID),
	)
	return nil
}

func (h *Handler) route(ctx context.Context, event BusinessEvent) error {
	message := event.defaultMessage()

	var err error
	switch event.Type {
	case TypeOrderCreated:
		_, err = h.notifier.SendOrderCreated(ctx, event.UserID, event.OrderID, message)
	case TypeOrderStatus:
		_, err = h.notifier.SendOrderStatus(ctx, event.UserID, event.OrderID, event.Status, message)
	case TypePayment:
		_, err = h.notifier.SendPayment(ctx, event.UserID, event.OrderID, message)
	case TypeOrderCancelled:
		_, err = h.notifier.SendOrderCancelled(ctx, event.UserID, event.OrderID, message)
	case TypeDeliveryAssigned:
		_, err = h.notifier.SendDeliveryAssigned(ctx, event.UserID, event.OrderID, message)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, event.Type)
	}
	if err != nil {
		return fmt.Errorf("events: %s for user %s: %w", event.Type, event.UserID, err)
	}
	return nil
}
