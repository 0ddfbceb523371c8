package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cooktodor/notifier/internal/models"
	"github.com/cooktodor/notifier/internal/notifications"
	"github.com/cooktodor/notifier/internal/realtime"
	apperrors "github.com/cooktodor/notifier/pkg/errors"
	"github.com/cooktodor/notifier/pkg/logger"
	"github.com/cooktodor/notifier/pkg/metrics"
)

// NotificationDTO represents the API-friendly notification payload. It is also
// the body of the "notification" stream event.
type NotificationDTO struct {
	ID                string         `json:"id"`
	UserID            string         `json:"userId"`
	Title             string         `json:"title"`
	Message           string         `json:"message"`
	Type              string         `json:"type"`
	RelatedEntityType string         `json:"relatedEntityType,omitempty"`
	RelatedEntityID   string         `json:"relatedEntityId,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	IsRead            bool           `json:"isRead"`
	ReadAt            *time.Time     `json:"readAt,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID            string
	Title             string
	Message           string
	Type              string
	RelatedEntityType string
	RelatedEntityID   string
	Metadata          map[string]any
}

// ReadEventPayload is sent as "notification_read".
type ReadEventPayload struct {
	NotificationID string `json:"notificationId"`
	IsRead         bool   `json:"isRead"`
}

// AllReadEventPayload is sent as "notifications_all_read".
type AllReadEventPayload struct {
	AllRead bool `json:"allRead"`
}

// UnreadCountPayload is sent as "unread_count" right after a stream opens.
type UnreadCountPayload struct {
	UnreadCount int64 `json:"unreadCount"`
}

// NotificationOption customises the NotificationService.
type NotificationOption func(*NotificationService)

// WithClock overrides the clock used for creation and read timestamps.
func WithClock(now func() time.Time) NotificationOption {
	return func(s *NotificationService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNotificationStore replaces the gorm-backed record store.
func WithNotificationStore(store NotificationStore) NotificationOption {
	return func(s *NotificationService) {
		if store != nil {
			s.store = store
		}
	}
}

// WithUserDirectory replaces the gorm-backed recipient lookup.
func WithUserDirectory(users UserDirectory) NotificationOption {
	return func(s *NotificationService) {
		if users != nil {
			s.users = users
		}
	}
}

// NotificationService persists notifications and pushes them to live streams.
// Persistence alone decides the outcome of every operation; push failures are
// logged and dropped.
type NotificationService struct {
	store  NotificationStore
	users  UserDirectory
	sender notifications.Sender
	now    func() time.Time
	log    *zap.Logger
}

// NewNotificationService constructs a NotificationService. A nil sender disables realtime push.
func NewNotificationService(db *gorm.DB, sender notifications.Sender, opts ...NotificationOption) (*NotificationService, error) {
	svc := &NotificationService{
		sender: sender,
		now:    time.Now,
		log:    logger.WithModule("notifications"),
	}
	if svc.sender == nil {
		svc.sender = notifications.Nop{}
	}
	for _, opt := range opts {
		opt(svc)
	}

	if svc.store == nil || svc.users == nil {
		if db == nil {
			return nil, errors.New("notification service: db is required")
		}
	}
	if svc.store == nil {
		store, err := NewGormNotificationStore(db)
		if err != nil {
			return nil, err
		}
		svc.store = store
	}
	if svc.users == nil {
		users, err := NewGormUserDirectory(db)
		if err != nil {
			return nil, err
		}
		svc.users = users
	}

	return svc, nil
}

// CreateAndSend persists a notification for an existing user and pushes it to
// the user's live stream when there is one.
func (s *NotificationService) CreateAndSend(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("Recipient is required")
	}
	notificationType := strings.TrimSpace(input.Type)
	if notificationType == "" {
		return nil, apperrors.NewBadRequest("Notification type is required")
	}

	exists, err := s.users.Exists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("notification service: %w", err)
	}
	if !exists {
		return nil, apperrors.NewNotFound("User not found")
	}

	now := s.now().UTC()
	notification := models.Notification{
		BaseModel:         models.BaseModel{CreatedAt: now, UpdatedAt: now},
		UserID:            userID,
		Title:             strings.TrimSpace(input.Title),
		Message:           strings.TrimSpace(input.Message),
		Type:              notificationType,
		RelatedEntityType: optionalString(input.RelatedEntityType),
		RelatedEntityID:   optionalString(input.RelatedEntityID),
	}

	if len(input.Metadata) > 0 {
		data, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("notification service: marshal metadata: %w", err)
		}
		notification.Metadata = datatypes.JSON(data)
	}

	if err := s.store.Create(ctx, &notification); err != nil {
		return nil, fmt.Errorf("notification service: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(notificationType).Inc()

	dto := mapNotification(notification)
	s.dispatch(userID, realtime.EventNotification, dto)
	return &dto, nil
}

// SendOrderStatus notifies a customer that an order changed status.
func (s *NotificationService) SendOrderStatus(ctx context.Context, userID, orderID, status, message string) (*NotificationDTO, error) {
	var metadata map[string]any
	if status = strings.TrimSpace(status); status != "" {
		metadata = map[string]any{"status": status}
	}
	return s.CreateAndSend(ctx, CreateNotificationInput{
		UserID:            userID,
		Title:             "Order Update",
		Message:           message,
		Type:              models.NotificationTypeOrderUpdate,
		RelatedEntityType: models.RelatedEntityOrder,
		RelatedEntityID:   orderID,
		Metadata:          metadata,
	})
}

// SendPayment notifies a user about a payment on an order.
func (s *NotificationService) SendPayment(ctx context.Context, userID, orderID, message string) (*NotificationDTO, error) {
	return s.sendOrderPreset(ctx, userID, orderID, "Payment Update", models.NotificationTypePayment, message)
}

// SendOrderCreated notifies a provider about a new order.
func (s *NotificationService) SendOrderCreated(ctx context.Context, userID, orderID, message string) (*NotificationDTO, error) {
	return s.sendOrderPreset(ctx, userID, orderID, "New Order", models.NotificationTypeOrderCreated, message)
}

// SendOrderCancelled notifies a user that an order was cancelled.
func (s *NotificationService) SendOrderCancelled(ctx context.Context, userID, orderID, message string) (*NotificationDTO, error) {
	return s.sendOrderPreset(ctx, userID, orderID, "Order Cancelled", models.NotificationTypeOrderCancelled, message)
}

// SendDeliveryAssigned notifies a delivery partner about an assignment.
func (s *NotificationService) SendDeliveryAssigned(ctx context.Context, userID, orderID, message string) (*NotificationDTO, error) {
	return s.sendOrderPreset(ctx, userID, orderID, "Delivery Partner Assigned", models.NotificationTypeDeliveryAssigned, message)
}

func (s *NotificationService) sendOrderPreset(ctx context.Context, userID, orderID, title, notificationType, message string) (*NotificationDTO, error) {
	return s.CreateAndSend(ctx, CreateNotificationInput{
		UserID:            userID,
		Title:             title,
		Message:           message,
		Type:              notificationType,
		RelatedEntityType: models.RelatedEntityOrder,
		RelatedEntityID:   orderID,
	})
}

// ListForUser returns the user's non-deleted notifications, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, userID string) ([]NotificationDTO, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("User is required")
	}

	rows, err := s.store.ListByOwner(ensureContext(ctx), userID, NotificationFilter{})
	if err != nil {
		return nil, fmt.Errorf("notification service: %w", err)
	}
	return mapNotificationRows(rows), nil
}

// UnreadCount returns the number of unread, non-deleted notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, apperrors.NewBadRequest("User is required")
	}

	count, err := s.store.CountByOwner(ensureContext(ctx), userID, NotificationFilter{UnreadOnly: true})
	if err != nil {
		return 0, fmt.Errorf("notification service: %w", err)
	}
	return count, nil
}

// MarkRead marks a notification read on behalf of its owner. The read
// timestamp is refreshed on every call, even for notifications already read.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID, requesterID string) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	notification, err := s.store.FindByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NewNotFound("Notification not found")
		}
		return nil, fmt.Errorf("notification service: %w", err)
	}
	if notification.UserID != strings.TrimSpace(requesterID) {
		return nil, apperrors.ErrNotificationForbidden
	}

	now := s.now().UTC()
	if _, err := s.store.MarkRead(ctx, []string{notification.ID}, now); err != nil {
		return nil, fmt.Errorf("notification service: %w", err)
	}
	notification.IsRead = true
	notification.ReadAt = &now

	s.dispatch(notification.UserID, realtime.EventNotificationRead, ReadEventPayload{
		NotificationID: notification.ID,
		IsRead:         true,
	})

	dto := mapNotification(*notification)
	return &dto, nil
}

// MarkAllRead marks every unread notification of the user as read with one
// shared timestamp and returns how many were updated. Notifications already
// read keep their original read timestamp.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, apperrors.NewBadRequest("User is required")
	}

	rows, err := s.store.ListByOwner(ctx, userID, NotificationFilter{UnreadOnly: true})
	if err != nil {
		return 0, fmt.Errorf("notification service: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	var updated int64
	if len(ids) > 0 {
		if updated, err = s.store.MarkUnreadRead(ctx, ids, s.now().UTC()); err != nil {
			return 0, fmt.Errorf("notification service: %w", err)
		}
	}

	s.dispatch(userID, realtime.EventNotificationsAllRead, AllReadEventPayload{AllRead: true})
	return int(updated), nil
}

// SoftDeleteReadBefore hides read notifications created before cutoff.
func (s *NotificationService) SoftDeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	count, err := s.store.SoftDeleteReadBefore(ensureContext(ctx), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("notification service: %w", err)
	}
	return count, nil
}

func (s *NotificationService) dispatch(userID, event string, payload any) {
	if err := s.sender.Dispatch(userID, event, payload); err != nil {
		s.log.Warn("realtime push failed",
			zap.String("user_id", userID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

func mapNotificationRows(rows []models.Notification) []NotificationDTO {
	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNotification(row))
	}
	return items
}

func mapNotification(row models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:                row.ID,
		UserID:            row.UserID,
		Title:             row.Title,
		Message:           row.Message,
		Type:              row.Type,
		RelatedEntityType: derefString(row.RelatedEntityType),
		RelatedEntityID:   derefString(row.RelatedEntityID),
		Metadata:          decodeJSON(row.Metadata),
		IsRead:            row.IsRead,
		ReadAt:            row.ReadAt,
		CreatedAt:         row.CreatedAt,
	}
}

func decodeJSON(data datatypes.JSON) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
