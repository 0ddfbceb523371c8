package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cooktodor/notifier/internal/models"
	apperrors "github.com/cooktodor/notifier/pkg/errors"
)

var (
	_ NotificationStore = (*GormNotificationStore)(nil)
	_ UserDirectory     = (*GormUserDirectory)(nil)
)

// NotificationStore abstracts durable storage for notification records.
type NotificationStore interface {
	// Create persists a new notification. The ID is assigned when empty.
	Create(ctx context.Context, notification *models.Notification) error
	// FindByID loads a non-deleted notification or returns apperrors.ErrNotFound.
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	// ListByOwner returns the owner's notifications matching filter, newest first.
	ListByOwner(ctx context.Context, userID string, filter NotificationFilter) ([]models.Notification, error)
	// CountByOwner counts the owner's notifications matching filter.
	CountByOwner(ctx context.Context, userID string, filter NotificationFilter) (int64, error)
	// MarkRead stamps every listed notification as read at readAt.
	MarkRead(ctx context.Context, ids []string, readAt time.Time) (int64, error)
	// MarkUnreadRead stamps only the listed notifications that are still unread.
	MarkUnreadRead(ctx context.Context, ids []string, readAt time.Time) (int64, error)
	// SoftDeleteReadBefore flags read notifications created before cutoff as deleted.
	SoftDeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationFilter narrows owner queries. Soft-deleted rows are always excluded.
type NotificationFilter struct {
	UnreadOnly bool
}

// UserDirectory answers whether a notification recipient exists.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// GormNotificationStore implements NotificationStore on a relational database.
type GormNotificationStore struct {
	db *gorm.DB
}

// NewGormNotificationStore constructs a gorm-backed store.
func NewGormNotificationStore(db *gorm.DB) (*GormNotificationStore, error) {
	if db == nil {
		return nil, errors.New("notification store: db is required")
	}
	return &GormNotificationStore{db: db}, nil
}

// Create inserts the notification, retrying once with a fresh identifier on a key collision.
func (s *GormNotificationStore) Create(ctx context.Context, notification *models.Notification) error {
	if notification == nil {
		return errors.New("notification store: notification is required")
	}
	ctx = ensureContext(ctx)

	err := s.db.WithContext(ctx).Create(notification).Error
	if err != nil && isUniqueConstraintError(err) {
		notification.ID = ""
		err = s.db.WithContext(ctx).Create(notification).Error
	}
	if err != nil {
		return fmt.Errorf("notification store: create: %w", err)
	}
	return nil
}

// FindByID loads a single notification.
func (s *GormNotificationStore) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.ErrNotFound
	}

	var notification models.Notification
	err := s.db.WithContext(ensureContext(ctx)).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&notification).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("notification store: load %s: %w", id, err)
	}
	return &notification, nil
}

// ListByOwner returns matching notifications ordered by creation time, newest first.
func (s *GormNotificationStore) ListByOwner(ctx context.Context, userID string, filter NotificationFilter) ([]models.Notification, error) {
	var rows []models.Notification
	if err := s.ownerScope(ctx, userID, filter).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification store: list: %w", err)
	}
	return rows, nil
}

// CountByOwner counts matching notifications.
func (s *GormNotificationStore) CountByOwner(ctx context.Context, userID string, filter NotificationFilter) (int64, error) {
	var count int64
	if err := s.ownerScope(ctx, userID, filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification store: count: %w", err)
	}
	return count, nil
}

// MarkRead updates the read flag and timestamp for ids in one statement.
func (s *GormNotificationStore) MarkRead(ctx context.Context, ids []string, readAt time.Time) (int64, error) {
	return s.stampRead(ctx, ids, readAt, false)
}

// MarkUnreadRead is MarkRead restricted to rows that are still unread, so a
// row read concurrently keeps its own timestamp.
func (s *GormNotificationStore) MarkUnreadRead(ctx context.Context, ids []string, readAt time.Time) (int64, error) {
	return s.stampRead(ctx, ids, readAt, true)
}

func (s *GormNotificationStore) stampRead(ctx context.Context, ids []string, readAt time.Time, unreadOnly bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Notification{}).
		Where("id IN ?", ids)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	result := query.Updates(map[string]any{
		"is_read": true,
		"read_at": readAt,
	})
	if result.Error != nil {
		return 0, fmt.Errorf("notification store: mark read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// SoftDeleteReadBefore hides read notifications created before cutoff.
func (s *GormNotificationStore) SoftDeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Notification{}).
		Where("is_read = ? AND is_deleted = ? AND created_at < ?", true, false, cutoff).
		Update("is_deleted", true)
	if result.Error != nil {
		return 0, fmt.Errorf("notification store: soft delete: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormNotificationStore) ownerScope(ctx context.Context, userID string, filter NotificationFilter) *gorm.DB {
	query := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_deleted = ?", userID, false)
	if filter.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	return query
}

// GormUserDirectory resolves recipients from the users table.
type GormUserDirectory struct {
	db *gorm.DB
}

// NewGormUserDirectory constructs a gorm-backed user directory.
func NewGormUserDirectory(db *gorm.DB) (*GormUserDirectory, error) {
	if db == nil {
		return nil, errors.New("user directory: db is required")
	}
	return &GormUserDirectory{db: db}, nil
}

// Exists reports whether an active user with userID is present.
func (d *GormUserDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	var count int64
	if err := d.db.WithContext(ensureContext(ctx)).
		Model(&models.User{}).
		Where("id = ? AND is_active = ?", userID, true).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("user directory: lookup %s: %w", userID, err)
	}
	return count > 0, nil
}
