package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types produced by the built-in presets.
const (
	NotificationTypeOrderUpdate      = "ORDER_UPDATE"
	NotificationTypePayment          = "PAYMENT"
	NotificationTypeOrderCreated     = "ORDER_CREATED"
	NotificationTypeOrderCancelled   = "ORDER_CANCELLED"
	NotificationTypeDeliveryAssigned = "DELIVERY_ASSIGNED"
)

// RelatedEntityOrder marks notifications that point at an order.
const RelatedEntityOrder = "ORDER"

// Notification represents an in-app notification for a user. Only the read
// and deleted flags change after creation.
type Notification struct {
	BaseModel

	UserID            string         `gorm:"type:varchar(36);not null;index:idx_notifications_owner,priority:1" json:"user_id"`
	Title             string         `gorm:"type:varchar(255);not null" json:"title"`
	Message           string         `gorm:"type:text;not null" json:"message"`
	Type              string         `gorm:"type:varchar(64);not null" json:"type"`
	RelatedEntityType *string        `gorm:"type:varchar(64)" json:"related_entity_type"`
	RelatedEntityID   *string        `gorm:"type:varchar(64)" json:"related_entity_id"`
	Metadata          datatypes.JSON `json:"metadata"`

	IsRead    bool       `gorm:"default:false;index:idx_notifications_owner,priority:3" json:"is_read"`
	ReadAt    *time.Time `json:"read_at"`
	IsDeleted bool       `gorm:"default:false;index:idx_notifications_owner,priority:2" json:"is_deleted"`
}
