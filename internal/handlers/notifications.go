package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cooktodor/notifier/internal/services"
	"github.com/cooktodor/notifier/pkg/errors"
	"github.com/cooktodor/notifier/pkg/response"
)

// NotificationHandler exposes HTTP endpoints for notifications.
type NotificationHandler struct {
	service *services.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *services.NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification handler: service must be provided")
	}
	return &NotificationHandler{service: service}, nil
}

// NotificationListResponse is returned by List.
type NotificationListResponse struct {
	Notifications []services.NotificationDTO `json:"notifications"`
	UnreadCount   int64                      `json:"unreadCount"`
}

// List returns the caller's notifications, newest first, with the unread total.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx := requestContext(c)
	items, err := h.service.ListForUser(ctx, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	unread, err := h.service.UnreadCount(ctx, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	if items == nil {
		items = []services.NotificationDTO{}
	}
	response.Success(c, http.StatusOK, NotificationListResponse{
		Notifications: items,
		UnreadCount:   unread,
	})
}

// MarkRead flags one of the caller's notifications as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(c, errors.NewBadRequest("notification id is required"))
		return
	}

	if _, err := h.service.MarkRead(requestContext(c), id, userID); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "Notification marked as read")
}

// MarkAllRead marks every unread notification of the caller as read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "All notifications marked as read",
		"updated": updated,
	})
}

type createNotificationRequest struct {
	UserID            string         `json:"userId" validate:"required,max=36"`
	Title             string         `json:"title" validate:"required,max=255"`
	Message           string         `json:"message" validate:"required"`
	Type              string         `json:"type" validate:"required,notification_type"`
	RelatedEntityType string         `json:"relatedEntityType" validate:"omitempty,entity_type"`
	RelatedEntityID   string         `json:"relatedEntityId" validate:"omitempty,max=64"`
	Metadata          map[string]any `json:"metadata"`
}

// Create persists a notification for any user and pushes it live. Admin only.
func (h *NotificationHandler) Create(c *gin.Context) {
	var payload createNotificationRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.service.CreateAndSend(requestContext(c), services.CreateNotificationInput{
		UserID:            payload.UserID,
		Title:             payload.Title,
		Message:           payload.Message,
		Type:              payload.Type,
		RelatedEntityType: payload.RelatedEntityType,
		RelatedEntityID:   payload.RelatedEntityID,
		Metadata:          payload.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, dto)
}
