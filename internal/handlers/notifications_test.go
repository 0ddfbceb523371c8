package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/cooktodor/notifier/internal/database/testutil"
	"github.com/cooktodor/notifier/internal/models"
	"github.com/cooktodor/notifier/internal/realtime"
	rttestutil "github.com/cooktodor/notifier/internal/realtime/testutil"
	"github.com/cooktodor/notifier/internal/services"
	"github.com/cooktodor/notifier/pkg/response"
)

func newNotificationRouter(t *testing.T, fx handlerFixture) *gin.Engine {
	t.Helper()

	handler, err := NewNotificationHandler(fx.service)
	require.NoError(t, err)

	r := gin.New()
	r.Use(identify)
	r.GET("/api/notifications", handler.List)
	r.POST("/api/notifications", handler.Create)
	r.PUT("/api/notifications/read-all", handler.MarkAllRead)
	r.PUT("/api/notifications/:id/read", handler.MarkRead)
	return r
}

func seedNotification(t *testing.T, fx handlerFixture, userID, title string) *services.NotificationDTO {
	t.Helper()
	dto, err := fx.service.CreateAndSend(context.Background(), services.CreateNotificationInput{
		UserID:  userID,
		Title:   title,
		Message: title + " message",
		Type:    models.NotificationTypeOrderUpdate,
	})
	require.NoError(t, err)
	return dto
}

func TestNewNotificationHandlerRequiresService(t *testing.T) {
	_, err := NewNotificationHandler(nil)
	require.Error(t, err)
}

func TestNotificationHandlerListIncludesUnreadCount(t *testing.T) {
	fx := newHandlerFixture(t, testutil.User("7", models.RoleCustomer), testutil.User("8", models.RoleCustomer))
	r := newNotificationRouter(t, fx)

	seedNotification(t, fx, "7", "First")
	seedNotification(t, fx, "7", "Second")
	seedNotification(t, fx, "8", "Other user")

	rec := doRequest(t, r, http.MethodGet, "/api/notifications", "7", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body NotificationListResponse
	payload := decodeData(t, rec, &body)
	require.True(t, payload.Success)
	require.Len(t, body.Notifications, 2)
	require.EqualValues(t, 2, body.UnreadCount)
	for _, item := range body.Notifications {
		require.Equal(t, "7", item.UserID)
	}
}

func TestNotificationHandlerListEmpty(t *testing.T) {
	fx := newHandlerFixture(t, testutil.User("7", models.RoleCustomer))
	r := newNotificationRouter(t, fx)

	rec := doRequest(t, r, http.MethodGet, "/api/notifications", "7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"notifications":[]`)
	require.Contains(t, rec.Body.String(), `"unreadCount":0`)
}

func TestNotificationHandlerRequiresIdentity(t *testing.T) {
	fx := newHandlerFixture(t)
	r := newNotificationRouter(t, fx)

	rec := doRequest(t, r, http.MethodGet, "/api/notifications", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	fx := newHandlerFixture(t, testutil.User("7", models.RoleCustomer), testutil.User("8", models.RoleCustomer))
	r := newNotificationRouter(t, fx)

	dto := seedNotification(t, fx, "7", "Order Update")

	transport := rttestutil.NewTransport()
	_, err := fx.registry.Open("7", transport)
	require.NoError(t, err)

	rec := doRequest(t, r, http.MethodPut, "/api/notifications/"+dto.ID+"/read", "8", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	payload := decodeData(t, rec, nil)
	require.Equal(t, "NOTIFICATION_FORBIDDEN", payload.Error.Code)

	rec = doRequest(t, r, http.MethodPut, "/api/notifications/missing/read", "7", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, r, http.MethodPut, "/api/notifications/"+dto.ID+"/read", "7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msg response.MessageBody
	decodeData(t, rec, &msg)
	require.Equal(t, "Notification marked as read", msg.Message)

	frame, ok := transport.Last(realtime.EventNotificationRead)
	require.True(t, ok)
	require.Equal(t, services.ReadEventPayload{NotificationID: dto.ID, IsRead: true}, frame.Data)

	count, err := fx.service.UnreadCount(context.Background(), "7")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestNotificationHandlerMarkAllRead(t *testing.T) {
	fx := newHandlerFixture(t, testutil.User("7", models.RoleCustomer))
	r := newNotificationRouter(t, fx)

	seedNotification(t, fx, "7", "One")
	seedNotification(t, fx, "7", "Two")

	rec := doRequest(t, r, http.MethodPut, "/api/notifications/read-all", "7", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Message string `json:"message"`
		Updated int    `json:"updated"`
	}
	decodeData(t, rec, &body)
	require.Equal(t, "All notifications marked as read", body.Message)
	require.Equal(t, 2, body.Updated)
}

func TestNotificationHandlerCreate(t *testing.T) {
	fx := newHandlerFixture(t, testutil.User("7", models.RoleCustomer))
	r := newNotificationRouter(t, fx)

	transport := rttestutil.NewTransport()
	_, err := fx.registry.Open("7", transport)
	require.NoError(t, err)

	rec := doRequest(t, r, http.MethodPost, "/api/notifications", "1", gin.H{
		"userId":  "7",
		"title":   "Promo",
		"message": "Free delivery today",
		"type":    "not a type",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "ORDER_UPDATE")
	require.Contains(t, rec.Body.String(), `"field":"type"`)

	rec = doRequest(t, r, http.MethodPost, "/api/notifications", "1", gin.H{
		"userId":   "7",
		"title":    "Promo",
		"message":  "Free delivery today",
		"type":     "PROMOTION",
		"metadata": gin.H{"code": "FREE"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var dto services.NotificationDTO
	decodeData(t, rec, &dto)
	require.Equal(t, "7", dto.UserID)
	require.Equal(t, "PROMOTION", dto.Type)
	require.False(t, dto.IsRead)
	require.Equal(t, "FREE", dto.Metadata["code"])

	frame, ok := transport.Last(realtime.EventNotification)
	require.True(t, ok)
	pushed, ok := frame.Data.(services.NotificationDTO)
	require.True(t, ok)
	require.Equal(t, dto.ID, pushed.ID)

	rec = doRequest(t, r, http.MethodPost, "/api/notifications", "1", gin.H{
		"userId":  "404",
		"title":   "Nobody",
		"message": "home",
		"type":    "PAYMENT",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}
