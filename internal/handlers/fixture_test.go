package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cooktodor/notifier/internal/database/testutil"
	"github.com/cooktodor/notifier/internal/middleware"
	"github.com/cooktodor/notifier/internal/models"
	"github.com/cooktodor/notifier/internal/notifications"
	"github.com/cooktodor/notifier/internal/realtime"
	"github.com/cooktodor/notifier/internal/services"
	"github.com/cooktodor/notifier/pkg/response"
)

type handlerFixture struct {
	db       *gorm.DB
	registry *realtime.Registry
	service  *services.NotificationService
}

func newHandlerFixture(t *testing.T, users ...models.User) handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithUsers(users...))
	registry := realtime.NewRegistry()
	t.Cleanup(registry.CloseAll)

	dispatcher, err := notifications.NewDispatcher(registry)
	require.NoError(t, err)
	service, err := services.NewNotificationService(db, dispatcher)
	require.NoError(t, err)

	return handlerFixture{db: db, registry: registry, service: service}
}

// identify stands in for the auth middleware, trusting X-User / X-Role headers.
func identify(c *gin.Context) {
	if id := c.GetHeader("X-User"); id != "" {
		c.Set(middleware.CtxUserIDKey, id)
		c.Set(middleware.CtxRoleKey, c.GetHeader("X-Role"))
	}
	c.Next()
}

func doRequest(t *testing.T, r http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User", userID)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) response.Response {
	t.Helper()

	var payload response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	if dest != nil {
		raw, err := json.Marshal(payload.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, dest))
	}
	return payload
}
