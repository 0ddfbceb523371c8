package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/cooktodor/notifier/internal/database/testutil"
	"github.com/cooktodor/notifier/internal/models"
	"github.com/cooktodor/notifier/internal/notifications"
	"github.com/cooktodor/notifier/internal/realtime"
	rttestutil "github.com/cooktodor/notifier/internal/realtime/testutil"
	apperrors "github.com/cooktodor/notifier/pkg/errors"
	"github.com/cooktodor/notifier/pkg/logger"
)

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), step: time.Second}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.now
	c.now = c.now.Add(c.step)
	return current
}

type failingSender struct {
	calls int
}

func (f *failingSender) Dispatch(string, string, any) error {
	f.calls++
	return errors.New("stream write failed")
}

func (f *failingSender) DispatchToMany([]string, string, any) error {
	return errors.New("stream write failed")
}

type serviceFixture struct {
	db       *gorm.DB
	svc      *NotificationService
	registry *realtime.Registry
	clock    *stepClock
}

func newServiceFixture(t *testing.T, users ...models.User) serviceFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithUsers(users...))
	registry := realtime.NewRegistry()
	dispatcher, err := notifications.NewDispatcher(registry)
	require.NoError(t, err)

	clock := newStepClock()
	svc, err := NewNotificationService(db, dispatcher, WithClock(clock.Now))
	require.NoError(t, err)

	return serviceFixture{db: db, svc: svc, registry: registry, clock: clock}
}

func TestNewNotificationServiceRequiresDB(t *testing.T) {
	_, err := NewNotificationService(nil, nil)
	require.Error(t, err)
}

func TestNotificationServiceCreateAndList(t *testing.T) {
	f := newServiceFixture(t, testutil.User("u1", models.RoleCustomer))
	ctx := context.Background()

	const total = 4
	created := make([]string, 0, total)
	for i := 0; i < total; i++ {
		dto, err := f.svc.CreateAndSend(ctx, CreateNotificationInput{
			UserID:  "u1",
			Title:   "Order Update",
			Message: "Your order moved",
			Type:    models.NotificationTypeOrderUpdate,
		})
		require.NoError(t, err)
		require.False(t, dto.IsRead)
		require.Nil(t, dto.ReadAt)
		created = append(created, dto.ID)
	}

	items, err := f.svc.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, total)
	for i, item := range items {
		require.Equal(t, created[total-1-i], item.ID, "expected newest first")
	}
	for i := 1; i < len(items); i++ {
		require.True(t, items[i-1].CreatedAt.After(items[i].CreatedAt))
	}

	count, err := f.svc.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, total, count)
}

func TestNotificationServiceCreateRejectsUnknownRecipient(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.CreateAndSend(context.Background(), CreateNotificationInput{
		UserID: "ghost",
		Title:  "Hello",
		Type:   "GENERIC",
	})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	var count int64
	require.NoError(t, f.db.Model(&models.Notification{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestNotificationServiceCreateValidatesInput(t *testing.T) {
	f := newServiceFixture(t, testutil.User("u1", models.RoleCustomer))
	ctx := context.Background()

	_, err := f.svc.CreateAndSend(ctx, CreateNotificationInput{Type: "GENERIC"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = f.svc.CreateAndSend(ctx, CreateNotificationInput{UserID: "u1"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestNotificationServicePushesToOpenStream(t *testing.T) {
	f := newServiceFixture(t, testutil.User("7", models.RoleCustomer))
	ctx := context.Background()

	transport := rttestutil.NewTransport()
	_, err := f.registry.Open("7", transport)
	require.NoError(t, err)

	before, err := f.svc.UnreadCount(ctx, "7")
	require.NoError(t, err)

	dto, err := f.svc.CreateAndSend(ctx, CreateNotificationInput{
		UserID:            "7",
		Title:             "Order Update",
		Message:           "Order is on the way",
		Type:              "ORDER_UPDATE",
		RelatedEntityType: "ORDER",
		RelatedEntityID:   "42",
	})
	require.NoError(t, err)

	frame, ok := transport.Last(realtime.EventNotification)
	require.True(t, ok)
	payload, ok := frame.Data.(NotificationDTO)
	require.True(t, ok)
	require.Equal(t, dto.ID, payload.ID)
	require.Equal(t, "7", payload.UserID)
	require.Equal(t, "Order Update", payload.Title)
	require.Equal(t, "ORDER_UPDATE", payload.Type)
	require.Equal(t, "ORDER", payload.RelatedEntityType)
	require.Equal(t, "42", payload.RelatedEntityID)
	require.False(t, payload.IsRead)
	require.Equal(t, dto.CreatedAt, payload.CreatedAt)

	after, err := f.svc.UnreadCount(ctx, "7")
	require.NoError(t, err)
	require.Equal(t, before+1, after)
}

func TestNotificationServiceSwallowsDispatchFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger.Replace(zap.New(core))
	t.Cleanup(func() { logger.Replace(nil) })

	db := testutil.MustOpenTestDB(t, testutil.WithUsers(testutil.User("u1", models.RoleCustomer)))
	sender := &failingSender{}
	svc, err := NewNotificationService(db, sender)
	require.NoError(t, err)

	ctx := context.Background()
	dto, err := svc.CreateAndSend(ctx, CreateNotificationInput{UserID: "u1", Title: "t", Type: "GENERIC"})
	require.NoError(t, err)
	require.NotEmpty(t, dto.ID)

	_, err = svc.MarkRead(ctx, dto.ID, "u1")
	require.NoError(t, err)

	_, err = svc.MarkAllRead(ctx, "u1")
	require.NoError(t, err)

	require.Equal(t, 3, sender.calls)
	require.Equal(t, 3, logs.FilterMessage("realtime push failed").Len())
}

func TestNotificationServiceBrokenStreamDoesNotFailCreate(t *testing.T) {
	f := newServiceFixture(t, testutil.User("u1", models.RoleCustomer))

	transport := rttestutil.NewTransport().FailOn(realtime.EventNotification, errors.New("broken pipe"))
	_, err := f.registry.Open("u1", transport)
	require.NoError(t, err)

	dto, err := f.svc.CreateAndSend(context.Background(), CreateNotificationInput{UserID: "u1", Title: "t", Type: "GENERIC"})
	require.NoError(t, err)
	require.NotNil(t, dto)
	require.False(t, f.registry.IsConnected("u1"))

	items, err := f.svc.ListForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestNotificationServiceMarkRead(t *testing.T) {
	f := newServiceFixture(t, testutil.User("owner", models.RoleCustomer))
	ctx := context.Background()

	transport := rttestutil.NewTransport()
	_, err := f.registry.Open("owner", transport)
	require.NoError(t, err)

	dto, err := f.svc.CreateAndSend(ctx, CreateNotificationInput{UserID: "owner", Title: "t", Type: "GENERIC"})
	require.NoError(t, err)

	first, err := f.svc.MarkRead(ctx, dto.ID, "owner")
	require.NoError(t, err)
	require.True(t, first.IsRead)
	require.NotNil(t, first.ReadAt)

	frame, ok := transport.Last(realtime.EventNotificationRead)
	require.True(t, ok)
	require.Equal(t, ReadEventPayload{NotificationID: dto.ID, IsRead: true}, frame.Data)

	second, err := f.svc.MarkRead(ctx, dto.ID, "owner")
	require.NoError(t, err)
	require.True(t, second.IsRead)
	require.True(t, second.ReadAt.After(*first.ReadAt), "read timestamp is refreshed on every call")

	items, err := f.svc.ListForUser(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.True(t, items[0].IsRead)
	require.True(t, second.ReadAt.Equal(*items[0].ReadAt))

	count, err := f.svc.UnreadCount(ctx, "owner")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestNotificationServiceMarkReadByOtherUserIsForbidden(t *testing.T) {
	f := newServiceFixture(t,
		testutil.User("owner", models.RoleCustomer),
		testutil.User("intruder", models.RoleCustomer),
	)
	ctx := context.Background()

	dto, err := f.svc.CreateAndSend(ctx, CreateNotificationInput{UserID: "owner", Title: "t", Type: "GENERIC"})
	require.NoError(t, err)

	_, err = f.svc.MarkRead(ctx, dto.ID, "intruder")
	require.ErrorIs(t, err, apperrors.ErrNotificationForbidden)

	var row models.Notification
	require.NoError(t, f.db.First(&row, "id = ?", dto.ID).Error)
	require.False(t, row.IsRead)
	require.Nil(t, row.ReadAt)
}

func TestNotificationServiceMarkReadUnknown(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.MarkRead(context.Background(), "missing", "anyone")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestNotificationServiceMarkAllRead(t *testing.T) {
	f := newServiceFixture(t,
		testutil.User("u1", models.RoleCustomer),
		testutil.User("u2", models.RoleCustomer),
	)
	ctx := context.Background()

	early, err := f.svc.CreateAndSend(ctx, CreateNotificationInput{UserID: "u1", Title: "a", Type: "GENERIC"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateAndSend(ctx, CreateNotificationInput{UserID: "u1", Title: "b", Type: "GENERIC"})
		require.NoError(t, err)
	}
	_, err = f.svc.CreateAndSend(ctx, CreateNotificationInput{UserID: "u2", Title: "other", Type: "GENERIC"})
	require.NoError(t, err)

	preRead, err := f.svc.MarkRead(ctx, early.ID, "u1")
	require.NoError(t, err)

	transport := rttestutil.NewTransport()
	_, err = f.registry.Open("u1", transport)
	require.NoError(t, err)

	updated, err := f.svc.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 3, updated)

	frame, ok := transport.Last(realtime.EventNotificationsAllRead)
	require.True(t, ok)
	require.Equal(t, AllReadEventPayload{AllRead: true}, frame.Data)

	items, err := f.svc.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 4)

	var shared *time.Time
	for _, item := range items {
		require.True(t, item.IsRead)
		require.NotNil(t, item.ReadAt)
		if item.ID == early.ID {
			require.True(t, preRead.ReadAt.Equal(*item.ReadAt), "already-read notification keeps its timestamp")
			continue
		}
		if shared == nil {
			shared = item.ReadAt
		}
		require.True(t, shared.Equal(*item.ReadAt), "batch shares one timestamp")
	}
	require.NotNil(t, shared)
	require.False(t, shared.Equal(*preRead.ReadAt))

	otherCount, err := f.svc.UnreadCount(ctx, "u2")
	require.NoError(t, err)
	require.EqualValues(t, 1, otherCount)
}

func TestNotificationServicePresets(t *testing.T) {
	f := newServiceFixture(t, testutil.User("u1", models.RoleCustomer))
	ctx := context.Background()

	cases := []struct {
		name      string
		send      func() (*NotificationDTO, error)
		wantTitle string
		wantType  string
	}{
		{"order status", func() (*NotificationDTO, error) {
			return f.svc.SendOrderStatus(ctx, "u1", "o-1", "SHIPPED", "Order shipped")
		}, "Order Update", models.NotificationTypeOrderUpdate},
		{"payment", func() (*NotificationDTO, error) {
			return f.svc.SendPayment(ctx, "u1", "o-1", "Payment received")
		}, "Payment Update", models.NotificationTypePayment},
		{"order created", func() (*NotificationDTO, error) {
			return f.svc.SendOrderCreated(ctx, "u1", "o-1", "New order placed")
		}, "New Order", models.NotificationTypeOrderCreated},
		{"order cancelled", func() (*NotificationDTO, error) {
			return f.svc.SendOrderCancelled(ctx, "u1", "o-1", "Order cancelled")
		}, "Order Cancelled", models.NotificationTypeOrderCancelled},
		{"delivery assigned", func() (*NotificationDTO, error) {
			return f.svc.SendDeliveryAssigned(ctx, "u1", "o-1", "Courier assigned")
		}, "Delivery Partner Assigned", models.NotificationTypeDeliveryAssigned},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dto, err := tc.send()
			require.NoError(t, err)
			require.Equal(t, tc.wantTitle, dto.Title)
			require.Equal(t, tc.wantType, dto.Type)
			require.Equal(t, models.RelatedEntityOrder, dto.RelatedEntityType)
			require.Equal(t, "o-1", dto.RelatedEntityID)
		})
	}

	items, err := f.svc.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, len(cases))

	status := items[len(items)-1]
	require.Equal(t, models.NotificationTypeOrderUpdate, status.Type)
	require.Equal(t, "SHIPPED", status.Metadata["status"])
}

func TestNotificationServiceSoftDeleteReadBefore(t *testing.T) {
	f := newServiceFixture(t, testutil.User("u1", models.RoleCustomer))
	ctx := context.Background()

	oldRead, err := f.svc.CreateAndSend(ctx, CreateNotificationInput{UserID: "u1", Title: "old read", Type: "GENERIC"})
	require.NoError(t, err)
	oldUnread, err := f.svc.CreateAndSend(ctx, CreateNotificationInput{UserID: "u1", Title: "old unread", Type: "GENERIC"})
	require.NoError(t, err)
	_, err = f.svc.MarkRead(ctx, oldRead.ID, "u1")
	require.NoError(t, err)

	cutoff := f.clock.Now()

	recent, err := f.svc.CreateAndSend(ctx, CreateNotificationInput{UserID: "u1", Title: "recent", Type: "GENERIC"})
	require.NoError(t, err)
	_, err = f.svc.MarkRead(ctx, recent.ID, "u1")
	require.NoError(t, err)

	removed, err := f.svc.SoftDeleteReadBefore(ctx, cutoff)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	items, err := f.svc.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	ids := []string{items[0].ID, items[1].ID}
	require.ElementsMatch(t, []string{oldUnread.ID, recent.ID}, ids)

	var row models.Notification
	require.NoError(t, f.db.First(&row, "id = ?", oldRead.ID).Error)
	require.True(t, row.IsDeleted)

	_, err = f.svc.MarkRead(ctx, oldRead.ID, "u1")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestNotificationServiceListRequiresUser(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.ListForUser(context.Background(), " ")
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = f.svc.UnreadCount(context.Background(), "")
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}
