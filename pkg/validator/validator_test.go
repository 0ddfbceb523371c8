package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type createPayload struct {
	UserID            string `json:"userId" validate:"required"`
	Type              string `json:"type" validate:"required,notification_type"`
	Title             string `json:"title" validate:"required,max=10"`
	Message           string `json:"message" validate:"required"`
	RelatedEntityType string `json:"relatedEntityType" validate:"omitempty,entity_type"`
}

func TestStructAcceptsValidPayload(t *testing.T) {
	err := Struct(createPayload{
		UserID:            "7",
		Type:              "ORDER_UPDATE",
		Title:             "Shipped",
		Message:           "Your order is on its way",
		RelatedEntityType: "ORDER",
	})
	require.NoError(t, err)
}

func TestStructReportsEveryFailure(t *testing.T) {
	err := Struct(createPayload{
		Type:              "order update",
		Title:             "Order Update Now",
		RelatedEntityType: "9order",
	})
	require.Error(t, err)

	failures, ok := err.(FieldErrors)
	require.True(t, ok, "expected FieldErrors, got %T", err)

	byField := map[string]FieldError{}
	for _, fe := range failures {
		byField[fe.Field] = fe
	}
	require.Len(t, byField, 5)
	require.Equal(t, "userId is required", byField["userId"].Message)
	require.Equal(t, "notification_type", byField["type"].Rule)
	require.Equal(t, "title must be at most 10 characters", byField["title"].Message)
	require.Equal(t, "entity_type", byField["relatedEntityType"].Rule)
	require.Contains(t, err.Error(), "message is required")
}

func TestIsNotificationType(t *testing.T) {
	cases := map[string]bool{
		"ORDER_UPDATE":      true,
		"PAYMENT":           true,
		"DELIVERY_ASSIGNED": true,
		"order_update":      false,
		"_PAYMENT":          false,
		"":                  false,
	}
	for value, want := range cases {
		require.Equal(t, want, IsNotificationType(value), value)
	}
}

func TestDescribeFallbacks(t *testing.T) {
	require.Equal(t, "id failed uuid4", describe("id", "uuid4", ""))
	require.Equal(t, "n failed gte=1", describe("n", "gte", "1"))
}
