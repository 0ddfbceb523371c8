package models

import (
	"testing"

	"github.com/google/uuid"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	id, err := uuid.Parse(base.ID)
	if err != nil {
		t.Fatalf("expected a uuid, got %q: %v", base.ID, err)
	}
	if id.Version() != 7 {
		t.Fatalf("expected a version 7 uuid, got %d", id.Version())
	}
}

func TestNewIDIsTimeOrdered(t *testing.T) {
	first := newID()
	second := newID()
	if first >= second {
		t.Fatalf("expected %q to sort before %q", first, second)
	}
}

func TestBaseModelBeforeCreateKeepsExistingID(t *testing.T) {
	base := BaseModel{ID: "fixed"}
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID != "fixed" {
		t.Fatalf("expected ID to be preserved, got %q", base.ID)
	}
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"user", func() *BaseModel {
			u := &User{}
			return &u.BaseModel
		}},
		{"notification", func() *BaseModel {
			n := &Notification{}
			return &n.BaseModel
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := tc.model()
			if err := model.BeforeCreate(nil); err != nil {
				t.Fatalf("before create: %v", err)
			}
			if model.ID == "" {
				t.Fatal("expected ID to be generated")
			}
		})
	}
}

func TestIsKnownRole(t *testing.T) {
	for _, role := range Roles {
		if !IsKnownRole(role) {
			t.Fatalf("expected %q to be known", role)
		}
	}
	if IsKnownRole("customer") {
		t.Fatal("role names are case sensitive")
	}
	if IsKnownRole("") {
		t.Fatal("empty role must not be known")
	}
}
