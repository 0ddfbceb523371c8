package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cooktodor/notifier/internal/database"
	"github.com/cooktodor/notifier/internal/models"
)

// TestDBOption customises the behaviour of MustOpenTestDB.
type TestDBOption func(*testDBConfig)

type testDBConfig struct {
	autoMigrate bool
	users       []models.User
}

// WithAutoMigrate enables automatic schema migration after opening the test database.
func WithAutoMigrate() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.autoMigrate = true
	}
}

// WithUsers migrates the schema and inserts the given users.
func WithUsers(users ...models.User) TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.autoMigrate = true
		cfg.users = append(cfg.users, users...)
	}
}

// MustOpenTestDB opens a private in-memory SQLite database for tests, applying optional migrations.
// The returned connection is automatically closed via t.Cleanup.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	cfg := testDBConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := database.Open(database.Config{Driver: "sqlite"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = database.Close(db)
	})

	if cfg.autoMigrate {
		require.NoError(t, database.AutoMigrate(db))
	}
	for i := range cfg.users {
		require.NoError(t, db.Create(&cfg.users[i]).Error)
	}

	return db
}

// User builds an active user with the given id and role.
func User(id, role string) models.User {
	return models.User{
		BaseModel: models.BaseModel{ID: id},
		Username:  "user-" + id,
		Email:     id + "@example.test",
		Role:      role,
		IsActive:  true,
	}
}
