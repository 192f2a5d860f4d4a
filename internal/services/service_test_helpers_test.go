package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/castellan-dev/castellan/internal/database"
	"github.com/castellan-dev/castellan/internal/models"
	"github.com/castellan-dev/castellan/internal/permissions"
	"github.com/castellan-dev/castellan/pkg/mail"
)

var (
	registerOnce sync.Once
	dbCounter    atomic.Int64
)

// openServiceTestDB opens a fresh in-memory database with the schema, the
// permission catalog and the system roles in place.
func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	registerOnce.Do(func() {
		if err := permissions.RegisterBuiltin(); err != nil {
			t.Fatalf("register builtin permissions: %v", err)
		}
	})

	dsn := fmt.Sprintf("file:services_test_%d?mode=memory&cache=shared", dbCounter.Add(1))
	return openTestDB(t, dsn)
}

// openFileServiceTestDB opens a file-backed database for tests that redeem
// from several connections at once. Shared-cache in-memory databases lock at
// table granularity and cannot serve that.
func openFileServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	registerOnce.Do(func() {
		if err := permissions.RegisterBuiltin(); err != nil {
			t.Fatalf("register builtin permissions: %v", err)
		}
	})

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.Join(t.TempDir(), "services.db"))
	return openTestDB(t, dsn)
}

func openTestDB(t *testing.T, dsn string) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.AutoMigrate(db))
	require.NoError(t, permissions.Sync(context.Background(), db))
	require.NoError(t, database.SeedData(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username, email string) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		Email:    email,
		Password: "hashed",
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type disabledMailer struct{}

func (disabledMailer) Send(ctx context.Context, msg mail.Message) error {
	return mail.ErrSMTPDisabled
}

type failingMailer struct{}

func (failingMailer) Send(ctx context.Context, msg mail.Message) error {
	return errors.New("smtp: connection refused")
}

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *recordingMailer) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mail.Message, len(m.messages))
	copy(out, m.messages)
	return out
}
