package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gorm.io/gorm"
)

func seedLedger(t *testing.T, db *gorm.DB, userID, roleID, assignedBy string, at time.Time) {
	t.Helper()
	require.NoError(t, appendAssignment(db, userID, roleID, assignedBy, at))
}

func TestLedgerServiceListOrdersAndFilters(t *testing.T) {
	db := openServiceTestDB(t)
	admin := createTestUser(t, db, "admin1", "admin1@example.com")
	alice := createTestUser(t, db, "alice", "alice@example.com")
	bob := createTestUser(t, db, "bob", "bob@example.com")

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	seedLedger(t, db, alice.ID, "viewer", admin.ID, base)
	seedLedger(t, db, alice.ID, "editor", admin.ID, base.Add(time.Hour))
	seedLedger(t, db, bob.ID, "viewer", admin.ID, base.Add(2*time.Hour))

	svc, err := NewLedgerService(db)
	require.NoError(t, err)

	entries, total, err := svc.List(context.Background(), LedgerListOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, entries, 3)
	// Newest first.
	require.Equal(t, bob.ID, entries[0].UserID)
	require.Equal(t, alice.ID, entries[2].UserID)
	require.Equal(t, "viewer", entries[2].RoleID)
	require.NotNil(t, entries[0].Role)

	byUser, total, err := svc.List(context.Background(), LedgerListOptions{
		Filters: LedgerFilters{UserID: alice.ID},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, byUser, 2)

	byRole, total, err := svc.List(context.Background(), LedgerListOptions{
		Filters: LedgerFilters{RoleID: "viewer"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, byRole, 2)

	since := base.Add(30 * time.Minute)
	until := base.Add(90 * time.Minute)
	window, total, err := svc.List(context.Background(), LedgerListOptions{
		Filters: LedgerFilters{Since: &since, Until: &until},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, window, 1)
	require.Equal(t, "editor", window[0].RoleID)
}

func TestLedgerServiceListPagination(t *testing.T) {
	db := openServiceTestDB(t)
	admin := createTestUser(t, db, "admin1", "admin1@example.com")

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		user := createTestUser(t, db,
			fmt.Sprintf("user%d", i),
			fmt.Sprintf("user%d@example.com", i),
		)
		seedLedger(t, db, user.ID, "viewer", admin.ID, base.Add(time.Duration(i)*time.Minute))
	}

	svc, err := NewLedgerService(db)
	require.NoError(t, err)

	first, total, err := svc.List(context.Background(), LedgerListOptions{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, int64(5), total)
	require.Len(t, first, 2)

	second, _, err := svc.List(context.Background(), LedgerListOptions{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.NotEqual(t, first[0].ID, second[0].ID)

	last, _, err := svc.List(context.Background(), LedgerListOptions{Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, last, 1)
	require.Equal(t, "user0", mustUsername(t, db, last[0].UserID))
}

func TestLedgerServiceCountByRole(t *testing.T) {
	db := openServiceTestDB(t)
	admin := createTestUser(t, db, "admin1", "admin1@example.com")
	user := createTestUser(t, db, "member", "member@example.com")

	svc, err := NewLedgerService(db)
	require.NoError(t, err)

	count, err := svc.CountByRole(context.Background(), "editor")
	require.NoError(t, err)
	require.Equal(t, int64(0), count)

	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	seedLedger(t, db, user.ID, "editor", admin.ID, at)
	seedLedger(t, db, user.ID, "editor", admin.ID, at.Add(time.Hour))

	count, err = svc.CountByRole(context.Background(), "editor")
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func mustUsername(t *testing.T, db *gorm.DB, userID string) string {
	t.Helper()

	var username string
	err := db.Raw("SELECT username FROM users WHERE id = ?", userID).Scan(&username).Error
	require.NoError(t, err)
	return username
}
