package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/castellan-dev/castellan/internal/models"
)

func TestAssignmentServiceAssign(t *testing.T) {
	db := openServiceTestDB(t)
	current := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	admin := createTestUser(t, db, "admin1", "admin1@example.com")
	target := createTestUser(t, db, "member", "member@example.com")

	svc, err := NewAssignmentService(db, nil, WithAssignmentClock(func() time.Time { return current }))
	require.NoError(t, err)

	err = svc.Assign(context.Background(), AssignRoleInput{
		UserID:     target.ID,
		RoleID:     "editor",
		AssignedBy: admin.ID,
	})
	require.NoError(t, err)

	var updated models.User
	require.NoError(t, db.First(&updated, "id = ?", target.ID).Error)
	require.Equal(t, "editor", updated.CurrentRole)
	require.ElementsMatch(t,
		[]string{"profile.view", "profile.edit", "profile.publish", "user.view"},
		[]string(updated.EffectivePermissions),
	)

	var entries []models.RoleAssignment
	require.NoError(t, db.Find(&entries, "user_id = ?", target.ID).Error)
	require.Len(t, entries, 1)
	require.Equal(t, "editor", entries[0].RoleID)
	require.Equal(t, admin.ID, entries[0].AssignedBy)
}

func TestAssignmentServiceSnapshotDoesNotTrackRoleEdits(t *testing.T) {
	db := openServiceTestDB(t)
	admin := createTestUser(t, db, "admin1", "admin1@example.com")
	target := createTestUser(t, db, "member", "member@example.com")

	assignments, err := NewAssignmentService(db, nil)
	require.NoError(t, err)
	roles, err := NewRoleService(db)
	require.NoError(t, err)

	custom, err := roles.CreateRole(context.Background(), CreateRoleInput{
		Name:        "curator",
		DisplayName: "Curator",
		Permissions: []string{"profile.view"},
	})
	require.NoError(t, err)

	require.NoError(t, assignments.Assign(context.Background(), AssignRoleInput{
		UserID:     target.ID,
		RoleID:     custom.ID,
		AssignedBy: admin.ID,
	}))

	// Widening the role afterwards leaves existing snapshots untouched.
	wider := []string{"profile.view", "profile.edit"}
	_, err = roles.UpdateRole(context.Background(), custom.ID, UpdateRoleInput{Permissions: &wider})
	require.NoError(t, err)

	var updated models.User
	require.NoError(t, db.First(&updated, "id = ?", target.ID).Error)
	require.ElementsMatch(t, []string{"profile.view"}, []string(updated.EffectivePermissions))
}

func TestAssignmentServiceAssignUnknownUserOrRole(t *testing.T) {
	db := openServiceTestDB(t)
	admin := createTestUser(t, db, "admin1", "admin1@example.com")

	svc, err := NewAssignmentService(db, nil)
	require.NoError(t, err)

	err = svc.Assign(context.Background(), AssignRoleInput{
		UserID:     "missing-user",
		RoleID:     "viewer",
		AssignedBy: admin.ID,
	})
	require.ErrorIs(t, err, ErrUserNotFound)

	err = svc.Assign(context.Background(), AssignRoleInput{
		UserID:     admin.ID,
		RoleID:     "missing-role",
		AssignedBy: admin.ID,
	})
	require.ErrorIs(t, err, ErrRoleNotFound)

	// Failed assignments never reach the ledger.
	var count int64
	require.NoError(t, db.Model(&models.RoleAssignment{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestAssignmentServiceBulkPartialSuccess(t *testing.T) {
	db := openServiceTestDB(t)
	admin := createTestUser(t, db, "admin1", "admin1@example.com")
	first := createTestUser(t, db, "first", "first@example.com")
	second := createTestUser(t, db, "second", "second@example.com")

	svc, err := NewAssignmentService(db, nil)
	require.NoError(t, err)

	result, err := svc.BulkAssign(
		context.Background(),
		[]string{first.ID, "ghost", second.ID, first.ID},
		"viewer",
		admin.ID,
	)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{first.ID, second.ID}, result.Succeeded)
	require.Equal(t, map[string]string{"ghost": "USER_NOT_FOUND"}, result.Failed)
}

func TestAssignmentServiceNotifyFailureDoesNotFail(t *testing.T) {
	db := openServiceTestDB(t)
	admin := createTestUser(t, db, "admin1", "admin1@example.com")
	target := createTestUser(t, db, "member", "member@example.com")

	svc, err := NewAssignmentService(db, failingMailer{})
	require.NoError(t, err)

	err = svc.Assign(context.Background(), AssignRoleInput{
		UserID:     target.ID,
		RoleID:     "viewer",
		AssignedBy: admin.ID,
		Notify:     true,
	})
	require.NoError(t, err)

	var updated models.User
	require.NoError(t, db.First(&updated, "id = ?", target.ID).Error)
	require.Equal(t, "viewer", updated.CurrentRole)
}

func TestAssignmentServiceNotifySendsMail(t *testing.T) {
	db := openServiceTestDB(t)
	admin := createTestUser(t, db, "admin1", "admin1@example.com")
	target := createTestUser(t, db, "member", "member@example.com")

	mailer := &recordingMailer{}
	svc, err := NewAssignmentService(db, mailer)
	require.NoError(t, err)

	require.NoError(t, svc.Assign(context.Background(), AssignRoleInput{
		UserID:     target.ID,
		RoleID:     "editor",
		AssignedBy: admin.ID,
		Notify:     true,
	}))

	sent := mailer.sent()
	require.Len(t, sent, 1)
	require.Equal(t, []string{"member@example.com"}, sent[0].To)
	require.Contains(t, sent[0].Body, "Editor")
}
