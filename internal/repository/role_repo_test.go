// Package repository_test provides unit tests for the repository layer.
// Role repository tests verify role CRUD and the transactional permission
// grant replacement.
package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/hyg1997/qualitrack/internal/apperrors"
	"github.com/hyg1997/qualitrack/internal/database"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/hyg1997/qualitrack/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoleRepository_GetByID verifies role lookup with the permission set
// loaded alongside.
func TestRoleRepository_GetByID(t *testing.T) {
	testTime := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	roleRows := pgxmock.NewRows([]string{"id", "name", "display_name", "level", "is_system", "created_at"}).
		AddRow(3, "quality_admin", "Quality Administrator", 90, true, testTime)
	mock.ExpectQuery("SELECT id, name, display_name, level, is_system, created_at FROM roles WHERE id").
		WithArgs(3).
		WillReturnRows(roleRows)

	permRows := pgxmock.NewRows([]string{"id", "name", "resource", "action", "display_name"}).
		AddRow(8, "record:approve", "record", "approve", "Approve lots")
	mock.ExpectQuery("SELECT p.id, p.name, p.resource, p.action").
		WithArgs(3).
		WillReturnRows(permRows)

	repo := repository.NewRoleRepository()

	role, err := repo.GetByID(context.Background(), 3)

	assert.NoError(t, err, "Lookup should succeed")
	require.NotNil(t, role, "Role should not be nil")
	assert.True(t, role.Protected(), "Level 90 role should be protected")
	assert.Len(t, role.Permissions, 1, "Permissions should be loaded")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestRoleRepository_GetByID_NotFound verifies the typed miss.
func TestRoleRepository_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	mock.ExpectQuery("SELECT id, name, display_name, level, is_system, created_at FROM roles WHERE id").
		WithArgs(99).
		WillReturnError(pgx.ErrNoRows)

	repo := repository.NewRoleRepository()

	role, err := repo.GetByID(context.Background(), 99)

	assert.Nil(t, role, "Role should be nil on miss")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound), "Miss should be typed not-found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestRoleRepository_Create verifies role insertion. User-created roles are
// never system roles.
func TestRoleRepository_Create(t *testing.T) {
	testTime := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	rows := pgxmock.NewRows([]string{"id", "created_at"}).AddRow(4, testTime)

	mock.ExpectQuery("INSERT INTO roles").
		WithArgs("lab_tech", "Lab Technician", 30).
		WillReturnRows(rows)

	repo := repository.NewRoleRepository()

	role := &models.Role{Name: "lab_tech", DisplayName: "Lab Technician", Level: 30}

	err = repo.Create(context.Background(), role)

	assert.NoError(t, err, "Creation should succeed")
	assert.Equal(t, 4, role.ID, "Role ID should be set")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestRoleRepository_SetPermissions verifies the transactional grant swap:
// clear existing grants, insert the new set, commit.
func TestRoleRepository_SetPermissions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM role_permissions").
		WithArgs(4).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO role_permissions").
		WithArgs(4, 5).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO role_permissions").
		WithArgs(4, 6).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	repo := repository.NewRoleRepository()

	err = repo.SetPermissions(context.Background(), 4, []int{5, 6})

	assert.NoError(t, err, "Grant swap should succeed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestRoleRepository_Delete verifies role removal.
func TestRoleRepository_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	mock.ExpectExec("DELETE FROM roles").
		WithArgs(4).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	repo := repository.NewRoleRepository()

	err = repo.Delete(context.Background(), 4)

	assert.NoError(t, err, "Deletion should succeed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
