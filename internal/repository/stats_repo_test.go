// Package repository_test provides unit tests for the repository layer.
// Stats repository tests verify dashboard metric aggregation and the
// approval rate calculation.
package repository_test

import (
	"context"
	"testing"

	"github.com/hyg1997/qualitrack/internal/database"
	"github.com/hyg1997/qualitrack/internal/repository"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStatsRepository_GetDashboardStats verifies the system-wide aggregation
// and the derived approval rate.
func TestStatsRepository_GetDashboardStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	rows := pgxmock.NewRows([]string{"total_records", "pending_count", "approved_count", "rejected_count", "alert_count"}).
		AddRow(100, 20, 60, 20, 5)

	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	repo := repository.NewStatsRepository()

	stats, err := repo.GetDashboardStats(context.Background())

	assert.NoError(t, err, "Query should succeed")
	require.NotNil(t, stats, "Stats should not be nil")
	assert.Equal(t, 100, stats.TotalRecords)
	assert.Equal(t, 5, stats.AlertCount)
	// 60 approved of 80 resolved
	assert.InDelta(t, 75.0, stats.ApprovalRate, 0.01, "Approval rate should be approved/resolved")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestStatsRepository_GetDashboardStats_NoResolved verifies the rate stays
// zero before any lot has been resolved (no division by zero).
func TestStatsRepository_GetDashboardStats_NoResolved(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	rows := pgxmock.NewRows([]string{"total_records", "pending_count", "approved_count", "rejected_count", "alert_count"}).
		AddRow(3, 3, 0, 0, 1)

	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	repo := repository.NewStatsRepository()

	stats, err := repo.GetDashboardStats(context.Background())

	assert.NoError(t, err, "Query should succeed")
	assert.Zero(t, stats.ApprovalRate, "Rate should stay zero with nothing resolved")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestStatsRepository_GetInspectorStats verifies the per-inspector view.
func TestStatsRepository_GetInspectorStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	rows := pgxmock.NewRows([]string{"total_registered", "pending_count", "approved_count", "rejected_count"}).
		AddRow(10, 2, 6, 2)

	mock.ExpectQuery("SELECT").
		WithArgs(7).
		WillReturnRows(rows)

	repo := repository.NewStatsRepository()

	stats, err := repo.GetInspectorStats(context.Background(), 7)

	assert.NoError(t, err, "Query should succeed")
	assert.Equal(t, 10, stats.TotalRegistered)
	assert.InDelta(t, 75.0, stats.ApprovalRate, 0.01)
	assert.NoError(t, mock.ExpectationsWereMet())
}
