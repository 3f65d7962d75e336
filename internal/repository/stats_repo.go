// Package repository provides the data access layer for the QualiTrack
// application. This file provides aggregation queries for dashboards.
package repository

import (
	"context"

	"github.com/hyg1997/qualitrack/internal/database"
)

// StatsRepository handles statistical queries for dashboard displays.
// These queries aggregate across records and controls to give administrators
// and inspectors a picture of lot throughput and failure rates.
type StatsRepository struct{}

// NewStatsRepository creates a new instance of StatsRepository.
func NewStatsRepository() *StatsRepository {
	return &StatsRepository{}
}

// DashboardStats represents aggregated metrics for the admin dashboard.
type DashboardStats struct {
	TotalRecords  int     // All lot records ever registered
	PendingCount  int     // Records awaiting resolution
	ApprovedCount int     // Records resolved as approved
	RejectedCount int     // Records resolved as rejected
	AlertCount    int     // Out-of-range controls on pending records
	ApprovalRate  float64 // Approved as a percentage of resolved records (0-100)
}

// InspectorStats represents metrics for one inspector's dashboard: the lots
// they registered and how those lots were resolved.
type InspectorStats struct {
	TotalRegistered int     // Lots registered by this inspector
	PendingCount    int     // Still awaiting resolution
	ApprovedCount   int     // Resolved as approved
	RejectedCount   int     // Resolved as rejected
	ApprovalRate    float64 // Approved as a percentage of resolved lots (0-100)
}

// GetDashboardStats retrieves system-wide metrics for the admin dashboard.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//
// Database: Single query with FILTER aggregations plus a scalar subquery for
// the pending alert count.
func (r *StatsRepository) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	query := `
		SELECT
			COUNT(*) as total_records,
			COUNT(*) FILTER (WHERE status = 'pending') as pending_count,
			COUNT(*) FILTER (WHERE status = 'approved') as approved_count,
			COUNT(*) FILTER (WHERE status = 'rejected') as rejected_count,
			(SELECT COUNT(*) FROM controls c
			 JOIN records pr ON pr.id = c.record_id
			 WHERE c.out_of_range = true AND pr.status = 'pending') as alert_count
		FROM records
	`

	stats := &DashboardStats{}
	err := database.DB.QueryRow(ctx, query).Scan(
		&stats.TotalRecords,
		&stats.PendingCount,
		&stats.ApprovedCount,
		&stats.RejectedCount,
		&stats.AlertCount,
	)
	if err != nil {
		return nil, err
	}

	resolved := stats.ApprovedCount + stats.RejectedCount
	if resolved > 0 {
		stats.ApprovalRate = float64(stats.ApprovedCount) / float64(resolved) * 100
	}

	return stats, nil
}

// GetInspectorStats retrieves metrics for one inspector's dashboard.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - userID: Inspector whose registered lots to aggregate
func (r *StatsRepository) GetInspectorStats(ctx context.Context, userID int) (*InspectorStats, error) {
	query := `
		SELECT
			COUNT(*) as total_registered,
			COUNT(*) FILTER (WHERE status = 'pending') as pending_count,
			COUNT(*) FILTER (WHERE status = 'approved') as approved_count,
			COUNT(*) FILTER (WHERE status = 'rejected') as rejected_count
		FROM records
		WHERE created_by = $1
	`

	stats := &InspectorStats{}
	err := database.DB.QueryRow(ctx, query, userID).Scan(
		&stats.TotalRegistered,
		&stats.PendingCount,
		&stats.ApprovedCount,
		&stats.RejectedCount,
	)
	if err != nil {
		return nil, err
	}

	resolved := stats.ApprovedCount + stats.RejectedCount
	if resolved > 0 {
		stats.ApprovalRate = float64(stats.ApprovedCount) / float64(resolved) * 100
	}

	return stats, nil
}
