// Package repository provides the data access layer for the QualiTrack
// application. This file handles quality controls: the persisted evaluation
// results of submitted measurements.
package repository

import (
	"context"

	"github.com/hyg1997/qualitrack/internal/database"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/jackc/pgx/v5"
)

// ControlRepository handles control database operations.
//
// Immutability Note:
//
//	Controls are the measurement evidence of a lot. They are inserted as
//	one atomic batch per submission and never updated or deleted
//	individually; the service layer permits a single submission per record,
//	so the batch is append-only for the record's lifetime.
type ControlRepository struct{}

// NewControlRepository creates a new instance of ControlRepository.
func NewControlRepository() *ControlRepository {
	return &ControlRepository{}
}

// CreateBatch inserts a record's evaluated controls as one atomic batch.
// Runs inside a single transaction so a failed submission persists nothing.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - recordID: Record the batch belongs to
//   - controls: Evaluated controls to persist (may be empty after filtering)
//
// Side Effects: Populates each control's ID and CreatedAt
func (r *ControlRepository) CreateBatch(ctx context.Context, recordID int, controls []models.Control) error {
	return database.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO controls
				(record_id, specification_id, parameter_name, parameter_type, full_range,
				 control_value, text_control, out_of_range, alert_message, observation)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id, created_at
		`

		for i := range controls {
			c := &controls[i]
			if err := tx.QueryRow(ctx, query,
				recordID, c.SpecificationID, c.ParameterName, c.ParameterType, c.FullRange,
				c.ControlValue, c.TextControl, c.OutOfRange, c.AlertMessage, c.Observation,
			).Scan(&c.ID, &c.CreatedAt); err != nil {
				return err
			}
			c.RecordID = recordID
		}

		return nil
	})
}

// ListByRecord retrieves a record's controls in stable parameter order.
// Used on the record detail and evidence pages.
func (r *ControlRepository) ListByRecord(ctx context.Context, recordID int) ([]models.Control, error) {
	query := `
		SELECT id, record_id, specification_id, parameter_name, parameter_type, full_range,
		       control_value, text_control, out_of_range, alert_message, observation, created_at
		FROM controls
		WHERE record_id = $1
		ORDER BY parameter_name
	`

	rows, err := database.DB.Query(ctx, query, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var controls []models.Control
	for rows.Next() {
		var c models.Control
		if err := rows.Scan(
			&c.ID, &c.RecordID, &c.SpecificationID, &c.ParameterName, &c.ParameterType, &c.FullRange,
			&c.ControlValue, &c.TextControl, &c.OutOfRange, &c.AlertMessage, &c.Observation, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		controls = append(controls, c)
	}

	return controls, nil
}

// CountByRecord returns how many controls a record currently has. The
// approval guard requires at least one before a lot may be resolved.
func (r *ControlRepository) CountByRecord(ctx context.Context, recordID int) (int, error) {
	query := `SELECT COUNT(*) FROM controls WHERE record_id = $1`

	var count int
	err := database.DB.QueryRow(ctx, query, recordID).Scan(&count)
	return count, err
}

// ListAlerts retrieves out-of-range controls across all pending records,
// newest first, with their record context. Feeds the alerts dashboard.
func (r *ControlRepository) ListAlerts(ctx context.Context, limit int) ([]models.ControlView, error) {
	query := `
		SELECT c.id, c.record_id, c.specification_id, c.parameter_name, c.parameter_type, c.full_range,
		       c.control_value, c.text_control, c.out_of_range, c.alert_message, c.observation, c.created_at,
		       r.internal_lot, p.name as product_name
		FROM controls c
		JOIN records r ON r.id = c.record_id
		JOIN products p ON p.id = r.product_id
		WHERE c.out_of_range = true AND r.status = 'pending'
		ORDER BY c.created_at DESC
		LIMIT $1
	`

	rows, err := database.DB.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []models.ControlView
	for rows.Next() {
		var v models.ControlView
		if err := rows.Scan(
			&v.ID, &v.RecordID, &v.SpecificationID, &v.ParameterName, &v.ParameterType, &v.FullRange,
			&v.ControlValue, &v.TextControl, &v.OutOfRange, &v.AlertMessage, &v.Observation, &v.CreatedAt,
			&v.InternalLot, &v.ProductName,
		); err != nil {
			return nil, err
		}
		views = append(views, v)
	}

	return views, nil
}
