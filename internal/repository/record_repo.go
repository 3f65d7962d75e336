// Package repository provides the data access layer for the QualiTrack
// application. This file handles lot records and their lifecycle guards.
package repository

import (
	"context"
	"errors"

	"github.com/hyg1997/qualitrack/internal/apperrors"
	"github.com/hyg1997/qualitrack/internal/database"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/jackc/pgx/v5"
)

// RecordRepository handles lot record database operations.
//
// Lifecycle Guards:
//
//	Every mutation of a record is a single conditional UPDATE (or DELETE)
//	with "AND status = 'pending'" in the WHERE clause. The mutation methods
//	report whether a row was hit; callers translate a miss into not-found
//	or conflict by probing the record afterwards. This keeps concurrent
//	approve/reject/edit races correct without explicit locking.
type RecordRepository struct{}

// NewRecordRepository creates a new instance of RecordRepository.
func NewRecordRepository() *RecordRepository {
	return &RecordRepository{}
}

// Create inserts a new lot record in the pending state.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - record: Record with product, lot numbers, quantity and creator
//
// Returns:
//   - error: Typed conflict when the internal lot already exists, database error otherwise
//
// Database: internal_lot carries a UNIQUE constraint; the violation is the
// authoritative duplicate check under concurrent registration.
// Side Effects: Populates record.ID, record.Status and record.CreatedAt
func (r *RecordRepository) Create(ctx context.Context, record *models.Record) error {
	query := `
		INSERT INTO records
			(product_id, internal_lot, supplier_lot, quantity, registration_date, expiration_date, status, created_by, observations)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8)
		RETURNING id, status, created_at
	`

	err := database.DB.QueryRow(ctx, query,
		record.ProductID, record.InternalLot, record.SupplierLot, record.Quantity,
		record.RegistrationDate, record.ExpirationDate, record.CreatedBy, record.Observations,
	).Scan(&record.ID, &record.Status, &record.CreatedAt)
	if isUniqueViolation(err) {
		return apperrors.Conflict("internal lot %q is already registered", record.InternalLot)
	}
	return err
}

// GetByID retrieves a single record by primary key.
func (r *RecordRepository) GetByID(ctx context.Context, recordID int) (*models.Record, error) {
	query := `
		SELECT id, product_id, internal_lot, supplier_lot, quantity, registration_date,
		       expiration_date, status, created_by, approved_by, approval_date, observations, created_at
		FROM records
		WHERE id = $1
	`

	var rec models.Record
	err := database.DB.QueryRow(ctx, query, recordID).Scan(
		&rec.ID, &rec.ProductID, &rec.InternalLot, &rec.SupplierLot, &rec.Quantity,
		&rec.RegistrationDate, &rec.ExpirationDate, &rec.Status,
		&rec.CreatedBy, &rec.ApprovedBy, &rec.ApprovalDate, &rec.Observations, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("record %d not found", recordID)
	}
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// GetView retrieves a single record enriched with product and user names
// plus control counts, for the record detail page.
func (r *RecordRepository) GetView(ctx context.Context, recordID int) (*models.RecordView, error) {
	query := recordViewQuery + ` WHERE r.id = $1`

	var v models.RecordView
	err := database.DB.QueryRow(ctx, query, recordID).Scan(recordViewDest(&v)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("record %d not found", recordID)
	}
	if err != nil {
		return nil, err
	}

	return &v, nil
}

// ListViews retrieves record views newest first, optionally filtered by
// lifecycle status. An empty status returns every record.
func (r *RecordRepository) ListViews(ctx context.Context, status string) ([]models.RecordView, error) {
	query := recordViewQuery
	args := []any{}
	if status != "" {
		query += ` WHERE r.status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY r.created_at DESC`

	rows, err := database.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []models.RecordView
	for rows.Next() {
		var v models.RecordView
		if err := rows.Scan(recordViewDest(&v)...); err != nil {
			return nil, err
		}
		views = append(views, v)
	}

	return views, nil
}

// recordViewQuery is the shared SELECT behind GetView and ListViews. Control
// counts come from a lateral-free grouped subquery so listing stays a single
// round trip.
const recordViewQuery = `
	SELECT r.id, r.product_id, r.internal_lot, r.supplier_lot, r.quantity, r.registration_date,
	       r.expiration_date, r.status, r.created_by, r.approved_by, r.approval_date, r.observations, r.created_at,
	       p.name as product_name, p.code as product_code,
	       cu.name as created_by_name, au.name as approved_by_name,
	       COALESCE(cc.control_count, 0) as control_count,
	       COALESCE(cc.alert_count, 0) as alert_count
	FROM records r
	JOIN products p ON p.id = r.product_id
	JOIN users cu ON cu.id = r.created_by
	LEFT JOIN users au ON au.id = r.approved_by
	LEFT JOIN (
		SELECT record_id, COUNT(*) as control_count,
		       COUNT(*) FILTER (WHERE out_of_range) as alert_count
		FROM controls GROUP BY record_id
	) cc ON cc.record_id = r.id
`

func recordViewDest(v *models.RecordView) []any {
	return []any{
		&v.ID, &v.ProductID, &v.InternalLot, &v.SupplierLot, &v.Quantity, &v.RegistrationDate,
		&v.ExpirationDate, &v.Status, &v.CreatedBy, &v.ApprovedBy, &v.ApprovalDate, &v.Observations, &v.CreatedAt,
		&v.ProductName, &v.ProductCode, &v.CreatedByName, &v.ApprovedByName,
		&v.ControlCount, &v.AlertCount,
	}
}

// UpdatePending modifies a record's registration fields, but only while it
// is still pending. Reports whether a row was updated; false means the
// record is missing or already resolved, which the caller disambiguates.
func (r *RecordRepository) UpdatePending(ctx context.Context, record *models.Record) (bool, error) {
	query := `
		UPDATE records
		SET product_id = $1, internal_lot = $2, supplier_lot = $3, quantity = $4,
		    expiration_date = $5, observations = $6
		WHERE id = $7 AND status = 'pending'
	`

	tag, err := database.DB.Exec(ctx, query,
		record.ProductID, record.InternalLot, record.SupplierLot, record.Quantity,
		record.ExpirationDate, record.Observations, record.ID,
	)
	if isUniqueViolation(err) {
		return false, apperrors.Conflict("internal lot %q is already registered", record.InternalLot)
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeletePending removes a record, but only while it is still pending.
// Controls cascade with it. Reports whether a row was deleted.
func (r *RecordRepository) DeletePending(ctx context.Context, recordID int) (bool, error) {
	query := `DELETE FROM records WHERE id = $1 AND status = 'pending'`

	tag, err := database.DB.Exec(ctx, query, recordID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Resolve transitions a pending record to approved or rejected in a single
// conditional UPDATE, stamping the resolver and resolution time. A non-nil
// note is appended to the record's observations (rejections carry a reason).
// Reports whether a row was transitioned; false means the record was missing
// or already resolved by a concurrent actor.
func (r *RecordRepository) Resolve(ctx context.Context, recordID int, status string, resolverID int, note *string) (bool, error) {
	query := `
		UPDATE records
		SET status = $1, approved_by = $2, approval_date = NOW(),
		    observations = CASE
		        WHEN $3::text IS NULL THEN observations
		        ELSE COALESCE(observations || E'\n', '') || $3::text
		    END
		WHERE id = $4 AND status = 'pending'
	`

	tag, err := database.DB.Exec(ctx, query, status, resolverID, note, recordID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
