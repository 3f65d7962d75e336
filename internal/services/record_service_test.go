// Package services_test provides unit tests for the services layer.
// Record service tests validate the lifecycle rules: permission gates,
// the evidence guard on approval, and conflict disambiguation when a
// guarded mutation loses a race.
package services_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/hyg1997/qualitrack/internal/apperrors"
	"github.com/hyg1997/qualitrack/internal/authz"
	"github.com/hyg1997/qualitrack/internal/database"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/hyg1997/qualitrack/internal/security"
	"github.com/hyg1997/qualitrack/internal/services"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quietLogger returns a security logger with output discarded.
func quietLogger() *security.Logger {
	logger := security.NewLogger()
	logger.SetOutput(log.New(io.Discard, "", 0))
	return logger
}

// inspectorPrincipal builds a level-40 principal holding the quality
// inspection permissions.
func inspectorPrincipal() *authz.Principal {
	role := models.Role{
		ID: 2, Name: "inspector", DisplayName: "Quality Inspector", Level: 40,
		Permissions: []models.Permission{
			{Name: "record:create", Resource: "record", Action: "create"},
			{Name: "record:update", Resource: "record", Action: "update"},
			{Name: "record:approve", Resource: "record", Action: "approve"},
			{Name: "record:reject", Resource: "record", Action: "reject"},
			{Name: "control:submit", Resource: "control", Action: "submit"},
		},
	}
	user := models.User{ID: 7, Name: "Ana Torres", Email: "ana@example.com"}
	return authz.NewPrincipal(user, []models.Role{role})
}

// viewerPrincipal builds a principal with no mutation permissions.
func viewerPrincipal() *authz.Principal {
	user := models.User{ID: 8, Name: "Luis Soto", Email: "luis@example.com"}
	return authz.NewPrincipal(user, []models.Role{{ID: 5, Name: "viewer", Level: 10}})
}

func newRecordService() *services.RecordService {
	return services.NewRecordService(security.DefaultConfig(), quietLogger())
}

// TestRecordService_Create_PermissionDenied verifies the gate runs before
// any database work.
func TestRecordService_Create_PermissionDenied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	service := newRecordService()

	form := models.RecordForm{ProductID: 3, InternalLot: "LOT-2026-001", Quantity: "500"}

	// Act - Attempt registration without record:create
	record, err := service.Create(context.Background(), viewerPrincipal(), form, services.RequestMeta{})

	// Assert - Denied before a single query
	assert.Nil(t, record, "No record should come back")
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthorization), "Denial should be typed authorization")
	assert.NoError(t, mock.ExpectationsWereMet(), "No database calls should have happened")
}

// TestRecordService_Create_Validation verifies form rejection paths.
func TestRecordService_Create_Validation(t *testing.T) {
	tests := []struct {
		name  string
		form  models.RecordForm
		field string
	}{
		{
			name:  "non-numeric quantity",
			form:  models.RecordForm{ProductID: 3, InternalLot: "LOT-2026-001", Quantity: "abc"},
			field: "quantity",
		},
		{
			name:  "zero quantity",
			form:  models.RecordForm{ProductID: 3, InternalLot: "LOT-2026-001", Quantity: "0"},
			field: "quantity",
		},
		{
			name:  "missing lot number",
			form:  models.RecordForm{ProductID: 3, InternalLot: "", Quantity: "500"},
			field: "lot_number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newRecordService()

			_, err := service.Create(context.Background(), inspectorPrincipal(), tt.form, services.RequestMeta{})

			require.Error(t, err, "Invalid form should fail")
			assert.True(t, apperrors.IsKind(err, apperrors.KindValidation), "Failure should be typed validation")
		})
	}
}

// TestRecordService_Approve_RequiresControls verifies the evidence guard:
// a lot with no persisted controls cannot be approved.
func TestRecordService_Approve_RequiresControls(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	service := newRecordService()

	err = service.Approve(context.Background(), inspectorPrincipal(), 10, services.RequestMeta{})

	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict), "Approval without evidence should conflict")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestRecordService_Approve_LostRace verifies disambiguation when the
// conditional transition hits no rows: the service probes the record and
// reports a conflict naming its actual state.
func TestRecordService_Approve_LostRace(t *testing.T) {
	testTime := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	// The conditional UPDATE misses: someone else resolved first
	mock.ExpectExec("UPDATE records").
		WithArgs(models.StatusApproved, 7, (*string)(nil), 10).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	// Probe shows the record is already rejected
	resolver := 9
	resolvedAt := testTime
	mock.ExpectQuery("SELECT id, product_id, internal_lot").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "product_id", "internal_lot", "supplier_lot", "quantity", "registration_date",
			"expiration_date", "status", "created_by", "approved_by", "approval_date", "observations", "created_at",
		}).AddRow(
			10, 3, "LOT-2026-001", (*string)(nil), 500.0, testTime,
			(*time.Time)(nil), "rejected", 7, &resolver, &resolvedAt, (*string)(nil), testTime,
		))

	service := newRecordService()

	err = service.Approve(context.Background(), inspectorPrincipal(), 10, services.RequestMeta{})

	require.Error(t, err, "Lost race should fail")
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict), "Lost race should be typed conflict")
	assert.Contains(t, err.Error(), "rejected", "Conflict should name the actual state")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestRecordService_Reject_RequiresReason verifies the mandatory rejection
// reason.
func TestRecordService_Reject_RequiresReason(t *testing.T) {
	service := newRecordService()

	err := service.Reject(context.Background(), inspectorPrincipal(), 10, "   ", services.RequestMeta{})

	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation), "Blank reason should be typed validation")
}

// TestRecordService_SubmitControls verifies evaluation and persistence of a
// measurement batch: in-range and out-of-range values, snapshot fields, and
// the alert count.
func TestRecordService_SubmitControls(t *testing.T) {
	testTime := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	// Record lookup: must exist and be pending
	mock.ExpectQuery("SELECT id, product_id, internal_lot").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "product_id", "internal_lot", "supplier_lot", "quantity", "registration_date",
			"expiration_date", "status", "created_by", "approved_by", "approval_date", "observations", "created_at",
		}).AddRow(
			10, 3, "LOT-2026-001", (*string)(nil), 500.0, testTime,
			(*time.Time)(nil), "pending", 7, (*int)(nil), (*time.Time)(nil), (*string)(nil), testTime,
		))

	// Single-submission guard: no controls yet
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	// Active specifications of the product
	mock.ExpectQuery("SELECT id, product_id, template_id").
		WithArgs(3).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "product_id", "template_id", "name", "kind", "expected_value",
			"min_range", "max_range", "unit", "required", "active", "created_at",
		}).
			AddRow(21, 3, (*int)(nil), "Peso neto", "range", strPtr("240 +/- 5"),
				floatPtr(235), floatPtr(245), strPtr("g"), true, true, testTime).
			AddRow(22, 3, (*int)(nil), "Color", "text", strPtr("Transparente"),
				(*float64)(nil), (*float64)(nil), (*string)(nil), true, true, testTime))

	// Transactional batch insert
	mock.ExpectBegin()

	specWeight := 21
	weightValue := 233.0
	alert := "value 233 outside range 235 - 245"
	mock.ExpectQuery("INSERT INTO controls").
		WithArgs(10, &specWeight, "Peso neto", "range", "235 - 245 g",
			&weightValue, (*string)(nil), true, &alert, (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(100, testTime))

	specColor := 22
	colorText := "Tránsparente"
	mock.ExpectQuery("INSERT INTO controls").
		WithArgs(10, &specColor, "Color", "text", "Transparente",
			(*float64)(nil), &colorText, false, (*string)(nil), (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(101, testTime))
	mock.ExpectCommit()

	service := newRecordService()

	inputs := []models.MeasurementInput{
		{SpecificationID: 21, Value: "233"},
		{SpecificationID: 22, Value: "Tránsparente"}, // diacritic-insensitive match
	}

	// Act - Submit the batch
	result, err := service.SubmitControls(context.Background(), inspectorPrincipal(), 10, inputs, services.RequestMeta{})

	// Assert - One alert, snapshots taken
	require.NoError(t, err, "Submission should succeed")
	require.Len(t, result.Controls, 2, "Both measurements should persist")
	assert.Equal(t, 1, result.AlertCount, "Out-of-range weight should raise one alert")
	assert.True(t, result.Controls[0].OutOfRange, "Weight control should be flagged")
	assert.False(t, result.Controls[1].OutOfRange, "Accented color should match its expectation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestRecordService_SubmitControls_UnknownSpecification verifies submissions
// against specifications not active on the product are refused.
func TestRecordService_SubmitControls_UnknownSpecification(t *testing.T) {
	testTime := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	mock.ExpectQuery("SELECT id, product_id, internal_lot").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "product_id", "internal_lot", "supplier_lot", "quantity", "registration_date",
			"expiration_date", "status", "created_by", "approved_by", "approval_date", "observations", "created_at",
		}).AddRow(
			10, 3, "LOT-2026-001", (*string)(nil), 500.0, testTime,
			(*time.Time)(nil), "pending", 7, (*int)(nil), (*time.Time)(nil), (*string)(nil), testTime,
		))

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	mock.ExpectQuery("SELECT id, product_id, template_id").
		WithArgs(3).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "product_id", "template_id", "name", "kind", "expected_value",
			"min_range", "max_range", "unit", "required", "active", "created_at",
		}))

	service := newRecordService()

	_, err = service.SubmitControls(context.Background(), inspectorPrincipal(), 10,
		[]models.MeasurementInput{{SpecificationID: 99, Value: "1"}}, services.RequestMeta{})

	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation), "Unknown specification should be typed validation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestRecordService_SubmitControls_AlreadySubmitted verifies the
// single-submission rule: controls are append-only evidence, so a record
// that already has a persisted batch refuses another one.
func TestRecordService_SubmitControls_AlreadySubmitted(t *testing.T) {
	testTime := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	mock.ExpectQuery("SELECT id, product_id, internal_lot").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "product_id", "internal_lot", "supplier_lot", "quantity", "registration_date",
			"expiration_date", "status", "created_by", "approved_by", "approval_date", "observations", "created_at",
		}).AddRow(
			10, 3, "LOT-2026-001", (*string)(nil), 500.0, testTime,
			(*time.Time)(nil), "pending", 7, (*int)(nil), (*time.Time)(nil), (*string)(nil), testTime,
		))

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	service := newRecordService()

	_, err = service.SubmitControls(context.Background(), inspectorPrincipal(), 10,
		[]models.MeasurementInput{{SpecificationID: 21, Value: "240"}}, services.RequestMeta{})

	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict), "Second submission should be typed conflict")
	assert.Contains(t, err.Error(), "already has submitted controls")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestRecordService_Update_UnknownProduct verifies that retargeting a record
// to a product that does not exist surfaces as a typed not-found error
// instead of a raw foreign-key violation.
func TestRecordService_Update_UnknownProduct(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	mock.ExpectQuery("SELECT id, name, code").
		WithArgs(99).
		WillReturnError(pgx.ErrNoRows)

	service := newRecordService()

	form := models.RecordForm{ProductID: 99, InternalLot: "LOT-2026-001", Quantity: "500"}
	err = service.Update(context.Background(), inspectorPrincipal(), 10, form, services.RequestMeta{})

	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound), "Unknown product should be typed not-found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
