// Package repository_test provides unit tests for the repository layer.
// Control repository tests verify the transactional batch insert and the
// evidence queries.
package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyg1997/qualitrack/internal/database"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/hyg1997/qualitrack/internal/repository"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestControlRepository_CreateBatch verifies the atomic batch insert: every
// control of a submission persisted inside one transaction.
func TestControlRepository_CreateBatch(t *testing.T) {
	testTime := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	specID := 21
	value := 240.5
	alert := "value 233 outside range 235 - 245"
	badValue := 233.0

	// Expect the full transactional sequence
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO controls").
		WithArgs(10, &specID, "Peso neto", "range", "235 - 245 g",
			&value, (*string)(nil), false, (*string)(nil), (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(100, testTime))
	mock.ExpectQuery("INSERT INTO controls").
		WithArgs(10, (*int)(nil), "Peso tara", "range", "230 - 240 g",
			&badValue, (*string)(nil), true, &alert, (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(101, testTime))
	mock.ExpectCommit()

	repo := repository.NewControlRepository()

	controls := []models.Control{
		{
			SpecificationID: &specID,
			ParameterName:   "Peso neto",
			ParameterType:   models.KindRange,
			FullRange:       "235 - 245 g",
			ControlValue:    &value,
		},
		{
			ParameterName: "Peso tara",
			ParameterType: models.KindRange,
			FullRange:     "230 - 240 g",
			ControlValue:  &badValue,
			OutOfRange:    true,
			AlertMessage:  &alert,
		},
	}

	// Act - Persist the record's control batch
	err = repo.CreateBatch(context.Background(), 10, controls)

	// Assert - Both controls persisted with populated IDs
	assert.NoError(t, err, "Batch insert should succeed")
	assert.Equal(t, 100, controls[0].ID, "First control ID should be set")
	assert.Equal(t, 10, controls[1].RecordID, "Record ID should be stamped")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestControlRepository_CreateBatch_RollsBackOnFailure verifies that a
// mid-batch insert failure rolls the transaction back, persisting nothing.
func TestControlRepository_CreateBatch_RollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	value := 240.5

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO controls").
		WithArgs(10, (*int)(nil), "Peso neto", "range", "235 - 245 g",
			&value, (*string)(nil), false, (*string)(nil), (*string)(nil)).
		WillReturnError(errors.New("insert failed"))
	mock.ExpectRollback()

	repo := repository.NewControlRepository()

	controls := []models.Control{
		{
			ParameterName: "Peso neto",
			ParameterType: models.KindRange,
			FullRange:     "235 - 245 g",
			ControlValue:  &value,
		},
	}

	err = repo.CreateBatch(context.Background(), 10, controls)

	assert.Error(t, err, "Failure should propagate")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestControlRepository_CountByRecord verifies the approval guard count.
func TestControlRepository_CountByRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	repo := repository.NewControlRepository()

	count, err := repo.CountByRecord(context.Background(), 10)

	assert.NoError(t, err, "Query should succeed")
	assert.Equal(t, 4, count, "Count should match")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestControlRepository_ListByRecord verifies evidence retrieval in stable
// parameter order.
func TestControlRepository_ListByRecord(t *testing.T) {
	testTime := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	rows := pgxmock.NewRows([]string{
		"id", "record_id", "specification_id", "parameter_name", "parameter_type", "full_range",
		"control_value", "text_control", "out_of_range", "alert_message", "observation", "created_at",
	}).
		AddRow(100, 10, (*int)(nil), "Color", "text", "Transparente",
			(*float64)(nil), strPtr("transparente"), false, (*string)(nil), (*string)(nil), testTime).
		AddRow(101, 10, (*int)(nil), "Peso neto", "range", "235 - 245 g",
			floatPtr(240.5), (*string)(nil), false, (*string)(nil), (*string)(nil), testTime)

	mock.ExpectQuery("SELECT id, record_id, specification_id").
		WithArgs(10).
		WillReturnRows(rows)

	repo := repository.NewControlRepository()

	controls, err := repo.ListByRecord(context.Background(), 10)

	assert.NoError(t, err, "Query should succeed")
	require.Len(t, controls, 2, "Should return 2 controls")
	assert.Equal(t, "Color", controls[0].ParameterName, "Controls should be name-ordered")
	assert.NoError(t, mock.ExpectationsWereMet())
}
