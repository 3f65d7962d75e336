// Package services_test provides unit tests for the services layer.
// Specification service tests validate the copy-at-bind-time semantics and
// the bulk import's tolerance handling.
package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/hyg1997/qualitrack/internal/apperrors"
	"github.com/hyg1997/qualitrack/internal/authz"
	"github.com/hyg1997/qualitrack/internal/database"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/hyg1997/qualitrack/internal/security"
	"github.com/hyg1997/qualitrack/internal/services"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bindingPrincipal builds a principal holding the specification permissions.
func bindingPrincipal() *authz.Principal {
	role := models.Role{
		ID: 3, Name: "quality_lead", DisplayName: "Quality Lead", Level: 60,
		Permissions: []models.Permission{
			{Name: "specification:create", Resource: "specification", Action: "create"},
			{Name: "specification:update", Resource: "specification", Action: "update"},
			{Name: "specification:delete", Resource: "specification", Action: "delete"},
		},
	}
	user := models.User{ID: 5, Name: "Marta Ruiz", Email: "marta@example.com"}
	return authz.NewPrincipal(user, []models.Role{role})
}

func newSpecificationService() *services.SpecificationService {
	return services.NewSpecificationService(security.DefaultConfig(), quietLogger())
}

// TestSpecificationService_Bind_CopiesTemplateFields verifies that binding
// from the catalog snapshots the template's fields into the new
// specification instead of referencing them.
func TestSpecificationService_Bind_CopiesTemplateFields(t *testing.T) {
	testTime := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	// Product must exist and be active
	mock.ExpectQuery("SELECT id, name, code, active, created_at FROM products WHERE id").
		WithArgs(3).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "code", "active", "created_at"}).
			AddRow(3, "PET Bottle 500ml", "PET-500", true, testTime))

	// Template lookup: the copy source
	minRange := 235.0
	maxRange := 245.0
	unit := "g"
	mock.ExpectQuery("SELECT id, name, description, kind").
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "description", "kind", "default_value",
			"min_range", "max_range", "unit", "active", "created_at", "updated_at",
		}).AddRow(5, "Peso neto", "Net weight check", "range", (*string)(nil),
			&minRange, &maxRange, &unit, true, testTime, (*time.Time)(nil)))

	// The insert carries the copied fields, not a reference
	templateID := 5
	mock.ExpectQuery("INSERT INTO product_specifications").
		WithArgs(3, &templateID, "Peso neto", "range", (*string)(nil), &minRange, &maxRange, &unit, true).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(20, testTime))

	service := newSpecificationService()

	form := models.SpecificationForm{TemplateID: 5, Required: true}

	// Act - Bind the template to the product
	spec, err := service.Bind(context.Background(), bindingPrincipal(), 3, form, services.RequestMeta{})

	// Assert - Copied fields present on the binding
	require.NoError(t, err, "Binding should succeed")
	assert.Equal(t, "Peso neto", spec.Name, "Name should be copied")
	assert.Equal(t, models.KindRange, spec.Kind, "Kind should be copied")
	assert.Equal(t, 235.0, *spec.MinRange, "Bounds should be copied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestSpecificationService_Bind_RetiredTemplate verifies retired templates
// cannot be bound.
func TestSpecificationService_Bind_RetiredTemplate(t *testing.T) {
	testTime := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	mock.ExpectQuery("SELECT id, name, code, active, created_at FROM products WHERE id").
		WithArgs(3).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "code", "active", "created_at"}).
			AddRow(3, "PET Bottle 500ml", "PET-500", true, testTime))

	mock.ExpectQuery("SELECT id, name, description, kind").
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "description", "kind", "default_value",
			"min_range", "max_range", "unit", "active", "created_at", "updated_at",
		}).AddRow(5, "Peso neto", "", "range", (*string)(nil),
			floatPtr(235), floatPtr(245), (*string)(nil), false, testTime, (*time.Time)(nil)))

	service := newSpecificationService()

	_, err = service.Bind(context.Background(), bindingPrincipal(), 3,
		models.SpecificationForm{TemplateID: 5}, services.RequestMeta{})

	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict), "Retired template should conflict")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestSpecificationService_Bind_AdHocTolerance verifies that an ad hoc
// binding's expected value goes through the tolerance parser when no
// explicit bounds are given.
func TestSpecificationService_Bind_AdHocTolerance(t *testing.T) {
	testTime := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	mock.ExpectQuery("SELECT id, name, code, active, created_at FROM products WHERE id").
		WithArgs(3).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "code", "active", "created_at"}).
			AddRow(3, "PET Bottle 500ml", "PET-500", true, testTime))

	// "240 +/- 5" becomes expected "240" with bounds 235..245
	expected := "240"
	min := 235.0
	max := 245.0
	mock.ExpectQuery("INSERT INTO product_specifications").
		WithArgs(3, (*int)(nil), "Peso neto", "range", &expected, &min, &max, (*string)(nil), false).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(21, testTime))

	service := newSpecificationService()

	form := models.SpecificationForm{
		Name:          "Peso neto",
		Kind:          models.KindRange,
		ExpectedValue: "240 +/- 5",
	}

	spec, err := service.Bind(context.Background(), bindingPrincipal(), 3, form, services.RequestMeta{})

	require.NoError(t, err, "Binding should succeed")
	assert.Equal(t, 235.0, *spec.MinRange, "Tolerance expression should expand to bounds")
	assert.Equal(t, 245.0, *spec.MaxRange)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestSpecificationService_ListActiveForProduct verifies the measurement
// workflow sees only active bindings: the form and the evaluation engine are
// both built from this list, so a deactivated specification never enters a
// submission batch.
func TestSpecificationService_ListActiveForProduct(t *testing.T) {
	testTime := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	// The repository query itself filters on active = true
	mock.ExpectQuery("SELECT id, product_id, template_id").
		WithArgs(3).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "product_id", "template_id", "name", "kind", "expected_value",
			"min_range", "max_range", "unit", "required", "active", "created_at",
		}).AddRow(21, 3, (*int)(nil), "Peso neto", "range", strPtr("240 +/- 5"),
			floatPtr(235), floatPtr(245), strPtr("g"), true, true, testTime))

	service := newSpecificationService()

	views, err := service.ListActiveForProduct(context.Background(), 3)

	require.NoError(t, err, "Listing should succeed")
	require.Len(t, views, 1, "Only the active binding should come back")
	assert.True(t, views[0].Active, "Listed binding should be active")
	assert.Equal(t, "235 - 245 g", views[0].FullRange, "Display range should be formatted")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestSpecificationService_Import_SkipsBlankRows verifies blank tolerance
// rows are skipped while the rest of the batch proceeds.
func TestSpecificationService_Import_SkipsBlankRows(t *testing.T) {
	testTime := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	mock.ExpectQuery("SELECT id, name, code, active, created_at FROM products WHERE id").
		WithArgs(3).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "code", "active", "created_at"}).
			AddRow(3, "PET Bottle 500ml", "PET-500", true, testTime))

	// The bare "7" collapses to a degenerate interval for numeric kind
	expected := "7"
	seven := 7.0
	mock.ExpectQuery("INSERT INTO product_specifications").
		WithArgs(3, (*int)(nil), "pH", "numeric", &expected, &seven, &seven, (*string)(nil), false).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(30, testTime))

	service := newSpecificationService()

	rows := []models.SpecificationForm{
		{Name: "pH", Kind: models.KindNumeric, ExpectedValue: "7"},
		{Name: "Olor", Kind: models.KindText, ExpectedValue: "   "}, // blank: skip
	}

	result, err := service.Import(context.Background(), bindingPrincipal(), 3, rows, services.RequestMeta{})

	require.NoError(t, err, "Import should succeed")
	assert.Equal(t, 1, result.Bound, "One row should bind")
	assert.Equal(t, 1, result.Skipped, "Blank row should be skipped")
	assert.Empty(t, result.Errors, "No row should fail")
	assert.NoError(t, mock.ExpectationsWereMet())
}
