// Package repository provides the data access layer for the QualiTrack
// application. This file handles product specifications: parameters bound to
// a product, with the template fields copied in at bind time.
package repository

import (
	"context"
	"errors"

	"github.com/hyg1997/qualitrack/internal/apperrors"
	"github.com/hyg1997/qualitrack/internal/database"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/jackc/pgx/v5"
)

// SpecificationRepository handles product specification database operations.
//
// Copy Semantics:
//
//	A specification snapshots its template's fields at bind time. Editing
//	or deactivating the template later never changes existing bindings;
//	template_id is only a weak reference for display and duplicate checks.
type SpecificationRepository struct{}

// NewSpecificationRepository creates a new instance of SpecificationRepository.
func NewSpecificationRepository() *SpecificationRepository {
	return &SpecificationRepository{}
}

// Create inserts a new specification binding.
// A partial unique index on (product_id, template_id) WHERE active guards
// against binding the same catalog template to a product twice.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - spec: ProductSpecification with the copied (or ad hoc) parameter fields
//
// Returns:
//   - error: Typed conflict when the template is already bound, database error otherwise
//
// Side Effects: Populates spec.ID and spec.CreatedAt with database values
func (r *SpecificationRepository) Create(ctx context.Context, spec *models.ProductSpecification) error {
	query := `
		INSERT INTO product_specifications
			(product_id, template_id, name, kind, expected_value, min_range, max_range, unit, required, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true)
		RETURNING id, created_at
	`

	err := database.DB.QueryRow(ctx, query,
		spec.ProductID, spec.TemplateID, spec.Name, spec.Kind,
		spec.ExpectedValue, spec.MinRange, spec.MaxRange, spec.Unit, spec.Required,
	).Scan(&spec.ID, &spec.CreatedAt)
	if isUniqueViolation(err) {
		return apperrors.Conflict("parameter %q is already bound to this product", spec.Name)
	}
	return err
}

// GetByID retrieves a single specification.
func (r *SpecificationRepository) GetByID(ctx context.Context, specID int) (*models.ProductSpecification, error) {
	query := `
		SELECT id, product_id, template_id, name, kind, expected_value, min_range, max_range, unit, required, active, created_at
		FROM product_specifications
		WHERE id = $1
	`

	var spec models.ProductSpecification
	err := database.DB.QueryRow(ctx, query, specID).Scan(
		&spec.ID, &spec.ProductID, &spec.TemplateID, &spec.Name, &spec.Kind,
		&spec.ExpectedValue, &spec.MinRange, &spec.MaxRange, &spec.Unit,
		&spec.Required, &spec.Active, &spec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("specification %d not found", specID)
	}
	if err != nil {
		return nil, err
	}

	return &spec, nil
}

// ListActiveByProduct retrieves the active specifications of a product in
// stable name order. This is the set that a quality-control submission is
// evaluated against.
func (r *SpecificationRepository) ListActiveByProduct(ctx context.Context, productID int) ([]models.ProductSpecification, error) {
	query := `
		SELECT id, product_id, template_id, name, kind, expected_value, min_range, max_range, unit, required, active, created_at
		FROM product_specifications
		WHERE product_id = $1 AND active = true
		ORDER BY name
	`

	rows, err := database.DB.Query(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var specs []models.ProductSpecification
	for rows.Next() {
		var spec models.ProductSpecification
		if err := rows.Scan(
			&spec.ID, &spec.ProductID, &spec.TemplateID, &spec.Name, &spec.Kind,
			&spec.ExpectedValue, &spec.MinRange, &spec.MaxRange, &spec.Unit,
			&spec.Required, &spec.Active, &spec.CreatedAt,
		); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	return specs, nil
}

// ListViewsByProduct retrieves a product's specifications enriched with the
// source template name for the specification management page. Ad hoc
// specifications come back with an empty template name.
func (r *SpecificationRepository) ListViewsByProduct(ctx context.Context, productID int) ([]models.SpecificationView, error) {
	query := `
		SELECT ps.id, ps.product_id, ps.template_id, ps.name, ps.kind, ps.expected_value,
		       ps.min_range, ps.max_range, ps.unit, ps.required, ps.active, ps.created_at,
		       COALESCE(pt.name, '') as template_name
		FROM product_specifications ps
		LEFT JOIN parameter_templates pt ON pt.id = ps.template_id
		WHERE ps.product_id = $1
		ORDER BY ps.active DESC, ps.name
	`

	rows, err := database.DB.Query(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []models.SpecificationView
	for rows.Next() {
		var v models.SpecificationView
		if err := rows.Scan(
			&v.ID, &v.ProductID, &v.TemplateID, &v.Name, &v.Kind, &v.ExpectedValue,
			&v.MinRange, &v.MaxRange, &v.Unit, &v.Required, &v.Active, &v.CreatedAt,
			&v.TemplateName,
		); err != nil {
			return nil, err
		}
		views = append(views, v)
	}

	return views, nil
}

// ListUnboundTemplates retrieves the active catalog templates that do not yet
// have an active binding on the given product. Used to populate the binding
// form so the picker never offers a duplicate.
func (r *SpecificationRepository) ListUnboundTemplates(ctx context.Context, productID int) ([]models.ParameterTemplate, error) {
	query := `
		SELECT t.id, t.name, t.description, t.kind, t.default_value, t.min_range, t.max_range, t.unit, t.active, t.created_at, t.updated_at
		FROM parameter_templates t
		WHERE t.active = true
		  AND NOT EXISTS (
			SELECT 1 FROM product_specifications ps
			WHERE ps.product_id = $1 AND ps.template_id = t.id AND ps.active = true
		  )
		ORDER BY t.name
	`

	rows, err := database.DB.Query(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []models.ParameterTemplate
	for rows.Next() {
		var t models.ParameterTemplate
		if err := rows.Scan(
			&t.ID, &t.Name, &t.Description, &t.Kind,
			&t.DefaultValue, &t.MinRange, &t.MaxRange, &t.Unit,
			&t.Active, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}

	return templates, nil
}

// Update modifies a binding's own copied fields. The source template is
// deliberately untouched.
func (r *SpecificationRepository) Update(ctx context.Context, spec *models.ProductSpecification) error {
	query := `
		UPDATE product_specifications
		SET name = $1, kind = $2, expected_value = $3, min_range = $4,
		    max_range = $5, unit = $6, required = $7
		WHERE id = $8
	`

	tag, err := database.DB.Exec(ctx, query,
		spec.Name, spec.Kind, spec.ExpectedValue, spec.MinRange,
		spec.MaxRange, spec.Unit, spec.Required, spec.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("specification %d not found", spec.ID)
	}
	return nil
}

// Deactivate soft-deletes a binding. Controls already recorded against it
// keep their denormalized snapshot, so history is unaffected.
func (r *SpecificationRepository) Deactivate(ctx context.Context, specID int) error {
	query := `UPDATE product_specifications SET active = false WHERE id = $1`

	tag, err := database.DB.Exec(ctx, query, specID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("specification %d not found", specID)
	}
	return nil
}
