// Package repository provides the data access layer for the QualiTrack
// application. This file handles the parameter catalog: reusable measurement
// templates that specifications are bound from.
package repository

import (
	"context"
	"errors"

	"github.com/hyg1997/qualitrack/internal/apperrors"
	"github.com/hyg1997/qualitrack/internal/database"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/jackc/pgx/v5"
)

// TemplateRepository handles parameter template database operations.
// Templates are never hard-deleted: historical specification bindings keep a
// weak reference to their source template, so retirement is a flag flip.
type TemplateRepository struct{}

// NewTemplateRepository creates a new instance of TemplateRepository.
func NewTemplateRepository() *TemplateRepository {
	return &TemplateRepository{}
}

// Create inserts a new parameter template into the catalog.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - template: ParameterTemplate with name, kind and optional defaults
//
// Returns:
//   - error: Typed conflict on duplicate name, database error otherwise
//
// Side Effects: Populates template.ID and template.CreatedAt with database values
func (r *TemplateRepository) Create(ctx context.Context, template *models.ParameterTemplate) error {
	query := `
		INSERT INTO parameter_templates (name, description, kind, default_value, min_range, max_range, unit, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true)
		RETURNING id, created_at
	`

	err := database.DB.QueryRow(ctx, query,
		template.Name, template.Description, template.Kind,
		template.DefaultValue, template.MinRange, template.MaxRange, template.Unit,
	).Scan(&template.ID, &template.CreatedAt)
	if isUniqueViolation(err) {
		return apperrors.Conflict("a template named %q already exists", template.Name)
	}
	return err
}

// GetByID retrieves a single template with all its fields.
// Used for edit forms and as the copy source when binding a specification.
func (r *TemplateRepository) GetByID(ctx context.Context, templateID int) (*models.ParameterTemplate, error) {
	query := `
		SELECT id, name, description, kind, default_value, min_range, max_range, unit, active, created_at, updated_at
		FROM parameter_templates
		WHERE id = $1
	`

	var t models.ParameterTemplate
	err := database.DB.QueryRow(ctx, query, templateID).Scan(
		&t.ID, &t.Name, &t.Description, &t.Kind,
		&t.DefaultValue, &t.MinRange, &t.MaxRange, &t.Unit,
		&t.Active, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("parameter template %d not found", templateID)
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// ListActive retrieves all active templates ordered alphabetically.
// Used for the specification binding form's catalog picker.
func (r *TemplateRepository) ListActive(ctx context.Context) ([]models.ParameterTemplate, error) {
	query := `
		SELECT id, name, description, kind, default_value, min_range, max_range, unit, active, created_at, updated_at
		FROM parameter_templates
		WHERE active = true
		ORDER BY name
	`
	return r.list(ctx, query)
}

// ListAll retrieves every template including deactivated ones, newest first.
// Used for the admin catalog management page.
func (r *TemplateRepository) ListAll(ctx context.Context) ([]models.ParameterTemplate, error) {
	query := `
		SELECT id, name, description, kind, default_value, min_range, max_range, unit, active, created_at, updated_at
		FROM parameter_templates
		ORDER BY created_at DESC
	`
	return r.list(ctx, query)
}

func (r *TemplateRepository) list(ctx context.Context, query string) ([]models.ParameterTemplate, error) {
	rows, err := database.DB.Query(ctx, query)
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

// Update modifies an existing template's fields and stamps updated_at.
// Existing specification bindings are unaffected: they carry their own copy
// of the template fields taken at bind time.
func (r *TemplateRepository) Update(ctx context.Context, template *models.ParameterTemplate) error {
	query := `
		UPDATE parameter_templates
		SET name = $1, description = $2, kind = $3, default_value = $4,
		    min_range = $5, max_range = $6, unit = $7, updated_at = NOW()
		WHERE id = $8
	`

	tag, err := database.DB.Exec(ctx, query,
		template.Name, template.Description, template.Kind, template.DefaultValue,
		template.MinRange, template.MaxRange, template.Unit, template.ID,
	)
	if isUniqueViolation(err) {
		return apperrors.Conflict("a template named %q already exists", template.Name)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("parameter template %d not found", template.ID)
	}
	return nil
}

// SetActive toggles a template's active flag. Deactivated templates stay out
// of the binding picker but remain resolvable for historical bindings.
func (r *TemplateRepository) SetActive(ctx context.Context, templateID int, active bool) error {
	query := `UPDATE parameter_templates SET active = $1, updated_at = NOW() WHERE id = $2`

	tag, err := database.DB.Exec(ctx, query, active, templateID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("parameter template %d not found", templateID)
	}
	return nil
}
