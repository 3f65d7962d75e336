// Package services provides the business logic layer for the QualiTrack
// application. This file implements parameter catalog management.
package services

import (
	"context"
	"strings"

	"github.com/hyg1997/qualitrack/internal/apperrors"
	"github.com/hyg1997/qualitrack/internal/authz"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/hyg1997/qualitrack/internal/repository"
	"github.com/hyg1997/qualitrack/internal/security"
)

// TemplateService implements the parameter catalog operations: creating,
// editing and retiring the reusable measurement definitions that product
// specifications are bound from.
//
// Catalog edits never touch existing bindings; those carry their own copy of
// the template fields taken at bind time.
type TemplateService struct {
	templates *repository.TemplateRepository
	validator *security.ValidationService
	audit     *auditRecorder
	logger    *security.Logger
}

// NewTemplateService creates and returns a new TemplateService instance.
func NewTemplateService(cfg *security.Config, logger *security.Logger) *TemplateService {
	return &TemplateService{
		templates: repository.NewTemplateRepository(),
		validator: security.NewValidationService(cfg),
		audit:     newAuditRecorder(logger),
		logger:    logger,
	}
}

// validKind reports whether kind is one of the supported parameter kinds.
func validKind(kind string) bool {
	switch kind {
	case models.KindRange, models.KindNumeric, models.KindText:
		return true
	}
	return false
}

// buildTemplate validates a template form and converts it into a model.
// Range templates must carry a coherent min < max pair.
func (s *TemplateService) buildTemplate(form models.TemplateForm) (*models.ParameterTemplate, error) {
	name := s.validator.SanitizeString(form.Name)
	if err := s.validator.ValidateName("name", name); err != nil {
		return nil, err
	}
	if !validKind(form.Kind) {
		return nil, apperrors.Validation("kind", "unknown parameter kind %q", form.Kind)
	}

	template := &models.ParameterTemplate{
		Name:        name,
		Description: s.validator.SanitizeString(form.Description),
		Kind:        form.Kind,
	}

	if v := strings.TrimSpace(form.DefaultValue); v != "" {
		template.DefaultValue = &v
	}
	if u := strings.TrimSpace(form.Unit); u != "" {
		template.Unit = &u
	}

	if form.Kind == models.KindRange {
		min, err := ParseDecimal(form.MinRange)
		if err != nil {
			return nil, apperrors.Validation("min_range", "lower bound is not numeric")
		}
		max, err := ParseDecimal(form.MaxRange)
		if err != nil {
			return nil, apperrors.Validation("max_range", "upper bound is not numeric")
		}
		if min >= max {
			return nil, apperrors.Validation("min_range", "lower bound must be below upper bound")
		}
		template.MinRange = &min
		template.MaxRange = &max
	} else {
		// Optional bounds on numeric templates become a check interval
		if form.Kind == models.KindNumeric && strings.TrimSpace(form.MinRange) != "" && strings.TrimSpace(form.MaxRange) != "" {
			min, errMin := ParseDecimal(form.MinRange)
			max, errMax := ParseDecimal(form.MaxRange)
			if errMin != nil || errMax != nil {
				return nil, apperrors.Validation("min_range", "bounds must be numeric")
			}
			if min > max {
				return nil, apperrors.Validation("min_range", "lower bound must not exceed upper bound")
			}
			template.MinRange = &min
			template.MaxRange = &max
		}
	}

	return template, nil
}

// Create adds a new template to the catalog.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - actor: Acting principal, must hold template:create
//   - form: Submitted template fields
//   - meta: Request context for the audit trail
func (s *TemplateService) Create(ctx context.Context, actor *authz.Principal, form models.TemplateForm, meta RequestMeta) (*models.ParameterTemplate, error) {
	if err := authz.Require(actor, "template", "create"); err != nil {
		return nil, err
	}

	template, err := s.buildTemplate(form)
	if err != nil {
		return nil, err
	}

	if err := s.templates.Create(ctx, template); err != nil {
		return nil, err
	}

	s.audit.record(ctx, actor, "template:create", "template", template.ID,
		map[string]any{"name": template.Name, "kind": template.Kind}, meta)

	return template, nil
}

// Update edits a catalog template in place. Existing bindings keep their
// copied fields; only future bindings see the change.
func (s *TemplateService) Update(ctx context.Context, actor *authz.Principal, templateID int, form models.TemplateForm, meta RequestMeta) (*models.ParameterTemplate, error) {
	if err := authz.Require(actor, "template", "update"); err != nil {
		return nil, err
	}

	// Existence check keeps not-found distinct from validation failures
	if _, err := s.templates.GetByID(ctx, templateID); err != nil {
		return nil, err
	}

	template, err := s.buildTemplate(form)
	if err != nil {
		return nil, err
	}
	template.ID = templateID

	if err := s.templates.Update(ctx, template); err != nil {
		return nil, err
	}

	s.audit.record(ctx, actor, "template:update", "template", templateID,
		map[string]any{"name": template.Name, "kind": template.Kind}, meta)

	return template, nil
}

// SetActive retires a template from the catalog or restores it. Retired
// templates stop appearing in binding pickers but resolve for history.
func (s *TemplateService) SetActive(ctx context.Context, actor *authz.Principal, templateID int, active bool, meta RequestMeta) error {
	if err := authz.Require(actor, "template", "update"); err != nil {
		return err
	}

	if err := s.templates.SetActive(ctx, templateID, active); err != nil {
		return err
	}

	action := "template:deactivate"
	if active {
		action = "template:activate"
	}
	s.audit.record(ctx, actor, action, "template", templateID, nil, meta)

	return nil
}

// Get retrieves one template.
func (s *TemplateService) Get(ctx context.Context, templateID int) (*models.ParameterTemplate, error) {
	return s.templates.GetByID(ctx, templateID)
}

// ListAll retrieves the whole catalog for the management page.
func (s *TemplateService) ListAll(ctx context.Context) ([]models.ParameterTemplate, error) {
	return s.templates.ListAll(ctx)
}

// ListActive retrieves the active catalog for binding pickers.
func (s *TemplateService) ListActive(ctx context.Context) ([]models.ParameterTemplate, error) {
	return s.templates.ListActive(ctx)
}
