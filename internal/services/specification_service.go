// Package services provides the business logic layer for the QualiTrack
// application. This file implements product specification binding: attaching
// catalog or ad hoc parameters to a product, with the template fields copied
// at bind time.
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

// SpecificationService implements specification binding and the bulk import
// of specification rows with free-text tolerance expressions.
type SpecificationService struct {
	specs     *repository.SpecificationRepository
	templates *repository.TemplateRepository
	products  *repository.ProductRepository
	validator *security.ValidationService
	audit     *auditRecorder
	logger    *security.Logger
}

// NewSpecificationService creates and returns a new SpecificationService.
func NewSpecificationService(cfg *security.Config, logger *security.Logger) *SpecificationService {
	return &SpecificationService{
		specs:     repository.NewSpecificationRepository(),
		templates: repository.NewTemplateRepository(),
		products:  repository.NewProductRepository(),
		validator: security.NewValidationService(cfg),
		audit:     newAuditRecorder(logger),
		logger:    logger,
	}
}

// ImportResult summarizes a bulk specification import.
type ImportResult struct {
	Bound   int      // Rows bound as specifications
	Skipped int      // Rows skipped for blank tolerance text
	Errors  []string // Per-row failures, import continues past them
}

// Bind attaches a parameter to a product.
//
// Binding from the catalog (form.TemplateID > 0) copies the template's name,
// kind, bounds and unit into the new specification; the template reference
// is kept only for display and duplicate checks. An ad hoc binding
// (TemplateID == 0) takes everything from the form.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - actor: Acting principal, must hold specification:create
//   - productID: Product to bind onto
//   - form: Submitted binding fields
//   - meta: Request context for the audit trail
func (s *SpecificationService) Bind(ctx context.Context, actor *authz.Principal, productID int, form models.SpecificationForm, meta RequestMeta) (*models.ProductSpecification, error) {
	if err := authz.Require(actor, "specification", "create"); err != nil {
		return nil, err
	}

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, apperrors.Conflict("product %q is deactivated", product.Name)
	}

	spec := &models.ProductSpecification{
		ProductID: productID,
		Required:  form.Required,
	}

	if form.TemplateID > 0 {
		template, err := s.templates.GetByID(ctx, form.TemplateID)
		if err != nil {
			return nil, err
		}
		if !template.Active {
			return nil, apperrors.Conflict("template %q is retired", template.Name)
		}

		// Copy-at-bind-time: later template edits never touch this binding
		templateID := template.ID
		spec.TemplateID = &templateID
		spec.Name = template.Name
		spec.Kind = template.Kind
		spec.ExpectedValue = template.DefaultValue
		spec.MinRange = template.MinRange
		spec.MaxRange = template.MaxRange
		spec.Unit = template.Unit
	} else {
		name := s.validator.SanitizeString(form.Name)
		if err := s.validator.ValidateName("name", name); err != nil {
			return nil, err
		}
		if !validKind(form.Kind) {
			return nil, apperrors.Validation("kind", "unknown parameter kind %q", form.Kind)
		}
		spec.Name = name
		spec.Kind = form.Kind
	}

	if err := s.applyFormOverrides(spec, form); err != nil {
		return nil, err
	}

	if err := s.specs.Create(ctx, spec); err != nil {
		return nil, err
	}

	s.audit.record(ctx, actor, "specification:bind", "specification", spec.ID,
		map[string]any{"product_id": productID, "name": spec.Name, "kind": spec.Kind}, meta)

	return spec, nil
}

// applyFormOverrides layers explicit form values over whatever the template
// copy provided. An expected value without explicit bounds goes through the
// tolerance parser so expressions like "240 +/- 5" become check intervals.
func (s *SpecificationService) applyFormOverrides(spec *models.ProductSpecification, form models.SpecificationForm) error {
	if v := strings.TrimSpace(form.ExpectedValue); v != "" {
		spec.ExpectedValue = &v
	}
	if u := strings.TrimSpace(form.Unit); u != "" {
		spec.Unit = &u
	}

	hasMin := strings.TrimSpace(form.MinRange) != ""
	hasMax := strings.TrimSpace(form.MaxRange) != ""
	if hasMin != hasMax {
		return apperrors.Validation("min_range", "bounds must be provided together")
	}
	if hasMin {
		min, err := ParseDecimal(form.MinRange)
		if err != nil {
			return apperrors.Validation("min_range", "lower bound is not numeric")
		}
		max, err := ParseDecimal(form.MaxRange)
		if err != nil {
			return apperrors.Validation("max_range", "upper bound is not numeric")
		}
		if min > max {
			return apperrors.Validation("min_range", "lower bound must not exceed upper bound")
		}
		spec.MinRange = &min
		spec.MaxRange = &max
	} else if spec.MinRange == nil && spec.ExpectedValue != nil {
		tol := ParseTolerance(*spec.ExpectedValue, spec.Kind)
		if !tol.Empty() {
			spec.ExpectedValue = tol.ExpectedValue
			spec.MinRange = tol.MinRange
			spec.MaxRange = tol.MaxRange
		}
	}

	if spec.Kind == models.KindRange && (spec.MinRange == nil || spec.MaxRange == nil) {
		return apperrors.Validation("min_range", "range parameters need both bounds")
	}

	return nil
}

// Update edits a binding's own copied fields. The source template is never
// touched.
func (s *SpecificationService) Update(ctx context.Context, actor *authz.Principal, specID int, form models.SpecificationForm, meta RequestMeta) (*models.ProductSpecification, error) {
	if err := authz.Require(actor, "specification", "update"); err != nil {
		return nil, err
	}

	spec, err := s.specs.GetByID(ctx, specID)
	if err != nil {
		return nil, err
	}

	if name := s.validator.SanitizeString(form.Name); name != "" {
		if err := s.validator.ValidateName("name", name); err != nil {
			return nil, err
		}
		spec.Name = name
	}
	if form.Kind != "" {
		if !validKind(form.Kind) {
			return nil, apperrors.Validation("kind", "unknown parameter kind %q", form.Kind)
		}
		spec.Kind = form.Kind
	}
	spec.Required = form.Required

	if err := s.applyFormOverrides(spec, form); err != nil {
		return nil, err
	}

	if err := s.specs.Update(ctx, spec); err != nil {
		return nil, err
	}

	s.audit.record(ctx, actor, "specification:update", "specification", specID,
		map[string]any{"name": spec.Name}, meta)

	return spec, nil
}

// Unbind soft-deactivates a specification. Recorded controls keep their
// snapshots, and the template becomes bindable to the product again.
func (s *SpecificationService) Unbind(ctx context.Context, actor *authz.Principal, specID int, meta RequestMeta) error {
	if err := authz.Require(actor, "specification", "delete"); err != nil {
		return err
	}

	spec, err := s.specs.GetByID(ctx, specID)
	if err != nil {
		return err
	}

	if err := s.specs.Deactivate(ctx, specID); err != nil {
		return err
	}

	s.audit.record(ctx, actor, "specification:unbind", "specification", specID,
		map[string]any{"product_id": spec.ProductID, "name": spec.Name}, meta)

	return nil
}

// Get retrieves one specification.
func (s *SpecificationService) Get(ctx context.Context, specID int) (*models.ProductSpecification, error) {
	return s.specs.GetByID(ctx, specID)
}

// ListForProduct retrieves a product's specifications for the management
// page, with display ranges formatted.
func (s *SpecificationService) ListForProduct(ctx context.Context, productID int) ([]models.SpecificationView, error) {
	views, err := s.specs.ListViewsByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	for i := range views {
		views[i].FullRange = FormatFullRange(SpecToEval(views[i].ProductSpecification))
	}
	return views, nil
}

// ListActiveForProduct retrieves only a product's active specifications, the
// set that a control submission is evaluated against, with display ranges
// formatted. Deactivated bindings are excluded so the measurement form and
// the evaluation engine always agree on the parameter set.
func (s *SpecificationService) ListActiveForProduct(ctx context.Context, productID int) ([]models.SpecificationView, error) {
	specs, err := s.specs.ListActiveByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	views := make([]models.SpecificationView, 0, len(specs))
	for _, spec := range specs {
		views = append(views, models.SpecificationView{
			ProductSpecification: spec,
			FullRange:            FormatFullRange(SpecToEval(spec)),
		})
	}
	return views, nil
}

// ListUnboundTemplates retrieves the catalog templates still bindable to a
// product.
func (s *SpecificationService) ListUnboundTemplates(ctx context.Context, productID int) ([]models.ParameterTemplate, error) {
	return s.specs.ListUnboundTemplates(ctx, productID)
}

// Import bulk-binds specification rows onto a product. Each row's expected
// value is a free-text tolerance expression; blank expressions skip the row
// and malformed rows are collected without aborting the batch.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - actor: Acting principal, must hold specification:create
//   - productID: Product to bind onto
//   - rows: Parsed import rows
//   - meta: Request context for the audit trail
func (s *SpecificationService) Import(ctx context.Context, actor *authz.Principal, productID int, rows []models.SpecificationForm, meta RequestMeta) (*ImportResult, error) {
	if err := authz.Require(actor, "specification", "create"); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateImportRowCount(len(rows)); err != nil {
		return nil, err
	}

	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for _, row := range rows {
		tol := ParseTolerance(row.ExpectedValue, row.Kind)
		if tol.Empty() {
			result.Skipped++
			continue
		}

		name := s.validator.SanitizeString(row.Name)
		if err := s.validator.ValidateName("name", name); err != nil {
			result.Errors = append(result.Errors, name+": "+err.Error())
			continue
		}
		kind := row.Kind
		if !validKind(kind) {
			kind = models.KindText
		}
		if kind == models.KindRange && tol.MinRange == nil {
			// A range row with an unparseable expression degrades to text
			kind = models.KindText
		}

		spec := &models.ProductSpecification{
			ProductID:     productID,
			Name:          name,
			Kind:          kind,
			ExpectedValue: tol.ExpectedValue,
			MinRange:      tol.MinRange,
			MaxRange:      tol.MaxRange,
			Required:      row.Required,
		}
		if u := strings.TrimSpace(row.Unit); u != "" {
			spec.Unit = &u
		}

		if err := s.specs.Create(ctx, spec); err != nil {
			result.Errors = append(result.Errors, name+": "+err.Error())
			continue
		}
		result.Bound++
	}

	s.audit.record(ctx, actor, "specification:import", "product", productID,
		map[string]any{"bound": result.Bound, "skipped": result.Skipped, "failed": len(result.Errors)}, meta)

	return result, nil
}
