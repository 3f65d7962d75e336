// Package services provides the business logic layer for the QualiTrack
// application. This file implements the lot record lifecycle: registration,
// measurement submission, and the single-shot approve/reject resolution.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/hyg1997/qualitrack/internal/apperrors"
	"github.com/hyg1997/qualitrack/internal/authz"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/hyg1997/qualitrack/internal/repository"
	"github.com/hyg1997/qualitrack/internal/security"
)

// RecordService implements the lot record workflow.
//
// Lifecycle Invariants:
//   - A record is mutable only while pending
//   - pending -> approved/rejected happens exactly once, enforced by
//     conditional updates in the repository; a lost race surfaces as a
//     typed conflict, never a silent double resolution
//   - Resolution requires at least one persisted control as evidence
type RecordService struct {
	records   *repository.RecordRepository
	controls  *repository.ControlRepository
	specs     *repository.SpecificationRepository
	products  *repository.ProductRepository
	validator *security.ValidationService
	audit     *auditRecorder
	logger    *security.Logger
}

// NewRecordService creates and returns a new RecordService instance.
func NewRecordService(cfg *security.Config, logger *security.Logger) *RecordService {
	return &RecordService{
		records:   repository.NewRecordRepository(),
		controls:  repository.NewControlRepository(),
		specs:     repository.NewSpecificationRepository(),
		products:  repository.NewProductRepository(),
		validator: security.NewValidationService(cfg),
		audit:     newAuditRecorder(logger),
		logger:    logger,
	}
}

// SubmissionResult summarizes a persisted measurement batch.
type SubmissionResult struct {
	Controls   []models.Control // Persisted controls in submission order
	AlertCount int              // How many came back out of range
}

// buildRecord validates a record form into a model. Shared by create and
// update paths.
func (s *RecordService) buildRecord(form models.RecordForm) (*models.Record, error) {
	lot := s.validator.SanitizeString(form.InternalLot)
	if err := s.validator.ValidateLotNumber("internal_lot", lot); err != nil {
		return nil, err
	}

	quantity, err := ParseDecimal(form.Quantity)
	if err != nil {
		return nil, apperrors.Validation("quantity", "quantity is not numeric")
	}
	if quantity <= 0 {
		return nil, apperrors.Validation("quantity", "quantity must be positive")
	}

	record := &models.Record{
		ProductID:   form.ProductID,
		InternalLot: lot,
		Quantity:    quantity,
	}

	if v := s.validator.SanitizeString(form.SupplierLot); v != "" {
		record.SupplierLot = &v
	}
	if v := strings.TrimSpace(form.ExpirationDate); v != "" {
		if err := s.validator.ValidateDate("expiration_date", v); err != nil {
			return nil, err
		}
		expiry, err := time.Parse("2006-01-02", v)
		if err != nil {
			return nil, apperrors.Validation("expiration_date", "invalid date")
		}
		record.ExpirationDate = &expiry
	}
	if v := s.validator.SanitizeString(form.Observations); v != "" {
		if err := s.validator.ValidateObservations("observations", v); err != nil {
			return nil, err
		}
		record.Observations = &v
	}

	return record, nil
}

// Create registers a new lot in the pending state.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - actor: Acting principal, must hold record:create
//   - form: Submitted registration fields
//   - meta: Request context for the audit trail
//
// Error Cases:
//   - Duplicate internal lot surfaces as a typed conflict from the unique
//     constraint, correct even under concurrent registration
func (s *RecordService) Create(ctx context.Context, actor *authz.Principal, form models.RecordForm, meta RequestMeta) (*models.Record, error) {
	if err := authz.Require(actor, "record", "create"); err != nil {
		return nil, err
	}

	record, err := s.buildRecord(form)
	if err != nil {
		return nil, err
	}

	product, err := s.products.GetByID(ctx, record.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, apperrors.Conflict("product %q is deactivated", product.Name)
	}

	record.RegistrationDate = time.Now()
	record.CreatedBy = actor.UserID

	if err := s.records.Create(ctx, record); err != nil {
		return nil, err
	}

	s.audit.record(ctx, actor, "record:create", "record", record.ID,
		map[string]any{"internal_lot": record.InternalLot, "product_id": record.ProductID}, meta)

	return record, nil
}

// disambiguateMiss turns a guarded mutation that hit no rows into the right
// typed error: not-found when the record does not exist, conflict when it
// exists but already left the pending state.
func (s *RecordService) disambiguateMiss(ctx context.Context, recordID int) error {
	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return err
	}
	return apperrors.Conflict("record %q is already %s", record.InternalLot, record.Status)
}

// Update edits a pending record's registration fields.
func (s *RecordService) Update(ctx context.Context, actor *authz.Principal, recordID int, form models.RecordForm, meta RequestMeta) error {
	if err := authz.Require(actor, "record", "update"); err != nil {
		return err
	}

	record, err := s.buildRecord(form)
	if err != nil {
		return err
	}
	record.ID = recordID

	product, err := s.products.GetByID(ctx, record.ProductID)
	if err != nil {
		return err
	}
	if !product.Active {
		return apperrors.Conflict("product %q is deactivated", product.Name)
	}

	hit, err := s.records.UpdatePending(ctx, record)
	if err != nil {
		return err
	}
	if !hit {
		return s.disambiguateMiss(ctx, recordID)
	}

	s.audit.record(ctx, actor, "record:update", "record", recordID,
		map[string]any{"internal_lot": record.InternalLot}, meta)

	return nil
}

// Delete removes a pending record and its controls.
func (s *RecordService) Delete(ctx context.Context, actor *authz.Principal, recordID int, meta RequestMeta) error {
	if err := authz.Require(actor, "record", "delete"); err != nil {
		return err
	}

	hit, err := s.records.DeletePending(ctx, recordID)
	if err != nil {
		return err
	}
	if !hit {
		return s.disambiguateMiss(ctx, recordID)
	}

	s.audit.record(ctx, actor, "record:delete", "record", recordID, nil, meta)

	return nil
}

// SubmitControls evaluates a measurement batch against the product's active
// specifications and persists the results. A record accepts exactly one
// submission: once controls exist they are append-only evidence, and a second
// submission is refused as a conflict.
//
// Evaluation is pure and per-specification: empty values are valid (not yet
// measured), range bounds are inclusive, text comparison ignores case and
// diacritics. Each control snapshots its specification's name, kind and
// display range so the evidence survives later specification edits.
func (s *RecordService) SubmitControls(ctx context.Context, actor *authz.Principal, recordID int, inputs []models.MeasurementInput, meta RequestMeta) (*SubmissionResult, error) {
	if err := authz.Require(actor, "control", "submit"); err != nil {
		return nil, err
	}

	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.StatusPending {
		return nil, apperrors.Conflict("record %q is already %s", record.InternalLot, record.Status)
	}

	existing, err := s.controls.CountByRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, apperrors.Conflict("record %q already has submitted controls", record.InternalLot)
	}

	specs, err := s.specs.ListActiveByProduct(ctx, record.ProductID)
	if err != nil {
		return nil, err
	}
	specByID := make(map[int]models.ProductSpecification, len(specs))
	for _, spec := range specs {
		specByID[spec.ID] = spec
	}

	result := &SubmissionResult{}
	for _, input := range inputs {
		spec, ok := specByID[input.SpecificationID]
		if !ok {
			return nil, apperrors.Validation("specification_id",
				"specification %d is not active on this product", input.SpecificationID)
		}
		if err := s.validator.ValidateMeasurement(input.Value); err != nil {
			return nil, err
		}

		evalSpec := SpecToEval(spec)
		evaluation := Evaluate(input.Value, evalSpec)

		specID := spec.ID
		control := models.Control{
			SpecificationID: &specID,
			ParameterName:   spec.Name,
			ParameterType:   spec.Kind,
			FullRange:       FormatFullRange(evalSpec),
			OutOfRange:      !evaluation.IsValid,
		}

		value := strings.TrimSpace(input.Value)
		switch spec.Kind {
		case models.KindRange, models.KindNumeric:
			if number, err := ParseDecimal(value); err == nil && value != "" {
				control.ControlValue = &number
			} else if value != "" {
				control.TextControl = &value
			}
		default:
			if value != "" {
				control.TextControl = &value
			}
		}

		if !evaluation.IsValid {
			message := evaluation.Message
			control.AlertMessage = &message
			result.AlertCount++
		}
		if obs := s.validator.SanitizeString(input.Observation); obs != "" {
			control.Observation = &obs
		}

		result.Controls = append(result.Controls, control)
	}

	if err := s.controls.CreateBatch(ctx, recordID, result.Controls); err != nil {
		return nil, err
	}

	s.audit.record(ctx, actor, "control:submit", "record", recordID,
		map[string]any{"controls": len(result.Controls), "alerts": result.AlertCount}, meta)

	return result, nil
}

// Approve resolves a pending record as approved.
//
// Guards:
//   - At least one persisted control must exist: an unmeasured lot cannot
//     be approved
//   - The pending check and the transition are one conditional update, so
//     two concurrent approvals cannot both win
func (s *RecordService) Approve(ctx context.Context, actor *authz.Principal, recordID int, meta RequestMeta) error {
	if err := authz.Require(actor, "record", "approve"); err != nil {
		return err
	}

	count, err := s.controls.CountByRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if count == 0 {
		userID := actor.UserID
		s.logger.SecurityEvent(security.EventApprovalNoControl, &userID, actor.Email, meta.IPAddress, meta.UserAgent,
			map[string]any{"record_id": recordID})
		return apperrors.Conflict("record has no controls to approve against")
	}

	hit, err := s.records.Resolve(ctx, recordID, models.StatusApproved, actor.UserID, nil)
	if err != nil {
		return err
	}
	if !hit {
		return s.disambiguateMiss(ctx, recordID)
	}

	s.audit.record(ctx, actor, "record:approve", "record", recordID, nil, meta)

	return nil
}

// Reject resolves a pending record as rejected. A non-empty reason is
// mandatory and is appended to the record's observations.
func (s *RecordService) Reject(ctx context.Context, actor *authz.Principal, recordID int, reason string, meta RequestMeta) error {
	if err := authz.Require(actor, "record", "reject"); err != nil {
		return err
	}

	reason = s.validator.SanitizeString(reason)
	if reason == "" {
		return apperrors.Validation("reason", "a rejection reason is required")
	}
	if err := s.validator.ValidateObservations("reason", reason); err != nil {
		return err
	}

	note := "Rejected: " + reason
	hit, err := s.records.Resolve(ctx, recordID, models.StatusRejected, actor.UserID, &note)
	if err != nil {
		return err
	}
	if !hit {
		return s.disambiguateMiss(ctx, recordID)
	}

	s.audit.record(ctx, actor, "record:reject", "record", recordID,
		map[string]any{"reason": reason}, meta)

	return nil
}

// Get retrieves one record.
func (s *RecordService) Get(ctx context.Context, recordID int) (*models.Record, error) {
	return s.records.GetByID(ctx, recordID)
}

// GetDetail retrieves a record view together with its persisted controls.
func (s *RecordService) GetDetail(ctx context.Context, recordID int) (*models.RecordView, []models.Control, error) {
	view, err := s.records.GetView(ctx, recordID)
	if err != nil {
		return nil, nil, err
	}
	controls, err := s.controls.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, nil, err
	}
	return view, controls, nil
}

// List retrieves record views, optionally filtered by lifecycle status.
func (s *RecordService) List(ctx context.Context, status string) ([]models.RecordView, error) {
	if status != "" && status != models.StatusPending && status != models.StatusApproved && status != models.StatusRejected {
		return nil, apperrors.Validation("status", "unknown status %q", status)
	}
	return s.records.ListViews(ctx, status)
}

// ListAlerts retrieves recent out-of-range controls on pending records.
func (s *RecordService) ListAlerts(ctx context.Context, limit int) ([]models.ControlView, error) {
	return s.controls.ListAlerts(ctx, limit)
}
