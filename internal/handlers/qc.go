// Package handlers implements HTTP request handlers for the QualiTrack
// application. This file contains the quality-control workflow: lot
// registration, control submission, approval and rejection.
package handlers

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"github.com/hyg1997/qualitrack/internal/middleware"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/hyg1997/qualitrack/internal/repository"
	"github.com/hyg1997/qualitrack/internal/security"
	"github.com/hyg1997/qualitrack/internal/services"
)

// QCHandler handles the quality-control workflow HTTP requests: lot
// registration, measurement submission, resolution and alert review.
type QCHandler struct {
	store    *session.Store
	records  *services.RecordService
	specs    *services.SpecificationService
	products *services.ProductService
}

// NewQCHandler creates a new instance of QCHandler.
func NewQCHandler(store *session.Store, cfg *security.Config, logger *security.Logger) *QCHandler {
	return &QCHandler{
		store:    store,
		records:  services.NewRecordService(cfg, logger),
		specs:    services.NewSpecificationService(cfg, logger),
		products: services.NewProductService(cfg, logger),
	}
}

// Dashboard displays the inspector dashboard with personal statistics and
// open alerts.
func (h *QCHandler) Dashboard(c *fiber.Ctx) error {
	p := middleware.PrincipalFrom(c)

	statsRepo := repository.NewStatsRepository()
	stats, err := statsRepo.GetInspectorStats(c.Context(), p.UserID)
	if err != nil {
		stats = &repository.InspectorStats{}
	}

	alerts, err := h.records.ListAlerts(c.Context(), 10)
	if err != nil {
		return fail(c, err)
	}

	return c.Render("qc/dashboard", fiber.Map{
		"Title":    "Dashboard - QualiTrack",
		"UserName": p.Name,
		"Stats":    stats,
		"Alerts":   alerts,
	})
}

// ListRecords displays the lot records list, optionally filtered by status.
//
// Query Params:
//   - status: "pending", "approved" or "rejected" ("" for all)
func (h *QCHandler) ListRecords(c *fiber.Ctx) error {
	status := c.Query("status")

	records, err := h.records.List(c.Context(), status)
	if err != nil {
		return fail(c, err)
	}

	return c.Render("qc/records", fiber.Map{
		"Title":    "Records - QualiTrack",
		"UserName": middleware.PrincipalFrom(c).Name,
		"Records":  records,
		"Status":   status,
	})
}

// ShowCreateRecord renders the lot registration form with the active
// product list.
func (h *QCHandler) ShowCreateRecord(c *fiber.Ctx) error {
	products, err := h.products.ListActive(c.Context())
	if err != nil {
		return fail(c, err)
	}

	return c.Render("qc/record_form", fiber.Map{
		"Title":    "Register Lot - QualiTrack",
		"UserName": middleware.PrincipalFrom(c).Name,
		"Products": products,
	})
}

// recordForm reads the lot registration fields from the request.
func recordForm(c *fiber.Ctx) models.RecordForm {
	productID, _ := strconv.Atoi(c.FormValue("product_id"))
	return models.RecordForm{
		ProductID:      productID,
		InternalLot:    c.FormValue("internal_lot"),
		SupplierLot:    c.FormValue("supplier_lot"),
		Quantity:       c.FormValue("quantity"),
		ExpirationDate: c.FormValue("expiration_date"),
		Observations:   c.FormValue("observations"),
	}
}

// CreateRecord registers a new lot and redirects to its detail page.
func (h *QCHandler) CreateRecord(c *fiber.Ctx) error {
	p := middleware.PrincipalFrom(c)

	record, err := h.records.Create(c.Context(), p, recordForm(c), requestMeta(c))
	if err != nil {
		return fail(c, err)
	}

	return c.Redirect(fmt.Sprintf("/records/%d", record.ID))
}

// RecordDetail displays one record with its persisted controls and, while
// pending, the measurement form over the product's active specifications.
func (h *QCHandler) RecordDetail(c *fiber.Ctx) error {
	recordID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	view, controls, err := h.records.GetDetail(c.Context(), recordID)
	if err != nil {
		return fail(c, err)
	}

	var specs []models.SpecificationView
	if view.Status == models.StatusPending {
		specs, err = h.specs.ListActiveForProduct(c.Context(), view.ProductID)
		if err != nil {
			return fail(c, err)
		}
	}

	return c.Render("qc/record_detail", fiber.Map{
		"Title":          "Record " + view.InternalLot + " - QualiTrack",
		"UserName":       middleware.PrincipalFrom(c).Name,
		"Record":         view,
		"Controls":       controls,
		"Specifications": specs,
	})
}

// ShowEditRecord renders the edit form for a pending record.
func (h *QCHandler) ShowEditRecord(c *fiber.Ctx) error {
	recordID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	record, err := h.records.Get(c.Context(), recordID)
	if err != nil {
		return fail(c, err)
	}

	products, err := h.products.ListActive(c.Context())
	if err != nil {
		return fail(c, err)
	}

	return c.Render("qc/record_edit", fiber.Map{
		"Title":    "Edit Record - QualiTrack",
		"UserName": middleware.PrincipalFrom(c).Name,
		"Record":   record,
		"Products": products,
	})
}

// UpdateRecord edits a pending record's registration fields.
func (h *QCHandler) UpdateRecord(c *fiber.Ctx) error {
	recordID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	p := middleware.PrincipalFrom(c)
	if err := h.records.Update(c.Context(), p, recordID, recordForm(c), requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect(fmt.Sprintf("/records/%d", recordID))
}

// DeleteRecord removes a pending record.
func (h *QCHandler) DeleteRecord(c *fiber.Ctx) error {
	recordID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	p := middleware.PrincipalFrom(c)
	if err := h.records.Delete(c.Context(), p, recordID, requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect("/records")
}

// SubmitControls evaluates and persists the submitted measurement batch.
// Measurement fields are keyed by specification id: value_<id> and
// observation_<id>.
func (h *QCHandler) SubmitControls(c *fiber.Ctx) error {
	recordID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	view, _, err := h.records.GetDetail(c.Context(), recordID)
	if err != nil {
		return fail(c, err)
	}

	specs, err := h.specs.ListActiveForProduct(c.Context(), view.ProductID)
	if err != nil {
		return fail(c, err)
	}

	inputs := make([]models.MeasurementInput, 0, len(specs))
	for _, spec := range specs {
		inputs = append(inputs, models.MeasurementInput{
			SpecificationID: spec.ID,
			Value:           c.FormValue(fmt.Sprintf("value_%d", spec.ID)),
			Observation:     c.FormValue(fmt.Sprintf("observation_%d", spec.ID)),
		})
	}

	p := middleware.PrincipalFrom(c)
	result, err := h.records.SubmitControls(c.Context(), p, recordID, inputs, requestMeta(c))
	if err != nil {
		return fail(c, err)
	}

	target := fmt.Sprintf("/records/%d", recordID)
	if result.AlertCount > 0 {
		target += fmt.Sprintf("?alerts=%d", result.AlertCount)
	}
	return c.Redirect(target)
}

// Approve resolves a pending record as approved.
func (h *QCHandler) Approve(c *fiber.Ctx) error {
	recordID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	p := middleware.PrincipalFrom(c)
	if err := h.records.Approve(c.Context(), p, recordID, requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect(fmt.Sprintf("/records/%d", recordID))
}

// Reject resolves a pending record as rejected with a mandatory reason.
func (h *QCHandler) Reject(c *fiber.Ctx) error {
	recordID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	p := middleware.PrincipalFrom(c)
	reason := c.FormValue("reason")
	if err := h.records.Reject(c.Context(), p, recordID, reason, requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect(fmt.Sprintf("/records/%d", recordID))
}

// Alerts displays the out-of-range controls on still-pending records.
func (h *QCHandler) Alerts(c *fiber.Ctx) error {
	alerts, err := h.records.ListAlerts(c.Context(), 100)
	if err != nil {
		return fail(c, err)
	}

	return c.Render("qc/alerts", fiber.Map{
		"Title":    "Alerts - QualiTrack",
		"UserName": middleware.PrincipalFrom(c).Name,
		"Alerts":   alerts,
	})
}

// ExportRecords streams the record list as CSV, honoring the same status
// filter as the list page.
func (h *QCHandler) ExportRecords(c *fiber.Ctx) error {
	status := c.Query("status")

	records, err := h.records.List(c.Context(), status)
	if err != nil {
		return fail(c, err)
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)

	_ = w.Write([]string{"internal_lot", "product", "code", "quantity", "status", "registered", "registered_by", "resolved_by", "controls", "alerts"})
	for _, r := range records {
		resolvedBy := ""
		if r.ApprovedByName != nil {
			resolvedBy = *r.ApprovedByName
		}
		_ = w.Write([]string{
			r.InternalLot,
			r.ProductName,
			r.ProductCode,
			strconv.FormatFloat(r.Quantity, 'f', -1, 64),
			r.Status,
			r.RegistrationDate.Format("2006-01-02"),
			r.CreatedByName,
			resolvedBy,
			strconv.Itoa(r.ControlCount),
			strconv.Itoa(r.AlertCount),
		})
	}
	w.Flush()

	filename := fmt.Sprintf("records_%s.csv", time.Now().Format("20060102"))
	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	return c.SendString(sb.String())
}
