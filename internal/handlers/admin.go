// Package handlers implements HTTP request handlers for the QualiTrack
// application. This file contains the administration surface: parameter
// catalog, products, specification bindings, users, roles and the audit log.
package handlers

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"github.com/hyg1997/qualitrack/internal/middleware"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/hyg1997/qualitrack/internal/repository"
	"github.com/hyg1997/qualitrack/internal/security"
	"github.com/hyg1997/qualitrack/internal/services"
)

// AdminHandler handles the administration HTTP requests: catalog and
// product configuration, specification bindings, user and role management,
// and the audit trail viewer.
type AdminHandler struct {
	store     *session.Store
	templates *services.TemplateService
	products  *services.ProductService
	specs     *services.SpecificationService
	users     *services.UserService
	roles     *services.RoleService
	auditRepo *repository.AuditRepository
}

// NewAdminHandler creates a new instance of AdminHandler.
func NewAdminHandler(store *session.Store, cfg *security.Config, logger *security.Logger, monitor *security.Monitor) *AdminHandler {
	return &AdminHandler{
		store:     store,
		templates: services.NewTemplateService(cfg, logger),
		products:  services.NewProductService(cfg, logger),
		specs:     services.NewSpecificationService(cfg, logger),
		users:     services.NewUserService(cfg, logger, monitor),
		roles:     services.NewRoleService(cfg, logger, monitor),
		auditRepo: repository.NewAuditRepository(),
	}
}

// Dashboard displays the admin dashboard with system-wide statistics.
func (h *AdminHandler) Dashboard(c *fiber.Ctx) error {
	statsRepo := repository.NewStatsRepository()
	stats, err := statsRepo.GetDashboardStats(c.Context())
	if err != nil {
		stats = &repository.DashboardStats{}
	}

	return c.Render("admin/dashboard", fiber.Map{
		"Title":    "Admin Dashboard - QualiTrack",
		"UserName": middleware.PrincipalFrom(c).Name,
		"Stats":    stats,
	})
}

// ============================================================================
// Parameter catalog
// ============================================================================

// ListTemplates displays the parameter catalog.
func (h *AdminHandler) ListTemplates(c *fiber.Ctx) error {
	templates, err := h.templates.ListAll(c.Context())
	if err != nil {
		return fail(c, err)
	}

	return c.Render("admin/templates", fiber.Map{
		"Title":     "Parameter Catalog - QualiTrack",
		"UserName":  middleware.PrincipalFrom(c).Name,
		"Templates": templates,
	})
}

// ShowCreateTemplate renders the empty template form.
func (h *AdminHandler) ShowCreateTemplate(c *fiber.Ctx) error {
	return c.Render("admin/template_form", fiber.Map{
		"Title":    "New Parameter - QualiTrack",
		"UserName": middleware.PrincipalFrom(c).Name,
	})
}

// templateForm reads the catalog template fields from the request.
func templateForm(c *fiber.Ctx) models.TemplateForm {
	return models.TemplateForm{
		Name:         c.FormValue("name"),
		Description:  c.FormValue("description"),
		Kind:         c.FormValue("kind"),
		DefaultValue: c.FormValue("default_value"),
		MinRange:     c.FormValue("min_range"),
		MaxRange:     c.FormValue("max_range"),
		Unit:         c.FormValue("unit"),
	}
}

// CreateTemplate adds a parameter to the catalog.
func (h *AdminHandler) CreateTemplate(c *fiber.Ctx) error {
	p := middleware.PrincipalFrom(c)

	if _, err := h.templates.Create(c.Context(), p, templateForm(c), requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect("/admin/templates")
}

// ShowEditTemplate renders the template form pre-filled.
func (h *AdminHandler) ShowEditTemplate(c *fiber.Ctx) error {
	templateID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	template, err := h.templates.Get(c.Context(), templateID)
	if err != nil {
		return fail(c, err)
	}

	return c.Render("admin/template_form", fiber.Map{
		"Title":    "Edit Parameter - QualiTrack",
		"UserName": middleware.PrincipalFrom(c).Name,
		"Template": template,
	})
}

// UpdateTemplate edits a catalog template.
func (h *AdminHandler) UpdateTemplate(c *fiber.Ctx) error {
	templateID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	p := middleware.PrincipalFrom(c)
	if _, err := h.templates.Update(c.Context(), p, templateID, templateForm(c), requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect("/admin/templates")
}

// SetTemplateActive retires or restores a catalog template.
func (h *AdminHandler) SetTemplateActive(c *fiber.Ctx) error {
	templateID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	active := c.FormValue("active") == "true"
	p := middleware.PrincipalFrom(c)
	if err := h.templates.SetActive(c.Context(), p, templateID, active, requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect("/admin/templates")
}

// ============================================================================
// Products
// ============================================================================

// ListProducts displays all products.
func (h *AdminHandler) ListProducts(c *fiber.Ctx) error {
	products, err := h.products.ListAll(c.Context())
	if err != nil {
		return fail(c, err)
	}

	return c.Render("admin/products", fiber.Map{
		"Title":    "Products - QualiTrack",
		"UserName": middleware.PrincipalFrom(c).Name,
		"Products": products,
	})
}

// CreateProduct registers a product.
func (h *AdminHandler) CreateProduct(c *fiber.Ctx) error {
	p := middleware.PrincipalFrom(c)

	if _, err := h.products.Create(c.Context(), p, c.FormValue("name"), c.FormValue("code"), requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect("/admin/products")
}

// UpdateProduct edits a product's name and code.
func (h *AdminHandler) UpdateProduct(c *fiber.Ctx) error {
	productID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	p := middleware.PrincipalFrom(c)
	if _, err := h.products.Update(c.Context(), p, productID, c.FormValue("name"), c.FormValue("code"), requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect("/admin/products")
}

// SetProductActive deactivates or restores a product.
func (h *AdminHandler) SetProductActive(c *fiber.Ctx) error {
	productID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	active := c.FormValue("active") == "true"
	p := middleware.PrincipalFrom(c)
	if err := h.products.SetActive(c.Context(), p, productID, active, requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect("/admin/products")
}

// ============================================================================
// Specification bindings
// ============================================================================

// ProductSpecifications displays a product's bound specifications together
// with the catalog templates still available for binding.
func (h *AdminHandler) ProductSpecifications(c *fiber.Ctx) error {
	productID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	product, err := h.products.Get(c.Context(), productID)
	if err != nil {
		return fail(c, err)
	}

	specs, err := h.specs.ListForProduct(c.Context(), productID)
	if err != nil {
		return fail(c, err)
	}

	unbound, err := h.specs.ListUnboundTemplates(c.Context(), productID)
	if err != nil {
		return fail(c, err)
	}

	return c.Render("admin/specifications", fiber.Map{
		"Title":          product.Name + " Specifications - QualiTrack",
		"UserName":       middleware.PrincipalFrom(c).Name,
		"Product":        product,
		"Specifications": specs,
		"Unbound":        unbound,
	})
}

// specificationForm reads the binding fields from the request.
func specificationForm(c *fiber.Ctx) models.SpecificationForm {
	templateID, _ := strconv.Atoi(c.FormValue("template_id"))
	return models.SpecificationForm{
		TemplateID:    templateID,
		Name:          c.FormValue("name"),
		Kind:          c.FormValue("kind"),
		ExpectedValue: c.FormValue("expected_value"),
		MinRange:      c.FormValue("min_range"),
		MaxRange:      c.FormValue("max_range"),
		Unit:          c.FormValue("unit"),
		Required:      c.FormValue("required") == "true",
	}
}

// BindSpecification binds a catalog template (or an ad-hoc parameter) to a
// product.
func (h *AdminHandler) BindSpecification(c *fiber.Ctx) error {
	productID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	p := middleware.PrincipalFrom(c)
	if _, err := h.specs.Bind(c.Context(), p, productID, specificationForm(c), requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect(fmt.Sprintf("/admin/products/%d/specifications", productID))
}

// UpdateSpecification edits a binding's expected values.
func (h *AdminHandler) UpdateSpecification(c *fiber.Ctx) error {
	specID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	p := middleware.PrincipalFrom(c)
	spec, err := h.specs.Update(c.Context(), p, specID, specificationForm(c), requestMeta(c))
	if err != nil {
		return fail(c, err)
	}

	return c.Redirect(fmt.Sprintf("/admin/products/%d/specifications", spec.ProductID))
}

// UnbindSpecification deactivates a binding.
func (h *AdminHandler) UnbindSpecification(c *fiber.Ctx) error {
	specID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	p := middleware.PrincipalFrom(c)
	spec, err := h.specs.Get(c.Context(), specID)
	if err != nil {
		return fail(c, err)
	}

	if err := h.specs.Unbind(c.Context(), p, specID, requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect(fmt.Sprintf("/admin/products/%d/specifications", spec.ProductID))
}

// ImportSpecifications bulk-binds specifications from pasted CSV rows of
// the form: name,kind,tolerance,unit. Tolerance expressions accept the
// "value +/- delta", "low - high" and bare-value forms.
func (h *AdminHandler) ImportSpecifications(c *fiber.Ctx) error {
	productID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	reader := csv.NewReader(strings.NewReader(c.FormValue("rows")))
	reader.FieldsPerRecord = -1 // tolerate short rows; validated per row below

	var forms []models.SpecificationForm
	for {
		fields, err := reader.Read()
		if err != nil {
			break
		}
		form := models.SpecificationForm{Required: true}
		if len(fields) > 0 {
			form.Name = fields[0]
		}
		if len(fields) > 1 {
			form.Kind = strings.TrimSpace(fields[1])
		}
		if len(fields) > 2 {
			form.ExpectedValue = fields[2]
		}
		if len(fields) > 3 {
			form.Unit = strings.TrimSpace(fields[3])
		}
		forms = append(forms, form)
	}

	p := middleware.PrincipalFrom(c)
	result, err := h.specs.Import(c.Context(), p, productID, forms, requestMeta(c))
	if err != nil {
		return fail(c, err)
	}

	return c.Redirect(fmt.Sprintf("/admin/products/%d/specifications?bound=%d&skipped=%d&errors=%d",
		productID, result.Bound, result.Skipped, len(result.Errors)))
}

// ============================================================================
// Users and roles
// ============================================================================

// ListUsers displays all user accounts with their roles.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	users, err := h.users.ListAll(c.Context())
	if err != nil {
		return fail(c, err)
	}

	roles, err := h.roles.ListAll(c.Context())
	if err != nil {
		return fail(c, err)
	}

	return c.Render("admin/users", fiber.Map{
		"Title":    "Users - QualiTrack",
		"UserName": middleware.PrincipalFrom(c).Name,
		"Users":    users,
		"Roles":    roles,
	})
}

// formInts collects the repeated integer values of a form field.
func formInts(c *fiber.Ctx, field string) []int {
	var out []int
	for _, raw := range c.Request().PostArgs().PeekMulti(field) {
		if v, err := strconv.Atoi(string(raw)); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// CreateUser creates a user account with its initial role grants.
func (h *AdminHandler) CreateUser(c *fiber.Ctx) error {
	p := middleware.PrincipalFrom(c)

	_, err := h.users.Create(c.Context(), p,
		c.FormValue("email"),
		c.FormValue("name"),
		c.FormValue("password"),
		formInts(c, "role_ids"),
		requestMeta(c))
	if err != nil {
		return fail(c, err)
	}

	return c.Redirect("/admin/users")
}

// SetUserActive disables or restores an account.
func (h *AdminHandler) SetUserActive(c *fiber.Ctx) error {
	userID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	active := c.FormValue("active") == "true"
	p := middleware.PrincipalFrom(c)
	if err := h.users.SetActive(c.Context(), p, userID, active, requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect("/admin/users")
}

// GrantUserRole grants a role to a user.
func (h *AdminHandler) GrantUserRole(c *fiber.Ctx) error {
	userID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	roleID, _ := strconv.Atoi(c.FormValue("role_id"))
	p := middleware.PrincipalFrom(c)
	if err := h.users.GrantRole(c.Context(), p, userID, roleID, requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect("/admin/users")
}

// RevokeUserRole revokes a role from a user.
func (h *AdminHandler) RevokeUserRole(c *fiber.Ctx) error {
	userID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	roleID, _ := strconv.Atoi(c.FormValue("role_id"))
	p := middleware.PrincipalFrom(c)
	if err := h.users.RevokeRole(c.Context(), p, userID, roleID, requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect("/admin/users")
}

// ChangeUserPassword sets a new password for an account.
func (h *AdminHandler) ChangeUserPassword(c *fiber.Ctx) error {
	userID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	p := middleware.PrincipalFrom(c)
	if err := h.users.ChangePassword(c.Context(), p, userID, c.FormValue("password"), requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect("/admin/users")
}

// ListRoles displays roles with their permission grants.
func (h *AdminHandler) ListRoles(c *fiber.Ctx) error {
	roles, err := h.roles.ListAll(c.Context())
	if err != nil {
		return fail(c, err)
	}

	permissions, err := h.roles.ListPermissions(c.Context())
	if err != nil {
		return fail(c, err)
	}

	return c.Render("admin/roles", fiber.Map{
		"Title":       "Roles - QualiTrack",
		"UserName":    middleware.PrincipalFrom(c).Name,
		"Roles":       roles,
		"Permissions": permissions,
	})
}

// CreateRole creates a custom role.
func (h *AdminHandler) CreateRole(c *fiber.Ctx) error {
	level, _ := strconv.Atoi(c.FormValue("level"))
	role := &models.Role{
		Name:        c.FormValue("name"),
		DisplayName: c.FormValue("display_name"),
		Level:       level,
	}

	p := middleware.PrincipalFrom(c)
	if err := h.roles.Create(c.Context(), p, role, requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect("/admin/roles")
}

// UpdateRole edits a role's display name and level.
func (h *AdminHandler) UpdateRole(c *fiber.Ctx) error {
	roleID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	level, _ := strconv.Atoi(c.FormValue("level"))
	p := middleware.PrincipalFrom(c)
	if err := h.roles.Update(c.Context(), p, roleID, c.FormValue("display_name"), level, requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect("/admin/roles")
}

// DeleteRole removes a non-system role.
func (h *AdminHandler) DeleteRole(c *fiber.Ctx) error {
	roleID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	p := middleware.PrincipalFrom(c)
	if err := h.roles.Delete(c.Context(), p, roleID, requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect("/admin/roles")
}

// SetRolePermissions replaces a role's permission grants.
func (h *AdminHandler) SetRolePermissions(c *fiber.Ctx) error {
	roleID, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	p := middleware.PrincipalFrom(c)
	if err := h.roles.SetPermissions(c.Context(), p, roleID, formInts(c, "permission_ids"), requestMeta(c)); err != nil {
		return fail(c, err)
	}

	return c.Redirect("/admin/roles")
}

// ============================================================================
// Audit trail
// ============================================================================

// ViewAuditLog displays the most recent audit entries.
func (h *AdminHandler) ViewAuditLog(c *fiber.Ctx) error {
	entries, err := h.auditRepo.ListRecent(c.Context(), 200)
	if err != nil {
		return fail(c, err)
	}

	return c.Render("admin/audit", fiber.Map{
		"Title":    "Audit Trail - QualiTrack",
		"UserName": middleware.PrincipalFrom(c).Name,
		"Entries":  entries,
	})
}
