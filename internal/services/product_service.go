// Package services provides the business logic layer for the QualiTrack
// application. This file implements product management.
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

// ProductService implements product management. Products are the anchor for
// specifications and records, so they are never hard-deleted, only
// deactivated.
type ProductService struct {
	products  *repository.ProductRepository
	validator *security.ValidationService
	audit     *auditRecorder
}

// NewProductService creates and returns a new ProductService instance.
func NewProductService(cfg *security.Config, logger *security.Logger) *ProductService {
	return &ProductService{
		products:  repository.NewProductRepository(),
		validator: security.NewValidationService(cfg),
		audit:     newAuditRecorder(logger),
	}
}

// buildProduct validates the submitted fields into a model.
func (s *ProductService) buildProduct(name, code string) (*models.Product, error) {
	name = s.validator.SanitizeString(name)
	if err := s.validator.ValidateName("name", name); err != nil {
		return nil, err
	}

	code = strings.ToUpper(s.validator.SanitizeString(code))
	if code == "" {
		return nil, apperrors.Validation("code", "product code is required")
	}

	return &models.Product{Name: name, Code: code, Active: true}, nil
}

// Create registers a new product.
func (s *ProductService) Create(ctx context.Context, actor *authz.Principal, name, code string, meta RequestMeta) (*models.Product, error) {
	if err := authz.Require(actor, "product", "create"); err != nil {
		return nil, err
	}

	product, err := s.buildProduct(name, code)
	if err != nil {
		return nil, err
	}

	if err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}

	s.audit.record(ctx, actor, "product:create", "product", product.ID,
		map[string]any{"name": product.Name, "code": product.Code}, meta)

	return product, nil
}

// Update edits a product's name and code.
func (s *ProductService) Update(ctx context.Context, actor *authz.Principal, productID int, name, code string, meta RequestMeta) (*models.Product, error) {
	if err := authz.Require(actor, "product", "update"); err != nil {
		return nil, err
	}

	existing, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	product, err := s.buildProduct(name, code)
	if err != nil {
		return nil, err
	}
	product.ID = productID
	product.Active = existing.Active

	if err := s.products.Update(ctx, product); err != nil {
		return nil, err
	}

	s.audit.record(ctx, actor, "product:update", "product", productID,
		map[string]any{"name": product.Name, "code": product.Code}, meta)

	return product, nil
}

// SetActive deactivates a product or restores it. Deactivated products stop
// accepting new records and bindings but keep their history.
func (s *ProductService) SetActive(ctx context.Context, actor *authz.Principal, productID int, active bool, meta RequestMeta) error {
	if err := authz.Require(actor, "product", "update"); err != nil {
		return err
	}

	if err := s.products.SetActive(ctx, productID, active); err != nil {
		return err
	}

	action := "product:deactivate"
	if active {
		action = "product:activate"
	}
	s.audit.record(ctx, actor, action, "product", productID, nil, meta)

	return nil
}

// Get retrieves one product.
func (s *ProductService) Get(ctx context.Context, productID int) (*models.Product, error) {
	return s.products.GetByID(ctx, productID)
}

// ListAll retrieves all products for the management page.
func (s *ProductService) ListAll(ctx context.Context) ([]models.Product, error) {
	return s.products.ListAll(ctx)
}

// ListActive retrieves active products for registration pickers.
func (s *ProductService) ListActive(ctx context.Context) ([]models.Product, error) {
	return s.products.ListActive(ctx)
}
