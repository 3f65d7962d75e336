// Package repository provides the data access layer for the QualiTrack
// application. This file handles product management.
package repository

import (
	"context"
	"errors"

	"github.com/hyg1997/qualitrack/internal/apperrors"
	"github.com/hyg1997/qualitrack/internal/database"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the PostgreSQL error code raised when an INSERT or
// UPDATE breaks a unique constraint. Repositories surface it as a typed
// conflict so services never have to inspect driver errors.
const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// ProductRepository handles product-related database operations.
// Products are the anchors that parameter specifications and lot records
// hang off, so they are soft-deactivated rather than deleted.
type ProductRepository struct{}

// NewProductRepository creates a new instance of ProductRepository.
func NewProductRepository() *ProductRepository {
	return &ProductRepository{}
}

// Create inserts a new product.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - product: Product struct containing name and unique code
//
// Returns:
//   - error: Typed conflict on duplicate code, database error otherwise
//
// Side Effects: Populates product.ID and product.CreatedAt with database values
func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	query := `INSERT INTO products (name, code, active) VALUES ($1, $2, true) RETURNING id, created_at`

	err := database.DB.QueryRow(ctx, query, product.Name, product.Code).
		Scan(&product.ID, &product.CreatedAt)
	if isUniqueViolation(err) {
		return apperrors.Conflict("product code %q already exists", product.Code)
	}
	return err
}

// GetByID retrieves a single product by primary key.
func (r *ProductRepository) GetByID(ctx context.Context, productID int) (*models.Product, error) {
	query := `SELECT id, name, code, active, created_at FROM products WHERE id = $1`

	var product models.Product
	err := database.DB.QueryRow(ctx, query, productID).Scan(
		&product.ID, &product.Name, &product.Code, &product.Active, &product.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("product %d not found", productID)
	}
	if err != nil {
		return nil, err
	}

	return &product, nil
}

// ListActive retrieves all active products ordered alphabetically.
// Used for lot registration and specification binding forms.
func (r *ProductRepository) ListActive(ctx context.Context) ([]models.Product, error) {
	query := `SELECT id, name, code, active, created_at FROM products WHERE active = true ORDER BY name`
	return r.list(ctx, query)
}

// ListAll retrieves every product including deactivated ones.
// Used for the admin product management page.
func (r *ProductRepository) ListAll(ctx context.Context) ([]models.Product, error) {
	query := `SELECT id, name, code, active, created_at FROM products ORDER BY name`
	return r.list(ctx, query)
}

func (r *ProductRepository) list(ctx context.Context, query string) ([]models.Product, error) {
	rows, err := database.DB.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Code, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	return products, nil
}

// Update modifies a product's name and code.
func (r *ProductRepository) Update(ctx context.Context, product *models.Product) error {
	query := `UPDATE products SET name = $1, code = $2 WHERE id = $3`

	tag, err := database.DB.Exec(ctx, query, product.Name, product.Code, product.ID)
	if isUniqueViolation(err) {
		return apperrors.Conflict("product code %q already exists", product.Code)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("product %d not found", product.ID)
	}
	return nil
}

// SetActive toggles a product's active flag. Deactivated products disappear
// from registration forms but keep their specification and record history.
func (r *ProductRepository) SetActive(ctx context.Context, productID int, active bool) error {
	query := `UPDATE products SET active = $1 WHERE id = $2`

	tag, err := database.DB.Exec(ctx, query, active, productID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("product %d not found", productID)
	}
	return nil
}
