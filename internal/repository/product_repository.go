package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"shopline/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound = errors.New("product not found")
)

// InsufficientStockError reports a reservation that exceeds available stock
type InsufficientStockError struct {
	ProductID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// SortOrder represents the sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "ASC"
	SortOrderDesc SortOrder = "DESC"
)

// ProductRepository defines the interface for product data access.
// DecrementStock and IncrementStock are the only stock write paths and
// are reserved for the stock service.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	List(ctx context.Context, category *domain.ProductCategory, page, pageSize int, sortBy string, sortOrder SortOrder) ([]*domain.Product, int, error)
	Search(ctx context.Context, locale, query string, page, pageSize int) ([]*domain.Product, int, error)
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error
	IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error
	IncrementViewCount(ctx context.Context, id uuid.UUID) error
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, name, description, price, category, tag, image_url, stock, min_stock, view_count, sales_count, created_at, updated_at`

func scanProduct(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Product, error) {
	product := &domain.Product{}
	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.Category,
		&product.Tag,
		&product.ImageURL,
		&product.Stock,
		&product.MinStock,
		&product.ViewCount,
		&product.SalesCount,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}

// Create inserts a new product into the database using parameterized queries
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, name, description, price, category, tag, image_url, stock, min_stock, view_count, sales_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		product.Category,
		product.Tag,
		product.ImageURL,
		product.Stock,
		product.MinStock,
		product.ViewCount,
		product.SalesCount,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// Update updates an existing product. Stock is deliberately not written
// here; all stock movement goes through DecrementStock/IncrementStock.
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products
		SET name = $2, description = $3, price = $4, category = $5,
		    tag = $6, image_url = $7, min_stock = $8, updated_at = $9
		WHERE id = $1
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		product.Category,
		product.Tag,
		product.ImageURL,
		product.MinStock,
		product.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// Delete removes a product from the database
func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM products WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// FindByID retrieves a product by ID
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1`, productColumns)

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// DecrementStock performs the check-and-decrement as a single conditional
// update so concurrent reservations can never push stock below zero. The
// sales counter moves with the stock, and the tag flips to OUT_OF_STOCK
// the moment stock reaches zero.
func (r *productRepository) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	query := `
		UPDATE products
		SET stock = stock - $2,
		    sales_count = sales_count + $2,
		    tag = CASE WHEN stock - $2 = 0 THEN 'OUT_OF_STOCK' ELSE tag END,
		    updated_at = now()
		WHERE id = $1 AND stock >= $2
	`

	result, err := r.db.ExecContext(ctx, query, id, quantity)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Either the product is gone or the stock guard rejected the
		// decrement; re-read to tell the two apart.
		product, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		return &InsufficientStockError{
			ProductID: id,
			Requested: quantity,
			Available: product.Stock,
		}
	}

	return nil
}

// IncrementStock credits stock back, used for cancellations and for
// compensating partially applied reservations. A restore that lifts
// stock above zero clears the OUT_OF_STOCK tag.
func (r *productRepository) IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	query := `
		UPDATE products
		SET stock = stock + $2,
		    tag = CASE WHEN tag = 'OUT_OF_STOCK' AND stock + $2 > 0 THEN 'NONE' ELSE tag END,
		    updated_at = now()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, quantity)
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// IncrementViewCount bumps the product view counter
func (r *productRepository) IncrementViewCount(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE products SET view_count = view_count + 1 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to increment view count: %w", err)
	}

	return nil
}

// List retrieves products with optional category filtering, pagination, and sorting
func (r *productRepository) List(ctx context.Context, category *domain.ProductCategory, page, pageSize int, sortBy string, sortOrder SortOrder) ([]*domain.Product, int, error) {
	// Validate sort field to prevent SQL injection
	validSortFields := map[string]bool{
		"price":       true,
		"created_at":  true,
		"stock":       true,
		"view_count":  true,
		"sales_count": true,
	}

	if !validSortFields[sortBy] {
		sortBy = "created_at" // Default sort field
	}

	if sortOrder != SortOrderAsc && sortOrder != SortOrderDesc {
		sortOrder = SortOrderDesc // Default sort order
	}

	whereClause := ""
	args := []interface{}{}
	argIndex := 1

	if category != nil {
		whereClause = fmt.Sprintf("WHERE category = $%d", argIndex)
		args = append(args, *category)
		argIndex++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM products %s", whereClause)
	var total int
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`
		SELECT %s
		FROM products
		%s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, productColumns, whereClause, sortBy, sortOrder, argIndex, argIndex+1)

	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating products: %w", err)
	}

	return products, total, nil
}

// Search searches localized product names and descriptions with pagination
func (r *productRepository) Search(ctx context.Context, locale, query string, page, pageSize int) ([]*domain.Product, int, error) {
	if strings.TrimSpace(query) == "" {
		return r.List(ctx, nil, page, pageSize, "created_at", SortOrderDesc)
	}

	if locale == "" {
		locale = domain.DefaultLocale
	}

	// Match against the requested locale with a fallback to the default
	searchPattern := "%" + query + "%"
	where := `
		WHERE COALESCE(name->>$1, name->>'en', '') ILIKE $2
		   OR COALESCE(description->>$1, description->>'en', '') ILIKE $2
	`

	countQuery := "SELECT COUNT(*) FROM products " + where
	var total int
	err := r.db.QueryRowContext(ctx, countQuery, locale, searchPattern).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	offset := (page - 1) * pageSize

	searchQuery := fmt.Sprintf(`
		SELECT %s
		FROM products
		%s
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, productColumns, where)

	rows, err := r.db.QueryContext(ctx, searchQuery, locale, searchPattern, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating search results: %w", err)
	}

	return products, total, nil
}
