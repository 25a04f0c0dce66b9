package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shopline/internal/domain"
	"shopline/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNegativePrice   = errors.New("price must not be negative")
	ErrNegativeStock   = errors.New("stock must not be negative")
	ErrInvalidCategory = errors.New("invalid product category")
)

// CatalogService handles product management. Stock adjustments go through
// the stock service's restore path; catalog edits never touch stock
// directly.
type CatalogService interface {
	CreateProduct(ctx context.Context, product *domain.Product) error
	UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	ListProducts(ctx context.Context, category *domain.ProductCategory, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error)
	SearchProducts(ctx context.Context, locale, query string, page, pageSize int) ([]*domain.Product, int, error)
}

type catalogService struct {
	productRepo repository.ProductRepository
	logger      *zap.Logger
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(productRepo repository.ProductRepository, logger *zap.Logger) CatalogService {
	return &catalogService{
		productRepo: productRepo,
		logger:      logger,
	}
}

func validateProduct(product *domain.Product) error {
	if product.Price.LessThan(decimal.Zero) {
		return ErrNegativePrice
	}
	if product.Stock < 0 {
		return ErrNegativeStock
	}
	if !product.Category.Valid() {
		return ErrInvalidCategory
	}
	return nil
}

// CreateProduct validates and persists a new catalog product
func (s *catalogService) CreateProduct(ctx context.Context, product *domain.Product) error {
	if err := validateProduct(product); err != nil {
		return err
	}

	now := time.Now()
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	// Prices are stored with two decimal places
	product.Price = product.Price.Round(2)
	product.CreatedAt = now
	product.UpdatedAt = now
	product.RefreshTag()

	if err := s.productRepo.Create(ctx, product); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("category", string(product.Category)),
	)

	return nil
}

// UpdateProduct applies catalog edits on top of the stored product. Stock
// is read back from the store so the derived tag reflects reality.
func (s *catalogService) UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	current, err := s.productRepo.FindByID(ctx, product.ID)
	if err != nil {
		return nil, err
	}

	current.Name = product.Name
	current.Description = product.Description
	current.Price = product.Price.Round(2)
	current.Category = product.Category
	current.ImageURL = product.ImageURL
	current.MinStock = product.MinStock
	if product.Tag.Valid() {
		current.Tag = product.Tag
	}
	current.UpdatedAt = time.Now()
	current.RefreshTag()

	if err := s.productRepo.Update(ctx, current); err != nil {
		return nil, err
	}

	return current, nil
}

// DeleteProduct removes a product from the catalog
func (s *catalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return s.productRepo.Delete(ctx, id)
}

// GetProduct retrieves a product and bumps its view counter
func (s *catalogService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// View counting is best effort; a failed bump should not fail the read
	if err := s.productRepo.IncrementViewCount(ctx, id); err != nil {
		s.logger.Warn("Failed to increment view count",
			zap.String("product_id", id.String()),
			zap.Error(err),
		)
	} else {
		product.ViewCount++
	}

	return product, nil
}

// ListProducts retrieves products with filtering, pagination and sorting
func (s *catalogService) ListProducts(ctx context.Context, category *domain.ProductCategory, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error) {
	return s.productRepo.List(ctx, category, page, pageSize, sortBy, sortOrder)
}

// SearchProducts searches localized names and descriptions
func (s *catalogService) SearchProducts(ctx context.Context, locale, query string, page, pageSize int) ([]*domain.Product, int, error) {
	return s.productRepo.Search(ctx, locale, query, page, pageSize)
}
