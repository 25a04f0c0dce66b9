package service

import (
	"context"
	"errors"
	"fmt"

	"shopline/internal/domain"
	"shopline/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// ReservationItem names a product and the quantity to reserve or restore
type ReservationItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// Reservation is the outcome of a successful reserve: one line item per
// input item carrying the name/price snapshot taken at reservation time,
// plus the accumulated subtotal.
type Reservation struct {
	Lines    []domain.OrderItem
	Subtotal decimal.Decimal
}

// StockService moves inventory between available and committed as orders
// are placed or cancelled. It is the only component allowed to write
// product stock.
type StockService interface {
	// Reserve decrements stock for every item, in order. If any item
	// fails, stock already taken by earlier items in the same call is
	// restored before the error is returned.
	Reserve(ctx context.Context, items []ReservationItem) (*Reservation, error)
	// Restore credits stock back. It is not idempotent; callers must
	// invoke it at most once per cancellation or compensation event.
	Restore(ctx context.Context, items []ReservationItem) error
}

type stockService struct {
	productRepo repository.ProductRepository
	logger      *zap.Logger
}

// NewStockService creates a new instance of StockService
func NewStockService(productRepo repository.ProductRepository, logger *zap.Logger) StockService {
	return &stockService{
		productRepo: productRepo,
		logger:      logger,
	}
}

// Reserve processes items in the given order. Each decrement is a single
// conditional update at the store, so two concurrent reservations can
// never jointly oversell a product.
func (s *stockService) Reserve(ctx context.Context, items []ReservationItem) (*Reservation, error) {
	reservation := &Reservation{Subtotal: decimal.Zero}
	applied := make([]ReservationItem, 0, len(items))

	for _, item := range items {
		if item.Quantity < 1 {
			s.compensate(ctx, applied)
			return nil, fmt.Errorf("product %s: %w", item.ProductID, ErrInvalidQuantity)
		}

		// Snapshot name and price before committing the decrement so the
		// line item reflects the catalog at the moment of reservation.
		product, err := s.productRepo.FindByID(ctx, item.ProductID)
		if err != nil {
			s.compensate(ctx, applied)
			if errors.Is(err, repository.ErrProductNotFound) {
				return nil, fmt.Errorf("product %s: %w", item.ProductID, repository.ErrProductNotFound)
			}
			return nil, fmt.Errorf("failed to load product %s: %w", item.ProductID, err)
		}

		if err := s.productRepo.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.compensate(ctx, applied)
			return nil, err
		}
		applied = append(applied, item)

		subtotal := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		reservation.Lines = append(reservation.Lines, domain.OrderItem{
			ID:        uuid.New(),
			ProductID: product.ID,
			Name:      product.Name.Get(domain.DefaultLocale),
			Price:     product.Price,
			Quantity:  item.Quantity,
			Subtotal:  subtotal,
		})
		reservation.Subtotal = reservation.Subtotal.Add(subtotal)
	}

	return reservation, nil
}

// Restore credits every item's quantity back as a pure increment
func (s *stockService) Restore(ctx context.Context, items []ReservationItem) error {
	var lastErr error
	for _, item := range items {
		if err := s.productRepo.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("Failed to restore stock",
				zap.String("product_id", item.ProductID.String()),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("failed to restore stock: %w", lastErr)
	}
	return nil
}

// compensate rolls back decrements already applied in a failed reserve.
// Failures here are logged and swallowed; the reservation error that
// triggered compensation is the one the caller needs to see.
func (s *stockService) compensate(ctx context.Context, applied []ReservationItem) {
	if len(applied) == 0 {
		return
	}
	if err := s.Restore(ctx, applied); err != nil {
		s.logger.Error("Compensation after failed reservation did not fully restore stock",
			zap.Int("items", len(applied)),
			zap.Error(err),
		)
	}
}
