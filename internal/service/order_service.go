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
	ErrEmptyOrder           = errors.New("order must contain at least one item")
	ErrAlreadyPaid          = errors.New("order is already paid")
	ErrAlreadyDelivered     = errors.New("order is already delivered")
	ErrOrderNumberExhausted = errors.New("could not allocate a unique order number")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
)

// InvalidStatusError reports a status value outside the fixed enum
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid order status %q", e.Value)
}

// InvalidTransitionError reports a transition out of a terminal status,
// or a non-adjacent one rejected in strict mode
type InvalidTransitionError struct {
	From domain.OrderStatus
	To   domain.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// NotCancellableError reports a cancellation attempt on an order that has
// progressed past the cancellable states
type NotCancellableError struct {
	Status domain.OrderStatus
}

func (e *NotCancellableError) Error() string {
	return fmt.Sprintf("order in status %s cannot be cancelled", e.Status)
}

// OrderService governs the order lifecycle: creation with stock
// reservation, payment and delivery marking, cancellation with stock
// restoration, and audited status transitions.
type OrderService interface {
	Create(ctx context.Context, userID uuid.UUID, items []ReservationItem, address domain.ShippingAddress, method domain.PaymentMethod) (*domain.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByNumber(ctx context.Context, number string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error)
	List(ctx context.Context, status *domain.OrderStatus, page, pageSize int) ([]*domain.Order, int, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, payment domain.PaymentDetails) (*domain.Order, error)
	MarkDelivered(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, reason string, actorID *uuid.UUID) (*domain.Order, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, newStatus domain.OrderStatus, note string, actorID *uuid.UUID) (*domain.Order, error)
	SetTracking(ctx context.Context, orderID uuid.UUID, trackingNumber string) (*domain.Order, error)
}

// OrderServiceConfig tunes order number generation and transition checking
type OrderServiceConfig struct {
	NumberPrefix      string
	MaxNumberAttempts int
	StrictTransitions bool
}

type orderService struct {
	orderRepo repository.OrderRepository
	stock     StockService
	cfg       OrderServiceConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(
	orderRepo repository.OrderRepository,
	stock StockService,
	cfg OrderServiceConfig,
	logger *zap.Logger,
) OrderService {
	if cfg.NumberPrefix == "" {
		cfg.NumberPrefix = "ORD"
	}
	if cfg.MaxNumberAttempts < 1 {
		cfg.MaxNumberAttempts = 5
	}
	return &orderService{
		orderRepo: orderRepo,
		stock:     stock,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Create reserves stock for every item, prices the order, allocates a
// unique date-scoped order number and persists the order in pending
// status with its first history entry.
func (s *orderService) Create(ctx context.Context, userID uuid.UUID, items []ReservationItem, address domain.ShippingAddress, method domain.PaymentMethod) (*domain.Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	if !method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	reservation, err := s.stock.Reserve(ctx, items)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &domain.Order{
		ID:              uuid.New(),
		UserID:          userID,
		Items:           reservation.Lines,
		ShippingAddress: address,
		PaymentMethod:   method,
		Subtotal:        reservation.Subtotal,
		ShippingCost:    decimal.Zero,
		Tax:             decimal.Zero,
		Discount:        decimal.Zero,
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.RecomputeTotal()

	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}
	order.History = []domain.StatusHistoryEntry{{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
	}}

	if err := s.insertWithUniqueNumber(ctx, order); err != nil {
		// The reservation is already committed; give the stock back
		// before surfacing the failure.
		if restoreErr := s.stock.Restore(ctx, items); restoreErr != nil {
			s.logger.Error("Failed to restore stock after order insert failure",
				zap.String("order_id", order.ID.String()),
				zap.Error(restoreErr),
			)
		}
		return nil, err
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.Number),
		zap.String("user_id", userID.String()),
	)

	return order, nil
}

// insertWithUniqueNumber allocates a number from the same-day order count
// and inserts the order. Two concurrent creations can compute the same
// suffix; the unique index rejects the loser, which retries with a
// refreshed count up to the configured budget.
func (s *orderService) insertWithUniqueNumber(ctx context.Context, order *domain.Order) error {
	for attempt := 0; attempt < s.cfg.MaxNumberAttempts; attempt++ {
		number, err := s.nextOrderNumber(ctx, order.CreatedAt)
		if err != nil {
			return err
		}
		order.Number = number

		err = s.orderRepo.Insert(ctx, order)
		if err == nil {
			return nil
		}
		if errors.Is(err, repository.ErrDuplicateOrderNumber) {
			s.logger.Warn("Order number collision, retrying",
				zap.String("order_number", number),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		return fmt.Errorf("failed to persist order: %w", err)
	}
	return ErrOrderNumberExhausted
}

// nextOrderNumber builds <prefix><YY><MM><DD><NNNN> where NNNN counts
// orders created on the local server day, starting at 0001.
func (s *orderService) nextOrderNumber(ctx context.Context, at time.Time) (string, error) {
	at = at.Local()
	startOfDay := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	count, err := s.orderRepo.CountCreatedBetween(ctx, startOfDay, endOfDay)
	if err != nil {
		return "", fmt.Errorf("failed to count today's orders: %w", err)
	}

	return fmt.Sprintf("%s%s%04d", s.cfg.NumberPrefix, at.Format("060102"), count+1), nil
}

// GetByID retrieves an order with items and history
func (s *orderService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.orderRepo.FindByID(ctx, id)
}

// GetByNumber retrieves an order by its order number
func (s *orderService) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return s.orderRepo.FindByNumber(ctx, number)
}

// ListByUser retrieves a user's orders, newest first
func (s *orderService) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error) {
	return s.orderRepo.ListByUser(ctx, userID, page, pageSize)
}

// List retrieves orders with optional status filtering
func (s *orderService) List(ctx context.Context, status *domain.OrderStatus, page, pageSize int) ([]*domain.Order, int, error) {
	return s.orderRepo.List(ctx, status, page, pageSize)
}

// MarkPaid records payment on the order. A pending order auto-advances to
// confirmed; this is the only status movement MarkPaid performs itself.
func (s *orderService) MarkPaid(ctx context.Context, orderID uuid.UUID, payment domain.PaymentDetails) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.IsPaid {
		return nil, ErrAlreadyPaid
	}

	now := s.now()
	order.IsPaid = true
	order.PaidAt = &now
	if payment.TransactionID != "" {
		order.PaymentDetails.TransactionID = payment.TransactionID
	}
	if payment.Provider != "" {
		order.PaymentDetails.Provider = payment.Provider
	}
	if payment.PaidAt != nil {
		order.PaymentDetails.PaidAt = payment.PaidAt
	} else {
		order.PaymentDetails.PaidAt = &now
	}

	note := "payment received"
	if order.Status == domain.OrderStatusPending {
		order.Status = domain.OrderStatusConfirmed
	}
	order.UpdatedAt = now

	entry := &domain.StatusHistoryEntry{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Status:    order.Status,
		Note:      note,
		CreatedAt: now,
	}

	if err := s.orderRepo.UpdateStatus(ctx, order, entry); err != nil {
		return nil, err
	}
	order.History = append(order.History, *entry)

	s.logger.Info("Order marked paid",
		zap.String("order_id", order.ID.String()),
		zap.String("status", string(order.Status)),
	)

	return order, nil
}

// MarkDelivered records delivery and moves the order to its terminal
// delivered status.
func (s *orderService) MarkDelivered(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.IsDelivered {
		return nil, ErrAlreadyDelivered
	}
	if order.Status.Terminal() {
		return nil, &InvalidTransitionError{From: order.Status, To: domain.OrderStatusDelivered}
	}

	now := s.now()
	order.IsDelivered = true
	order.DeliveredAt = &now
	order.Status = domain.OrderStatusDelivered
	order.UpdatedAt = now

	entry := &domain.StatusHistoryEntry{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Status:    domain.OrderStatusDelivered,
		Note:      "order delivered",
		CreatedAt: now,
	}

	if err := s.orderRepo.UpdateStatus(ctx, order, entry); err != nil {
		return nil, err
	}
	order.History = append(order.History, *entry)

	return order, nil
}

// Cancel moves the order to its terminal cancelled status and restores
// stock for every line item. Only pending and confirmed orders are
// cancellable; the cancellation is claimed with a conditional update
// before any stock moves, so concurrent cancels restore at most once.
func (s *orderService) Cancel(ctx context.Context, orderID uuid.UUID, reason string, actorID *uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.Cancellable() {
		return nil, &NotCancellableError{Status: order.Status}
	}

	now := s.now()
	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now
	order.CancelReason = reason
	order.UpdatedAt = now

	entry := &domain.StatusHistoryEntry{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Status:    domain.OrderStatusCancelled,
		Note:      reason,
		ActorID:   actorID,
		CreatedAt: now,
	}

	if err := s.orderRepo.ClaimCancellation(ctx, order, entry); err != nil {
		if errors.Is(err, repository.ErrOrderNotCancellable) {
			// Lost the claim to a concurrent update; report the status
			// that beat us.
			current, findErr := s.orderRepo.FindByID(ctx, orderID)
			if findErr != nil {
				return nil, findErr
			}
			return nil, &NotCancellableError{Status: current.Status}
		}
		return nil, err
	}
	order.History = append(order.History, *entry)

	items := make([]ReservationItem, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, ReservationItem{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	if err := s.stock.Restore(ctx, items); err != nil {
		s.logger.Error("Failed to restore stock for cancelled order",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("order cancelled but stock restore failed: %w", err)
	}

	s.logger.Info("Order cancelled",
		zap.String("order_id", order.ID.String()),
		zap.String("reason", reason),
	)

	return order, nil
}

// TransitionStatus is the generic entry point for status changes,
// including the intermediate processing/shipped steps. The new status
// must be one of the six enum values. Terminal statuses are closed in
// both modes: a cancelled order's stock is already restored and is never
// re-reserved. Adjacency is only enforced when strict transitions are
// configured.
func (s *orderService) TransitionStatus(ctx context.Context, orderID uuid.UUID, newStatus domain.OrderStatus, note string, actorID *uuid.UUID) (*domain.Order, error) {
	if !newStatus.Valid() {
		return nil, &InvalidStatusError{Value: string(newStatus)}
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status.Terminal() {
		return nil, &InvalidTransitionError{From: order.Status, To: newStatus}
	}
	if s.cfg.StrictTransitions && !order.Status.CanTransitionTo(newStatus) {
		return nil, &InvalidTransitionError{From: order.Status, To: newStatus}
	}

	now := s.now()
	order.Status = newStatus
	order.UpdatedAt = now

	entry := &domain.StatusHistoryEntry{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Status:    newStatus,
		Note:      note,
		ActorID:   actorID,
		CreatedAt: now,
	}

	if err := s.orderRepo.UpdateStatus(ctx, order, entry); err != nil {
		return nil, err
	}
	order.History = append(order.History, *entry)

	return order, nil
}

// SetTracking records the carrier tracking number on the order
func (s *orderService) SetTracking(ctx context.Context, orderID uuid.UUID, trackingNumber string) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	order.TrackingNumber = trackingNumber
	order.UpdatedAt = s.now()

	if err := s.orderRepo.UpdateStatus(ctx, order, nil); err != nil {
		return nil, err
	}

	return order, nil
}
