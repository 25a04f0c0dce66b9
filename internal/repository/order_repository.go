package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shopline/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateOrderNumber is surfaced when the unique index on
	// order_number rejects an insert; the order service retries with a
	// refreshed daily count.
	ErrDuplicateOrderNumber = errors.New("order number already exists")
	// ErrOrderNotCancellable means the conditional cancellation update
	// matched no row: the order already progressed past pending/confirmed
	// or was cancelled by a concurrent caller.
	ErrOrderNotCancellable = errors.New("order is not cancellable")
)

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	Insert(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByNumber(ctx context.Context, number string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error)
	List(ctx context.Context, status *domain.OrderStatus, page, pageSize int) ([]*domain.Order, int, error)
	CountCreatedBetween(ctx context.Context, start, end time.Time) (int, error)
	// UpdateStatus writes the order's mutable fields and appends the
	// history entry in one transaction. History rows are never updated
	// or deleted.
	UpdateStatus(ctx context.Context, order *domain.Order, entry *domain.StatusHistoryEntry) error
	// ClaimCancellation flips a still-cancellable order to cancelled in
	// a single conditional update; exactly one of several concurrent
	// cancels wins, the rest get ErrOrderNotCancellable.
	ClaimCancellation(ctx context.Context, order *domain.Order, entry *domain.StatusHistoryEntry) error
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Insert persists a new order with its line items and first history entry
// atomically. A duplicate order number maps to ErrDuplicateOrderNumber.
func (r *orderRepository) Insert(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}
	paymentJSON, err := json.Marshal(order.PaymentDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal payment details: %w", err)
	}

	orderQuery := `
		INSERT INTO orders (id, order_number, user_id, shipping_address, payment_method, payment_details,
			subtotal, shipping_cost, tax, discount, total, status, tracking_number,
			is_paid, paid_at, is_delivered, delivered_at, cancelled_at, cancel_reason,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	_, err = tx.ExecContext(
		ctx,
		orderQuery,
		order.ID,
		order.Number,
		order.UserID,
		addressJSON,
		order.PaymentMethod,
		paymentJSON,
		order.Subtotal,
		order.ShippingCost,
		order.Tax,
		order.Discount,
		order.Total,
		order.Status,
		order.TrackingNumber,
		order.IsPaid,
		order.PaidAt,
		order.IsDelivered,
		order.DeliveredAt,
		order.CancelledAt,
		order.CancelReason,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrderNumber
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, name, price, quantity, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i := range order.Items {
		item := &order.Items[i]
		_, err = tx.ExecContext(ctx, itemQuery,
			item.ID, item.OrderID, item.ProductID, item.Name, item.Price, item.Quantity, item.Subtotal)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	historyQuery := `
		INSERT INTO order_status_history (id, order_id, status, note, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for i := range order.History {
		entry := &order.History[i]
		_, err = tx.ExecContext(ctx, historyQuery,
			entry.ID, entry.OrderID, entry.Status, entry.Note, entry.ActorID, entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert status history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order insert: %w", err)
	}

	return nil
}

const orderColumns = `id, order_number, user_id, shipping_address, payment_method, payment_details,
	subtotal, shipping_cost, tax, discount, total, status, tracking_number,
	is_paid, paid_at, is_delivered, delivered_at, cancelled_at, cancel_reason,
	created_at, updated_at`

func scanOrder(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Order, error) {
	order := &domain.Order{}
	var addressJSON, paymentJSON []byte

	err := row.Scan(
		&order.ID,
		&order.Number,
		&order.UserID,
		&addressJSON,
		&order.PaymentMethod,
		&paymentJSON,
		&order.Subtotal,
		&order.ShippingCost,
		&order.Tax,
		&order.Discount,
		&order.Total,
		&order.Status,
		&order.TrackingNumber,
		&order.IsPaid,
		&order.PaidAt,
		&order.IsDelivered,
		&order.DeliveredAt,
		&order.CancelledAt,
		&order.CancelReason,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal(paymentJSON, &order.PaymentDetails); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment details: %w", err)
	}

	return order, nil
}

// FindByID retrieves an order with its line items and status history
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns)
	return r.findOne(ctx, query, id)
}

// FindByNumber retrieves an order by its human-readable order number
func (r *orderRepository) FindByNumber(ctx context.Context, number string) (*domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE order_number = $1`, orderColumns)
	return r.findOne(ctx, query, number)
}

func (r *orderRepository) findOne(ctx context.Context, query string, arg interface{}) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	if err := r.loadHistory(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, order *domain.Order) error {
	query := `
		SELECT id, order_id, product_id, name, price, quantity, subtotal
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item := domain.OrderItem{}
		err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name, &item.Price, &item.Quantity, &item.Subtotal)
		if err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}

	return rows.Err()
}

func (r *orderRepository) loadHistory(ctx context.Context, order *domain.Order) error {
	query := `
		SELECT id, order_id, status, note, actor_id, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load status history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry := domain.StatusHistoryEntry{}
		err := rows.Scan(&entry.ID, &entry.OrderID, &entry.Status, &entry.Note, &entry.ActorID, &entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to scan status history entry: %w", err)
		}
		order.History = append(order.History, entry)
	}

	return rows.Err()
}

// ListByUser retrieves a user's orders, newest first
func (r *orderRepository) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error) {
	countQuery := `SELECT COUNT(*) FROM orders WHERE user_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	offset := (page - 1) * pageSize
	query := fmt.Sprintf(`
		SELECT %s FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, orderColumns)

	return r.list(ctx, query, total, userID, pageSize, offset)
}

// List retrieves orders with optional status filtering, newest first
func (r *orderRepository) List(ctx context.Context, status *domain.OrderStatus, page, pageSize int) ([]*domain.Order, int, error) {
	whereClause := ""
	args := []interface{}{}
	argIndex := 1

	if status != nil {
		whereClause = fmt.Sprintf("WHERE status = $%d", argIndex)
		args = append(args, *status)
		argIndex++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM orders %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	offset := (page - 1) * pageSize
	query := fmt.Sprintf(`
		SELECT %s FROM orders
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, orderColumns, whereClause, argIndex, argIndex+1)
	args = append(args, pageSize, offset)

	return r.list(ctx, query, total, args...)
}

func (r *orderRepository) list(ctx context.Context, query string, total int, args ...interface{}) ([]*domain.Order, int, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating orders: %w", err)
	}

	// Listings carry items for display; history stays detail-view only
	for _, order := range orders {
		if err := r.loadItems(ctx, order); err != nil {
			return nil, 0, err
		}
	}

	return orders, total, nil
}

// CountCreatedBetween counts orders created in [start, end), used by the
// order number generator for the daily sequence.
func (r *orderRepository) CountCreatedBetween(ctx context.Context, start, end time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM orders WHERE created_at >= $1 AND created_at < $2`

	var count int
	if err := r.db.QueryRowContext(ctx, query, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count orders between: %w", err)
	}

	return count, nil
}

// UpdateStatus patches the order's mutable fields and appends the history
// entry atomically. The order number and line items are immutable.
func (r *orderRepository) UpdateStatus(ctx context.Context, order *domain.Order, entry *domain.StatusHistoryEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	paymentJSON, err := json.Marshal(order.PaymentDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal payment details: %w", err)
	}

	query := `
		UPDATE orders
		SET status = $2, payment_details = $3, tracking_number = $4,
		    is_paid = $5, paid_at = $6, is_delivered = $7, delivered_at = $8,
		    cancelled_at = $9, cancel_reason = $10, updated_at = $11
		WHERE id = $1
	`

	result, err := tx.ExecContext(
		ctx,
		query,
		order.ID,
		order.Status,
		paymentJSON,
		order.TrackingNumber,
		order.IsPaid,
		order.PaidAt,
		order.IsDelivered,
		order.DeliveredAt,
		order.CancelledAt,
		order.CancelReason,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	if entry != nil {
		historyQuery := `
			INSERT INTO order_status_history (id, order_id, status, note, actor_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		_, err = tx.ExecContext(ctx, historyQuery,
			entry.ID, entry.OrderID, entry.Status, entry.Note, entry.ActorID, entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to append status history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order update: %w", err)
	}

	return nil
}

// ClaimCancellation cancels the order only while it is still pending or
// confirmed. The status guard lives in the UPDATE itself, so two
// concurrent cancels cannot both win and double-credit stock.
func (r *orderRepository) ClaimCancellation(ctx context.Context, order *domain.Order, entry *domain.StatusHistoryEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE orders
		SET status = $2, cancelled_at = $3, cancel_reason = $4, updated_at = $5
		WHERE id = $1 AND status IN ('pending', 'confirmed')
	`

	result, err := tx.ExecContext(
		ctx,
		query,
		order.ID,
		order.Status,
		order.CancelledAt,
		order.CancelReason,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to claim cancellation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var exists bool
		err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check order existence: %w", err)
		}
		if !exists {
			return ErrOrderNotFound
		}
		return ErrOrderNotCancellable
	}

	if entry != nil {
		historyQuery := `
			INSERT INTO order_status_history (id, order_id, status, note, actor_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		_, err = tx.ExecContext(ctx, historyQuery,
			entry.ID, entry.OrderID, entry.Status, entry.Note, entry.ActorID, entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to append status history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}

	return nil
}
