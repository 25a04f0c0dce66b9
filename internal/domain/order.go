package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Valid reports whether the status is one of the six known values
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is defined from this status
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// adjacentTransitions is the strict forward path plus cancellation
// from the two early states.
var adjacentTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// CanTransitionTo reports whether moving to next is an adjacent transition
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range adjacentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentMethod is the fixed set of accepted payment methods
type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodPaypal         PaymentMethod = "paypal"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// Valid reports whether the payment method is one of the accepted set
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodPaypal, PaymentMethodBankTransfer, PaymentMethodCashOnDelivery:
		return true
	}
	return false
}

// ShippingAddress is the destination for an order, stored as JSONB
type ShippingAddress struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// PaymentDetails holds provider data recorded when an order is paid,
// stored as JSONB
type PaymentDetails struct {
	TransactionID string     `json:"transaction_id,omitempty"`
	Provider      string     `json:"provider,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

// OrderItem is a line item with the name and price captured at purchase
// time so later catalog edits cannot change historical totals.
type OrderItem struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	OrderID   uuid.UUID       `json:"order_id" db:"order_id"`
	ProductID uuid.UUID       `json:"product_id" db:"product_id"`
	Name      string          `json:"name" db:"name"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Quantity  int             `json:"quantity" db:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal" db:"subtotal"`
}

// StatusHistoryEntry is one append-only audit record of a status change
type StatusHistoryEntry struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	OrderID   uuid.UUID   `json:"order_id" db:"order_id"`
	Status    OrderStatus `json:"status" db:"status"`
	Note      string      `json:"note,omitempty" db:"note"`
	ActorID   *uuid.UUID  `json:"actor_id,omitempty" db:"actor_id"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// Order represents a customer order with its line items and audit trail
type Order struct {
	ID              uuid.UUID            `json:"id" db:"id"`
	Number          string               `json:"number" db:"order_number"`
	UserID          uuid.UUID            `json:"user_id" db:"user_id"`
	Items           []OrderItem          `json:"items"`
	ShippingAddress ShippingAddress      `json:"shipping_address"`
	PaymentMethod   PaymentMethod        `json:"payment_method" db:"payment_method"`
	PaymentDetails  PaymentDetails       `json:"payment_details"`
	Subtotal        decimal.Decimal      `json:"subtotal" db:"subtotal"`
	ShippingCost    decimal.Decimal      `json:"shipping_cost" db:"shipping_cost"`
	Tax             decimal.Decimal      `json:"tax" db:"tax"`
	Discount        decimal.Decimal      `json:"discount" db:"discount"`
	Total           decimal.Decimal      `json:"total" db:"total"`
	Status          OrderStatus          `json:"status" db:"status"`
	History         []StatusHistoryEntry `json:"history"`
	TrackingNumber  string               `json:"tracking_number,omitempty" db:"tracking_number"`
	IsPaid          bool                 `json:"is_paid" db:"is_paid"`
	PaidAt          *time.Time           `json:"paid_at,omitempty" db:"paid_at"`
	IsDelivered     bool                 `json:"is_delivered" db:"is_delivered"`
	DeliveredAt     *time.Time           `json:"delivered_at,omitempty" db:"delivered_at"`
	CancelledAt     *time.Time           `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelReason    string               `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedAt       time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at" db:"updated_at"`
}

// Cancellable reports whether the order may still be cancelled
func (o *Order) Cancellable() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// RecomputeTotal recalculates the order total from the pricing breakdown.
// Must be called whenever any pricing field changes.
func (o *Order) RecomputeTotal() {
	o.Total = o.Subtotal.Add(o.ShippingCost).Add(o.Tax).Sub(o.Discount)
}
