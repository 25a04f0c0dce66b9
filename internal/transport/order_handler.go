package transport

import (
	"errors"
	"net/http"
	"strconv"

	"shopline/internal/domain"
	"shopline/internal/middleware"
	"shopline/internal/repository"
	"shopline/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderItemRequest is one line of a place-order request
type OrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// ShippingAddressRequest is the destination block of a place-order request
type ShippingAddressRequest struct {
	FullName   string `json:"full_name" validate:"required"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
	Phone      string `json:"phone"`
}

// CreateOrderRequest represents the place-order payload
type CreateOrderRequest struct {
	Items           []OrderItemRequest     `json:"items" validate:"required,min=1,dive"`
	ShippingAddress ShippingAddressRequest `json:"shipping_address" validate:"required"`
	PaymentMethod   string                 `json:"payment_method" validate:"required,oneof=card paypal bank_transfer cash_on_delivery"`
}

// CancelOrderRequest carries the cancellation reason
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// PayOrderRequest carries the provider payment confirmation
type PayOrderRequest struct {
	TransactionID string `json:"transaction_id" validate:"required"`
	Provider      string `json:"provider" validate:"required"`
}

// TransitionStatusRequest moves an order to an arbitrary listed status
type TransitionStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note"`
}

// TrackingRequest sets the carrier tracking number
type TrackingRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"required"`
}

// OrderListResponse is a paginated order listing
type OrderListResponse struct {
	Orders   []*domain.Order `json:"orders"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// OrderHandler handles HTTP requests for order operations
type OrderHandler struct {
	orderService service.OrderService
	logger       *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// RegisterRoutes registers all order routes
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware, rateLimitMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(rateLimitMiddleware)
			r.Post("/", h.Create)
		})

		r.Get("/", h.ListMine)
		r.Get("/number/{number}", h.GetByNumber)
		r.Get("/{id}", h.GetByID)
		r.Post("/{id}/cancel", h.Cancel)
		r.Post("/{id}/pay", h.Pay)

		// Admin operations
		r.Group(func(r chi.Router) {
			r.Use(adminMiddleware)
			r.Get("/all", h.ListAll)
			r.Post("/{id}/deliver", h.Deliver)
			r.Patch("/{id}/status", h.TransitionStatus)
			r.Put("/{id}/tracking", h.SetTracking)
		})
	})
}

func (h *OrderHandler) requestUser(r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := middleware.GetUserID(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, false
	}
	return userID, true
}

func (h *OrderHandler) isAdmin(r *http.Request) bool {
	role, ok := middleware.GetUserRole(r.Context())
	return ok && role == "admin"
}

func orderID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

// respondOrderError maps core errors onto HTTP status codes
func (h *OrderHandler) respondOrderError(w http.ResponseWriter, err error) {
	var insufficientStock *repository.InsufficientStockError
	var notCancellable *service.NotCancellableError
	var invalidStatus *service.InvalidStatusError
	var invalidTransition *service.InvalidTransitionError

	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
	case errors.As(err, &insufficientStock):
		middleware.RespondWithErrorDetails(w, http.StatusConflict, "insufficient stock", map[string]interface{}{
			"product_id": insufficientStock.ProductID.String(),
			"requested":  insufficientStock.Requested,
			"available":  insufficientStock.Available,
		})
	case errors.As(err, &notCancellable):
		middleware.RespondWithErrorDetails(w, http.StatusConflict, "order cannot be cancelled", map[string]interface{}{
			"status": string(notCancellable.Status),
		})
	case errors.As(err, &invalidStatus):
		middleware.RespondWithError(w, http.StatusBadRequest, invalidStatus.Error())
	case errors.As(err, &invalidTransition):
		middleware.RespondWithError(w, http.StatusConflict, invalidTransition.Error())
	case errors.Is(err, service.ErrAlreadyPaid):
		middleware.RespondWithError(w, http.StatusConflict, "order is already paid")
	case errors.Is(err, service.ErrAlreadyDelivered):
		middleware.RespondWithError(w, http.StatusConflict, "order is already delivered")
	case errors.Is(err, service.ErrEmptyOrder), errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidPaymentMethod):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrOrderNumberExhausted):
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "could not allocate order number, please retry")
	default:
		h.logger.Error("Order operation failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

// Create handles order placement
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUser(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]service.ReservationItem, 0, len(req.Items))
	for _, item := range req.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
			return
		}
		items = append(items, service.ReservationItem{ProductID: productID, Quantity: item.Quantity})
	}

	address := domain.ShippingAddress{
		FullName:   req.ShippingAddress.FullName,
		Line1:      req.ShippingAddress.Line1,
		Line2:      req.ShippingAddress.Line2,
		City:       req.ShippingAddress.City,
		PostalCode: req.ShippingAddress.PostalCode,
		Country:    req.ShippingAddress.Country,
		Phone:      req.ShippingAddress.Phone,
	}

	order, err := h.orderService.Create(r.Context(), userID, items, address, domain.PaymentMethod(req.PaymentMethod))
	if err != nil {
		h.respondOrderError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, order)
}

// GetByID returns a single order; users can only see their own orders
func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.orderService.GetByID(r.Context(), id)
	if err != nil {
		h.respondOrderError(w, err)
		return
	}

	userID, ok := h.requestUser(r)
	if !ok || (order.UserID != userID && !h.isAdmin(r)) {
		middleware.RespondWithError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// GetByNumber returns a single order looked up by its order number
func (h *OrderHandler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	order, err := h.orderService.GetByNumber(r.Context(), number)
	if err != nil {
		h.respondOrderError(w, err)
		return
	}

	userID, ok := h.requestUser(r)
	if !ok || (order.UserID != userID && !h.isAdmin(r)) {
		middleware.RespondWithError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, order)
}

func pagination(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// ListMine returns the authenticated user's orders
func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUser(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	page, pageSize := pagination(r)
	orders, total, err := h.orderService.ListByUser(r.Context(), userID, page, pageSize)
	if err != nil {
		h.respondOrderError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, OrderListResponse{
		Orders:   orders,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// ListAll returns all orders with optional status filtering (admin only)
func (h *OrderHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)

	var status *domain.OrderStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.OrderStatus(s)
		if !st.Valid() {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		status = &st
	}

	orders, total, err := h.orderService.List(r.Context(), status, page, pageSize)
	if err != nil {
		h.respondOrderError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, OrderListResponse{
		Orders:   orders,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// Cancel handles order cancellation by the owner or an admin
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req CancelOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, ok := h.requestUser(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	order, err := h.orderService.GetByID(r.Context(), id)
	if err != nil {
		h.respondOrderError(w, err)
		return
	}
	if order.UserID != userID && !h.isAdmin(r) {
		middleware.RespondWithError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	cancelled, err := h.orderService.Cancel(r.Context(), id, req.Reason, &userID)
	if err != nil {
		h.respondOrderError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, cancelled)
}

// Pay records a payment confirmation on the order
func (h *OrderHandler) Pay(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req PayOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, ok := h.requestUser(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	order, err := h.orderService.GetByID(r.Context(), id)
	if err != nil {
		h.respondOrderError(w, err)
		return
	}
	if order.UserID != userID && !h.isAdmin(r) {
		middleware.RespondWithError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	paid, err := h.orderService.MarkPaid(r.Context(), id, domain.PaymentDetails{
		TransactionID: req.TransactionID,
		Provider:      req.Provider,
	})
	if err != nil {
		h.respondOrderError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, paid)
}

// Deliver marks an order as delivered (admin only)
func (h *OrderHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.orderService.MarkDelivered(r.Context(), id)
	if err != nil {
		h.respondOrderError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// TransitionStatus moves an order to an arbitrary listed status (admin only)
func (h *OrderHandler) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req TransitionStatusRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actorID, _ := h.requestUser(r)

	order, err := h.orderService.TransitionStatus(r.Context(), id, domain.OrderStatus(req.Status), req.Note, &actorID)
	if err != nil {
		h.respondOrderError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// SetTracking records the carrier tracking number (admin only)
func (h *OrderHandler) SetTracking(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req TrackingRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.orderService.SetTracking(r.Context(), id, req.TrackingNumber)
	if err != nil {
		h.respondOrderError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, order)
}
