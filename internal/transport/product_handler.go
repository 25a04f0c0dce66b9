package transport

import (
	"errors"
	"net/http"

	"shopline/internal/domain"
	"shopline/internal/middleware"
	"shopline/internal/repository"
	"shopline/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductRequest represents a product create/update payload
type ProductRequest struct {
	Name        map[string]string `json:"name" validate:"required,min=1"`
	Description map[string]string `json:"description"`
	Price       string            `json:"price" validate:"required"`
	Category    string            `json:"category" validate:"required,oneof=electronics clothing books home sports other"`
	Tag         string            `json:"tag"`
	ImageURL    string            `json:"image_url"`
	Stock       int               `json:"stock" validate:"gte=0"`
	MinStock    int               `json:"min_stock" validate:"gte=0"`
}

// ProductListResponse is a paginated product listing
type ProductListResponse struct {
	Products []*domain.Product `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// ProductHandler handles HTTP requests for catalog operations
type ProductHandler struct {
	catalogService service.CatalogService
	logger         *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(catalogService service.CatalogService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		catalogService: catalogService,
		logger:         logger,
	}
}

// RegisterRoutes registers all product routes
func (h *ProductHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/products", func(r chi.Router) {
		// Public routes
		r.Get("/", h.List)
		r.Get("/search", h.Search)
		r.Get("/{id}", h.Get)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(adminMiddleware)
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}

func (h *ProductHandler) respondProductError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, service.ErrNegativePrice),
		errors.Is(err, service.ErrNegativeStock),
		errors.Is(err, service.ErrInvalidCategory):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Product operation failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *ProductHandler) decodeProduct(w http.ResponseWriter, r *http.Request) (*domain.Product, bool) {
	var req ProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return nil, false
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid price")
		return nil, false
	}

	product := &domain.Product{
		Name:        domain.LocalizedText(req.Name),
		Description: domain.LocalizedText(req.Description),
		Price:       price,
		Category:    domain.ProductCategory(req.Category),
		Tag:         domain.ProductTag(req.Tag),
		ImageURL:    req.ImageURL,
		Stock:       req.Stock,
		MinStock:    req.MinStock,
	}
	if product.Tag == "" {
		product.Tag = domain.TagNone
	}

	return product, true
}

// Create handles product creation (admin only)
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	product, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	if err := h.catalogService.CreateProduct(r.Context(), product); err != nil {
		h.respondProductError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

// Update handles product updates (admin only)
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	product, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}
	product.ID = id

	updated, err := h.catalogService.UpdateProduct(r.Context(), product)
	if err != nil {
		h.respondProductError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, updated)
}

// Delete handles product deletion (admin only)
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := h.catalogService.DeleteProduct(r.Context(), id); err != nil {
		h.respondProductError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

// Get returns a single product
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	product, err := h.catalogService.GetProduct(r.Context(), id)
	if err != nil {
		h.respondProductError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// List returns products with optional category filter, pagination and sorting
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)

	var category *domain.ProductCategory
	if c := r.URL.Query().Get("category"); c != "" {
		cat := domain.ProductCategory(c)
		if !cat.Valid() {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid category filter")
			return
		}
		category = &cat
	}

	sortBy := r.URL.Query().Get("sort_by")
	sortOrder := repository.SortOrder(r.URL.Query().Get("sort_order"))

	products, total, err := h.catalogService.ListProducts(r.Context(), category, page, pageSize, sortBy, sortOrder)
	if err != nil {
		h.respondProductError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ProductListResponse{
		Products: products,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// Search searches localized product names and descriptions
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	query := r.URL.Query().Get("q")
	locale := r.URL.Query().Get("locale")

	products, total, err := h.catalogService.SearchProducts(r.Context(), locale, query, page, pageSize)
	if err != nil {
		h.respondProductError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ProductListResponse{
		Products: products,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}
