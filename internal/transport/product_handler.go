package transport

import (
	"fmt"
	"net/http"

	"shopline/internal/domain"
	"shopline/internal/middleware"
	"shopline/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProductListResponse pairs a product page with its pagination metadata.
type ProductListResponse struct {
	Products   []*domain.Product  `json:"products"`
	Pagination service.Pagination `json:"pagination"`
}

// BulkImportRequest is the bulk import payload.
type BulkImportRequest struct {
	Products []service.ProductInput `json:"products"`
}

// ProductHandler handles HTTP requests for the catalog.
type ProductHandler struct {
	productService service.ProductService
	logger         *zap.Logger
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(productService service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		logger:         logger,
	}
}

// RegisterRoutes registers the public catalog routes.
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
	})
}

// RegisterAdminRoutes registers the admin catalog routes. The caller is
// responsible for wrapping them in auth + admin middleware.
func (h *ProductHandler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.AdminList)
		r.Post("/", h.Create)
		r.Post("/import", h.BulkImport)
		r.Get("/{id}", h.AdminGet)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

func listParams(r *http.Request) service.ProductListParams {
	q := r.URL.Query()
	return service.ProductListParams{
		Search:         q.Get("search"),
		Category:       q.Get("category"),
		IncludeDeleted: q.Get("includeDeleted") == "true",
		Page:           queryInt(r, "page", 1),
		Limit:          queryInt(r, "limit", 10),
	}
}

// List returns the storefront catalog page.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	params := listParams(r)
	params.IncludeDeleted = false

	products, pagination, err := h.productService.List(r.Context(), params)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ProductListResponse{Products: products, Pagination: pagination})
}

// Get returns one storefront product.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	product, err := h.productService.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]*domain.Product{"product": product})
}

// AdminList returns the admin catalog page, optionally with soft-deleted
// products.
func (h *ProductHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	products, pagination, err := h.productService.AdminList(r.Context(), listParams(r))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ProductListResponse{Products: products, Pagination: pagination})
}

// AdminGet returns one product regardless of its soft-delete flag.
func (h *ProductHandler) AdminGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	product, err := h.productService.AdminGet(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]*domain.Product{"product": product})
}

// Create handles new product creation.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.ProductInput
	if err := middleware.DecodeAndValidate(r, &input); err != nil {
		h.logger.Debug("Product validation failed", zap.Error(err))
		respondDecodeError(w, err)
		return
	}

	product, err := h.productService.Create(r.Context(), input)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("slug", product.Slug),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

// Update applies a partial product update.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var input service.ProductUpdateInput
	if err := middleware.DecodeAndValidate(r, &input); err != nil {
		respondDecodeError(w, err)
		return
	}

	product, err := h.productService.Update(r.Context(), id, input)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// Delete soft-deletes a product.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	product, err := h.productService.Delete(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("Product soft-deleted", zap.String("product_id", id.String()))
	middleware.RespondWithJSON(w, http.StatusOK, map[string]any{
		"message": "Product deleted successfully",
		"product": product,
	})
}

// BulkImport creates products from a list, skipping invalid entries.
func (h *ProductHandler) BulkImport(w http.ResponseWriter, r *http.Request) {
	var req BulkImportRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	count, err := h.productService.BulkImport(r.Context(), req.Products)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("Products imported", zap.Int("count", count))
	middleware.RespondWithJSON(w, http.StatusCreated, map[string]any{
		"message": fmt.Sprintf("%d products imported successfully", count),
		"count":   count,
	})
}
