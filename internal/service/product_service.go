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

// Pagination is the metadata returned with every paginated collection.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NewPagination computes page metadata, clamping page and limit to sane
// defaults (page 1, limit 10).
func NewPagination(page, limit, total int) Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// ProductListParams are the catalog query parameters.
type ProductListParams struct {
	Search         string
	Category       string
	IncludeDeleted bool
	Page           int
	Limit          int
}

// ProductInput is the payload for creating a product or bulk-import entries.
type ProductInput struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price" validate:"required"`
	Category    string          `json:"category"`
	Weight      decimal.Decimal `json:"weight"`
	Stock       int             `json:"stock" validate:"gte=0"`
	Images      []string        `json:"images"`
}

// ProductUpdateInput is a partial update; nil fields are left unchanged.
type ProductUpdateInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    *string          `json:"category"`
	Weight      *decimal.Decimal `json:"weight"`
	Stock       *int             `json:"stock"`
	Images      *[]string        `json:"images"`
	IsDeleted   *bool            `json:"is_deleted"`
}

// ProductService defines the interface for catalog business logic.
type ProductService interface {
	List(ctx context.Context, params ProductListParams) ([]*domain.Product, Pagination, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	AdminList(ctx context.Context, params ProductListParams) ([]*domain.Product, Pagination, error)
	AdminGet(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	Create(ctx context.Context, input ProductInput) (*domain.Product, error)
	Update(ctx context.Context, id uuid.UUID, input ProductUpdateInput) (*domain.Product, error)
	Delete(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	BulkImport(ctx context.Context, inputs []ProductInput) (int, error)
}

type productService struct {
	productRepo repository.ProductRepository
	logger      *zap.Logger
}

// NewProductService creates a new instance of ProductService.
func NewProductService(productRepo repository.ProductRepository, logger *zap.Logger) ProductService {
	return &productService{
		productRepo: productRepo,
		logger:      logger,
	}
}

// List returns storefront products: soft-deleted rows are always excluded
// and slug is not searched.
func (s *productService) List(ctx context.Context, params ProductListParams) ([]*domain.Product, Pagination, error) {
	pagination := NewPagination(params.Page, params.Limit, 0)

	products, total, err := s.productRepo.List(ctx, repository.ProductFilter{
		Search:   params.Search,
		Category: normalizeCategory(params.Category),
		Page:     pagination.Page,
		Limit:    pagination.Limit,
	})
	if err != nil {
		return nil, Pagination{}, err
	}

	return products, NewPagination(pagination.Page, pagination.Limit, total), nil
}

// Get returns one storefront product; soft-deleted products look absent.
func (s *productService) Get(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id, false)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, &NotFoundError{Resource: "product", ID: id.String()}
		}
		return nil, err
	}
	return product, nil
}

// AdminList returns catalog products for the admin tree, optionally
// including soft-deleted rows and matching slugs in search.
func (s *productService) AdminList(ctx context.Context, params ProductListParams) ([]*domain.Product, Pagination, error) {
	pagination := NewPagination(params.Page, params.Limit, 0)

	products, total, err := s.productRepo.List(ctx, repository.ProductFilter{
		Search:         params.Search,
		Category:       normalizeCategory(params.Category),
		IncludeDeleted: params.IncludeDeleted,
		AdminSearch:    true,
		Page:           pagination.Page,
		Limit:          pagination.Limit,
	})
	if err != nil {
		return nil, Pagination{}, err
	}

	return products, NewPagination(pagination.Page, pagination.Limit, total), nil
}

// AdminGet returns one product regardless of its soft-delete flag.
func (s *productService) AdminGet(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id, true)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, &NotFoundError{Resource: "product", ID: id.String()}
		}
		return nil, err
	}
	return product, nil
}

// Create inserts a new product with a slug derived from its name.
func (s *productService) Create(ctx context.Context, input ProductInput) (*domain.Product, error) {
	if err := validateProductInput(input); err != nil {
		return nil, err
	}

	product := &domain.Product{
		ID:          uuid.New(),
		Name:        input.Name,
		Slug:        domain.Slugify(input.Name),
		Description: input.Description,
		Price:       input.Price,
		Category:    input.Category,
		Weight:      input.Weight,
		Stock:       input.Stock,
		Images:      input.Images,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if product.Images == nil {
		product.Images = []string{}
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		if errors.Is(err, repository.ErrSlugTaken) {
			return nil, &ValidationError{Message: "product with this name already exists"}
		}
		return nil, err
	}

	return product, nil
}

// Update applies a partial update. The slug is fixed at creation and does
// not follow later renames, so existing storefront links keep working.
func (s *productService) Update(ctx context.Context, id uuid.UUID, input ProductUpdateInput) (*domain.Product, error) {
	product, err := s.AdminGet(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		product.Name = *input.Name
	}
	if input.Description != nil {
		product.Description = *input.Description
	}
	if input.Price != nil {
		product.Price = *input.Price
	}
	if input.Category != nil {
		product.Category = *input.Category
	}
	if input.Weight != nil {
		product.Weight = *input.Weight
	}
	if input.Stock != nil {
		product.Stock = *input.Stock
	}
	if input.Images != nil {
		product.Images = *input.Images
	}
	if input.IsDeleted != nil {
		product.IsDeleted = *input.IsDeleted
	}

	if product.Name == "" {
		return nil, &ValidationError{Message: "name is required"}
	}
	if !product.Price.IsPositive() {
		return nil, &ValidationError{Message: "price must be greater than zero"}
	}
	if product.Stock < 0 {
		return nil, &ValidationError{Message: "stock cannot be negative"}
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, &NotFoundError{Resource: "product", ID: id.String()}
		}
		return nil, err
	}

	return product, nil
}

// Delete soft-deletes a product and returns its final state.
func (s *productService) Delete(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	if err := s.productRepo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, &NotFoundError{Resource: "product", ID: id.String()}
		}
		return nil, err
	}

	return s.AdminGet(ctx, id)
}

// BulkImport creates products from a list of payloads. Invalid entries are
// skipped; the returned count is how many were actually created.
func (s *productService) BulkImport(ctx context.Context, inputs []ProductInput) (int, error) {
	if len(inputs) == 0 {
		return 0, &ValidationError{Message: "no products provided"}
	}

	imported := 0
	for i, input := range inputs {
		if _, err := s.Create(ctx, input); err != nil {
			var validationErr *ValidationError
			if errors.As(err, &validationErr) {
				s.logger.Warn("Skipping invalid product in bulk import",
					zap.Int("index", i),
					zap.String("name", input.Name),
					zap.Error(err),
				)
				continue
			}
			return imported, fmt.Errorf("bulk import failed at entry %d: %w", i, err)
		}
		imported++
	}

	return imported, nil
}

func validateProductInput(input ProductInput) error {
	if input.Name == "" {
		return &ValidationError{Message: "name is required"}
	}
	if !input.Price.IsPositive() {
		return &ValidationError{Message: "price must be greater than zero"}
	}
	if input.Stock < 0 {
		return &ValidationError{Message: "stock cannot be negative"}
	}
	return nil
}

// normalizeCategory treats the admin UI's "All" sentinel as no filter.
func normalizeCategory(category string) string {
	if category == "All" {
		return ""
	}
	return category
}
