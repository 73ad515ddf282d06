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

// OrderItemInput is one requested cart line.
type OrderItemInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

// PlaceOrderInput is the payload for placing an order.
type PlaceOrderInput struct {
	Items           []OrderItemInput       `json:"items" validate:"required,min=1,dive"`
	ShippingAddress domain.ShippingAddress `json:"shipping_address" validate:"required"`
}

// OrderListParams are the admin order query parameters.
type OrderListParams struct {
	Search string
	Status string
	Page   int
	Limit  int
}

// RecentOrder is a dashboard row: an order with its customer denormalized.
type RecentOrder struct {
	ID          uuid.UUID          `json:"id"`
	OrderID     string             `json:"order_id"`
	User        RecentOrderUser    `json:"user"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Status      domain.OrderStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
}

type RecentOrderUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// DashboardStats is the admin dashboard aggregation.
type DashboardStats struct {
	TotalOrders    int                      `json:"total_orders"`
	PendingOrders  int                      `json:"pending_orders"`
	TotalRevenue   decimal.Decimal          `json:"total_revenue"`
	TotalProducts  int                      `json:"total_products"`
	OrdersByStatus []repository.StatusCount `json:"orders_by_status"`
	RecentOrders   []RecentOrder            `json:"recent_orders"`
}

// OrderService defines the interface for the order workflow and its admin
// operations.
type OrderService interface {
	Place(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*domain.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error)
	AdminList(ctx context.Context, params OrderListParams) ([]*domain.Order, Pagination, error)
	AdminGet(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*domain.Order, error)
	AddNote(ctx context.Context, orderID uuid.UUID, note string) (*domain.AdminNote, error)
	Export(ctx context.Context, ids []uuid.UUID) ([]*domain.Order, error)
	DashboardStats(ctx context.Context) (*DashboardStats, error)
}

type orderService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	logger      *zap.Logger
}

// NewOrderService creates a new instance of OrderService.
func NewOrderService(orderRepo repository.OrderRepository, productRepo repository.ProductRepository, logger *zap.Logger) OrderService {
	return &orderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		logger:      logger,
	}
}

// Place runs the order workflow: validate the cart, check stock, snapshot
// prices, compute the exact decimal total, and persist the order, its items,
// and the stock decrements in one transaction. Any failure leaves the store
// unchanged.
func (s *orderService) Place(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*domain.Order, error) {
	if err := validatePlaceOrderInput(input); err != nil {
		return nil, err
	}

	now := time.Now()
	order := &domain.Order{
		ID:              uuid.New(),
		OrderID:         domain.NewOrderID(now),
		UserID:          userID,
		Status:          domain.StatusPending,
		ShippingAddress: input.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// A product may appear on several lines; stock must cover the sum
	required := make(map[uuid.UUID]int, len(input.Items))
	for _, line := range input.Items {
		required[line.ProductID] += line.Quantity
	}

	total := decimal.Zero
	items := make([]domain.OrderItem, 0, len(input.Items))
	fetched := make(map[uuid.UUID]*domain.Product, len(required))

	for _, line := range input.Items {
		product, ok := fetched[line.ProductID]
		if !ok {
			var err error
			product, err = s.productRepo.FindByID(ctx, line.ProductID, false)
			if err != nil {
				if errors.Is(err, repository.ErrProductNotFound) {
					return nil, &NotFoundError{Resource: "product", ID: line.ProductID.String()}
				}
				return nil, err
			}
			fetched[line.ProductID] = product
		}

		if product.Stock < required[line.ProductID] {
			return nil, &InsufficientStockError{ProductName: product.Name, Available: product.Stock}
		}

		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))

		productID := product.ID
		items = append(items, domain.OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   &productID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			Price:       product.Price,
		})
	}

	order.TotalAmount = total

	if err := s.orderRepo.CreateWithItems(ctx, order, items); err != nil {
		if errors.Is(err, repository.ErrInsufficientStock) {
			// A concurrent order won the stock between our check and the
			// conditional decrement; report the current availability.
			return nil, s.stockErrorFor(ctx, items, err)
		}
		return nil, err
	}

	s.logger.Info("Order placed",
		zap.String("order_id", order.OrderID),
		zap.String("user_id", userID.String()),
		zap.String("total", order.TotalAmount.String()),
	)

	return order, nil
}

// ListForUser returns the user's own orders.
func (s *orderService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	return s.orderRepo.ListByUser(ctx, userID)
}

// GetForUser returns one order, treating another user's order as absent.
func (s *orderService) GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, &NotFoundError{Resource: "order"}
		}
		return nil, err
	}

	if order.UserID != userID {
		return nil, &NotFoundError{Resource: "order"}
	}

	return order, nil
}

// AdminList returns orders matching the filter with pagination.
func (s *orderService) AdminList(ctx context.Context, params OrderListParams) ([]*domain.Order, Pagination, error) {
	if params.Status != "" && !domain.OrderStatus(params.Status).Valid() {
		return nil, Pagination{}, &ValidationError{Message: "invalid status"}
	}

	pagination := NewPagination(params.Page, params.Limit, 0)

	orders, total, err := s.orderRepo.List(ctx, repository.OrderFilter{
		Search: params.Search,
		Status: domain.OrderStatus(params.Status),
		Page:   pagination.Page,
		Limit:  pagination.Limit,
	})
	if err != nil {
		return nil, Pagination{}, err
	}

	return orders, NewPagination(pagination.Page, pagination.Limit, total), nil
}

// AdminGet returns any order by ID.
func (s *orderService) AdminGet(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, &NotFoundError{Resource: "order"}
		}
		return nil, err
	}
	return order, nil
}

// UpdateStatus overwrites the order status. Only enum membership is
// enforced; any valid status may replace any other.
func (s *orderService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*domain.Order, error) {
	newStatus := domain.OrderStatus(status)
	if !newStatus.Valid() {
		return nil, &ValidationError{Message: "invalid status"}
	}

	if err := s.orderRepo.UpdateStatus(ctx, id, newStatus); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, &NotFoundError{Resource: "order"}
		}
		return nil, err
	}

	return s.AdminGet(ctx, id)
}

// AddNote appends an admin note to an order.
func (s *orderService) AddNote(ctx context.Context, orderID uuid.UUID, note string) (*domain.AdminNote, error) {
	if note == "" {
		return nil, &ValidationError{Message: "note is required"}
	}

	// Confirm the order exists before writing the note
	if _, err := s.AdminGet(ctx, orderID); err != nil {
		return nil, err
	}

	adminNote := &domain.AdminNote{
		ID:        uuid.New(),
		OrderID:   orderID,
		Note:      note,
		CreatedAt: time.Now(),
	}

	if err := s.orderRepo.AddNote(ctx, adminNote); err != nil {
		return nil, err
	}

	return adminNote, nil
}

// Export returns the orders to serialize as CSV: the given ones, or all
// orders when ids is empty.
func (s *orderService) Export(ctx context.Context, ids []uuid.UUID) ([]*domain.Order, error) {
	return s.orderRepo.ListByIDs(ctx, ids)
}

// DashboardStats aggregates order counts, revenue, the per-status breakdown,
// the active product count, and the five most recent orders.
func (s *orderService) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	total, byStatus, err := s.orderRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	revenue, err := s.orderRepo.TotalRevenue(ctx)
	if err != nil {
		return nil, err
	}

	totalProducts, err := s.productRepo.CountActive(ctx)
	if err != nil {
		return nil, err
	}

	recent, err := s.orderRepo.ListRecent(ctx, 5)
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{
		TotalOrders:    total,
		TotalRevenue:   revenue,
		TotalProducts:  totalProducts,
		OrdersByStatus: byStatus,
		RecentOrders:   make([]RecentOrder, 0, len(recent)),
	}

	for _, entry := range byStatus {
		if entry.Status == domain.StatusPending {
			stats.PendingOrders = entry.Count
		}
	}

	for _, order := range recent {
		stats.RecentOrders = append(stats.RecentOrders, RecentOrder{
			ID:          order.ID,
			OrderID:     order.OrderID,
			User:        RecentOrderUser{Name: order.UserName, Email: order.UserEmail},
			TotalAmount: order.TotalAmount,
			Status:      order.Status,
			CreatedAt:   order.CreatedAt,
		})
	}

	return stats, nil
}

// stockErrorFor rebuilds a stock error with fresh availability after the
// transactional decrement failed. It always reports a stock error, never
// the raw cause: the decrement only aborts on insufficient stock.
func (s *orderService) stockErrorFor(ctx context.Context, items []domain.OrderItem, cause error) error {
	required := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.ProductID != nil {
			required[*item.ProductID] += item.Quantity
		}
	}

	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		product, err := s.productRepo.FindByID(ctx, *item.ProductID, false)
		if err != nil {
			// Deleted or vanished since the pre-check; nothing is available
			return &InsufficientStockError{ProductName: item.ProductName, Available: 0}
		}
		if product.Stock < required[*item.ProductID] {
			return &InsufficientStockError{ProductName: product.Name, Available: product.Stock}
		}
	}

	// Stock moved again between the rollback and the re-read; report the
	// first line rather than leak an internal error.
	s.logger.Warn("Stock availability changed during retry read", zap.Error(cause))
	return &InsufficientStockError{ProductName: items[0].ProductName, Available: 0}
}

func validatePlaceOrderInput(input PlaceOrderInput) error {
	if len(input.Items) == 0 {
		return &ValidationError{Message: "items cannot be empty"}
	}
	for _, line := range input.Items {
		if line.Quantity <= 0 {
			return &ValidationError{Message: "quantity must be greater than zero"}
		}
	}

	addr := input.ShippingAddress
	required := []struct {
		field string
		value string
	}{
		{"full_name", addr.FullName},
		{"address", addr.Address},
		{"city", addr.City},
		{"postal_code", addr.PostalCode},
		{"country", addr.Country},
		{"phone", addr.Phone},
	}
	for _, f := range required {
		if f.value == "" {
			return &ValidationError{Message: fmt.Sprintf("%s is required", f.field)}
		}
	}

	return nil
}
