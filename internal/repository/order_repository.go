package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"shopline/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrInsufficientStock is returned when the conditional stock decrement
	// affects no rows, meaning another order consumed the stock first.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// OrderFilter narrows admin order listings. Search matches the order
// identifier and the customer email case-insensitively.
type OrderFilter struct {
	Search string
	Status domain.OrderStatus
	Page   int
	Limit  int
}

// StatusCount is one entry of the dashboard status breakdown.
type StatusCount struct {
	Status domain.OrderStatus `json:"status"`
	Count  int                `json:"count"`
}

// OrderRepository defines the interface for order data access. CreateWithItems
// is the only write path that touches more than one table; it runs in a
// single transaction.
type OrderRepository interface {
	CreateWithItems(ctx context.Context, order *domain.Order, items []domain.OrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]*domain.Order, int, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error
	AddNote(ctx context.Context, note *domain.AdminNote) error
	CountByStatus(ctx context.Context) (total int, byStatus []StatusCount, err error)
	TotalRevenue(ctx context.Context) (decimal.Decimal, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.Order, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository.
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

// CreateWithItems persists the order, its items, and the stock decrements
// atomically. The decrement is conditional (stock >= quantity); zero rows
// affected aborts the whole transaction with ErrInsufficientStock, so two
// concurrent orders cannot both take the last units.
func (r *orderRepository) CreateWithItems(ctx context.Context, order *domain.Order, items []domain.OrderItem) error {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	orderQuery := `
		INSERT INTO orders (id, order_id, user_id, total_amount, status, shipping_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = tx.ExecContext(
		ctx,
		orderQuery,
		order.ID,
		order.OrderID,
		order.UserID,
		order.TotalAmount,
		order.Status,
		address,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, product_name, quantity, price)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	stockQuery := `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1 AND stock >= $2 AND is_deleted = FALSE
	`

	for _, item := range items {
		_, err = tx.ExecContext(
			ctx,
			itemQuery,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.ProductName,
			item.Quantity,
			item.Price,
		)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}

		result, err := tx.ExecContext(ctx, stockQuery, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("failed to decrement stock: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("%s: %w", item.ProductName, ErrInsufficientStock)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}

	order.Items = items
	return nil
}

const orderColumns = `o.id, o.order_id, o.user_id, u.email, u.name, o.total_amount, o.status, o.shipping_address, o.created_at, o.updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	order := &domain.Order{}
	var address []byte
	err := row.Scan(
		&order.ID,
		&order.OrderID,
		&order.UserID,
		&order.UserEmail,
		&order.UserName,
		&order.TotalAmount,
		&order.Status,
		&address,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to decode shipping address: %w", err)
	}
	return order, nil
}

// FindByID retrieves a single order with its items and admin notes.
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM orders o
		JOIN users u ON u.id = o.user_id
		WHERE o.id = $1
	`, orderColumns)

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}

	if err := r.loadItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	if err := r.loadNotes(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}

	return order, nil
}

// ListByUser retrieves all orders of one user, newest first.
func (r *orderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM orders o
		JOIN users u ON u.id = o.user_id
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC
	`, orderColumns)

	orders, err := r.queryOrders(ctx, query, userID)
	if err != nil {
		return nil, err
	}

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	if err := r.loadNotes(ctx, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// List retrieves orders matching the filter with pagination, newest first.
func (r *orderRepository) List(ctx context.Context, filter OrderFilter) ([]*domain.Order, int, error) {
	conditions := []string{}
	args := []any{}
	argIndex := 1

	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		conditions = append(conditions, fmt.Sprintf(
			"(o.order_id ILIKE $%d OR u.email ILIKE $%d)", argIndex, argIndex))
		args = append(args, pattern)
		argIndex++
	}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("o.status = $%d", argIndex))
		args = append(args, filter.Status)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM orders o
		JOIN users u ON u.id = o.user_id
		%s
	`, whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit

	query := fmt.Sprintf(`
		SELECT %s
		FROM orders o
		JOIN users u ON u.id = o.user_id
		%s
		ORDER BY o.created_at DESC
		LIMIT $%d OFFSET $%d
	`, orderColumns, whereClause, argIndex, argIndex+1)

	args = append(args, filter.Limit, offset)

	orders, err := r.queryOrders(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	if err := r.loadNotes(ctx, orders); err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// ListByIDs retrieves the given orders, or every order when ids is empty.
// Used by the CSV export.
func (r *orderRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Order, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM orders o
		JOIN users u ON u.id = o.user_id
	`, orderColumns)

	args := []any{}
	if len(ids) > 0 {
		placeholders := make([]string, len(ids))
		for i, id := range ids {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, id)
		}
		query += fmt.Sprintf(" WHERE o.id IN (%s)", strings.Join(placeholders, ", "))
	}
	query += " ORDER BY o.created_at DESC"

	return r.queryOrders(ctx, query, args...)
}

// UpdateStatus overwrites the order status.
func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// AddNote appends an admin note to an order.
func (r *orderRepository) AddNote(ctx context.Context, note *domain.AdminNote) error {
	query := `
		INSERT INTO admin_notes (id, order_id, note, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query, note.ID, note.OrderID, note.Note, note.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add admin note: %w", err)
	}

	return nil
}

// CountByStatus returns the total order count and the per-status breakdown.
// Statuses with zero orders are omitted.
func (r *orderRepository) CountByStatus(ctx context.Context) (int, []StatusCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM orders
		GROUP BY status
	`)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to count orders by status: %w", err)
	}
	defer rows.Close()

	counts := map[domain.OrderStatus]int{}
	total := 0
	for rows.Next() {
		var status domain.OrderStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return 0, nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
		total += count
	}
	if err = rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	// Emit in the natural status progression order
	byStatus := []StatusCount{}
	for _, status := range domain.OrderStatuses {
		if count, ok := counts[status]; ok {
			byStatus = append(byStatus, StatusCount{Status: status, Count: count})
		}
	}

	return total, byStatus, nil
}

// TotalRevenue sums total_amount across all orders.
func (r *orderRepository) TotalRevenue(ctx context.Context) (decimal.Decimal, error) {
	var revenue decimal.Decimal
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_amount), 0) FROM orders
	`).Scan(&revenue)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return revenue, nil
}

// ListRecent retrieves the most recently created orders with customer
// name and email, without items or notes.
func (r *orderRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Order, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM orders o
		JOIN users u ON u.id = o.user_id
		ORDER BY o.created_at DESC
		LIMIT $1
	`, orderColumns)

	return r.queryOrders(ctx, query, limit)
}

func (r *orderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

// loadItems attaches order items to the given orders in one query.
func (r *orderRepository) loadItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[uuid.UUID]*domain.Order, len(orders))
	placeholders := make([]string, len(orders))
	args := make([]any, len(orders))
	for i, order := range orders {
		order.Items = []domain.OrderItem{}
		index[order.ID] = order
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = order.ID
	}

	query := fmt.Sprintf(`
		SELECT id, order_id, product_id, product_name, quantity, price
		FROM order_items
		WHERE order_id IN (%s)
		ORDER BY id
	`, strings.Join(placeholders, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item := domain.OrderItem{}
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.Price); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if order, ok := index[item.OrderID]; ok {
			order.Items = append(order.Items, item)
		}
	}

	return rows.Err()
}

// loadNotes attaches admin notes to the given orders, newest first.
func (r *orderRepository) loadNotes(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[uuid.UUID]*domain.Order, len(orders))
	placeholders := make([]string, len(orders))
	args := make([]any, len(orders))
	for i, order := range orders {
		order.AdminNotes = []domain.AdminNote{}
		index[order.ID] = order
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = order.ID
	}

	query := fmt.Sprintf(`
		SELECT id, order_id, note, created_at
		FROM admin_notes
		WHERE order_id IN (%s)
		ORDER BY created_at DESC
	`, strings.Join(placeholders, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load admin notes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		note := domain.AdminNote{}
		if err := rows.Scan(&note.ID, &note.OrderID, &note.Note, &note.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan admin note: %w", err)
		}
		if order, ok := index[note.OrderID]; ok {
			order.AdminNotes = append(order.AdminNotes, note)
		}
	}

	return rows.Err()
}
