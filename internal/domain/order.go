package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order. Any status may be written
// over any other by an admin; transitions are not enforced.
type OrderStatus string

const (
	StatusPending    OrderStatus = "Pending"
	StatusProcessing OrderStatus = "Processing"
	StatusShipped    OrderStatus = "Shipped"
	StatusDelivered  OrderStatus = "Delivered"
	StatusCancelled  OrderStatus = "Cancelled"
)

// OrderStatuses lists all valid statuses in their natural progression order.
var OrderStatuses = []OrderStatus{
	StatusPending,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// ShippingAddress is the address payload stored with an order. All fields
// are required at order creation.
type ShippingAddress struct {
	FullName   string `json:"full_name" validate:"required"`
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
}

// Order represents a placed order together with its line items and admin
// notes. TotalAmount is fixed at creation time as the exact decimal sum of
// item price times quantity.
type Order struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	OrderID         string          `json:"order_id" db:"order_id"`
	UserID          uuid.UUID       `json:"user_id" db:"user_id"`
	UserEmail       string          `json:"user_email,omitempty" db:"-"`
	UserName        string          `json:"user_name,omitempty" db:"-"`
	TotalAmount     decimal.Decimal `json:"total_amount" db:"total_amount"`
	Status          OrderStatus     `json:"status" db:"status"`
	ShippingAddress ShippingAddress `json:"shipping_address" db:"shipping_address"`
	Items           []OrderItem     `json:"items" db:"-"`
	AdminNotes      []AdminNote     `json:"admin_notes" db:"-"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// OrderItem is one line of an order. ProductName and Price are snapshots of
// the product at order-creation time and never change afterwards; ProductID
// becomes nil if the product row is ever removed.
type OrderItem struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	OrderID     uuid.UUID       `json:"order_id" db:"order_id"`
	ProductID   *uuid.UUID      `json:"product_id" db:"product_id"`
	ProductName string          `json:"product_name" db:"product_name"`
	Quantity    int             `json:"quantity" db:"quantity"`
	Price       decimal.Decimal `json:"price" db:"price"`
}

// AdminNote is an append-only annotation an admin attaches to an order.
type AdminNote struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OrderID   uuid.UUID `json:"order_id" db:"order_id"`
	Note      string    `json:"note" db:"note"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

const orderIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewOrderID generates a human-readable order identifier of the form
// ORD-<millisecond timestamp>-<4 random alphanumeric characters>.
func NewOrderID(now time.Time) string {
	suffix := make([]byte, 4)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(orderIDAlphabet))))
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken
			panic(err)
		}
		suffix[i] = orderIDAlphabet[n.Int64()]
	}
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), suffix)
}
