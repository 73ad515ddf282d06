package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog. Products are never hard-deleted;
// IsDeleted hides them from the storefront while historical order items keep
// their snapshots.
type Product struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Slug        string          `json:"slug" db:"slug"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Category    string          `json:"category" db:"category"`
	Weight      decimal.Decimal `json:"weight" db:"weight"`
	Stock       int             `json:"stock" db:"stock"`
	Images      []string        `json:"images" db:"images"`
	IsDeleted   bool            `json:"is_deleted" db:"is_deleted"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL-safe slug from a product name: lowercase, with runs
// of non-alphanumeric characters collapsed to single hyphens.
func Slugify(name string) string {
	slug := strings.ToLower(name)
	slug = slugPattern.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
