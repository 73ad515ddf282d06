package repository

import (
	"context"
	"testing"
	"time"

	"shopline/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Stored prices come back decimal-equal to what went in, for any price with
// up to two fraction digits.
func TestProperty_PricesRoundTripExactly(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewProductRepository(testDB)

	properties := gopter.NewProperties(nil)

	properties.Property("price survives storage without drift", prop.ForAll(
		func(cents int) bool {
			price := decimal.NewFromInt(int64(cents)).Div(decimal.NewFromInt(100))
			product := &domain.Product{
				ID:        uuid.New(),
				Name:      "Price Probe " + uuid.NewString(),
				Slug:      "price-probe-" + uuid.NewString(),
				Price:     price,
				Stock:     1,
				Images:    []string{},
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			}
			if err := repo.Create(ctx, product); err != nil {
				return false
			}

			found, err := repo.FindByID(ctx, product.ID, false)
			if err != nil {
				return false
			}
			return found.Price.Equal(price)
		},
		gen.IntRange(1, 99999999),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestCreateProductRejectsDuplicateSlug(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewProductRepository(testDB)

	insertTestProduct(t, "Handmade Soap Bar", "4.99", 10)

	duplicate := &domain.Product{
		ID:        uuid.New(),
		Name:      "Handmade Soap Bar",
		Slug:      domain.Slugify("Handmade Soap Bar"),
		Price:     decimal.RequireFromString("5.99"),
		Images:    []string{},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	err := repo.Create(ctx, duplicate)
	assert.ErrorIs(t, err, ErrSlugTaken)
}

func TestSoftDeleteVisibility(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewProductRepository(testDB)

	product := insertTestProduct(t, "Clay Pot", "14.00", 3)
	require.NoError(t, repo.SoftDelete(ctx, product.ID))

	_, err := repo.FindByID(ctx, product.ID, false)
	assert.ErrorIs(t, err, ErrProductNotFound)

	found, err := repo.FindByID(ctx, product.ID, true)
	require.NoError(t, err)
	assert.True(t, found.IsDeleted)

	// The row still exists for order item snapshots
	var count int
	require.NoError(t, testDB.QueryRow(`SELECT COUNT(*) FROM products WHERE id = $1`, product.ID).Scan(&count))
	assert.Equal(t, 1, count)

	assert.ErrorIs(t, repo.SoftDelete(ctx, uuid.New()), ErrProductNotFound)
}

func TestListSearchAndCategory(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewProductRepository(testDB)

	lamp := insertTestProduct(t, "Brass Lamp", "60.00", 5)
	lamp.Category = "Home"
	lamp.Description = "A warm reading light"
	require.NoError(t, repo.Update(ctx, lamp))

	shirt := insertTestProduct(t, "Linen Shirt", "45.50", 5)
	shirt.Category = "Apparel"
	require.NoError(t, repo.Update(ctx, shirt))

	deleted := insertTestProduct(t, "Old Lamp", "10.00", 0)
	require.NoError(t, repo.SoftDelete(ctx, deleted.ID))

	t.Run("search matches name case-insensitively", func(t *testing.T) {
		products, total, err := repo.List(ctx, ProductFilter{Search: "lamp", Page: 1, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total, "deleted products are excluded")
		require.Len(t, products, 1)
		assert.Equal(t, "Brass Lamp", products[0].Name)
	})

	t.Run("search matches description", func(t *testing.T) {
		_, total, err := repo.List(ctx, ProductFilter{Search: "reading", Page: 1, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("category filter", func(t *testing.T) {
		products, total, err := repo.List(ctx, ProductFilter{Category: "Apparel", Page: 1, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, products, 1)
		assert.Equal(t, "Linen Shirt", products[0].Name)
	})

	t.Run("admin search includes slug and deleted rows", func(t *testing.T) {
		_, total, err := repo.List(ctx, ProductFilter{
			Search: "old-lamp", IncludeDeleted: true, AdminSearch: true, Page: 1, Limit: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("pagination", func(t *testing.T) {
		products, total, err := repo.List(ctx, ProductFilter{Page: 1, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, products, 1)

		second, _, err := repo.List(ctx, ProductFilter{Page: 2, Limit: 1})
		require.NoError(t, err)
		require.Len(t, second, 1)
		assert.NotEqual(t, products[0].ID, second[0].ID)
	})
}

func TestUpdateProductRow(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewProductRepository(testDB)

	product := insertTestProduct(t, "Oak Shelf", "120.00", 4)
	product.Stock = 7
	product.Images = []string{"https://cdn.example.com/oak-shelf.jpg"}
	require.NoError(t, repo.Update(ctx, product))

	found, err := repo.FindByID(ctx, product.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 7, found.Stock)
	assert.Equal(t, []string{"https://cdn.example.com/oak-shelf.jpg"}, found.Images)

	missing := *product
	missing.ID = uuid.New()
	missing.Slug = "somewhere-else"
	assert.ErrorIs(t, repo.Update(ctx, &missing), ErrProductNotFound)
}

func TestCountActiveExcludesDeleted(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewProductRepository(testDB)

	insertTestProduct(t, "Mug", "10.00", 5)
	deleted := insertTestProduct(t, "Old Mug", "8.00", 0)
	require.NoError(t, repo.SoftDelete(ctx, deleted.ID))

	count, err := repo.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
