package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable item. CostPrice is derived from the referenced
// recipe and is never written by callers directly.
type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	CostPrice    decimal.Decimal `json:"costPrice"`
	IsActive     bool            `json:"isActive"`
	RecipeID     *int64          `json:"recipeId,omitempty"`
	QuantityLeft int             `json:"quantityLeft"`
	SoldCount    int             `json:"soldCount"`
	DefectCount  int             `json:"defectCount"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Ingredient is a stocked raw material.
type Ingredient struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	CurrentStock decimal.Decimal `json:"currentStock"`
	ReorderLevel decimal.Decimal `json:"reorderLevel"`
	RefillAmount decimal.Decimal `json:"refillAmount"`
	UnitCost     decimal.Decimal `json:"unitCost"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// NeedsReorder reports whether stock has fallen to the reorder threshold.
func (i *Ingredient) NeedsReorder() bool {
	return i.CurrentStock.LessThanOrEqual(i.ReorderLevel)
}

// Recipe describes how a batch of a product is made.
type Recipe struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	BatchSize   int             `json:"batchSize"`
	Lines       []RecipeLine    `json:"ingredients"`
	Cost        decimal.Decimal `json:"cost"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// RecipeLine is one ingredient quantity within a recipe.
type RecipeLine struct {
	IngredientID   int64           `json:"ingredientId"`
	IngredientName string          `json:"ingredientName,omitempty"`
	Unit           string          `json:"unit,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unitCost"`
}

// RecipeCost sums quantity times unit cost over the lines. Lines without a
// cost contribute zero.
func RecipeCost(lines []RecipeLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Quantity.Mul(l.UnitCost))
	}
	return total
}
