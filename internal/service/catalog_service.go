package service

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/internal/observability/metrics"
	"github.com/nephi-asha/kishkumen/internal/repository"
	"github.com/nephi-asha/kishkumen/internal/tenancy"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

// CatalogService manages products, ingredients and recipes of the bound
// namespace and keeps product cost prices in step with their recipes.
type CatalogService struct {
	products    repository.ProductRepository
	ingredients repository.IngredientRepository
	recipes     repository.RecipeRepository
	purchases   repository.PurchaseRepository
	logger      *slog.Logger
}

func NewCatalogService(logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{logger: logger}
}

// ProductInput is the writable part of a product. Cost price is derived
// and cannot be set.
type ProductInput struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	IsActive     *bool           `json:"isActive"`
	RecipeID     *int64          `json:"recipeId"`
	QuantityLeft *int            `json:"quantityLeft"`
}

func (in *ProductInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return apperr.BadRequest("name is required")
	}
	if in.UnitPrice.IsNegative() {
		return apperr.BadRequest("unitPrice must not be negative")
	}
	if in.QuantityLeft != nil && *in.QuantityLeft < 0 {
		return apperr.BadRequest("quantityLeft must not be negative")
	}
	if in.RecipeID != nil && *in.RecipeID <= 0 {
		return apperr.BadRequest("recipeId is invalid")
	}
	return nil
}

func (in *ProductInput) apply(p *domain.Product) {
	p.Name = in.Name
	p.Description = in.Description
	p.UnitPrice = in.UnitPrice
	p.RecipeID = in.RecipeID
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if in.QuantityLeft != nil {
		p.QuantityLeft = *in.QuantityLeft
	}
}

func (s *CatalogService) ListProducts(ctx context.Context, sc tenancy.Scope) ([]*domain.Product, error) {
	return s.products.List(ctx, sc.Querier())
}

func (s *CatalogService) GetProduct(ctx context.Context, sc tenancy.Scope, id int64) (*domain.Product, error) {
	return s.products.Get(ctx, sc.Querier(), id)
}

// recipeCost locks the recipe and returns its current cost. A missing
// recipe is a bad reference, not a missing product.
func (s *CatalogService) recipeCost(ctx context.Context, q database.DBTX, recipeID *int64) (decimal.Decimal, error) {
	if recipeID == nil {
		return decimal.Zero, nil
	}
	if err := s.recipes.LockForUpdate(ctx, q, *recipeID); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return decimal.Zero, apperr.BadRequest("recipe %d does not exist", *recipeID)
		}
		return decimal.Zero, err
	}
	return s.recipes.Cost(ctx, q, *recipeID)
}

// CreateProduct stores a product. A product made from a recipe gets the
// recipe's cost in the same transaction.
func (s *CatalogService) CreateProduct(ctx context.Context, sc tenancy.Scope, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p := &domain.Product{IsActive: true}
	in.apply(p)

	err := sc.InTx(ctx, func(tx *sql.Tx) error {
		cost, err := s.recipeCost(ctx, tx, p.RecipeID)
		if err != nil {
			return err
		}
		p.CostPrice = cost
		return s.products.Create(ctx, tx, p)
	})
	metrics.ObserveWorkflow("product_create", err)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProduct rewrites a product under a row lock, so a concurrent
// recipe change cannot slip between reading and writing the cost.
func (s *CatalogService) UpdateProduct(ctx context.Context, sc tenancy.Scope, id int64, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var p *domain.Product
	err := sc.InTx(ctx, func(tx *sql.Tx) error {
		current, err := s.products.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		in.apply(current)
		cost, err := s.recipeCost(ctx, tx, current.RecipeID)
		if err != nil {
			return err
		}
		current.CostPrice = cost
		if err := s.products.Update(ctx, tx, current); err != nil {
			return err
		}
		p = current
		return nil
	})
	metrics.ObserveWorkflow("product_update", err)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, sc tenancy.Scope, id int64) error {
	return s.products.Delete(ctx, sc.Querier(), id)
}

// IngredientInput is the writable part of an ingredient.
type IngredientInput struct {
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	CurrentStock decimal.Decimal `json:"currentStock"`
	ReorderLevel decimal.Decimal `json:"reorderLevel"`
	UnitCost     decimal.Decimal `json:"unitCost"`
}

func (in *IngredientInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Unit = strings.TrimSpace(in.Unit)
	switch {
	case in.Name == "":
		return apperr.BadRequest("name is required")
	case in.Unit == "":
		return apperr.BadRequest("unit is required")
	case in.CurrentStock.IsNegative(), in.ReorderLevel.IsNegative(), in.UnitCost.IsNegative():
		return apperr.BadRequest("stock, reorder level and unit cost must not be negative")
	}
	return nil
}

func (s *CatalogService) ListIngredients(ctx context.Context, sc tenancy.Scope) ([]*domain.Ingredient, error) {
	return s.ingredients.List(ctx, sc.Querier())
}

// LowStock lists ingredients at or below their reorder level.
func (s *CatalogService) LowStock(ctx context.Context, sc tenancy.Scope) ([]*domain.Ingredient, error) {
	return s.ingredients.LowStock(ctx, sc.Querier())
}

func (s *CatalogService) GetIngredient(ctx context.Context, sc tenancy.Scope, id int64) (*domain.Ingredient, error) {
	return s.ingredients.Get(ctx, sc.Querier(), id)
}

func (s *CatalogService) CreateIngredient(ctx context.Context, sc tenancy.Scope, in IngredientInput) (*domain.Ingredient, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	i := &domain.Ingredient{
		Name:         in.Name,
		Unit:         in.Unit,
		CurrentStock: in.CurrentStock,
		ReorderLevel: in.ReorderLevel,
		UnitCost:     in.UnitCost,
	}
	if err := s.ingredients.Create(ctx, sc.Querier(), i); err != nil {
		return nil, err
	}
	return i, nil
}

// UpdateIngredient writes the ingredient and, when its unit cost changed,
// re-costs every recipe that uses it and the products made from them.
func (s *CatalogService) UpdateIngredient(ctx context.Context, sc tenancy.Scope, id int64, in IngredientInput) (*domain.Ingredient, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	i := &domain.Ingredient{
		ID:           id,
		Name:         in.Name,
		Unit:         in.Unit,
		CurrentStock: in.CurrentStock,
		ReorderLevel: in.ReorderLevel,
		UnitCost:     in.UnitCost,
	}

	err := sc.InTx(ctx, func(tx *sql.Tx) error {
		oldCost, err := s.ingredients.UnitCostForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.ingredients.Update(ctx, tx, i); err != nil {
			return err
		}
		if oldCost.Equal(i.UnitCost) {
			return nil
		}
		recipeIDs, err := s.recipes.UsingIngredient(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, recipeID := range recipeIDs {
			if _, err := s.propagate(ctx, tx, recipeID); err != nil {
				return err
			}
		}
		return nil
	})
	metrics.ObserveWorkflow("ingredient_update", err)
	if err != nil {
		return nil, err
	}
	return i, nil
}

func (s *CatalogService) DeleteIngredient(ctx context.Context, sc tenancy.Scope, id int64) error {
	return s.ingredients.Delete(ctx, sc.Querier(), id)
}

// Refill books the pending refill amount into stock and completes any
// approved purchase request that no longer waits on a refill.
func (s *CatalogService) Refill(ctx context.Context, sc tenancy.Scope, id int64) (*domain.Ingredient, error) {
	var i *domain.Ingredient
	err := sc.InTx(ctx, func(tx *sql.Tx) error {
		refilled, err := s.ingredients.Refill(ctx, tx, id)
		if err != nil {
			return err
		}
		completed, err := s.purchases.Reconcile(ctx, tx)
		if err != nil {
			return err
		}
		if completed > 0 {
			s.logger.Info("purchase requests completed by refill",
				slog.String("namespace", sc.Namespace().String()),
				slog.Int64("ingredient_id", id),
				slog.Int64("completed", completed),
			)
		}
		i = refilled
		return nil
	})
	metrics.ObserveWorkflow("ingredient_refill", err)
	if err != nil {
		return nil, err
	}
	return i, nil
}

// RecipeLineInput is one ingredient quantity of a recipe.
type RecipeLineInput struct {
	IngredientID int64           `json:"ingredientId"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// RecipeInput is the writable part of a recipe. A nil Ingredients list on
// update keeps the current lines.
type RecipeInput struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	BatchSize   int               `json:"batchSize"`
	Ingredients []RecipeLineInput `json:"ingredients"`
}

func (in *RecipeInput) validate() ([]domain.RecipeLine, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperr.BadRequest("name is required")
	}
	if in.BatchSize <= 0 {
		return nil, apperr.BadRequest("batchSize must be positive")
	}
	if in.Ingredients == nil {
		return nil, nil
	}
	seen := map[int64]bool{}
	lines := make([]domain.RecipeLine, 0, len(in.Ingredients))
	for _, l := range in.Ingredients {
		if l.IngredientID <= 0 {
			return nil, apperr.BadRequest("ingredientId is required for every line")
		}
		if !l.Quantity.IsPositive() {
			return nil, apperr.BadRequest("quantity for ingredient %d must be greater than zero", l.IngredientID)
		}
		if seen[l.IngredientID] {
			return nil, apperr.BadRequest("ingredient %d is listed twice", l.IngredientID)
		}
		seen[l.IngredientID] = true
		lines = append(lines, domain.RecipeLine{IngredientID: l.IngredientID, Quantity: l.Quantity})
	}
	return lines, nil
}

func (s *CatalogService) ListRecipes(ctx context.Context, sc tenancy.Scope) ([]*domain.Recipe, error) {
	return s.recipes.List(ctx, sc.Querier())
}

func (s *CatalogService) GetRecipe(ctx context.Context, sc tenancy.Scope, id int64) (*domain.Recipe, error) {
	return s.recipes.Get(ctx, sc.Querier(), id)
}

func (s *CatalogService) CreateRecipe(ctx context.Context, sc tenancy.Scope, in RecipeInput) (*domain.Recipe, error) {
	lines, err := in.validate()
	if err != nil {
		return nil, err
	}
	var out *domain.Recipe
	err = sc.InTx(ctx, func(tx *sql.Tx) error {
		r := &domain.Recipe{Name: in.Name, Description: in.Description, BatchSize: in.BatchSize}
		if err := s.recipes.Create(ctx, tx, r); err != nil {
			return err
		}
		if err := s.recipes.ReplaceLines(ctx, tx, r.ID, lines); err != nil {
			return err
		}
		out, err = s.recipes.Get(ctx, tx, r.ID)
		return err
	})
	metrics.ObserveWorkflow("recipe_create", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateRecipe rewrites the recipe and its lines and pushes the new cost to
// every product made from it, all in one transaction.
func (s *CatalogService) UpdateRecipe(ctx context.Context, sc tenancy.Scope, id int64, in RecipeInput) (*domain.Recipe, error) {
	lines, err := in.validate()
	if err != nil {
		return nil, err
	}
	var out *domain.Recipe
	err = sc.InTx(ctx, func(tx *sql.Tx) error {
		if err := s.recipes.LockForUpdate(ctx, tx, id); err != nil {
			return err
		}
		r := &domain.Recipe{ID: id, Name: in.Name, Description: in.Description, BatchSize: in.BatchSize}
		if err := s.recipes.Update(ctx, tx, r); err != nil {
			return err
		}
		if in.Ingredients != nil {
			if err := s.recipes.ReplaceLines(ctx, tx, id, lines); err != nil {
				return err
			}
			if _, err := s.propagate(ctx, tx, id); err != nil {
				return err
			}
		}
		out, err = s.recipes.Get(ctx, tx, id)
		return err
	})
	metrics.ObserveWorkflow("recipe_update", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *CatalogService) DeleteRecipe(ctx context.Context, sc tenancy.Scope, id int64) error {
	return s.recipes.Delete(ctx, sc.Querier(), id)
}

// propagate writes the recipe's current cost to its products.
func (s *CatalogService) propagate(ctx context.Context, q database.DBTX, recipeID int64) (decimal.Decimal, error) {
	cost, err := s.recipes.Cost(ctx, q, recipeID)
	if err != nil {
		return decimal.Zero, err
	}
	n, err := s.products.SetCostForRecipe(ctx, q, recipeID, cost)
	if err != nil {
		return decimal.Zero, err
	}
	s.logger.Debug("recipe cost propagated",
		slog.Int64("recipe_id", recipeID),
		slog.String("cost", cost.String()),
		slog.Int64("products", n),
	)
	return cost, nil
}
