package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

// IngredientRepository stores ingredients of the bound namespace.
type IngredientRepository struct{}

const ingredientColumns = `id, name, unit, current_stock, reorder_level, refill_amount, unit_cost, created_at, updated_at`

func scanIngredient(row rowScanner) (*domain.Ingredient, error) {
	var i domain.Ingredient
	if err := row.Scan(&i.ID, &i.Name, &i.Unit, &i.CurrentStock, &i.ReorderLevel,
		&i.RefillAmount, &i.UnitCost, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, err
	}
	return &i, nil
}

func (IngredientRepository) list(ctx context.Context, q database.DBTX, query string, args ...any) ([]*domain.Ingredient, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, database.TranslateError(fmt.Errorf("list ingredients: %w", err), "ingredient")
	}
	defer rows.Close()

	out := []*domain.Ingredient{}
	for rows.Next() {
		i, err := scanIngredient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ingredient: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (r IngredientRepository) List(ctx context.Context, q database.DBTX) ([]*domain.Ingredient, error) {
	return r.list(ctx, q, `SELECT `+ingredientColumns+` FROM ingredients ORDER BY name`)
}

// LowStock lists ingredients at or below their reorder level.
func (r IngredientRepository) LowStock(ctx context.Context, q database.DBTX) ([]*domain.Ingredient, error) {
	return r.list(ctx, q, `SELECT `+ingredientColumns+` FROM ingredients WHERE current_stock <= reorder_level ORDER BY name`)
}

func (IngredientRepository) Get(ctx context.Context, q database.DBTX, id int64) (*domain.Ingredient, error) {
	i, err := scanIngredient(q.QueryRowContext(ctx, `SELECT `+ingredientColumns+` FROM ingredients WHERE id = $1`, id))
	if err != nil {
		return nil, database.TranslateError(err, "ingredient")
	}
	return i, nil
}

func (IngredientRepository) Create(ctx context.Context, q database.DBTX, i *domain.Ingredient) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO ingredients (name, unit, current_stock, reorder_level, unit_cost)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, refill_amount, created_at, updated_at`,
		i.Name, i.Unit, i.CurrentStock, i.ReorderLevel, i.UnitCost,
	).Scan(&i.ID, &i.RefillAmount, &i.CreatedAt, &i.UpdatedAt)
	return database.TranslateError(err, "ingredient")
}

// Update writes the editable fields. The pending refill amount is owned by
// purchasing and is not touched here.
func (IngredientRepository) Update(ctx context.Context, q database.DBTX, i *domain.Ingredient) error {
	err := q.QueryRowContext(ctx, `
		UPDATE ingredients
		SET name = $1, unit = $2, current_stock = $3, reorder_level = $4, unit_cost = $5, updated_at = now()
		WHERE id = $6
		RETURNING refill_amount, created_at, updated_at`,
		i.Name, i.Unit, i.CurrentStock, i.ReorderLevel, i.UnitCost, i.ID,
	).Scan(&i.RefillAmount, &i.CreatedAt, &i.UpdatedAt)
	return database.TranslateError(err, "ingredient")
}

func (IngredientRepository) Delete(ctx context.Context, q database.DBTX, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM ingredients WHERE id = $1`, id)
	if err != nil {
		return database.TranslateError(err, "ingredient")
	}
	return expectOne(res, "ingredient")
}

// Refill moves the pending refill amount into current stock in a single
// statement.
func (IngredientRepository) Refill(ctx context.Context, q database.DBTX, id int64) (*domain.Ingredient, error) {
	i, err := scanIngredient(q.QueryRowContext(ctx, `
		UPDATE ingredients
		SET current_stock = current_stock + refill_amount, refill_amount = 0, updated_at = now()
		WHERE id = $1
		RETURNING `+ingredientColumns, id))
	if err != nil {
		return nil, database.TranslateError(err, "ingredient")
	}
	return i, nil
}

// UnitCostForUpdate locks the ingredient row and returns its unit cost.
func (IngredientRepository) UnitCostForUpdate(ctx context.Context, q database.DBTX, id int64) (decimal.Decimal, error) {
	var cost decimal.Decimal
	err := q.QueryRowContext(ctx, `SELECT unit_cost FROM ingredients WHERE id = $1 FOR UPDATE`, id).Scan(&cost)
	if err != nil {
		return decimal.Zero, database.TranslateError(err, "ingredient")
	}
	return cost, nil
}
