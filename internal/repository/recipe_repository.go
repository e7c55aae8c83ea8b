package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

// RecipeRepository stores recipes and their ingredient lines.
type RecipeRepository struct{}

const recipeColumns = `id, name, description, batch_size, created_at, updated_at`

func scanRecipe(row rowScanner) (*domain.Recipe, error) {
	var r domain.Recipe
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.BatchSize, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// List returns every recipe with its lines and current cost.
func (rr RecipeRepository) List(ctx context.Context, q database.DBTX) ([]*domain.Recipe, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+recipeColumns+` FROM recipes ORDER BY name`)
	if err != nil {
		return nil, database.TranslateError(fmt.Errorf("list recipes: %w", err), "recipe")
	}
	defer rows.Close()

	recipes := []*domain.Recipe{}
	byID := map[int64]*domain.Recipe{}
	ids := []int64{}
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		r.Lines = []domain.RecipeLine{}
		recipes = append(recipes, r)
		byID[r.ID] = r
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return recipes, nil
	}

	if err := rr.loadLines(ctx, q, ids, func(recipeID int64, l domain.RecipeLine) {
		if r, ok := byID[recipeID]; ok {
			r.Lines = append(r.Lines, l)
		}
	}); err != nil {
		return nil, err
	}
	for _, r := range recipes {
		r.Cost = domain.RecipeCost(r.Lines)
	}
	return recipes, nil
}

func (rr RecipeRepository) Get(ctx context.Context, q database.DBTX, id int64) (*domain.Recipe, error) {
	r, err := scanRecipe(q.QueryRowContext(ctx, `SELECT `+recipeColumns+` FROM recipes WHERE id = $1`, id))
	if err != nil {
		return nil, database.TranslateError(err, "recipe")
	}
	r.Lines = []domain.RecipeLine{}
	if err := rr.loadLines(ctx, q, []int64{id}, func(_ int64, l domain.RecipeLine) {
		r.Lines = append(r.Lines, l)
	}); err != nil {
		return nil, err
	}
	r.Cost = domain.RecipeCost(r.Lines)
	return r, nil
}

func (RecipeRepository) loadLines(ctx context.Context, q database.DBTX, recipeIDs []int64, add func(int64, domain.RecipeLine)) error {
	rows, err := q.QueryContext(ctx, `
		SELECT ri.recipe_id, ri.ingredient_id, i.name, i.unit, ri.quantity, i.unit_cost
		FROM recipe_ingredients ri
		JOIN ingredients i ON i.id = ri.ingredient_id
		WHERE ri.recipe_id = ANY($1)
		ORDER BY ri.recipe_id, i.name`,
		pq.Array(recipeIDs),
	)
	if err != nil {
		return database.TranslateError(fmt.Errorf("load recipe lines: %w", err), "recipe")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			recipeID int64
			l        domain.RecipeLine
		)
		if err := rows.Scan(&recipeID, &l.IngredientID, &l.IngredientName, &l.Unit, &l.Quantity, &l.UnitCost); err != nil {
			return fmt.Errorf("scan recipe line: %w", err)
		}
		add(recipeID, l)
	}
	return rows.Err()
}

func (RecipeRepository) Create(ctx context.Context, q database.DBTX, r *domain.Recipe) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO recipes (name, description, batch_size)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		r.Name, r.Description, r.BatchSize,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	return database.TranslateError(err, "recipe")
}

func (RecipeRepository) Update(ctx context.Context, q database.DBTX, r *domain.Recipe) error {
	err := q.QueryRowContext(ctx, `
		UPDATE recipes SET name = $1, description = $2, batch_size = $3, updated_at = now()
		WHERE id = $4
		RETURNING created_at, updated_at`,
		r.Name, r.Description, r.BatchSize, r.ID,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	return database.TranslateError(err, "recipe")
}

// ReplaceLines makes lines the recipe's exact ingredient list.
func (RecipeRepository) ReplaceLines(ctx context.Context, q database.DBTX, recipeID int64, lines []domain.RecipeLine) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM recipe_ingredients WHERE recipe_id = $1`, recipeID); err != nil {
		return database.TranslateError(err, "recipe ingredient")
	}
	for _, l := range lines {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO recipe_ingredients (recipe_id, ingredient_id, quantity)
			VALUES ($1, $2, $3)`,
			recipeID, l.IngredientID, l.Quantity,
		); err != nil {
			return database.TranslateError(err, "recipe ingredient")
		}
	}
	return nil
}

func (RecipeRepository) Delete(ctx context.Context, q database.DBTX, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM recipes WHERE id = $1`, id)
	if err != nil {
		return database.TranslateError(err, "recipe")
	}
	return expectOne(res, "recipe")
}

// Cost sums line quantity times ingredient unit cost. A recipe without
// lines costs zero.
func (RecipeRepository) Cost(ctx context.Context, q database.DBTX, recipeID int64) (decimal.Decimal, error) {
	var cost decimal.Decimal
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ri.quantity * COALESCE(i.unit_cost, 0)), 0)
		FROM recipe_ingredients ri
		JOIN ingredients i ON i.id = ri.ingredient_id
		WHERE ri.recipe_id = $1`,
		recipeID,
	).Scan(&cost)
	if err != nil {
		return decimal.Zero, database.TranslateError(fmt.Errorf("recipe cost: %w", err), "recipe")
	}
	return cost, nil
}

// LockForUpdate locks the recipe row so concurrent line edits serialize.
func (RecipeRepository) LockForUpdate(ctx context.Context, q database.DBTX, id int64) error {
	var got int64
	err := q.QueryRowContext(ctx, `SELECT id FROM recipes WHERE id = $1 FOR UPDATE`, id).Scan(&got)
	return database.TranslateError(err, "recipe")
}

// UsingIngredient returns the ids of recipes that contain the ingredient.
func (RecipeRepository) UsingIngredient(ctx context.Context, q database.DBTX, ingredientID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT recipe_id FROM recipe_ingredients WHERE ingredient_id = $1 ORDER BY recipe_id`, ingredientID)
	if err != nil {
		return nil, database.TranslateError(fmt.Errorf("recipes using ingredient: %w", err), "recipe")
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
