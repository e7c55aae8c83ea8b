package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

// ProductRepository stores the products of the bound namespace.
type ProductRepository struct{}

const productColumns = `id, name, description, unit_price, cost_price, is_active, recipe_id,
	quantity_left, sold_count, defect_count, created_at, updated_at`

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p        domain.Product
		recipeID sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.UnitPrice, &p.CostPrice, &p.IsActive, &recipeID,
		&p.QuantityLeft, &p.SoldCount, &p.DefectCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if recipeID.Valid {
		id := recipeID.Int64
		p.RecipeID = &id
	}
	return &p, nil
}

func (ProductRepository) List(ctx context.Context, q database.DBTX) ([]*domain.Product, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, database.TranslateError(fmt.Errorf("list products: %w", err), "product")
	}
	defer rows.Close()

	out := []*domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (ProductRepository) Get(ctx context.Context, q database.DBTX, id int64) (*domain.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, database.TranslateError(err, "product")
	}
	return p, nil
}

// GetForUpdate reads and locks the product row until the transaction ends.
func (ProductRepository) GetForUpdate(ctx context.Context, q database.DBTX, id int64) (*domain.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, database.TranslateError(err, "product")
	}
	return p, nil
}

func (ProductRepository) Create(ctx context.Context, q database.DBTX, p *domain.Product) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO products (name, description, unit_price, cost_price, is_active, recipe_id, quantity_left)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, sold_count, defect_count, created_at, updated_at`,
		p.Name, p.Description, p.UnitPrice, p.CostPrice, p.IsActive, p.RecipeID, p.QuantityLeft,
	).Scan(&p.ID, &p.SoldCount, &p.DefectCount, &p.CreatedAt, &p.UpdatedAt)
	return database.TranslateError(err, "product")
}

func (ProductRepository) Update(ctx context.Context, q database.DBTX, p *domain.Product) error {
	err := q.QueryRowContext(ctx, `
		UPDATE products
		SET name = $1, description = $2, unit_price = $3, cost_price = $4, is_active = $5,
		    recipe_id = $6, quantity_left = $7, updated_at = now()
		WHERE id = $8
		RETURNING sold_count, defect_count, created_at, updated_at`,
		p.Name, p.Description, p.UnitPrice, p.CostPrice, p.IsActive, p.RecipeID, p.QuantityLeft, p.ID,
	).Scan(&p.SoldCount, &p.DefectCount, &p.CreatedAt, &p.UpdatedAt)
	return database.TranslateError(err, "product")
}

func (ProductRepository) Delete(ctx context.Context, q database.DBTX, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return database.TranslateError(err, "product")
	}
	return expectOne(res, "product")
}

// SetCostForRecipe writes cost to every product made from the recipe and
// returns how many were updated.
func (ProductRepository) SetCostForRecipe(ctx context.Context, q database.DBTX, recipeID int64, cost decimal.Decimal) (int64, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE products SET cost_price = $1, updated_at = now() WHERE recipe_id = $2`,
		cost, recipeID,
	)
	if err != nil {
		return 0, database.TranslateError(fmt.Errorf("propagate recipe cost: %w", err), "product")
	}
	return res.RowsAffected()
}

// RecordSold takes qty off the shelf and adds it to the sold count. A
// negative qty reverses a sale.
func (ProductRepository) RecordSold(ctx context.Context, q database.DBTX, id int64, qty int) error {
	res, err := q.ExecContext(ctx, `
		UPDATE products
		SET quantity_left = quantity_left - $1, sold_count = GREATEST(sold_count + $1, 0), updated_at = now()
		WHERE id = $2`,
		qty, id,
	)
	if err != nil {
		return database.TranslateError(err, "product")
	}
	return expectOne(res, "product")
}

// AdjustStock adds delta to the remaining quantity.
func (ProductRepository) AdjustStock(ctx context.Context, q database.DBTX, id int64, delta int) error {
	res, err := q.ExecContext(ctx,
		`UPDATE products SET quantity_left = quantity_left + $1, updated_at = now() WHERE id = $2`,
		delta, id,
	)
	if err != nil {
		return database.TranslateError(err, "product")
	}
	return expectOne(res, "product")
}

// RecordDefect writes qty off the shelf as defective.
func (ProductRepository) RecordDefect(ctx context.Context, q database.DBTX, id int64, qty int) error {
	res, err := q.ExecContext(ctx, `
		UPDATE products
		SET quantity_left = quantity_left - $1, defect_count = defect_count + $1, updated_at = now()
		WHERE id = $2`,
		qty, id,
	)
	if err != nil {
		return database.TranslateError(err, "product")
	}
	return expectOne(res, "product")
}
