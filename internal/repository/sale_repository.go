package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

// SaleRepository stores sales and their line items.
type SaleRepository struct{}

const saleColumns = `id, sale_date, total_amount, payment_method, cashier_id, created_at`

func scanSale(row rowScanner) (*domain.Sale, error) {
	var s domain.Sale
	if err := row.Scan(&s.ID, &s.SaleDate, &s.TotalAmount, &s.PaymentMethod, &s.CashierID, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Items = []domain.SaleItem{}
	return &s, nil
}

// List returns the sales in r, newest first, with their items.
func (sr SaleRepository) List(ctx context.Context, q database.DBTX, r domain.DateRange) ([]*domain.Sale, error) {
	from, to := rangeArgs(r)
	rows, err := q.QueryContext(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE ($1::timestamptz IS NULL OR sale_date >= $1)
		  AND ($2::timestamptz IS NULL OR sale_date < $2)
		ORDER BY sale_date DESC, id DESC`,
		from, to,
	)
	if err != nil {
		return nil, database.TranslateError(fmt.Errorf("list sales: %w", err), "sale")
	}
	defer rows.Close()

	sales := []*domain.Sale{}
	byID := map[int64]*domain.Sale{}
	ids := []int64{}
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, s)
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return sales, nil
	}

	items, err := sr.items(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if s, ok := byID[it.SaleID]; ok {
			s.Items = append(s.Items, it)
		}
	}
	return sales, nil
}

func (sr SaleRepository) Get(ctx context.Context, q database.DBTX, id int64) (*domain.Sale, error) {
	s, err := scanSale(q.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		return nil, database.TranslateError(err, "sale")
	}
	items, err := sr.items(ctx, q, []int64{id})
	if err != nil {
		return nil, err
	}
	s.Items = items
	return s, nil
}

func (SaleRepository) items(ctx context.Context, q database.DBTX, saleIDs []int64) ([]domain.SaleItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT si.id, si.sale_id, si.product_id, p.name, si.quantity, si.unit_price, si.cost_price
		FROM sale_items si
		JOIN products p ON p.id = si.product_id
		WHERE si.sale_id = ANY($1)
		ORDER BY si.sale_id, si.id`,
		pq.Array(saleIDs),
	)
	if err != nil {
		return nil, database.TranslateError(fmt.Errorf("load sale items: %w", err), "sale item")
	}
	defer rows.Close()

	items := []domain.SaleItem{}
	for rows.Next() {
		var it domain.SaleItem
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.CostPrice); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Create inserts the sale header. Items are added with AddItem in the same
// transaction.
func (SaleRepository) Create(ctx context.Context, q database.DBTX, s *domain.Sale) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO sales (total_amount, payment_method, cashier_id)
		VALUES ($1, $2, $3)
		RETURNING id, sale_date, created_at`,
		s.TotalAmount, s.PaymentMethod, s.CashierID,
	).Scan(&s.ID, &s.SaleDate, &s.CreatedAt)
	return database.TranslateError(err, "sale")
}

func (SaleRepository) AddItem(ctx context.Context, q database.DBTX, it *domain.SaleItem) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, cost_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		it.SaleID, it.ProductID, it.Quantity, it.UnitPrice, it.CostPrice,
	).Scan(&it.ID)
	return database.TranslateError(err, "sale item")
}

func (SaleRepository) UpdatePaymentMethod(ctx context.Context, q database.DBTX, id int64, method string) error {
	res, err := q.ExecContext(ctx, `UPDATE sales SET payment_method = $1 WHERE id = $2`, method, id)
	if err != nil {
		return database.TranslateError(err, "sale")
	}
	return expectOne(res, "sale")
}

// Delete removes the sale; its items cascade.
func (SaleRepository) Delete(ctx context.Context, q database.DBTX, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return database.TranslateError(err, "sale")
	}
	return expectOne(res, "sale")
}

// LockForUpdate locks the sale row.
func (SaleRepository) LockForUpdate(ctx context.Context, q database.DBTX, id int64) error {
	var got int64
	err := q.QueryRowContext(ctx, `SELECT id FROM sales WHERE id = $1 FOR UPDATE`, id).Scan(&got)
	return database.TranslateError(err, "sale")
}
