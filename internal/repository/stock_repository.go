package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

// StockRepository stores overstock, defect and restock records.
type StockRepository struct{}

func (StockRepository) CreateOverstock(ctx context.Context, q database.DBTX, o *domain.Overstock) error {
	var date any
	if !o.OverstockDate.IsZero() {
		date = o.OverstockDate
	}
	err := q.QueryRowContext(ctx, `
		INSERT INTO overstocks (product_id, quantity, overstock_date, notes)
		VALUES ($1, $2, COALESCE($3::date, CURRENT_DATE), $4)
		RETURNING id, overstock_date, rolled_over`,
		o.ProductID, o.Quantity, date, o.Notes,
	).Scan(&o.ID, &o.OverstockDate, &o.RolledOver)
	return database.TranslateError(err, "overstock")
}

func (StockRepository) ListOverstocks(ctx context.Context, q database.DBTX, r domain.DateRange) ([]*domain.Overstock, error) {
	from, to := rangeArgs(r)
	rows, err := q.QueryContext(ctx, `
		SELECT o.id, o.product_id, p.name, o.quantity, o.overstock_date, o.rolled_over, o.rolled_over_at, o.notes
		FROM overstocks o
		JOIN products p ON p.id = o.product_id
		WHERE ($1::date IS NULL OR o.overstock_date >= $1)
		  AND ($2::date IS NULL OR o.overstock_date < $2)
		ORDER BY o.overstock_date DESC, o.id DESC`,
		from, to,
	)
	if err != nil {
		return nil, database.TranslateError(fmt.Errorf("list overstocks: %w", err), "overstock")
	}
	defer rows.Close()

	out := []*domain.Overstock{}
	for rows.Next() {
		var (
			o  domain.Overstock
			at sql.NullTime
		)
		if err := rows.Scan(&o.ID, &o.ProductID, &o.ProductName, &o.Quantity, &o.OverstockDate, &o.RolledOver, &at, &o.Notes); err != nil {
			return nil, fmt.Errorf("scan overstock: %w", err)
		}
		if at.Valid {
			t := at.Time
			o.RolledOverAt = &t
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

type pendingOverstock struct {
	id        int64
	productID int64
	quantity  int
}

// RollOver returns every overstock not yet rolled over to its product's
// remaining quantity and marks it rolled over. q must be a transaction:
// the pending rows are locked first so a record is counted exactly once.
// It returns the number of records rolled over; zero is not an error.
func (StockRepository) RollOver(ctx context.Context, q database.DBTX) (int, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, product_id, quantity FROM overstocks WHERE NOT rolled_over ORDER BY id FOR UPDATE`)
	if err != nil {
		return 0, database.TranslateError(fmt.Errorf("lock overstocks: %w", err), "overstock")
	}
	var pending []pendingOverstock
	for rows.Next() {
		var p pendingOverstock
		if err := rows.Scan(&p.id, &p.productID, &p.quantity); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan overstock: %w", err)
		}
		pending = append(pending, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	totals := map[int64]int{}
	order := []int64{}
	ids := make([]int64, 0, len(pending))
	for _, p := range pending {
		if _, seen := totals[p.productID]; !seen {
			order = append(order, p.productID)
		}
		totals[p.productID] += p.quantity
		ids = append(ids, p.id)
	}

	products := ProductRepository{}
	for _, productID := range order {
		if err := products.AdjustStock(ctx, q, productID, totals[productID]); err != nil {
			return 0, err
		}
	}

	if _, err := q.ExecContext(ctx,
		`UPDATE overstocks SET rolled_over = TRUE, rolled_over_at = now() WHERE id = ANY($1)`,
		pq.Array(ids),
	); err != nil {
		return 0, database.TranslateError(fmt.Errorf("mark overstocks rolled over: %w", err), "overstock")
	}
	return len(pending), nil
}

func (StockRepository) CreateDefect(ctx context.Context, q database.DBTX, d *domain.Defect) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO defects (product_id, quantity, reason, recorded_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, defect_date`,
		d.ProductID, d.Quantity, d.Reason, d.RecordedBy,
	).Scan(&d.ID, &d.DefectDate)
	return database.TranslateError(err, "defect")
}

// ListDefects lists defects, optionally for one product (productID > 0).
func (StockRepository) ListDefects(ctx context.Context, q database.DBTX, productID int64) ([]*domain.Defect, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT d.id, d.product_id, p.name, d.quantity, d.reason, d.recorded_by, d.defect_date
		FROM defects d
		JOIN products p ON p.id = d.product_id
		WHERE ($1 = 0 OR d.product_id = $1)
		ORDER BY d.defect_date DESC, d.id DESC`,
		productID,
	)
	if err != nil {
		return nil, database.TranslateError(fmt.Errorf("list defects: %w", err), "defect")
	}
	defer rows.Close()

	out := []*domain.Defect{}
	for rows.Next() {
		var d domain.Defect
		if err := rows.Scan(&d.ID, &d.ProductID, &d.ProductName, &d.Quantity, &d.Reason, &d.RecordedBy, &d.DefectDate); err != nil {
			return nil, fmt.Errorf("scan defect: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (StockRepository) CreateRestock(ctx context.Context, q database.DBTX, rs *domain.Restock) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO restocks (product_id, quantity, notes, recorded_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, restock_date`,
		rs.ProductID, rs.Quantity, rs.Notes, rs.RecordedBy,
	).Scan(&rs.ID, &rs.RestockDate)
	return database.TranslateError(err, "restock")
}

func (StockRepository) ListRestocks(ctx context.Context, q database.DBTX, r domain.DateRange) ([]*domain.Restock, error) {
	from, to := rangeArgs(r)
	rows, err := q.QueryContext(ctx, `
		SELECT rs.id, rs.product_id, p.name, rs.quantity, rs.notes, rs.recorded_by, rs.restock_date
		FROM restocks rs
		JOIN products p ON p.id = rs.product_id
		WHERE ($1::timestamptz IS NULL OR rs.restock_date >= $1)
		  AND ($2::timestamptz IS NULL OR rs.restock_date < $2)
		ORDER BY rs.restock_date DESC, rs.id DESC`,
		from, to,
	)
	if err != nil {
		return nil, database.TranslateError(fmt.Errorf("list restocks: %w", err), "restock")
	}
	defer rows.Close()

	out := []*domain.Restock{}
	for rows.Next() {
		var rs domain.Restock
		if err := rows.Scan(&rs.ID, &rs.ProductID, &rs.ProductName, &rs.Quantity, &rs.Notes, &rs.RecordedBy, &rs.RestockDate); err != nil {
			return nil, fmt.Errorf("scan restock: %w", err)
		}
		out = append(out, &rs)
	}
	return out, rows.Err()
}
