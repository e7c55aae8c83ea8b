package repository

import (
	"context"
	"fmt"

	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

// ReportRepository aggregates figures for financial reports.
type ReportRepository struct{}

// ProfitLoss collects revenue, cost of goods sold and expenses for r and
// derives the totals. Cost of goods uses the cost captured on each sale
// line. Denied expenses are left out.
func (ReportRepository) ProfitLoss(ctx context.Context, q database.DBTX, r domain.DateRange) (*domain.ProfitLoss, error) {
	from, to := rangeArgs(r)
	pl := &domain.ProfitLoss{From: r.From, To: r.To}

	err := q.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(s.total_amount) FROM sales s
			          WHERE ($1::timestamptz IS NULL OR s.sale_date >= $1)
			            AND ($2::timestamptz IS NULL OR s.sale_date < $2)), 0),
			COALESCE((SELECT SUM(si.cost_price * si.quantity) FROM sale_items si
			          JOIN sales s ON s.id = si.sale_id
			          WHERE ($1::timestamptz IS NULL OR s.sale_date >= $1)
			            AND ($2::timestamptz IS NULL OR s.sale_date < $2)), 0)`,
		from, to,
	).Scan(&pl.Revenue, &pl.COGS)
	if err != nil {
		return nil, database.TranslateError(fmt.Errorf("sum sales: %w", err), "report")
	}

	err = q.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE cost_type = 'Fixed'), 0),
			COALESCE(SUM(amount) FILTER (WHERE cost_type = 'Variable'), 0)
		FROM expenses
		WHERE status <> 'Denied'
		  AND ($1::date IS NULL OR expense_date >= $1)
		  AND ($2::date IS NULL OR expense_date < $2)`,
		from, to,
	).Scan(&pl.FixedExpenses, &pl.VariableExpenses)
	if err != nil {
		return nil, database.TranslateError(fmt.Errorf("sum expenses: %w", err), "report")
	}

	pl.Finalize()
	return pl, nil
}
