package repository

import (
	"context"
	"fmt"

	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

// ExpenseRepository stores operating expenses.
type ExpenseRepository struct{}

const expenseColumns = `id, expense_date, amount, category, description, cost_type, frequency, status, is_active, recorded_by, created_at, updated_at`

func scanExpense(row rowScanner) (*domain.Expense, error) {
	var e domain.Expense
	err := row.Scan(&e.ID, &e.ExpenseDate, &e.Amount, &e.Category, &e.Description,
		&e.CostType, &e.Frequency, &e.Status, &e.IsActive, &e.RecordedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (ExpenseRepository) List(ctx context.Context, q database.DBTX, r domain.DateRange) ([]*domain.Expense, error) {
	from, to := rangeArgs(r)
	rows, err := q.QueryContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE ($1::date IS NULL OR expense_date >= $1)
		  AND ($2::date IS NULL OR expense_date < $2)
		ORDER BY expense_date DESC, id DESC`,
		from, to,
	)
	if err != nil {
		return nil, database.TranslateError(fmt.Errorf("list expenses: %w", err), "expense")
	}
	defer rows.Close()

	out := []*domain.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (ExpenseRepository) Get(ctx context.Context, q database.DBTX, id int64) (*domain.Expense, error) {
	e, err := scanExpense(q.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id))
	if err != nil {
		return nil, database.TranslateError(err, "expense")
	}
	return e, nil
}

func (ExpenseRepository) Create(ctx context.Context, q database.DBTX, e *domain.Expense) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO expenses (expense_date, amount, category, description, cost_type, frequency, status, is_active, recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		e.ExpenseDate, e.Amount, e.Category, e.Description, e.CostType, e.Frequency, e.Status, e.IsActive, e.RecordedBy,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	return database.TranslateError(err, "expense")
}

func (ExpenseRepository) Update(ctx context.Context, q database.DBTX, e *domain.Expense) error {
	err := q.QueryRowContext(ctx, `
		UPDATE expenses
		SET expense_date = $1, amount = $2, category = $3, description = $4, cost_type = $5,
		    frequency = $6, status = $7, is_active = $8, updated_at = now()
		WHERE id = $9
		RETURNING updated_at`,
		e.ExpenseDate, e.Amount, e.Category, e.Description, e.CostType, e.Frequency, e.Status, e.IsActive, e.ID,
	).Scan(&e.UpdatedAt)
	return database.TranslateError(err, "expense")
}

func (ExpenseRepository) Delete(ctx context.Context, q database.DBTX, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return database.TranslateError(err, "expense")
	}
	return expectOne(res, "expense")
}
