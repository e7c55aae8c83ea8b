package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/internal/repository"
	"github.com/nephi-asha/kishkumen/internal/tenancy"
)

// ExpenseService manages operating expenses.
type ExpenseService struct {
	expenses repository.ExpenseRepository
	reports  *ReportCache
	logger   *slog.Logger
}

func NewExpenseService(reports *ReportCache, logger *slog.Logger) *ExpenseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpenseService{reports: reports, logger: logger}
}

// ExpenseInput is the writable part of an expense. Status defaults to
// Requested and IsActive to false.
type ExpenseInput struct {
	ExpenseDate string          `json:"expenseDate"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	CostType    string          `json:"costType"`
	Frequency   string          `json:"frequency"`
	Status      string          `json:"status"`
	IsActive    *bool           `json:"isActive"`
}

// apply validates in and writes it over e. An expense that stops being
// Paid is deactivated; activating one that is not Paid is rejected.
func (in *ExpenseInput) apply(e *domain.Expense) error {
	date, err := ParseDate(in.ExpenseDate)
	if err != nil {
		return err
	}
	if in.Amount.IsNegative() {
		return apperr.BadRequest("amount must not be negative")
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return apperr.BadRequest("category is required")
	}
	costType, err := domain.ParseCostType(in.CostType)
	if err != nil {
		return apperr.BadRequest("%v", err)
	}
	freq, err := domain.ParseFrequency(in.Frequency)
	if err != nil {
		return apperr.BadRequest("%v", err)
	}
	status := e.Status
	if in.Status != "" {
		if status, err = domain.ParseExpenseStatus(in.Status); err != nil {
			return apperr.BadRequest("%v", err)
		}
	}
	if status == "" {
		status = domain.ExpenseRequested
	}

	active := e.IsActive
	if in.IsActive != nil {
		active = *in.IsActive
		if active && status != domain.ExpensePaid {
			return apperr.BadRequest("only a paid expense can be active")
		}
	}
	if status != domain.ExpensePaid {
		active = false
	}

	e.ExpenseDate = date
	e.Amount = in.Amount
	e.Category = category
	e.Description = strings.TrimSpace(in.Description)
	e.CostType = costType
	e.Frequency = freq
	e.Status = status
	e.IsActive = active
	return nil
}

func (s *ExpenseService) List(ctx context.Context, sc tenancy.Scope, r domain.DateRange) ([]*domain.Expense, error) {
	return s.expenses.List(ctx, sc.Querier(), r)
}

func (s *ExpenseService) Get(ctx context.Context, sc tenancy.Scope, id int64) (*domain.Expense, error) {
	return s.expenses.Get(ctx, sc.Querier(), id)
}

func (s *ExpenseService) Create(ctx context.Context, sc tenancy.Scope, in ExpenseInput) (*domain.Expense, error) {
	e := &domain.Expense{RecordedBy: sc.Identity().UserID}
	if err := in.apply(e); err != nil {
		return nil, err
	}
	if err := s.expenses.Create(ctx, sc.Querier(), e); err != nil {
		return nil, err
	}
	s.reports.Invalidate(sc.Namespace())
	return e, nil
}

func (s *ExpenseService) Update(ctx context.Context, sc tenancy.Scope, id int64, in ExpenseInput) (*domain.Expense, error) {
	e, err := s.expenses.Get(ctx, sc.Querier(), id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(e); err != nil {
		return nil, err
	}
	if err := s.expenses.Update(ctx, sc.Querier(), e); err != nil {
		return nil, err
	}
	s.reports.Invalidate(sc.Namespace())
	return e, nil
}

func (s *ExpenseService) Delete(ctx context.Context, sc tenancy.Scope, id int64) error {
	if err := s.expenses.Delete(ctx, sc.Querier(), id); err != nil {
		return err
	}
	s.reports.Invalidate(sc.Namespace())
	return nil
}
