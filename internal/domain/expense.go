package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type CostType string

const (
	CostFixed    CostType = "Fixed"
	CostVariable CostType = "Variable"
)

type Frequency string

const (
	FrequencyOneTime Frequency = "One-time"
	FrequencyMonthly Frequency = "Monthly"
	FrequencyYearly  Frequency = "Yearly"
)

type ExpenseStatus string

const (
	ExpenseRequested ExpenseStatus = "Requested"
	ExpenseApproved  ExpenseStatus = "Approved"
	ExpensePaid      ExpenseStatus = "Paid"
	ExpenseDenied    ExpenseStatus = "Denied"
)

func ParseCostType(s string) (CostType, error) {
	switch c := CostType(s); c {
	case CostFixed, CostVariable:
		return c, nil
	}
	return "", fmt.Errorf("cost type must be Fixed or Variable, got %q", s)
}

func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case FrequencyOneTime, FrequencyMonthly, FrequencyYearly:
		return f, nil
	}
	return "", fmt.Errorf("frequency must be One-time, Monthly or Yearly, got %q", s)
}

func ParseExpenseStatus(s string) (ExpenseStatus, error) {
	switch st := ExpenseStatus(s); st {
	case ExpenseRequested, ExpenseApproved, ExpensePaid, ExpenseDenied:
		return st, nil
	}
	return "", fmt.Errorf("unknown expense status %q", s)
}

// Expense is an operating cost. Only a paid expense can be active.
type Expense struct {
	ID          int64           `json:"id"`
	ExpenseDate time.Time       `json:"expenseDate"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	CostType    CostType        `json:"costType"`
	Frequency   Frequency       `json:"frequency"`
	Status      ExpenseStatus   `json:"status"`
	IsActive    bool            `json:"isActive"`
	RecordedBy  int64           `json:"recordedBy"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ProfitLoss summarizes one reporting period.
type ProfitLoss struct {
	From             time.Time       `json:"from"`
	To               time.Time       `json:"to"`
	Revenue          decimal.Decimal `json:"revenue"`
	COGS             decimal.Decimal `json:"cogs"`
	GrossProfit      decimal.Decimal `json:"grossProfit"`
	FixedExpenses    decimal.Decimal `json:"fixedExpenses"`
	VariableExpenses decimal.Decimal `json:"variableExpenses"`
	TotalExpenses    decimal.Decimal `json:"totalExpenses"`
	NetProfit        decimal.Decimal `json:"netProfit"`
}

// Finalize derives the computed totals from the collected sums.
func (p *ProfitLoss) Finalize() {
	p.GrossProfit = p.Revenue.Sub(p.COGS)
	p.TotalExpenses = p.FixedExpenses.Add(p.VariableExpenses)
	p.NetProfit = p.GrossProfit.Sub(p.TotalExpenses)
}
