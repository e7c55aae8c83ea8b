package handler

import (
	"log/slog"
	"net/http"

	"github.com/nephi-asha/kishkumen/internal/httpx"
	"github.com/nephi-asha/kishkumen/internal/service"
)

// FinanceHandler serves expenses and financial reports.
type FinanceHandler struct {
	expenses *service.ExpenseService
	reports  *service.ReportService
	logger   *slog.Logger
}

func NewFinanceHandler(expenses *service.ExpenseService, reports *service.ReportService, logger *slog.Logger) *FinanceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FinanceHandler{expenses: expenses, reports: reports, logger: logger}
}

func (h *FinanceHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rng, err := dateRange(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items, err := h.expenses.List(r.Context(), sc, rng)
	reply(w, r, h.logger, http.StatusOK, items, err)
}

func (h *FinanceHandler) GetExpense(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	e, err := h.expenses.Get(r.Context(), sc, id)
	reply(w, r, h.logger, http.StatusOK, e, err)
}

func (h *FinanceHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.ExpenseInput
	if err := httpx.Decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	e, err := h.expenses.Create(r.Context(), sc, in)
	reply(w, r, h.logger, http.StatusCreated, e, err)
}

func (h *FinanceHandler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.ExpenseInput
	if err := httpx.Decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	e, err := h.expenses.Update(r.Context(), sc, id, in)
	reply(w, r, h.logger, http.StatusOK, e, err)
}

func (h *FinanceHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	reply(w, r, h.logger, http.StatusNoContent, nil, h.expenses.Delete(r.Context(), sc, id))
}

// ProfitLoss handles GET /api/reports/profit-loss?startDate=&endDate=
// with both dates inclusive.
func (h *FinanceHandler) ProfitLoss(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	pl, err := h.reports.ProfitLoss(r.Context(), sc, q.Get("startDate"), q.Get("endDate"))
	reply(w, r, h.logger, http.StatusOK, pl, err)
}
