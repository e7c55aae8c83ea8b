package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/internal/httpx"
	"github.com/nephi-asha/kishkumen/internal/service"
)

// SalesHandler serves sales and the shelf stock records around them.
type SalesHandler struct {
	sales  *service.SalesService
	logger *slog.Logger
}

func NewSalesHandler(sales *service.SalesService, logger *slog.Logger) *SalesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SalesHandler{sales: sales, logger: logger}
}

// dateRange reads the optional startDate and endDate query parameters.
func dateRange(r *http.Request) (domain.DateRange, error) {
	q := r.URL.Query()
	return service.ParseDateRange(q.Get("startDate"), q.Get("endDate"), false)
}

type paymentMethodRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

func (h *SalesHandler) ListSales(w http.ResponseWriter, r *http.Request) {
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
	sales, err := h.sales.ListSales(r.Context(), sc, rng)
	reply(w, r, h.logger, http.StatusOK, sales, err)
}

func (h *SalesHandler) GetSale(w http.ResponseWriter, r *http.Request) {
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
	sale, err := h.sales.GetSale(r.Context(), sc, id)
	reply(w, r, h.logger, http.StatusOK, sale, err)
}

// RecordSale handles POST /api/sales
func (h *SalesHandler) RecordSale(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.SaleInput
	if err := httpx.Decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sale, err := h.sales.RecordSale(r.Context(), sc, in)
	reply(w, r, h.logger, http.StatusCreated, sale, err)
}

// UpdateSale handles PUT /api/sales/{id}. Only the payment method may
// change after a sale is recorded.
func (h *SalesHandler) UpdateSale(w http.ResponseWriter, r *http.Request) {
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
	var req paymentMethodRequest
	if err := httpx.Decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sale, err := h.sales.UpdatePaymentMethod(r.Context(), sc, id, req.PaymentMethod)
	reply(w, r, h.logger, http.StatusOK, sale, err)
}

func (h *SalesHandler) DeleteSale(w http.ResponseWriter, r *http.Request) {
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
	reply(w, r, h.logger, http.StatusNoContent, nil, h.sales.DeleteSale(r.Context(), sc, id))
}

// Overstocks

func (h *SalesHandler) ListOverstocks(w http.ResponseWriter, r *http.Request) {
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
	items, err := h.sales.ListOverstocks(r.Context(), sc, rng)
	reply(w, r, h.logger, http.StatusOK, items, err)
}

func (h *SalesHandler) RecordOverstock(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.OverstockInput
	if err := httpx.Decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	o, err := h.sales.RecordOverstock(r.Context(), sc, in)
	reply(w, r, h.logger, http.StatusCreated, o, err)
}

// RollOver handles POST /api/overstocks/rollover. Nothing to roll over is
// still a success.
func (h *SalesHandler) RollOver(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	n, err := h.sales.RollOver(r.Context(), sc)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	msg := "overstock rolled over"
	if n == 0 {
		msg = "no overstock to roll over"
	}
	httpx.JSON(w, http.StatusOK, countResponse{Message: msg, Count: int64(n)})
}

// Defects

// ListDefects serves GET /api/defects (optional productId filter) and
// GET /api/products/{id}/defects.
func (h *SalesHandler) ListDefects(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var productID int64
	if raw := r.URL.Query().Get("productId"); raw != "" {
		if productID, err = strconv.ParseInt(raw, 10, 64); err != nil || productID <= 0 {
			writeError(w, r, h.logger, apperr.BadRequest("invalid productId %q", raw))
			return
		}
	}
	if chi.URLParam(r, "id") != "" {
		if productID, err = idParam(r, "id"); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}
	defects, err := h.sales.ListDefects(r.Context(), sc, productID)
	reply(w, r, h.logger, http.StatusOK, defects, err)
}

func (h *SalesHandler) RecordDefect(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	productID, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.DefectInput
	if err := httpx.Decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	d, err := h.sales.RecordDefect(r.Context(), sc, productID, in)
	reply(w, r, h.logger, http.StatusCreated, d, err)
}

// Restocks

func (h *SalesHandler) ListRestocks(w http.ResponseWriter, r *http.Request) {
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
	items, err := h.sales.ListRestocks(r.Context(), sc, rng)
	reply(w, r, h.logger, http.StatusOK, items, err)
}

func (h *SalesHandler) RecordRestock(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.RestockInput
	if err := httpx.Decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rs, err := h.sales.RecordRestock(r.Context(), sc, in)
	reply(w, r, h.logger, http.StatusCreated, rs, err)
}
