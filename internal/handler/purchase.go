package handler

import (
	"log/slog"
	"net/http"

	"github.com/nephi-asha/kishkumen/internal/httpx"
	"github.com/nephi-asha/kishkumen/internal/service"
)

// PurchaseHandler serves purchase requests and their approval.
type PurchaseHandler struct {
	purchases *service.PurchaseService
	logger    *slog.Logger
}

func NewPurchaseHandler(purchases *service.PurchaseService, logger *slog.Logger) *PurchaseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurchaseHandler{purchases: purchases, logger: logger}
}

// List handles GET /api/purchase-requests?status=Pending
func (h *PurchaseHandler) List(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	reqs, err := h.purchases.List(r.Context(), sc, r.URL.Query().Get("status"))
	reply(w, r, h.logger, http.StatusOK, reqs, err)
}

func (h *PurchaseHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	pr, err := h.purchases.Get(r.Context(), sc, id)
	reply(w, r, h.logger, http.StatusOK, pr, err)
}

func (h *PurchaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.PurchaseInput
	if err := httpx.Decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	pr, err := h.purchases.Create(r.Context(), sc, in)
	reply(w, r, h.logger, http.StatusCreated, pr, err)
}

func (h *PurchaseHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	var in service.PurchaseUpdate
	if err := httpx.Decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	pr, err := h.purchases.Update(r.Context(), sc, id, in)
	reply(w, r, h.logger, http.StatusOK, pr, err)
}

// Approve handles POST /api/purchase-requests/{id}/approve. Approving an
// already approved request changes nothing.
func (h *PurchaseHandler) Approve(w http.ResponseWriter, r *http.Request) {
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
	pr, err := h.purchases.Approve(r.Context(), sc, id)
	reply(w, r, h.logger, http.StatusOK, pr, err)
}

func (h *PurchaseHandler) Reject(w http.ResponseWriter, r *http.Request) {
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
	pr, err := h.purchases.Reject(r.Context(), sc, id)
	reply(w, r, h.logger, http.StatusOK, pr, err)
}

// ApproveAll handles POST /api/purchase-requests/approve-all
func (h *PurchaseHandler) ApproveAll(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	n, err := h.purchases.ApproveAll(r.Context(), sc)
	reply(w, r, h.logger, http.StatusOK, countResponse{Message: "pending purchase requests approved", Count: n}, err)
}

func (h *PurchaseHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	reply(w, r, h.logger, http.StatusNoContent, nil, h.purchases.Delete(r.Context(), sc, id))
}
