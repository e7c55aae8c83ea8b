package handler

import (
	"log/slog"
	"net/http"

	"github.com/nephi-asha/kishkumen/internal/httpx"
	"github.com/nephi-asha/kishkumen/internal/service"
)

// CatalogHandler serves products, ingredients and recipes.
type CatalogHandler struct {
	catalog *service.CatalogService
	logger  *slog.Logger
}

func NewCatalogHandler(catalog *service.CatalogService, logger *slog.Logger) *CatalogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// Products

func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	products, err := h.catalog.ListProducts(r.Context(), sc)
	reply(w, r, h.logger, http.StatusOK, products, err)
}

func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
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
	p, err := h.catalog.GetProduct(r.Context(), sc, id)
	reply(w, r, h.logger, http.StatusOK, p, err)
}

func (h *CatalogHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.ProductInput
	if err := httpx.Decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.catalog.CreateProduct(r.Context(), sc, in)
	reply(w, r, h.logger, http.StatusCreated, p, err)
}

func (h *CatalogHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
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
	var in service.ProductInput
	if err := httpx.Decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.catalog.UpdateProduct(r.Context(), sc, id, in)
	reply(w, r, h.logger, http.StatusOK, p, err)
}

func (h *CatalogHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
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
	reply(w, r, h.logger, http.StatusNoContent, nil, h.catalog.DeleteProduct(r.Context(), sc, id))
}

// Ingredients

func (h *CatalogHandler) ListIngredients(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items, err := h.catalog.ListIngredients(r.Context(), sc)
	reply(w, r, h.logger, http.StatusOK, items, err)
}

// LowStock handles GET /api/ingredients/low-stock
func (h *CatalogHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items, err := h.catalog.LowStock(r.Context(), sc)
	reply(w, r, h.logger, http.StatusOK, items, err)
}

func (h *CatalogHandler) GetIngredient(w http.ResponseWriter, r *http.Request) {
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
	i, err := h.catalog.GetIngredient(r.Context(), sc, id)
	reply(w, r, h.logger, http.StatusOK, i, err)
}

func (h *CatalogHandler) CreateIngredient(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.IngredientInput
	if err := httpx.Decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	i, err := h.catalog.CreateIngredient(r.Context(), sc, in)
	reply(w, r, h.logger, http.StatusCreated, i, err)
}

func (h *CatalogHandler) UpdateIngredient(w http.ResponseWriter, r *http.Request) {
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
	var in service.IngredientInput
	if err := httpx.Decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	i, err := h.catalog.UpdateIngredient(r.Context(), sc, id, in)
	reply(w, r, h.logger, http.StatusOK, i, err)
}

func (h *CatalogHandler) DeleteIngredient(w http.ResponseWriter, r *http.Request) {
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
	reply(w, r, h.logger, http.StatusNoContent, nil, h.catalog.DeleteIngredient(r.Context(), sc, id))
}

// Refill handles POST /api/ingredients/{id}/refill: the pending refill is
// moved into stock and completed purchase requests are reconciled.
func (h *CatalogHandler) Refill(w http.ResponseWriter, r *http.Request) {
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
	i, err := h.catalog.Refill(r.Context(), sc, id)
	reply(w, r, h.logger, http.StatusOK, i, err)
}

// Recipes

func (h *CatalogHandler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	recipes, err := h.catalog.ListRecipes(r.Context(), sc)
	reply(w, r, h.logger, http.StatusOK, recipes, err)
}

func (h *CatalogHandler) GetRecipe(w http.ResponseWriter, r *http.Request) {
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
	rec, err := h.catalog.GetRecipe(r.Context(), sc, id)
	reply(w, r, h.logger, http.StatusOK, rec, err)
}

func (h *CatalogHandler) CreateRecipe(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.RecipeInput
	if err := httpx.Decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rec, err := h.catalog.CreateRecipe(r.Context(), sc, in)
	reply(w, r, h.logger, http.StatusCreated, rec, err)
}

func (h *CatalogHandler) UpdateRecipe(w http.ResponseWriter, r *http.Request) {
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
	var in service.RecipeInput
	if err := httpx.Decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rec, err := h.catalog.UpdateRecipe(r.Context(), sc, id, in)
	reply(w, r, h.logger, http.StatusOK, rec, err)
}

func (h *CatalogHandler) DeleteRecipe(w http.ResponseWriter, r *http.Request) {
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
	reply(w, r, h.logger, http.StatusNoContent, nil, h.catalog.DeleteRecipe(r.Context(), sc, id))
}
