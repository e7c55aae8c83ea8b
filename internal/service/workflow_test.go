package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/internal/infrastructure/logger"
)

var productCols = []string{
	"id", "name", "description", "unit_price", "cost_price", "is_active", "recipe_id",
	"quantity_left", "sold_count", "defect_count", "created_at", "updated_at",
}

func productRow(id int64, name, price, cost string, active bool, left int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(productCols).AddRow(id, name, "", price, cost, active, nil, left, 0, 0, now, now)
}

func TestRecordSaleSnapshotsCostAndComputesTotal(t *testing.T) {
	sc, mock := newScope(t, domain.RoleCashier)
	reports := NewReportCache(time.Minute)
	reports.put(sc.ns, domain.DateRange{}, &domain.ProfitLoss{})
	svc := NewSalesService(reports, logger.Discard())

	mock.ExpectBegin()
	mock.ExpectQuery("FROM products WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(3)).
		WillReturnRows(productRow(3, "Bread Loaf", "5.00", "2.00", true, 10))
	mock.ExpectQuery("INSERT INTO sales").
		WithArgs(sqlmock.AnyArg(), "cash", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sale_date", "created_at"}).AddRow(41, time.Now(), time.Now()))
	mock.ExpectQuery("INSERT INTO sale_items").
		WithArgs(int64(41), int64(3), 3, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("UPDATE products\\s+SET quantity_left = quantity_left - \\$1").
		WithArgs(3, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sale, err := svc.RecordSale(context.Background(), sc, SaleInput{
		PaymentMethod: "cash",
		Items:         []SaleItemInput{{ProductID: 3, Quantity: 3}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(41), sale.ID)
	assert.True(t, sale.TotalAmount.Equal(decimal.RequireFromString("15.00")), sale.TotalAmount.String())
	require.Len(t, sale.Items, 1)
	assert.True(t, sale.Items[0].CostPrice.Equal(decimal.RequireFromString("2.00")))
	assert.Equal(t, "Bread Loaf", sale.Items[0].ProductName)

	_, cached := reports.get(sc.ns, domain.DateRange{})
	assert.False(t, cached, "a sale must invalidate cached reports")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSaleInactiveProductRollsBack(t *testing.T) {
	sc, mock := newScope(t)
	svc := NewSalesService(nil, logger.Discard())

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(int64(2)).
		WillReturnRows(productRow(2, "Croissant", "3.00", "1.00", true, 5))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(int64(9)).
		WillReturnRows(productRow(9, "Old Cake", "9.00", "4.00", false, 1))
	mock.ExpectRollback()

	_, err := svc.RecordSale(context.Background(), sc, SaleInput{
		PaymentMethod: "card",
		Items: []SaleItemInput{
			{ProductID: 9, Quantity: 1},
			{ProductID: 2, Quantity: 2},
		},
	})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSaleUnknownProductIsNotFound(t *testing.T) {
	sc, mock := newScope(t)
	svc := NewSalesService(nil, logger.Discard())

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(int64(5)).WillReturnRows(sqlmock.NewRows(productCols))
	mock.ExpectRollback()

	_, err := svc.RecordSale(context.Background(), sc, SaleInput{
		PaymentMethod: "cash",
		Items:         []SaleItemInput{{ProductID: 5, Quantity: 1}},
	})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, "product 5 not found", apperr.PublicMessage(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSaleValidation(t *testing.T) {
	sc, mock := newScope(t)
	svc := NewSalesService(nil, logger.Discard())

	cases := []SaleInput{
		{Items: []SaleItemInput{{ProductID: 1, Quantity: 1}}},
		{PaymentMethod: "cash"},
		{PaymentMethod: "cash", Items: []SaleItemInput{{ProductID: 1, Quantity: 0}}},
	}
	for _, in := range cases {
		_, err := svc.RecordSale(context.Background(), sc, in)
		assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

var purchaseCols = []string{"id", "status", "requested_by", "approved_by", "approval_date", "notes", "created_at", "updated_at"}

func expectPurchaseGet(mock sqlmock.Sqlmock, id int64, status domain.PurchaseStatus) {
	now := time.Now()
	mock.ExpectQuery("FROM purchase_requests WHERE id = \\$1$").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(purchaseCols).AddRow(id, string(status), 2, 1, now, "", now, now))
	mock.ExpectQuery("FROM purchase_request_items pi").
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "ingredient_id", "name", "quantity_requested", "estimated_unit_price"}).
			AddRow(1, id, 4, "Flour", "25", "0.80"))
}

func TestApprovePendingAppliesRefillOnce(t *testing.T) {
	sc, mock := newScope(t)
	svc := NewPurchaseService(logger.Discard())
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM purchase_requests WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("Pending"))
	mock.ExpectExec("UPDATE purchase_requests\\s+SET status = \\$1").
		WithArgs("Approved", int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE ingredients i\\s+SET refill_amount").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectPurchaseGet(mock, 12, domain.PurchaseApproved)
	mock.ExpectCommit()

	// The second approval sees Approved and touches nothing.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM purchase_requests").
		WithArgs(int64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("Approved"))
	expectPurchaseGet(mock, 12, domain.PurchaseApproved)
	mock.ExpectCommit()

	first, err := svc.Approve(ctx, sc, 12)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseApproved, first.Status)

	second, err := svc.Approve(ctx, sc, 12)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseApproved, second.Status)
	require.Len(t, second.Items, 1)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveRejectedConflicts(t *testing.T) {
	sc, mock := newScope(t)
	svc := NewPurchaseService(logger.Discard())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM purchase_requests").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("Rejected"))
	mock.ExpectRollback()

	_, err := svc.Approve(context.Background(), sc, 3)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWithStatusRequiresManager(t *testing.T) {
	sc, mock := newScope(t, domain.RoleBaker)
	svc := NewPurchaseService(logger.Discard())

	status := "Approved"
	_, err := svc.Update(context.Background(), sc, 3, PurchaseUpdate{Status: &status})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveAllWithNothingPending(t *testing.T) {
	sc, mock := newScope(t)
	svc := NewPurchaseService(logger.Discard())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM purchase_requests WHERE status = \\$1").
		WithArgs("Pending").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	n, err := svc.ApproveAll(context.Background(), sc)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRollOverTwiceWithNothingOpen(t *testing.T) {
	sc, mock := newScope(t)
	svc := NewSalesService(nil, logger.Discard())

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery("FROM overstocks WHERE NOT rolled_over").
			WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "quantity"}))
		mock.ExpectCommit()
	}

	for i := 0; i < 2; i++ {
		n, err := svc.RollOver(context.Background(), sc)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProductResolvesRecipeCost(t *testing.T) {
	sc, mock := newScope(t)
	svc := NewCatalogService(logger.Discard())
	recipeID := int64(8)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM recipes WHERE id = \\$1 FOR UPDATE").
		WithArgs(recipeID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(recipeID))
	mock.ExpectQuery("FROM recipe_ingredients").
		WithArgs(recipeID).
		WillReturnRows(sqlmock.NewRows([]string{"cost"}).AddRow("6.00"))
	mock.ExpectQuery("INSERT INTO products").
		WillReturnRows(sqlmock.NewRows([]string{"id", "sold_count", "defect_count", "created_at", "updated_at"}).
			AddRow(5, 0, 0, time.Now(), time.Now()))
	mock.ExpectCommit()

	p, err := svc.CreateProduct(context.Background(), sc, ProductInput{
		Name:      "Bread Loaf",
		UnitPrice: decimal.RequireFromString("5.00"),
		RecipeID:  &recipeID,
	})
	require.NoError(t, err)
	assert.True(t, p.CostPrice.Equal(decimal.RequireFromString("6.00")), p.CostPrice.String())
	assert.True(t, p.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProductUnknownRecipeIsBadRequest(t *testing.T) {
	sc, mock := newScope(t)
	svc := NewCatalogService(logger.Discard())
	recipeID := int64(99)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM recipes WHERE id = $1 FOR UPDATE")).
		WithArgs(recipeID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := svc.CreateProduct(context.Background(), sc, ProductInput{
		Name:      "Mystery Bun",
		UnitPrice: decimal.RequireFromString("2.00"),
		RecipeID:  &recipeID,
	})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRecipeLinesRecostsProducts(t *testing.T) {
	sc, mock := newScope(t)
	svc := NewCatalogService(logger.Discard())
	recipeID := int64(8)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM recipes WHERE id = \\$1 FOR UPDATE").
		WithArgs(recipeID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(recipeID))
	mock.ExpectQuery("UPDATE recipes SET").
		WithArgs("Sourdough", "", 10, recipeID).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec("DELETE FROM recipe_ingredients WHERE recipe_id").
		WithArgs(recipeID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO recipe_ingredients").
		WithArgs(recipeID, int64(2), decimal.RequireFromString("0.5")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO recipe_ingredients").
		WithArgs(recipeID, int64(3), decimal.RequireFromString("2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("COALESCE\\(SUM").
		WithArgs(recipeID).
		WillReturnRows(sqlmock.NewRows([]string{"cost"}).AddRow("7.50"))
	mock.ExpectExec("UPDATE products SET cost_price = \\$1").
		WithArgs(decimal.RequireFromString("7.50"), recipeID).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery("FROM recipes WHERE id = \\$1").
		WithArgs(recipeID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "batch_size", "created_at", "updated_at"}).
			AddRow(recipeID, "Sourdough", "", 10, now, now))
	mock.ExpectQuery("FROM recipe_ingredients ri").
		WillReturnRows(sqlmock.NewRows([]string{"recipe_id", "ingredient_id", "name", "unit", "quantity", "unit_cost"}).
			AddRow(recipeID, 2, "Flour", "kg", "0.5", "3.00").
			AddRow(recipeID, 3, "Water", "l", "2", "3.00"))
	mock.ExpectCommit()

	r, err := svc.UpdateRecipe(context.Background(), sc, recipeID, RecipeInput{
		Name:      "Sourdough",
		BatchSize: 10,
		Ingredients: []RecipeLineInput{
			{IngredientID: 2, Quantity: decimal.RequireFromString("0.5")},
			{IngredientID: 3, Quantity: decimal.RequireFromString("2")},
		},
	})
	require.NoError(t, err)
	require.Len(t, r.Lines, 2)
	assert.True(t, r.Cost.Equal(decimal.RequireFromString("7.50")), r.Cost.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRecipeWithoutLinesKeepsProductCost(t *testing.T) {
	sc, mock := newScope(t)
	svc := NewCatalogService(logger.Discard())
	recipeID := int64(8)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM recipes WHERE id = \\$1 FOR UPDATE").
		WithArgs(recipeID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(recipeID))
	mock.ExpectQuery("UPDATE recipes SET").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectQuery("FROM recipes WHERE id = \\$1").
		WithArgs(recipeID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "batch_size", "created_at", "updated_at"}).
			AddRow(recipeID, "Sourdough Loaf", "", 12, now, now))
	mock.ExpectQuery("FROM recipe_ingredients ri").
		WillReturnRows(sqlmock.NewRows([]string{"recipe_id", "ingredient_id", "name", "unit", "quantity", "unit_cost"}))
	mock.ExpectCommit()

	_, err := svc.UpdateRecipe(context.Background(), sc, recipeID, RecipeInput{Name: "Sourdough Loaf", BatchSize: 12})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateIngredientCostRecostsEveryRecipe(t *testing.T) {
	sc, mock := newScope(t)
	svc := NewCatalogService(logger.Discard())
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT unit_cost FROM ingredients WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"unit_cost"}).AddRow("2.00"))
	mock.ExpectQuery("UPDATE ingredients").
		WillReturnRows(sqlmock.NewRows([]string{"refill_amount", "created_at", "updated_at"}).AddRow("0", now, now))
	mock.ExpectQuery("SELECT DISTINCT recipe_id FROM recipe_ingredients").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"recipe_id"}).AddRow(8).AddRow(9))
	mock.ExpectQuery("COALESCE\\(SUM").
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"cost"}).AddRow("7.50"))
	mock.ExpectExec("UPDATE products SET cost_price = \\$1").
		WithArgs(decimal.RequireFromString("7.50"), int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("COALESCE\\(SUM").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"cost"}).AddRow("4.00"))
	mock.ExpectExec("UPDATE products SET cost_price = \\$1").
		WithArgs(decimal.RequireFromString("4.00"), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	i, err := svc.UpdateIngredient(context.Background(), sc, 2, IngredientInput{
		Name:         "Flour",
		Unit:         "kg",
		CurrentStock: decimal.RequireFromString("20"),
		ReorderLevel: decimal.RequireFromString("5"),
		UnitCost:     decimal.RequireFromString("3.00"),
	})
	require.NoError(t, err)
	assert.True(t, i.UnitCost.Equal(decimal.RequireFromString("3.00")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateIngredientSameCostSkipsRecosting(t *testing.T) {
	sc, mock := newScope(t)
	svc := NewCatalogService(logger.Discard())
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT unit_cost FROM ingredients").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"unit_cost"}).AddRow("3.00"))
	mock.ExpectQuery("UPDATE ingredients").
		WillReturnRows(sqlmock.NewRows([]string{"refill_amount", "created_at", "updated_at"}).AddRow("0", now, now))
	mock.ExpectCommit()

	_, err := svc.UpdateIngredient(context.Background(), sc, 2, IngredientInput{
		Name:     "Flour",
		Unit:     "kg",
		UnitCost: decimal.RequireFromString("3"),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
