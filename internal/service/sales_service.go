package service

import (
	"context"
	"database/sql"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/internal/observability/metrics"
	"github.com/nephi-asha/kishkumen/internal/repository"
	"github.com/nephi-asha/kishkumen/internal/tenancy"
)

// SalesService records sales and shelf stock movements.
type SalesService struct {
	sales    repository.SaleRepository
	products repository.ProductRepository
	stock    repository.StockRepository
	reports  *ReportCache
	logger   *slog.Logger
}

func NewSalesService(reports *ReportCache, logger *slog.Logger) *SalesService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SalesService{reports: reports, logger: logger}
}

// SaleItemInput is one line of a sale. UnitPrice defaults to the product's
// current price.
type SaleItemInput struct {
	ProductID int64            `json:"productId"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unitPrice"`
}

type SaleInput struct {
	PaymentMethod string          `json:"paymentMethod"`
	Items         []SaleItemInput `json:"items"`
}

func (in *SaleInput) validate() error {
	in.PaymentMethod = strings.TrimSpace(in.PaymentMethod)
	if in.PaymentMethod == "" {
		return apperr.BadRequest("paymentMethod is required")
	}
	if len(in.Items) == 0 {
		return apperr.BadRequest("at least one item is required")
	}
	for _, it := range in.Items {
		if it.ProductID <= 0 {
			return apperr.BadRequest("productId is required for every item")
		}
		if it.Quantity <= 0 {
			return apperr.BadRequest("quantity for product %d must be greater than zero", it.ProductID)
		}
		if it.UnitPrice != nil && it.UnitPrice.IsNegative() {
			return apperr.BadRequest("unitPrice for product %d must not be negative", it.ProductID)
		}
	}
	return nil
}

func (s *SalesService) ListSales(ctx context.Context, sc tenancy.Scope, r domain.DateRange) ([]*domain.Sale, error) {
	return s.sales.List(ctx, sc.Querier(), r)
}

func (s *SalesService) GetSale(ctx context.Context, sc tenancy.Scope, id int64) (*domain.Sale, error) {
	return s.sales.Get(ctx, sc.Querier(), id)
}

// RecordSale writes the sale, its lines and the stock decrement in one
// transaction. Every product is locked first, in id order, so each line's
// cost snapshot is the cost at the moment of sale. Any failing line rolls
// back the whole sale.
func (s *SalesService) RecordSale(ctx context.Context, sc tenancy.Scope, in SaleInput) (*domain.Sale, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(in.Items))
	for _, it := range in.Items {
		ids = append(ids, it.ProductID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	sale := &domain.Sale{
		PaymentMethod: in.PaymentMethod,
		CashierID:     sc.Identity().UserID,
	}
	err := sc.InTx(ctx, func(tx *sql.Tx) error {
		products := make(map[int64]*domain.Product, len(ids))
		for _, id := range ids {
			p, err := s.products.GetForUpdate(ctx, tx, id)
			if err != nil {
				if apperr.KindOf(err) == apperr.KindNotFound {
					return apperr.NotFound("product %d not found", id)
				}
				return err
			}
			if !p.IsActive {
				return apperr.BadRequest("product %q is not for sale", p.Name)
			}
			products[id] = p
		}

		items := make([]domain.SaleItem, 0, len(in.Items))
		total := decimal.Zero
		for _, it := range in.Items {
			p := products[it.ProductID]
			price := p.UnitPrice
			if it.UnitPrice != nil {
				price = *it.UnitPrice
			}
			item := domain.SaleItem{
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    it.Quantity,
				UnitPrice:   price,
				CostPrice:   p.CostPrice,
			}
			total = total.Add(item.LineTotal())
			items = append(items, item)
		}
		sale.TotalAmount = total

		if err := s.sales.Create(ctx, tx, sale); err != nil {
			return err
		}
		for i := range items {
			items[i].SaleID = sale.ID
			if err := s.sales.AddItem(ctx, tx, &items[i]); err != nil {
				return err
			}
			if err := s.products.RecordSold(ctx, tx, items[i].ProductID, items[i].Quantity); err != nil {
				return err
			}
		}
		sale.Items = items
		return nil
	})
	metrics.ObserveWorkflow("sale_record", err)
	if err != nil {
		return nil, err
	}

	s.reports.Invalidate(sc.Namespace())
	s.logger.Info("sale recorded",
		slog.String("namespace", sc.Namespace().String()),
		slog.Int64("sale_id", sale.ID),
		slog.String("total", sale.TotalAmount.String()),
	)
	return sale, nil
}

// UpdatePaymentMethod corrects how a sale was paid.
func (s *SalesService) UpdatePaymentMethod(ctx context.Context, sc tenancy.Scope, id int64, method string) (*domain.Sale, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return nil, apperr.BadRequest("paymentMethod is required")
	}
	if err := s.sales.UpdatePaymentMethod(ctx, sc.Querier(), id, method); err != nil {
		return nil, err
	}
	return s.sales.Get(ctx, sc.Querier(), id)
}

// DeleteSale voids a sale and puts its quantities back on the shelf.
func (s *SalesService) DeleteSale(ctx context.Context, sc tenancy.Scope, id int64) error {
	err := sc.InTx(ctx, func(tx *sql.Tx) error {
		if err := s.sales.LockForUpdate(ctx, tx, id); err != nil {
			return err
		}
		sale, err := s.sales.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, it := range sale.Items {
			if err := s.products.RecordSold(ctx, tx, it.ProductID, -it.Quantity); err != nil {
				return err
			}
		}
		return s.sales.Delete(ctx, tx, id)
	})
	metrics.ObserveWorkflow("sale_void", err)
	if err != nil {
		return err
	}
	s.reports.Invalidate(sc.Namespace())
	return nil
}

// OverstockInput records leftover product for the next trading day.
type OverstockInput struct {
	ProductID     int64  `json:"productId"`
	Quantity      int    `json:"quantity"`
	OverstockDate string `json:"overstockDate"`
	Notes         string `json:"notes"`
}

// RecordOverstock moves quantity off the shelf into overstock until the
// next roll-over returns it.
func (s *SalesService) RecordOverstock(ctx context.Context, sc tenancy.Scope, in OverstockInput) (*domain.Overstock, error) {
	if in.ProductID <= 0 || in.Quantity <= 0 {
		return nil, apperr.BadRequest("productId and a positive quantity are required")
	}
	var date time.Time
	if in.OverstockDate != "" {
		d, err := ParseDate(in.OverstockDate)
		if err != nil {
			return nil, err
		}
		date = d
	}
	o := &domain.Overstock{
		ProductID:     in.ProductID,
		Quantity:      in.Quantity,
		OverstockDate: date,
		Notes:         strings.TrimSpace(in.Notes),
	}
	err := sc.InTx(ctx, func(tx *sql.Tx) error {
		if err := s.products.AdjustStock(ctx, tx, in.ProductID, -in.Quantity); err != nil {
			return err
		}
		return s.stock.CreateOverstock(ctx, tx, o)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *SalesService) ListOverstocks(ctx context.Context, sc tenancy.Scope, r domain.DateRange) ([]*domain.Overstock, error) {
	return s.stock.ListOverstocks(ctx, sc.Querier(), r)
}

// RollOver returns all pending overstock to the shelf. Nothing pending is
// a successful no-op.
func (s *SalesService) RollOver(ctx context.Context, sc tenancy.Scope) (int, error) {
	var n int
	err := sc.InTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = s.stock.RollOver(ctx, tx)
		return err
	})
	metrics.ObserveWorkflow("overstock_rollover", err)
	if err != nil {
		return 0, err
	}
	s.logger.Info("overstock rolled over",
		slog.String("namespace", sc.Namespace().String()),
		slog.Int("records", n),
	)
	return n, nil
}

type DefectInput struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

// RecordDefect writes damaged product off the shelf.
func (s *SalesService) RecordDefect(ctx context.Context, sc tenancy.Scope, productID int64, in DefectInput) (*domain.Defect, error) {
	if in.Quantity <= 0 {
		return nil, apperr.BadRequest("quantity must be greater than zero")
	}
	d := &domain.Defect{
		ProductID:  productID,
		Quantity:   in.Quantity,
		Reason:     strings.TrimSpace(in.Reason),
		RecordedBy: sc.Identity().UserID,
	}
	err := sc.InTx(ctx, func(tx *sql.Tx) error {
		if err := s.products.RecordDefect(ctx, tx, productID, in.Quantity); err != nil {
			return err
		}
		return s.stock.CreateDefect(ctx, tx, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *SalesService) ListDefects(ctx context.Context, sc tenancy.Scope, productID int64) ([]*domain.Defect, error) {
	return s.stock.ListDefects(ctx, sc.Querier(), productID)
}

type RestockInput struct {
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes"`
}

// RecordRestock puts freshly baked product on the shelf.
func (s *SalesService) RecordRestock(ctx context.Context, sc tenancy.Scope, in RestockInput) (*domain.Restock, error) {
	if in.ProductID <= 0 || in.Quantity <= 0 {
		return nil, apperr.BadRequest("productId and a positive quantity are required")
	}
	rs := &domain.Restock{
		ProductID:  in.ProductID,
		Quantity:   in.Quantity,
		Notes:      strings.TrimSpace(in.Notes),
		RecordedBy: sc.Identity().UserID,
	}
	err := sc.InTx(ctx, func(tx *sql.Tx) error {
		if err := s.products.AdjustStock(ctx, tx, in.ProductID, in.Quantity); err != nil {
			return err
		}
		return s.stock.CreateRestock(ctx, tx, rs)
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func (s *SalesService) ListRestocks(ctx context.Context, sc tenancy.Scope, r domain.DateRange) ([]*domain.Restock, error) {
	return s.stock.ListRestocks(ctx, sc.Querier(), r)
}
