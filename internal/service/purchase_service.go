package service

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/internal/observability/metrics"
	"github.com/nephi-asha/kishkumen/internal/repository"
	"github.com/nephi-asha/kishkumen/internal/security"
	"github.com/nephi-asha/kishkumen/internal/tenancy"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

// PurchaseService runs the purchase request lifecycle:
// Pending -> Approved | Rejected, Approved -> Completed by reconciliation.
type PurchaseService struct {
	purchases   repository.PurchaseRepository
	ingredients repository.IngredientRepository
	logger      *slog.Logger
}

func NewPurchaseService(logger *slog.Logger) *PurchaseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurchaseService{logger: logger}
}

type PurchaseItemInput struct {
	IngredientID       int64           `json:"ingredientId"`
	QuantityRequested  decimal.Decimal `json:"quantityRequested"`
	EstimatedUnitPrice decimal.Decimal `json:"estimatedUnitPrice"`
}

type PurchaseInput struct {
	Notes string              `json:"notes"`
	Items []PurchaseItemInput `json:"items"`
}

// PurchaseUpdate edits a pending request. A Status routes the update to
// approval or rejection.
type PurchaseUpdate struct {
	Notes  *string             `json:"notes"`
	Items  []PurchaseItemInput `json:"items"`
	Status *string             `json:"status"`
}

func validateItems(in []PurchaseItemInput) ([]domain.PurchaseRequestItem, error) {
	if len(in) == 0 {
		return nil, apperr.BadRequest("at least one item is required")
	}
	items := make([]domain.PurchaseRequestItem, 0, len(in))
	for _, it := range in {
		if it.IngredientID <= 0 {
			return nil, apperr.BadRequest("ingredientId is required for every item")
		}
		if !it.QuantityRequested.IsPositive() {
			return nil, apperr.BadRequest("quantityRequested for ingredient %d must be greater than zero", it.IngredientID)
		}
		if it.EstimatedUnitPrice.IsNegative() {
			return nil, apperr.BadRequest("estimatedUnitPrice for ingredient %d must not be negative", it.IngredientID)
		}
		items = append(items, domain.PurchaseRequestItem{
			IngredientID:       it.IngredientID,
			QuantityRequested:  it.QuantityRequested,
			EstimatedUnitPrice: it.EstimatedUnitPrice,
		})
	}
	return items, nil
}

func (s *PurchaseService) checkIngredients(ctx context.Context, q database.DBTX, items []domain.PurchaseRequestItem) error {
	for _, it := range items {
		if _, err := s.ingredients.Get(ctx, q, it.IngredientID); err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				return apperr.BadRequest("ingredient %d does not exist", it.IngredientID)
			}
			return err
		}
	}
	return nil
}

func (s *PurchaseService) Create(ctx context.Context, sc tenancy.Scope, in PurchaseInput) (*domain.PurchaseRequest, error) {
	items, err := validateItems(in.Items)
	if err != nil {
		return nil, err
	}
	req := &domain.PurchaseRequest{
		RequestedBy: sc.Identity().UserID,
		Notes:       strings.TrimSpace(in.Notes),
		Items:       items,
	}
	err = sc.InTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkIngredients(ctx, tx, items); err != nil {
			return err
		}
		return s.purchases.Create(ctx, tx, req)
	})
	metrics.ObserveWorkflow("purchase_create", err)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// List reconciles first so requests whose refills have landed show as
// Completed.
func (s *PurchaseService) List(ctx context.Context, sc tenancy.Scope, status string) ([]*domain.PurchaseRequest, error) {
	var filter domain.PurchaseStatus
	if status != "" {
		st, err := domain.ParsePurchaseStatus(status)
		if err != nil {
			return nil, apperr.BadRequest("%v", err)
		}
		filter = st
	}
	if _, err := s.Reconcile(ctx, sc); err != nil {
		return nil, err
	}
	return s.purchases.List(ctx, sc.Querier(), filter)
}

func (s *PurchaseService) Get(ctx context.Context, sc tenancy.Scope, id int64) (*domain.PurchaseRequest, error) {
	return s.purchases.Get(ctx, sc.Querier(), id)
}

// Update edits notes or items of a pending request, or approves or
// rejects it when a status is given. Status changes need a manager.
func (s *PurchaseService) Update(ctx context.Context, sc tenancy.Scope, id int64, in PurchaseUpdate) (*domain.PurchaseRequest, error) {
	if in.Status != nil {
		if err := security.Authorize(sc.Identity(), security.Managers...).Err(); err != nil {
			return nil, err
		}
		st, err := domain.ParsePurchaseStatus(*in.Status)
		if err != nil {
			return nil, apperr.BadRequest("%v", err)
		}
		switch st {
		case domain.PurchaseApproved:
			return s.Approve(ctx, sc, id)
		case domain.PurchaseRejected:
			return s.Reject(ctx, sc, id)
		default:
			return nil, apperr.BadRequest("status can only be set to Approved or Rejected")
		}
	}

	var items []domain.PurchaseRequestItem
	if in.Items != nil {
		var err error
		if items, err = validateItems(in.Items); err != nil {
			return nil, err
		}
	}

	var out *domain.PurchaseRequest
	err := sc.InTx(ctx, func(tx *sql.Tx) error {
		status, err := s.purchases.StatusForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if status != domain.PurchasePending {
			return apperr.Conflict("purchase request is %s and can no longer be edited", status)
		}
		if in.Notes != nil {
			if err := s.purchases.UpdateNotes(ctx, tx, id, strings.TrimSpace(*in.Notes)); err != nil {
				return err
			}
		}
		if items != nil {
			if err := s.checkIngredients(ctx, tx, items); err != nil {
				return err
			}
			if err := s.purchases.ReplaceItems(ctx, tx, &domain.PurchaseRequest{ID: id, Items: items}); err != nil {
				return err
			}
		}
		out, err = s.purchases.Get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Approve moves a pending request to Approved and adds its quantities to
// the ingredients' refill amounts. The status is read under a row lock, so
// concurrent approvals serialize and only the first one increments.
// Approving an Approved or Completed request changes nothing.
func (s *PurchaseService) Approve(ctx context.Context, sc tenancy.Scope, id int64) (*domain.PurchaseRequest, error) {
	actor := sc.Identity().UserID
	var out *domain.PurchaseRequest
	err := sc.InTx(ctx, func(tx *sql.Tx) error {
		status, err := s.purchases.StatusForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		switch {
		case status == domain.PurchaseApproved || status == domain.PurchaseCompleted:
			s.logger.Info("purchase request already approved",
				slog.Int64("request_id", id),
				slog.String("status", string(status)),
			)
		case !status.CanTransition(domain.PurchaseApproved):
			return apperr.Conflict("purchase request is %s and cannot be approved", status)
		default:
			if _, err := s.purchases.SetStatus(ctx, tx, []int64{id}, domain.PurchaseApproved, actor); err != nil {
				return err
			}
			if err := s.purchases.ApplyRefill(ctx, tx, []int64{id}); err != nil {
				return err
			}
		}
		out, err = s.purchases.Get(ctx, tx, id)
		return err
	})
	metrics.ObserveWorkflow("purchase_approve", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reject closes a pending request without touching stock. Rejecting a
// Rejected request changes nothing.
func (s *PurchaseService) Reject(ctx context.Context, sc tenancy.Scope, id int64) (*domain.PurchaseRequest, error) {
	actor := sc.Identity().UserID
	var out *domain.PurchaseRequest
	err := sc.InTx(ctx, func(tx *sql.Tx) error {
		status, err := s.purchases.StatusForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		switch {
		case status == domain.PurchaseRejected:
		case !status.CanTransition(domain.PurchaseRejected):
			return apperr.Conflict("purchase request is %s and cannot be rejected", status)
		default:
			if _, err := s.purchases.SetStatus(ctx, tx, []int64{id}, domain.PurchaseRejected, actor); err != nil {
				return err
			}
		}
		out, err = s.purchases.Get(ctx, tx, id)
		return err
	})
	metrics.ObserveWorkflow("purchase_reject", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveAll approves every pending request in one transaction and returns
// how many were approved.
func (s *PurchaseService) ApproveAll(ctx context.Context, sc tenancy.Scope) (int64, error) {
	actor := sc.Identity().UserID
	var n int64
	err := sc.InTx(ctx, func(tx *sql.Tx) error {
		ids, err := s.purchases.PendingIDsForUpdate(ctx, tx)
		if err != nil || len(ids) == 0 {
			return err
		}
		if n, err = s.purchases.SetStatus(ctx, tx, ids, domain.PurchaseApproved, actor); err != nil {
			return err
		}
		return s.purchases.ApplyRefill(ctx, tx, ids)
	})
	metrics.ObserveWorkflow("purchase_approve_all", err)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PurchaseService) Delete(ctx context.Context, sc tenancy.Scope, id int64) error {
	return s.purchases.Delete(ctx, sc.Querier(), id)
}

// Reconcile completes approved requests whose ingredients have all been
// refilled.
func (s *PurchaseService) Reconcile(ctx context.Context, sc tenancy.Scope) (int64, error) {
	n, err := s.purchases.Reconcile(ctx, sc.Querier())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("purchase requests completed",
			slog.String("namespace", sc.Namespace().String()),
			slog.Int64("completed", n),
		)
	}
	return n, nil
}
