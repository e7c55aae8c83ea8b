package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

// PurchaseRepository stores purchase requests and their items, and applies
// approved requests to ingredient refill amounts.
type PurchaseRepository struct{}

const purchaseColumns = `id, status, requested_by, approved_by, approval_date, notes, created_at, updated_at`

func scanPurchase(row rowScanner) (*domain.PurchaseRequest, error) {
	var (
		pr         domain.PurchaseRequest
		approvedBy sql.NullInt64
		approvedAt sql.NullTime
	)
	if err := row.Scan(&pr.ID, &pr.Status, &pr.RequestedBy, &approvedBy, &approvedAt, &pr.Notes, &pr.CreatedAt, &pr.UpdatedAt); err != nil {
		return nil, err
	}
	if approvedBy.Valid {
		v := approvedBy.Int64
		pr.ApprovedBy = &v
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		pr.ApprovalDate = &t
	}
	pr.Items = []domain.PurchaseRequestItem{}
	return &pr, nil
}

// Create inserts the request and its items. q should be a transaction.
func (pr PurchaseRepository) Create(ctx context.Context, q database.DBTX, req *domain.PurchaseRequest) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO purchase_requests (status, requested_by, notes)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		domain.PurchasePending, req.RequestedBy, req.Notes,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return database.TranslateError(err, "purchase request")
	}
	req.Status = domain.PurchasePending
	return pr.insertItems(ctx, q, req)
}

func (PurchaseRepository) insertItems(ctx context.Context, q database.DBTX, req *domain.PurchaseRequest) error {
	for i := range req.Items {
		it := &req.Items[i]
		it.RequestID = req.ID
		err := q.QueryRowContext(ctx, `
			INSERT INTO purchase_request_items (request_id, ingredient_id, quantity_requested, estimated_unit_price)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			req.ID, it.IngredientID, it.QuantityRequested, it.EstimatedUnitPrice,
		).Scan(&it.ID)
		if err != nil {
			return database.TranslateError(err, "ingredient")
		}
	}
	return nil
}

// ReplaceItems swaps the request's items for req.Items.
func (pr PurchaseRepository) ReplaceItems(ctx context.Context, q database.DBTX, req *domain.PurchaseRequest) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM purchase_request_items WHERE request_id = $1`, req.ID); err != nil {
		return database.TranslateError(err, "purchase request")
	}
	return pr.insertItems(ctx, q, req)
}

// List returns requests, optionally filtered by status, newest first.
func (pr PurchaseRepository) List(ctx context.Context, q database.DBTX, status domain.PurchaseStatus) ([]*domain.PurchaseRequest, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+purchaseColumns+` FROM purchase_requests
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC`,
		string(status),
	)
	if err != nil {
		return nil, database.TranslateError(fmt.Errorf("list purchase requests: %w", err), "purchase request")
	}
	defer rows.Close()

	out := []*domain.PurchaseRequest{}
	byID := map[int64]*domain.PurchaseRequest{}
	ids := []int64{}
	for rows.Next() {
		r, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase request: %w", err)
		}
		out = append(out, r)
		byID[r.ID] = r
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := pr.items(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if r, ok := byID[it.RequestID]; ok {
			r.Items = append(r.Items, it)
		}
	}
	return out, nil
}

func (pr PurchaseRepository) Get(ctx context.Context, q database.DBTX, id int64) (*domain.PurchaseRequest, error) {
	r, err := scanPurchase(q.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchase_requests WHERE id = $1`, id))
	if err != nil {
		return nil, database.TranslateError(err, "purchase request")
	}
	items, err := pr.items(ctx, q, []int64{id})
	if err != nil {
		return nil, err
	}
	r.Items = items
	return r, nil
}

func (PurchaseRepository) items(ctx context.Context, q database.DBTX, requestIDs []int64) ([]domain.PurchaseRequestItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT pi.id, pi.request_id, pi.ingredient_id, i.name, pi.quantity_requested, pi.estimated_unit_price
		FROM purchase_request_items pi
		JOIN ingredients i ON i.id = pi.ingredient_id
		WHERE pi.request_id = ANY($1)
		ORDER BY pi.request_id, pi.id`,
		pq.Array(requestIDs),
	)
	if err != nil {
		return nil, database.TranslateError(fmt.Errorf("load purchase items: %w", err), "purchase request item")
	}
	defer rows.Close()

	items := []domain.PurchaseRequestItem{}
	for rows.Next() {
		var it domain.PurchaseRequestItem
		if err := rows.Scan(&it.ID, &it.RequestID, &it.IngredientID, &it.IngredientName, &it.QuantityRequested, &it.EstimatedUnitPrice); err != nil {
			return nil, fmt.Errorf("scan purchase item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// StatusForUpdate locks the request row and returns its status.
func (PurchaseRepository) StatusForUpdate(ctx context.Context, q database.DBTX, id int64) (domain.PurchaseStatus, error) {
	var status domain.PurchaseStatus
	err := q.QueryRowContext(ctx, `SELECT status FROM purchase_requests WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		return "", database.TranslateError(err, "purchase request")
	}
	return status, nil
}

// PendingIDsForUpdate locks every pending request and returns their ids.
func (PurchaseRepository) PendingIDsForUpdate(ctx context.Context, q database.DBTX) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM purchase_requests WHERE status = $1 ORDER BY id FOR UPDATE`, domain.PurchasePending)
	if err != nil {
		return nil, database.TranslateError(fmt.Errorf("lock pending purchase requests: %w", err), "purchase request")
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetStatus moves the requests in ids to status. Approval and rejection
// record the deciding user and time.
func (PurchaseRepository) SetStatus(ctx context.Context, q database.DBTX, ids []int64, status domain.PurchaseStatus, decidedBy int64) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE purchase_requests
		SET status = $1, approved_by = $2, approval_date = now(), updated_at = now()
		WHERE id = ANY($3)`,
		status, decidedBy, pq.Array(ids),
	)
	if err != nil {
		return 0, database.TranslateError(err, "purchase request")
	}
	return res.RowsAffected()
}

func (PurchaseRepository) UpdateNotes(ctx context.Context, q database.DBTX, id int64, notes string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE purchase_requests SET notes = $1, updated_at = now() WHERE id = $2`, notes, id)
	if err != nil {
		return database.TranslateError(err, "purchase request")
	}
	return expectOne(res, "purchase request")
}

func (PurchaseRepository) Delete(ctx context.Context, q database.DBTX, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM purchase_requests WHERE id = $1`, id)
	if err != nil {
		return database.TranslateError(err, "purchase request")
	}
	return expectOne(res, "purchase request")
}

// ApplyRefill adds the requested quantities of every request in ids to the
// ingredients' refill amounts, summing lines that name the same
// ingredient.
func (PurchaseRepository) ApplyRefill(ctx context.Context, q database.DBTX, ids []int64) error {
	_, err := q.ExecContext(ctx, `
		UPDATE ingredients i
		SET refill_amount = i.refill_amount + t.quantity, updated_at = now()
		FROM (
			SELECT ingredient_id, SUM(quantity_requested) AS quantity
			FROM purchase_request_items
			WHERE request_id = ANY($1)
			GROUP BY ingredient_id
		) t
		WHERE i.id = t.ingredient_id`,
		pq.Array(ids),
	)
	return database.TranslateError(err, "ingredient")
}

// Reconcile completes every approved request none of whose ingredients is
// still waiting for a refill, and returns how many it completed.
func (PurchaseRepository) Reconcile(ctx context.Context, q database.DBTX) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE purchase_requests pr
		SET status = $1, updated_at = now()
		WHERE pr.status = $2
		  AND NOT EXISTS (
			SELECT 1
			FROM purchase_request_items pi
			JOIN ingredients i ON i.id = pi.ingredient_id
			WHERE pi.request_id = pr.id AND i.refill_amount > 0
		  )`,
		domain.PurchaseCompleted, domain.PurchaseApproved,
	)
	if err != nil {
		return 0, database.TranslateError(fmt.Errorf("reconcile purchase requests: %w", err), "purchase request")
	}
	return res.RowsAffected()
}
