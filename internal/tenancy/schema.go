package tenancy

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

// namespaceSchema creates one tenant's business tables. {ns} is replaced by
// the quoted namespace identifier; every table and foreign key is qualified
// so the statements never touch another namespace.
var namespaceSchema = []string{
	`CREATE SCHEMA {ns}`,
	`CREATE TABLE {ns}.ingredients (
		id            BIGSERIAL PRIMARY KEY,
		name          VARCHAR(255) NOT NULL UNIQUE,
		unit          VARCHAR(50) NOT NULL,
		current_stock NUMERIC(14,3) NOT NULL DEFAULT 0 CHECK (current_stock >= 0),
		reorder_level NUMERIC(14,3) NOT NULL DEFAULT 0 CHECK (reorder_level >= 0),
		refill_amount NUMERIC(14,3) NOT NULL DEFAULT 0 CHECK (refill_amount >= 0),
		unit_cost     NUMERIC(12,4) NOT NULL DEFAULT 0 CHECK (unit_cost >= 0),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE {ns}.recipes (
		id          BIGSERIAL PRIMARY KEY,
		name        VARCHAR(255) NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		batch_size  INT NOT NULL CHECK (batch_size > 0),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE {ns}.recipe_ingredients (
		recipe_id     BIGINT NOT NULL REFERENCES {ns}.recipes(id) ON DELETE CASCADE,
		ingredient_id BIGINT NOT NULL REFERENCES {ns}.ingredients(id) ON DELETE RESTRICT,
		quantity      NUMERIC(14,3) NOT NULL CHECK (quantity > 0),
		PRIMARY KEY (recipe_id, ingredient_id)
	)`,
	`CREATE INDEX ON {ns}.recipe_ingredients (ingredient_id)`,
	`CREATE TABLE {ns}.products (
		id            BIGSERIAL PRIMARY KEY,
		name          VARCHAR(255) NOT NULL UNIQUE,
		description   TEXT NOT NULL DEFAULT '',
		unit_price    NUMERIC(12,2) NOT NULL CHECK (unit_price >= 0),
		cost_price    NUMERIC(12,4) NOT NULL DEFAULT 0,
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		recipe_id     BIGINT REFERENCES {ns}.recipes(id) ON DELETE SET NULL,
		quantity_left INT NOT NULL DEFAULT 0,
		sold_count    INT NOT NULL DEFAULT 0,
		defect_count  INT NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX ON {ns}.products (recipe_id)`,
	`CREATE TABLE {ns}.sales (
		id             BIGSERIAL PRIMARY KEY,
		sale_date      TIMESTAMPTZ NOT NULL DEFAULT now(),
		total_amount   NUMERIC(14,2) NOT NULL CHECK (total_amount >= 0),
		payment_method VARCHAR(50) NOT NULL,
		cashier_id     BIGINT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX ON {ns}.sales (sale_date)`,
	`CREATE TABLE {ns}.sale_items (
		id         BIGSERIAL PRIMARY KEY,
		sale_id    BIGINT NOT NULL REFERENCES {ns}.sales(id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL REFERENCES {ns}.products(id) ON DELETE RESTRICT,
		quantity   INT NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(12,2) NOT NULL CHECK (unit_price >= 0),
		cost_price NUMERIC(12,4) NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE {ns}.purchase_requests (
		id            BIGSERIAL PRIMARY KEY,
		status        VARCHAR(20) NOT NULL DEFAULT 'Pending'
		              CHECK (status IN ('Pending', 'Approved', 'Rejected', 'Completed')),
		requested_by  BIGINT NOT NULL,
		approved_by   BIGINT,
		approval_date TIMESTAMPTZ,
		notes         TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE {ns}.purchase_request_items (
		id                   BIGSERIAL PRIMARY KEY,
		request_id           BIGINT NOT NULL REFERENCES {ns}.purchase_requests(id) ON DELETE CASCADE,
		ingredient_id        BIGINT NOT NULL REFERENCES {ns}.ingredients(id) ON DELETE RESTRICT,
		quantity_requested   NUMERIC(14,3) NOT NULL CHECK (quantity_requested > 0),
		estimated_unit_price NUMERIC(12,4) NOT NULL DEFAULT 0 CHECK (estimated_unit_price >= 0)
	)`,
	`CREATE TABLE {ns}.expenses (
		id           BIGSERIAL PRIMARY KEY,
		expense_date DATE NOT NULL,
		amount       NUMERIC(14,2) NOT NULL CHECK (amount >= 0),
		category     VARCHAR(100) NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		cost_type    VARCHAR(20) NOT NULL CHECK (cost_type IN ('Fixed', 'Variable')),
		frequency    VARCHAR(20) NOT NULL CHECK (frequency IN ('One-time', 'Monthly', 'Yearly')),
		status       VARCHAR(20) NOT NULL DEFAULT 'Requested'
		             CHECK (status IN ('Requested', 'Approved', 'Paid', 'Denied')),
		is_active    BOOLEAN NOT NULL DEFAULT FALSE,
		recorded_by  BIGINT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT expenses_active_requires_paid CHECK (NOT is_active OR status = 'Paid')
	)`,
	`CREATE TABLE {ns}.overstocks (
		id             BIGSERIAL PRIMARY KEY,
		product_id     BIGINT NOT NULL REFERENCES {ns}.products(id) ON DELETE CASCADE,
		quantity       INT NOT NULL CHECK (quantity > 0),
		overstock_date DATE NOT NULL DEFAULT CURRENT_DATE,
		rolled_over    BOOLEAN NOT NULL DEFAULT FALSE,
		rolled_over_at TIMESTAMPTZ,
		notes          TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX ON {ns}.overstocks (rolled_over) WHERE NOT rolled_over`,
	`CREATE TABLE {ns}.defects (
		id          BIGSERIAL PRIMARY KEY,
		product_id  BIGINT NOT NULL REFERENCES {ns}.products(id) ON DELETE CASCADE,
		quantity    INT NOT NULL CHECK (quantity > 0),
		reason      TEXT NOT NULL DEFAULT '',
		recorded_by BIGINT NOT NULL,
		defect_date TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE {ns}.restocks (
		id           BIGSERIAL PRIMARY KEY,
		product_id   BIGINT NOT NULL REFERENCES {ns}.products(id) ON DELETE CASCADE,
		quantity     INT NOT NULL CHECK (quantity > 0),
		notes        TEXT NOT NULL DEFAULT '',
		recorded_by  BIGINT NOT NULL,
		restock_date TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// namespaceStatements renders the DDL for ns.
func namespaceStatements(ns domain.Namespace) []string {
	quoted := pq.QuoteIdentifier(ns.String())
	out := make([]string, len(namespaceSchema))
	for i, stmt := range namespaceSchema {
		out[i] = strings.ReplaceAll(stmt, "{ns}", quoted)
	}
	return out
}

// materialize creates ns and all of its tables on q, which must be the
// provisioning transaction so a failure leaves nothing behind.
func materialize(ctx context.Context, q database.DBTX, ns domain.Namespace) error {
	if ns.IsZero() || ns.IsPublic() {
		return fmt.Errorf("refusing to materialize namespace %q", ns)
	}
	for i, stmt := range namespaceStatements(ns) {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("namespace ddl step %d/%d: %w", i+1, len(namespaceSchema), err)
		}
	}
	return nil
}
