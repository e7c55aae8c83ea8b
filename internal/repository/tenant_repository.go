package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

// PostgresTenantRepository implements domain.TenantRepository using PostgreSQL
type PostgresTenantRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

// NewPostgresTenantRepository creates a new tenant repository
func NewPostgresTenantRepository(db database.DBTX, logger *slog.Logger) *PostgresTenantRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTenantRepository{db: db, logger: logger}
}

// WithTx returns a copy of the repository that runs on tx.
func (r *PostgresTenantRepository) WithTx(tx database.DBTX) *PostgresTenantRepository {
	return &PostgresTenantRepository{db: tx, logger: r.logger}
}

// Create creates a new tenant
func (r *PostgresTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	query := `
		INSERT INTO public.tenants (name, namespace, owner_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, tenant.Name, tenant.Namespace.String(), tenant.OwnerID).
		Scan(&tenant.ID, &tenant.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Wrap(apperr.KindConflict, "business name already registered", err)
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

func scanTenant(row rowScanner) (*domain.Tenant, error) {
	var (
		t       domain.Tenant
		ns      string
		ownerID sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.Name, &ns, &ownerID, &t.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := domain.ParseNamespace(ns)
	if err != nil {
		return nil, fmt.Errorf("tenant %d: %w", t.ID, err)
	}
	t.Namespace = parsed
	if ownerID.Valid {
		id := ownerID.Int64
		t.OwnerID = &id
	}
	return &t, nil
}

// GetByID retrieves a tenant by ID
func (r *PostgresTenantRepository) GetByID(ctx context.Context, id int64) (*domain.Tenant, error) {
	t, err := scanTenant(r.db.QueryRowContext(ctx,
		`SELECT id, name, namespace, owner_id, created_at FROM public.tenants WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("tenant not found")
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// List returns every tenant ordered by id.
func (r *PostgresTenantRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, namespace, owner_id, created_at FROM public.tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []*domain.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// NameTaken reports whether a business name is used by a tenant or by a
// registration still awaiting approval. Names compare case-insensitively.
func (r *PostgresTenantRepository) NameTaken(ctx context.Context, name string) (bool, error) {
	var taken bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM public.tenants WHERE lower(name) = lower($1))
		    OR EXISTS (SELECT 1 FROM public.pending_registrations WHERE lower(business_name) = lower($1))`,
		name,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check tenant name: %w", err)
	}
	return taken, nil
}
