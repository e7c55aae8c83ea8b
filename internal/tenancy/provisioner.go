package tenancy

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/internal/observability/metrics"
	"github.com/nephi-asha/kishkumen/internal/observability/tracing"
	"github.com/nephi-asha/kishkumen/internal/repository"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

// OwnerCandidate is the user who will own a new tenant. The password is
// already hashed.
type OwnerCandidate struct {
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

// ProvisionResult identifies a freshly provisioned tenant.
type ProvisionResult struct {
	TenantID   int64
	TenantName string
	Namespace  domain.Namespace
	Owner      *domain.User
}

// Provisioner creates tenants together with their owner and namespace.
// Every step of a provisioning run, DDL included, happens in one
// transaction.
type Provisioner struct {
	db      *sql.DB
	users   *repository.PostgresUserRepository
	tenants *repository.PostgresTenantRepository
	pending *repository.PendingRegistrationRepository
	logger  *slog.Logger
	now     func() time.Time
}

// NewProvisioner creates a provisioner over the shared pool.
func NewProvisioner(db *sql.DB, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		db:      db,
		users:   repository.NewPostgresUserRepository(db, logger),
		tenants: repository.NewPostgresTenantRepository(db, logger),
		pending: repository.NewPendingRegistrationRepository(db, logger),
		logger:  logger,
		now:     time.Now,
	}
}

// Provision creates the owner, the tenant and its namespace, and grants the
// owner role. It fails with Conflict when the business name, username or
// email is taken, and with Unavailable when the namespace cannot be
// created. Nothing is left behind on failure.
func (p *Provisioner) Provision(ctx context.Context, displayName string, owner OwnerCandidate) (*ProvisionResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "tenancy.Provision")
	defer span.End()
	start := p.now()

	var result *ProvisionResult
	err := database.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		if err := p.checkAvailable(ctx, tx, displayName, owner.Username, owner.Email); err != nil {
			return err
		}

		user := &domain.User{
			Username:     owner.Username,
			Email:        owner.Email,
			PasswordHash: owner.PasswordHash,
			FirstName:    owner.FirstName,
			LastName:     owner.LastName,
			IsApproved:   true,
		}
		if err := p.users.WithTx(tx).Create(ctx, user); err != nil {
			return err
		}

		res, err := p.createTenant(ctx, tx, displayName, user)
		if err != nil {
			return err
		}
		result = res
		return nil
	})

	p.observe(span, "immediate", start, err)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("tenancy.namespace", result.Namespace.String()))
	p.logger.Info("tenant provisioned",
		slog.Int64("tenant_id", result.TenantID),
		slog.String("namespace", result.Namespace.String()),
		slog.Int64("owner_id", result.Owner.ID),
	)
	return result, nil
}

// Defer records a registration for later approval. The owner is created
// unapproved and without a tenant; no namespace exists until Approve.
func (p *Provisioner) Defer(ctx context.Context, displayName string, owner OwnerCandidate, tokenHash string, ttl time.Duration) (*domain.PendingRegistration, error) {
	var pending *domain.PendingRegistration
	err := database.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		if err := p.checkAvailable(ctx, tx, displayName, owner.Username, owner.Email); err != nil {
			return err
		}

		user := &domain.User{
			Username:     owner.Username,
			Email:        owner.Email,
			PasswordHash: owner.PasswordHash,
			FirstName:    owner.FirstName,
			LastName:     owner.LastName,
			IsApproved:   false,
		}
		if err := p.users.WithTx(tx).Create(ctx, user); err != nil {
			return err
		}

		expiresAt := p.now().Add(ttl)
		if err := p.pending.WithTx(tx).Create(ctx, tokenHash, user.ID, displayName, expiresAt); err != nil {
			return err
		}
		pending = &domain.PendingRegistration{
			UserID:       user.ID,
			Username:     user.Username,
			Email:        user.Email,
			BusinessName: displayName,
			ExpiresAt:    expiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("registration awaiting approval",
		slog.Int64("user_id", pending.UserID),
		slog.String("business_name", displayName),
	)
	return pending, nil
}

// Approve spends the approval token and provisions the pending tenant. The
// token is deleted in the provisioning transaction, so it is spent exactly
// when provisioning commits. An unknown, used or expired token is NotFound.
func (p *Provisioner) Approve(ctx context.Context, tokenHash string) (*ProvisionResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "tenancy.Approve")
	defer span.End()
	start := p.now()

	var result *ProvisionResult
	err := database.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		reg, err := p.pending.WithTx(tx).Consume(ctx, tokenHash)
		if err != nil {
			return err
		}

		user, err := p.users.WithTx(tx).GetByID(ctx, reg.UserID)
		if err != nil {
			return err
		}

		res, err := p.createTenant(ctx, tx, reg.BusinessName, user)
		if err != nil {
			return err
		}
		result = res
		return nil
	})

	p.observe(span, "approval", start, err)
	if err != nil {
		return nil, err
	}

	p.logger.Info("pending tenant approved and provisioned",
		slog.Int64("tenant_id", result.TenantID),
		slog.String("namespace", result.Namespace.String()),
		slog.Int64("owner_id", result.Owner.ID),
	)
	return result, nil
}

// createTenant runs the tenant half of provisioning inside tx: tenant row,
// owner link, owner role and namespace tables.
func (p *Provisioner) createTenant(ctx context.Context, tx *sql.Tx, displayName string, owner *domain.User) (*ProvisionResult, error) {
	ns, err := domain.DeriveNamespace(displayName, p.now())
	if err != nil {
		return nil, apperr.BadRequest("business name cannot be used: %v", err)
	}

	ownerID := owner.ID
	tenant := &domain.Tenant{Name: displayName, Namespace: ns, OwnerID: &ownerID}
	if err := p.tenants.WithTx(tx).Create(ctx, tenant); err != nil {
		return nil, err
	}

	users := p.users.WithTx(tx)
	if err := users.AssignTenant(ctx, owner.ID, tenant.ID); err != nil {
		return nil, err
	}
	if err := users.GrantRole(ctx, owner.ID, domain.RoleOwner); err != nil {
		return nil, err
	}

	if err := materialize(ctx, tx, ns); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindConflict, "business name already registered", err)
		}
		return nil, apperr.Unavailable("failed to provision tenant namespace", err)
	}

	tenantID := tenant.ID
	owner.TenantID = &tenantID
	owner.Namespace = ns
	owner.IsApproved = true
	if !owner.Roles.Has(domain.RoleOwner) {
		owner.Roles = append(owner.Roles, domain.RoleOwner)
	}

	return &ProvisionResult{
		TenantID:   tenant.ID,
		TenantName: tenant.Name,
		Namespace:  ns,
		Owner:      owner,
	}, nil
}

func (p *Provisioner) checkAvailable(ctx context.Context, tx *sql.Tx, name, username, email string) error {
	taken, err := p.tenants.WithTx(tx).NameTaken(ctx, name)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Conflict("business name %q is already registered", name)
	}
	exists, err := p.users.WithTx(tx).ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return err
	}
	if exists {
		return apperr.Conflict("username or email already registered")
	}
	return nil
}

func (p *Provisioner) observe(span oteltrace.Span, mode string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = apperr.KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("provisioning failed: %s", result))
	}
	metrics.ObserveProvision(mode, result, p.now().Sub(start))
}
