package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

// PendingRegistrationRepository stores registrations awaiting approval.
// Only a hash of the approval token is kept.
type PendingRegistrationRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

func NewPendingRegistrationRepository(db database.DBTX, logger *slog.Logger) *PendingRegistrationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PendingRegistrationRepository{db: db, logger: logger}
}

// WithTx returns a copy of the repository that runs on tx.
func (r *PendingRegistrationRepository) WithTx(tx database.DBTX) *PendingRegistrationRepository {
	return &PendingRegistrationRepository{db: tx, logger: r.logger}
}

// Create stores a pending registration for an existing unapproved user.
func (r *PendingRegistrationRepository) Create(ctx context.Context, tokenHash string, userID int64, businessName string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO public.pending_registrations (token_hash, user_id, business_name, expires_at)
		VALUES ($1, $2, $3, $4)`,
		tokenHash, userID, businessName, expiresAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Wrap(apperr.KindConflict, "business name already registered", err)
		}
		return fmt.Errorf("failed to create pending registration: %w", err)
	}
	return nil
}

// Consume deletes the registration matching tokenHash and returns it. An
// unknown, used or expired token yields NotFound. Run inside the
// provisioning transaction so the token is spent only if provisioning
// commits.
func (r *PendingRegistrationRepository) Consume(ctx context.Context, tokenHash string) (*domain.PendingRegistration, error) {
	var p domain.PendingRegistration
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM public.pending_registrations
		WHERE token_hash = $1 AND expires_at > now()
		RETURNING user_id, business_name, expires_at, created_at`,
		tokenHash,
	).Scan(&p.UserID, &p.BusinessName, &p.ExpiresAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("approval token is invalid or expired")
		}
		return nil, fmt.Errorf("failed to consume pending registration: %w", err)
	}
	return &p, nil
}

// List returns registrations that have not expired, oldest first.
func (r *PendingRegistrationRepository) List(ctx context.Context) ([]*domain.PendingRegistration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.user_id, u.username, u.email, p.business_name, p.expires_at, p.created_at
		FROM public.pending_registrations p
		JOIN public.users u ON u.id = p.user_id
		WHERE p.expires_at > now()
		ORDER BY p.created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending registrations: %w", err)
	}
	defer rows.Close()

	out := []*domain.PendingRegistration{}
	for rows.Next() {
		var p domain.PendingRegistration
		if err := rows.Scan(&p.UserID, &p.Username, &p.Email, &p.BusinessName, &p.ExpiresAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending registration: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// PurgeExpired removes expired registrations together with the users that
// were never approved. It returns the number of users removed.
func (r *PendingRegistrationRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH expired AS (
			DELETE FROM public.pending_registrations
			WHERE expires_at <= now()
			RETURNING user_id
		)
		DELETE FROM public.users
		WHERE id IN (SELECT user_id FROM expired) AND is_approved = FALSE`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired registrations: %w", err)
	}
	return res.RowsAffected()
}
