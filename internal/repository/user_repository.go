package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

// PostgresUserRepository implements domain.UserRepository using PostgreSQL.
// Users are global, so every statement names public tables explicitly and
// does not depend on the connection's search_path.
type PostgresUserRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db database.DBTX, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUserRepository{
		db:     db,
		logger: logger,
	}
}

// WithTx returns a copy of the repository that runs on tx.
func (r *PostgresUserRepository) WithTx(tx database.DBTX) *PostgresUserRepository {
	return &PostgresUserRepository{db: tx, logger: r.logger}
}

const userSelect = `
	SELECT u.id, u.username, u.email, u.password_hash, u.first_name, u.last_name,
	       u.tenant_id, t.namespace, u.is_approved, u.created_at, u.updated_at,
	       COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}') AS roles
	FROM public.users u
	LEFT JOIN public.tenants t ON t.id = u.tenant_id
	LEFT JOIN public.user_roles ur ON ur.user_id = u.id
	LEFT JOIN public.roles r ON r.id = ur.role_id`

const userGroupBy = ` GROUP BY u.id, t.namespace`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u         domain.User
		tenantID  sql.NullInt64
		namespace sql.NullString
		roles     pq.StringArray
	)
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&tenantID, &namespace, &u.IsApproved, &u.CreatedAt, &u.UpdatedAt, &roles,
	); err != nil {
		return nil, err
	}
	if tenantID.Valid {
		id := tenantID.Int64
		u.TenantID = &id
	}
	if namespace.Valid {
		ns, err := domain.ParseNamespace(namespace.String)
		if err != nil {
			return nil, fmt.Errorf("user %d: %w", u.ID, err)
		}
		u.Namespace = ns
	}
	set, err := domain.ParseRoles(roles)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", u.ID, err)
	}
	u.Roles = set
	return &u, nil
}

// Create inserts the user and fills in its id and timestamps.
func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO public.users (username, email, password_hash, first_name, last_name, tenant_id, is_approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.TenantID,
		user.IsApproved,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Wrap(apperr.KindConflict, "username or email already registered", err)
		}
		r.logger.Error("failed to create user",
			slog.String("username", user.Username),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// CreateWithRoles inserts a user holding roles in one transaction.
func (r *PostgresUserRepository) CreateWithRoles(ctx context.Context, user *domain.User, roles domain.RoleSet) error {
	run := func(q database.DBTX) error {
		repo := r.WithTx(q)
		if err := repo.Create(ctx, user); err != nil {
			return err
		}
		for _, role := range roles {
			if err := repo.GrantRole(ctx, user.ID, role); err != nil {
				return err
			}
		}
		return nil
	}
	var err error
	if b, ok := r.db.(database.TxBeginner); ok {
		err = database.WithTx(ctx, b, func(tx *sql.Tx) error { return run(tx) })
	} else {
		err = run(r.db)
	}
	if err != nil {
		return err
	}
	user.Roles = roles
	return nil
}

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, userSelect+` WHERE u.id = $1`+userGroupBy, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetByUsername retrieves a user by username
func (r *PostgresUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, userSelect+` WHERE u.username = $1`+userGroupBy, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return u, nil
}

// ExistsByUsernameOrEmail reports whether either identifier is taken.
func (r *PostgresUserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM public.users WHERE username = $1 OR lower(email) = lower($2))`,
		username, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// ListByTenant returns the members of a tenant ordered by id.
func (r *PostgresUserRepository) ListByTenant(ctx context.Context, tenantID int64) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, userSelect+` WHERE u.tenant_id = $1`+userGroupBy+` ORDER BY u.id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateProfile writes the editable profile fields.
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE public.users
		SET email = $1, first_name = $2, last_name = $3, updated_at = now()
		WHERE id = $4`,
		user.Email, user.FirstName, user.LastName, user.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Wrap(apperr.KindConflict, "email already registered", err)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return expectOne(res, "user")
}

// UpdatePassword replaces the stored password hash.
func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE public.users SET password_hash = $1, updated_at = now() WHERE id = $2`,
		hash, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return expectOne(res, "user")
}

// AssignTenant links a user to a tenant and marks it approved.
func (r *PostgresUserRepository) AssignTenant(ctx context.Context, userID, tenantID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE public.users SET tenant_id = $1, is_approved = TRUE, updated_at = now() WHERE id = $2`,
		tenantID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to assign tenant: %w", err)
	}
	return expectOne(res, "user")
}

// GrantRole adds a single role. Granting a held role is a no-op.
func (r *PostgresUserRepository) GrantRole(ctx context.Context, userID int64, role domain.Role) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO public.user_roles (user_id, role_id)
		SELECT $1, id FROM public.roles WHERE name = $2
		ON CONFLICT DO NOTHING`,
		userID, string(role),
	)
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		r.logger.Debug("role already held", slog.Int64("user_id", userID), slog.String("role", string(role)))
	}
	return nil
}

// ReplaceRoles makes roles the user's exact role set.
func (r *PostgresUserRepository) ReplaceRoles(ctx context.Context, id int64, roles domain.RoleSet) error {
	names := pq.Array(roles.Strings())
	run := func(q database.DBTX) error {
		if _, err := q.ExecContext(ctx, `
			DELETE FROM public.user_roles
			WHERE user_id = $1
			  AND role_id NOT IN (SELECT id FROM public.roles WHERE name = ANY($2))`,
			id, names,
		); err != nil {
			return fmt.Errorf("failed to revoke roles: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO public.user_roles (user_id, role_id)
			SELECT $1, id FROM public.roles WHERE name = ANY($2)
			ON CONFLICT DO NOTHING`,
			id, names,
		); err != nil {
			return fmt.Errorf("failed to grant roles: %w", err)
		}
		return nil
	}
	if b, ok := r.db.(database.TxBeginner); ok {
		return database.WithTx(ctx, b, func(tx *sql.Tx) error { return run(tx) })
	}
	return run(r.db)
}

// Delete removes a user. Role links and pending registrations cascade.
func (r *PostgresUserRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM public.users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return expectOne(res, "user")
}

// expectOne turns a zero-row update into NotFound.
func expectOne(res sql.Result, subject string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("%s not found", subject)
	}
	return nil
}
