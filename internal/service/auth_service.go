package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
	mailer "github.com/nephi-asha/kishkumen/internal/infrastructure/mail"
	"github.com/nephi-asha/kishkumen/internal/security/audit"
	"github.com/nephi-asha/kishkumen/internal/security/auth"
	"github.com/nephi-asha/kishkumen/internal/tenancy"
)

// Provisioner creates tenants. *tenancy.Provisioner implements it.
type Provisioner interface {
	Provision(ctx context.Context, displayName string, owner tenancy.OwnerCandidate) (*tenancy.ProvisionResult, error)
	Defer(ctx context.Context, displayName string, owner tenancy.OwnerCandidate, tokenHash string, ttl time.Duration) (*domain.PendingRegistration, error)
	Approve(ctx context.Context, tokenHash string) (*tenancy.ProvisionResult, error)
}

// RegistrationSettings controls the approval variant of registration.
type RegistrationSettings struct {
	RequireApproval bool
	ApprovalTTL     time.Duration
	OperatorEmail   string
	PublicBaseURL   string
}

// AuthService handles registration, login and password changes.
type AuthService struct {
	users       domain.UserRepository
	provisioner Provisioner
	tokens      *auth.TokenManager
	hasher      *auth.PasswordHasher
	mail        mailer.Mailer
	audit       *audit.Logger
	settings    RegistrationSettings
	logger      *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	users domain.UserRepository,
	provisioner Provisioner,
	tokens *auth.TokenManager,
	hasher *auth.PasswordHasher,
	m mailer.Mailer,
	settings RegistrationSettings,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = mailer.NewLogMailer(logger)
	}
	return &AuthService{
		users:       users,
		provisioner: provisioner,
		tokens:      tokens,
		hasher:      hasher,
		mail:        m,
		audit:       audit.NewLogger(logger),
		settings:    settings,
		logger:      logger,
	}
}

// RegisterInput is a new business together with its owner.
type RegisterInput struct {
	BusinessName string `json:"businessName"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
}

func (in *RegisterInput) normalize() error {
	in.BusinessName = strings.TrimSpace(in.BusinessName)
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	switch {
	case in.BusinessName == "":
		return apperr.BadRequest("businessName is required")
	case in.Username == "":
		return apperr.BadRequest("username is required")
	case in.Email == "":
		return apperr.BadRequest("email is required")
	case in.FirstName == "" || in.LastName == "":
		return apperr.BadRequest("firstName and lastName are required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return apperr.BadRequest("email is invalid")
	}
	return validatePassword(in.Password)
}

func validatePassword(pw string) error {
	if len(pw) < auth.MinPasswordLength {
		return apperr.BadRequest("password must be at least %d characters", auth.MinPasswordLength)
	}
	return nil
}

// UserSummary is the part of a user returned to clients after auth.
type UserSummary struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	TenantID    int64    `json:"tenantId,omitempty"`
	NamespaceID string   `json:"namespaceId,omitempty"`
	Roles       []string `json:"roles"`
}

func summarize(u *domain.User) UserSummary {
	s := UserSummary{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		NamespaceID: u.Namespace.String(),
		Roles:       u.Roles.Strings(),
	}
	if u.TenantID != nil {
		s.TenantID = *u.TenantID
	}
	return s
}

// RegisterResult is either a signed-in owner of a new tenant or, when
// approval is required, a pending registration.
type RegisterResult struct {
	Pending   bool                        `json:"pending"`
	Message   string                      `json:"message,omitempty"`
	Token     string                      `json:"token,omitempty"`
	ExpiresAt *time.Time                  `json:"expiresAt,omitempty"`
	User      *UserSummary                `json:"user,omitempty"`
	Request   *domain.PendingRegistration `json:"registration,omitempty"`
}

// Register creates a business and its owner. Without approval the tenant
// is provisioned at once and a token is issued; with approval the owner is
// stored unapproved and the operator is mailed a single-use approval link.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, apperr.Internal("failed to register user", err)
	}
	owner := tenancy.OwnerCandidate{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	}

	if s.settings.RequireApproval {
		return s.registerPending(ctx, in.BusinessName, owner)
	}

	res, err := s.provisioner.Provision(ctx, in.BusinessName, owner)
	if err != nil {
		s.audit.Record(ctx, audit.Entry{Action: "register", Resource: "tenant", Outcome: "failed", Detail: apperr.PublicMessage(err)})
		return nil, err
	}
	s.audit.Provisioned(ctx, res.Owner.Identity(), res.Namespace.String(), "success", "registration")

	token, expires, err := s.tokens.Issue(res.Owner.Identity())
	if err != nil {
		return nil, apperr.Internal("failed to issue token", err)
	}
	summary := summarize(res.Owner)
	return &RegisterResult{Token: token, ExpiresAt: &expires, User: &summary}, nil
}

func (s *AuthService) registerPending(ctx context.Context, businessName string, owner tenancy.OwnerCandidate) (*RegisterResult, error) {
	token, tokenHash := auth.NewApprovalToken()
	pending, err := s.provisioner.Defer(ctx, businessName, owner, tokenHash, s.settings.ApprovalTTL)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{
		Actor:      domain.Identity{UserID: pending.UserID, Username: pending.Username},
		Action:     "register",
		Resource:   "pending_registration",
		ResourceID: fmt.Sprintf("%d", pending.UserID),
		Outcome:    "pending",
		Detail:     businessName,
	})

	msg := mailer.Message{
		To:      s.settings.OperatorEmail,
		Subject: "New registration awaiting approval: " + businessName,
		Body: fmt.Sprintf("%s (%s, %s) registered %q.\n\nApprove before %s:\nPOST %s/api/auth/approve/%s\n",
			pending.Username, owner.FirstName+" "+owner.LastName, pending.Email, businessName,
			pending.ExpiresAt.Format(time.RFC1123), strings.TrimRight(s.settings.PublicBaseURL, "/"), token),
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		// The registration stays stored and expires unapproved.
		s.logger.Error("failed to notify operator of pending registration",
			slog.Int64("user_id", pending.UserID),
			slog.String("error", err.Error()),
		)
	}

	return &RegisterResult{
		Pending: true,
		Message: "registration received and awaiting approval",
		Request: pending,
	}, nil
}

// ApproveResult identifies a tenant provisioned by approval.
type ApproveResult struct {
	TenantID    int64       `json:"tenantId"`
	TenantName  string      `json:"tenantName"`
	NamespaceID string      `json:"namespaceId"`
	Owner       UserSummary `json:"owner"`
}

// Approve spends a single-use approval token and provisions the tenant.
func (s *AuthService) Approve(ctx context.Context, token string) (*ApproveResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.NotFound("approval token is invalid or expired")
	}
	res, err := s.provisioner.Approve(ctx, auth.HashApprovalToken(token))
	if err != nil {
		return nil, err
	}
	s.audit.Provisioned(ctx, res.Owner.Identity(), res.Namespace.String(), "success", "approval")
	return &ApproveResult{
		TenantID:    res.TenantID,
		TenantName:  res.TenantName,
		NamespaceID: res.Namespace.String(),
		Owner:       summarize(res.Owner),
	}, nil
}

// LoginResult represents login response
type LoginResult struct {
	Token     string      `json:"token"`
	TokenType string      `json:"tokenType"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      UserSummary `json:"user"`
}

var errInvalidCredentials = apperr.Unauthorized("invalid credentials")

// Login authenticates a user and issues a token. Unknown users and wrong
// passwords are indistinguishable; an unapproved account is Forbidden.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.BadRequest("username and password are required")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			s.logger.Info("login attempt for unknown user", slog.String("username", username))
			return nil, errInvalidCredentials
		}
		return nil, err
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.logger.Info("login failed with wrong password", slog.String("username", username))
		return nil, errInvalidCredentials
	}

	id := user.Identity()
	if !user.IsApproved || (!id.IsGlobal() && id.Namespace.IsZero()) {
		return nil, apperr.Forbidden("account is pending approval")
	}

	token, expires, err := s.tokens.Issue(id)
	if err != nil {
		return nil, apperr.Internal("failed to issue token", err)
	}

	s.logger.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.Int64("tenant_id", id.TenantID),
	)
	return &LoginResult{Token: token, TokenType: "Bearer", ExpiresAt: expires, User: summarize(user)}, nil
}

// ChangePassword replaces a user's password after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(user.PasswordHash, oldPassword); err != nil {
		return apperr.BadRequest("current password is incorrect")
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal("failed to change password", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	s.logger.Info("user changed password", slog.Int64("user_id", userID))
	return nil
}

// EnsureSuperAdmin creates the global administrator if it does not exist
// and makes sure it holds the Super Admin role.
func (s *AuthService) EnsureSuperAdmin(ctx context.Context, username, email, password string) error {
	user, err := s.users.GetByUsername(ctx, username)
	switch {
	case err == nil:
	case apperr.KindOf(err) == apperr.KindNotFound:
		if err := validatePassword(password); err != nil {
			return err
		}
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return fmt.Errorf("hash bootstrap password: %w", err)
		}
		user = &domain.User{
			Username:     username,
			Email:        email,
			PasswordHash: hash,
			FirstName:    "Super",
			LastName:     "Admin",
			IsApproved:   true,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return fmt.Errorf("create super admin: %w", err)
		}
		s.logger.Info("super admin created", slog.Int64("user_id", user.ID))
	default:
		return err
	}

	if user.Roles.Has(domain.RoleSuperAdmin) {
		return nil
	}
	if err := s.users.GrantRole(ctx, user.ID, domain.RoleSuperAdmin); err != nil {
		return errors.Join(errors.New("grant super admin role"), err)
	}
	return nil
}
