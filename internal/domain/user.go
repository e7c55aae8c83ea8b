package domain

import (
	"context"
	"time"
)

// User represents a person who can authenticate. Users live in the global
// namespace; TenantID stays nil while a registration awaits approval.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	TenantID     *int64    `json:"tenantId,omitempty"`
	Namespace    Namespace `json:"namespaceId,omitzero"`
	IsApproved   bool      `json:"isApproved"`
	Roles        RoleSet   `json:"roles"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Identity builds the claim set a token for this user carries.
func (u *User) Identity() Identity {
	id := Identity{
		UserID:    u.ID,
		Username:  u.Username,
		Namespace: u.Namespace,
		Roles:     u.Roles,
	}
	if u.TenantID != nil {
		id.TenantID = *u.TenantID
	}
	return id
}

// BelongsTo reports whether the user is a member of the given tenant.
func (u *User) BelongsTo(tenantID int64) bool {
	return u.TenantID != nil && *u.TenantID == tenantID
}

// UserRepository defines data access for users
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	CreateWithRoles(ctx context.Context, user *User, roles RoleSet) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	ListByTenant(ctx context.Context, tenantID int64) ([]*User, error)
	UpdateProfile(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
	GrantRole(ctx context.Context, userID int64, role Role) error
	ReplaceRoles(ctx context.Context, id int64, roles RoleSet) error
	Delete(ctx context.Context, id int64) error
}

// Tenant represents one isolated business account.
type Tenant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Namespace Namespace `json:"namespaceId"`
	OwnerID   *int64    `json:"ownerId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TenantRepository defines data access for tenants
type TenantRepository interface {
	GetByID(ctx context.Context, id int64) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
}

// PendingRegistration is a registration waiting for operator approval.
type PendingRegistration struct {
	UserID       int64     `json:"userId"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	BusinessName string    `json:"businessName"`
	ExpiresAt    time.Time `json:"expiresAt"`
	CreatedAt    time.Time `json:"createdAt"`
}
