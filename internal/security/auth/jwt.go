package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nephi-asha/kishkumen/internal/domain"
)

// ErrInvalidToken is returned for tokens that fail signature, issuer or
// expiry checks.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the identity a bearer token carries. Global identities omit
// the tenant and namespace.
type Claims struct {
	UserID      int64    `json:"userId"`
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	TenantID    int64    `json:"tenantId,omitempty"`
	NamespaceID string   `json:"namespaceId,omitempty"`
	jwt.RegisteredClaims
}

// Identity validates the claim values and converts them. A token naming an
// unknown role or an unsafe namespace is rejected as a whole.
func (c *Claims) Identity() (domain.Identity, error) {
	roles, err := domain.ParseRoles(c.Roles)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id := domain.Identity{
		UserID:   c.UserID,
		Username: c.Username,
		TenantID: c.TenantID,
		Roles:    roles,
	}
	if c.NamespaceID != "" {
		ns, err := domain.ParseNamespace(c.NamespaceID)
		if err != nil {
			return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		id.Namespace = ns
	}
	return id, nil
}

type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	if issuer == "" {
		issuer = "kishkumen"
	}
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// TTL is the lifetime of issued tokens.
func (tm *TokenManager) TTL() time.Duration { return tm.ttl }

// Issue signs a token for id and returns it with its expiry.
func (tm *TokenManager) Issue(id domain.Identity) (string, time.Time, error) {
	if id.UserID == 0 {
		return "", time.Time{}, fmt.Errorf("user id required")
	}
	now := tm.now()
	expires := now.Add(tm.ttl)
	claims := Claims{
		UserID:      id.UserID,
		Username:    id.Username,
		Roles:       id.Roles.Strings(),
		TenantID:    id.TenantID,
		NamespaceID: id.Namespace.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", id.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    tm.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks the signature, issuer and expiry of tokenString.
func (tm *TokenManager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return tm.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExtractToken returns the bearer token from an Authorization header.
func ExtractToken(authHeader string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return strings.TrimSpace(token), nil
}
