// Package identity turns a bearer token into the calling user. Tokens are
// HS256 JWTs issued by the account service; this package only verifies them.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type User struct {
	ID               string   `json:"id"`
	Role             string   `json:"role"`
	OwnedBusinessIDs []string `json:"owned_business_ids,omitempty"`
	admin            bool
}

// IsAdmin reports a platform administrator, who may manage any business.
func (u User) IsAdmin() bool {
	return u.admin
}

// IsAdminOf reports whether u may manage businessID: platform administrators
// and the business owner may.
func (u User) IsAdminOf(businessID string) bool {
	if u.admin {
		return true
	}
	for _, id := range u.OwnedBusinessIDs {
		if id == businessID {
			return true
		}
	}
	return false
}

type Claims struct {
	Role       string   `json:"role"`
	Businesses []string `json:"businesses,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret    []byte
	adminRole string
	leeway    time.Duration
}

func NewVerifier(secret, adminRole string) *Verifier {
	if adminRole == "" {
		adminRole = "admin"
	}
	return &Verifier{secret: []byte(secret), adminRole: adminRole, leeway: 30 * time.Second}
}

func (v *Verifier) Verify(tokenString string) (User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(v.leeway))
	if err != nil || !token.Valid {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return User{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return User{
		ID:               subject,
		Role:             claims.Role,
		OwnedBusinessIDs: claims.Businesses,
		admin:            claims.Role == v.adminRole,
	}, nil
}

// Issue signs a token for user. The scheduling service never issues tokens
// in production; local runs and tests use it.
func (v *Verifier) Issue(user User, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Role:       user.Role,
		Businesses: user.OwnedBusinessIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type contextKey struct{}

func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// CurrentUser returns the user attached by the auth middleware.
func CurrentUser(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(contextKey{}).(User)
	return user, ok
}
