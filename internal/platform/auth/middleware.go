package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

// Clinic roles.
const (
	RoleSuperAdmin   = "superadmin"
	RoleAdmin        = "admin"
	RoleDentist      = "dentist"
	RoleReceptionist = "receptionist"
	RoleStaff        = "staff"
)

type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
	Name     string   `json:"name,omitempty"`
}

type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	Skipper    func(c echo.Context) bool
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	keyFunc := func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			scheme, tokenStr, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tokenStr) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.TenantID == "" && !HasRole(claims.Roles, RoleSuperAdmin) {
				return echo.NewHTTPError(http.StatusForbidden, "user not associated with any clinic")
			}

			// Read by the tenant middleware.
			c.Set("jwt_tenant_id", claims.TenantID)
			c.SetRequest(c.Request().WithContext(WithUser(c.Request().Context(), claims.Subject, claims.Roles)))

			return next(c)
		}
	}
}

// DevAuthMiddleware grants every request an admin identity. Tenants are taken
// from the usual header/query fallbacks.
func DevAuthMiddleware(skippers ...func(c echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, skip := range skippers {
				if skip(c) {
					return next(c)
				}
			}
			c.SetRequest(c.Request().WithContext(WithUser(c.Request().Context(), "dev-user", []string{RoleAdmin})))
			return next(c)
		}
	}
}

// IssueToken signs an HS256 token; used by the CLI and tests.
func IssueToken(key []byte, issuer, subject, tenantID string, roles []string, ttl time.Duration) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("signing key is empty")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: tenantID,
		Roles:    roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, userID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRolesKey, roles)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
