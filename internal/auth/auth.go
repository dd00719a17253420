// Package auth verifies bearer tokens issued by the account service and puts
// the caller's identity on the request.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/imrishuroy/laundry-payflow/internal/apperr"
)

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleVendor   Role = "VENDOR"
	RoleAdmin    Role = "ADMIN"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   Role
}

const principalKey = "auth.principal"

var ErrInvalidToken = errors.New("invalid token")

// Verifier checks HS256 tokens against a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses token and returns its principal. The subject comes from "sub",
// falling back to "user_id".
func (v *Verifier) Verify(token string) (Principal, error) {
	if len(v.secret) == 0 {
		return Principal{}, fmt.Errorf("%w: no secret configured", ErrInvalidToken)
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	m, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}
	uid, _ := m["sub"].(string)
	if uid == "" {
		uid, _ = m["user_id"].(string)
	}
	role, _ := m["role"].(string)
	p := Principal{UserID: uid, Role: Role(strings.ToUpper(role))}
	if p.UserID == "" {
		return Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	switch p.Role {
	case RoleCustomer, RoleVendor, RoleAdmin:
	default:
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role)
	}
	return p, nil
}

// Middleware rejects requests without a valid bearer token.
func (v *Verifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abort(c, apperr.E(apperr.KindUnauthenticated, apperr.CodeUnauthenticated, "missing bearer token"))
			return
		}
		p, err := v.Verify(token)
		if err != nil {
			abort(c, apperr.Wrap(apperr.KindUnauthenticated, apperr.CodeUnauthenticated, err, "verify token"))
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// RequireRole lets through callers holding one of roles.
func RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := FromContext(c)
		if !ok {
			abort(c, apperr.E(apperr.KindUnauthenticated, apperr.CodeUnauthenticated, "no principal"))
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		abort(c, apperr.Forbidden(apperr.CodeRoleForbidden, "role "+string(p.Role)+" not allowed"))
	}
}

// FromContext returns the principal set by Middleware.
func FromContext(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	status, body := apperr.Response(err, c.GetHeader("Accept-Language"))
	c.AbortWithStatusJSON(status, body)
}
