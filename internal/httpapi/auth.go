package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/park285/chess-sync/pkg/chessdto"
)

const (
	ctxUserID      = "userID"
	headerUserID   = "X-User-Id"
	tokenQueryName = "token"
)

var ErrInvalidToken = errors.New("invalid token")

// Authenticator resolves the caller's user id from an HS256 bearer token
// whose subject is the user id. With header identity enabled, a trusted
// X-User-Id header is accepted when no token is presented.
type Authenticator struct {
	secret      []byte
	allowHeader bool
}

func NewAuthenticator(secret string, allowHeaderIdentity bool) *Authenticator {
	return &Authenticator{secret: []byte(secret), allowHeader: allowHeaderIdentity}
}

// Issue signs a token for userID. Used by tooling and tests.
func (a *Authenticator) Issue(userID string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    "chess-sync",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) validate(tokenString string) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrInvalidToken
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Middleware rejects unauthenticated requests with 401.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := extractToken(c); token != "" {
			userID, err := a.validate(token)
			if err != nil {
				unauthorized(c, "invalid or expired token")
				return
			}
			c.Set(ctxUserID, userID)
			c.Next()
			return
		}
		if a.allowHeader {
			if userID := strings.TrimSpace(c.GetHeader(headerUserID)); userID != "" {
				c.Set(ctxUserID, userID)
				c.Next()
				return
			}
		}
		unauthorized(c, "authentication required")
	}
}

// extractToken reads the bearer token, or the token query parameter that
// browser websocket clients use since they cannot set headers.
func extractToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Query(tokenQueryName)
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, chessdto.MoveResponse{
		DomainError: chessdto.DomainError{Code: chessdto.ReasonUnauthorized, Message: msg},
	})
}

// UserID returns the authenticated caller, or "" outside the middleware.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxUserID); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
