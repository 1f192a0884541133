package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/fusioneventsak/Songrequest-DEVServer/pkg/errors"
	"github.com/fusioneventsak/Songrequest-DEVServer/pkg/httputil"
	"github.com/fusioneventsak/Songrequest-DEVServer/pkg/logger"
)

// OperatorClaims are the JWT claims carried by operator tokens.
type OperatorClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RoleOperator is the role required for lock/unlock/mark-played/reset.
const RoleOperator = "operator"

// OperatorAuth guards operator-only endpoints with a Bearer JWT.
func OperatorAuth(secret string, log logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Default()
	}
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.ErrorResponse(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.ErrorResponse(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims := &OperatorClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			log.Warn("operator token rejected",
				logger.Err(err), logger.F("request_id", GetRequestID(c)))
			httputil.ErrorResponse(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if claims.Role != RoleOperator {
			httputil.ErrorResponse(c, apperrors.ErrForbidden)
			c.Abort()
			return
		}

		c.Set("operator", claims.Name)
		c.Next()
	}
}

// NewOperatorToken mints an operator JWT. Used by deploy tooling and tests.
func NewOperatorToken(secret, name string, ttl time.Duration) (string, error) {
	claims := OperatorClaims{
		Name: name,
		Role: RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
