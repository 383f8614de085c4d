package httpgin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin = "Admin"
	RoleUser  = "User"

	ctxClaims = "claims"
)

// Claims is the payload of access tokens issued by the account service.
type Claims struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func parseToken(secret, raw string) (*Claims, error) {
	var claims Claims

	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if claims.UserID <= 0 {
		return nil, errors.New("token has no user")
	}

	return &claims, nil
}

// AuthMiddleware requires a valid bearer token and stores its claims in the
// gin context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token"})
			return
		}

		claims, err := parseToken(secret, strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// RequireRole lets through only callers whose token carries role. It must
// run after AuthMiddleware.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims == nil || claims.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			return
		}

		c.Next()
	}
}

func claimsFrom(c *gin.Context) *Claims {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil
	}

	claims, _ := v.(*Claims)
	return claims
}

// canAccess reports whether the caller owns the resource or is an admin.
func canAccess(c *gin.Context, ownerID int64) bool {
	claims := claimsFrom(c)
	return claims != nil && (claims.UserID == ownerID || claims.Role == RoleAdmin)
}
