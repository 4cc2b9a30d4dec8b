package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleAdmin    = "admin"
	RoleBusiness = "business"

	// BusinessApproved is the only business account status allowed past auth.
	BusinessApproved = "approved"

	claimsKey = "auth_claims"
)

// Claims carried by session tokens issued for the admin and business apps.
type Claims struct {
	Role       string `json:"role"`
	BusinessID string `json:"business_id,omitempty"`
	Status     string `json:"status,omitempty"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 token for the subject.
func SignToken(secret, subject, role, businessID, status string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:       role,
		BusinessID: businessID,
		Status:     status,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// JWTAuthMiddleware rejects requests without a valid bearer token and stores
// the claims on the context.
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
			return
		}

		claims, err := parseToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole admits only sessions with one of roles. Business sessions must
// belong to an approved business with a valid business id.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		allowed := false
		for _, role := range roles {
			if claims.Role == role {
				allowed = true
				break
			}
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}

		if claims.Role == RoleBusiness {
			if claims.Status != BusinessApproved {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error":  "Business account is not approved",
					"status": claims.Status,
				})
				return
			}
			if _, err := uuid.Parse(claims.BusinessID); err != nil {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Business account missing"})
				return
			}
		}

		c.Next()
	}
}

func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

// BusinessID of the authenticated business session.
func BusinessID(c *gin.Context) (uuid.UUID, bool) {
	claims, ok := ClaimsFrom(c)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.BusinessID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
