package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/pkg/jwt"
	"github.com/gin-gonic/gin"
)

const (
	ctxSubject  = "subject"
	ctxIdentity = "identity"
	ctxUserID   = "userID"
)

// SubjectResolver maps an identity subject to a directory user id
type SubjectResolver interface {
	ResolveSubject(ctx context.Context, subject string) (uint64, error)
}

// JWTAuth JWT authentication middleware
func JWTAuth(jwtManager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Extract token (header, or query for WebSocket upgrades)
		tokenString, err := extractToken(c)
		if err != nil {
			common.V2ErrorResponse(c, http.StatusUnauthorized, err.Error(), nil)
			c.Abort()
			return
		}

		// 2. Verify token
		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			if errors.Is(err, jwt.ErrExpiredToken) {
				common.V2ErrorResponse(c, http.StatusUnauthorized, "Token expired", nil)
			} else {
				common.V2ErrorResponse(c, http.StatusUnauthorized, "Invalid token", nil)
			}
			c.Abort()
			return
		}

		// 3. Store identity in context
		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalJWTAuth stores the identity when a valid token is present and
// otherwise lets the request through anonymously.
func OptionalJWTAuth(jwtManager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString, err := extractToken(c); err == nil {
			if claims, err := jwtManager.VerifyToken(tokenString); err == nil {
				setIdentity(c, claims)
			}
		}
		c.Next()
	}
}

// RequireUser resolves the authenticated subject to a user id.
// 동기화되지 않은 사용자는 404
func RequireUser(resolver SubjectResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := GetSubject(c)
		if subject == "" {
			common.V2ErrorResponse(c, http.StatusUnauthorized, "로그인이 필요합니다", nil)
			c.Abort()
			return
		}

		userID, err := resolver.ResolveSubject(c.Request.Context(), subject)
		if err != nil {
			common.V2FromError(c, err)
			c.Abort()
			return
		}

		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// OptionalUser resolves the user id when an identity is present; failures are ignored
func OptionalUser(resolver SubjectResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if subject := GetSubject(c); subject != "" {
			if userID, err := resolver.ResolveSubject(c.Request.Context(), subject); err == nil {
				c.Set(ctxUserID, userID)
			}
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		// 브라우저 WebSocket은 헤더를 못 붙인다
		if token := c.Query("access_token"); token != "" {
			return token, nil
		}
		return "", errors.New("Missing authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errors.New("Invalid authorization header format")
	}
	return parts[1], nil
}

func setIdentity(c *gin.Context, claims *jwt.Claims) {
	c.Set(ctxSubject, claims.Subject)
	c.Set(ctxIdentity, domain.Identity{
		Subject:  claims.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		ImageURL: claims.Picture,
	})
}

// GetSubject extracts the identity subject from context
func GetSubject(c *gin.Context) string {
	return c.GetString(ctxSubject)
}

// GetIdentity extracts the verified identity claims from context
func GetIdentity(c *gin.Context) domain.Identity {
	if v, exists := c.Get(ctxIdentity); exists {
		if identity, ok := v.(domain.Identity); ok {
			return identity
		}
	}
	return domain.Identity{}
}

// GetUserID extracts the resolved user id from context (0 = anonymous)
func GetUserID(c *gin.Context) uint64 {
	return c.GetUint64(ctxUserID)
}
