package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"go_hostpanel/internal/auth"
	"go_hostpanel/internal/governance"
	"go_hostpanel/internal/httpx"
)

const (
	keyActorID   = "actorId"
	keyRole      = "role"
	keyActorType = "actorType"
)

// AuthRequired validates the bearer JWT and stores the actor on the context
func AuthRequired(signer *auth.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			httpx.FailErr(c, httpx.ErrUnauthorized("missing authorization header"))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httpx.FailErr(c, httpx.ErrUnauthorized("invalid authorization header format"))
			return
		}

		claims, err := signer.Parse(parts[1])
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				httpx.FailErr(c, httpx.ErrTokenExpired(""))
			} else {
				httpx.FailErr(c, httpx.ErrInvalidToken(""))
			}
			return
		}

		c.Set(keyActorID, claims.ActorID)
		c.Set(keyRole, claims.Role)
		c.Set(keyActorType, claims.ActorType)
		c.Next()
	}
}

// RequireRole rejects actors whose role is not listed
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(keyRole)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		httpx.FailErr(c, httpx.ErrForbidden("role "+role+" may not perform this action"))
	}
}

// Actor returns the authenticated actor. reason comes from the request.
func Actor(c *gin.Context, reason string) governance.Actor {
	return governance.Actor{
		ID:     c.GetString(keyActorID),
		Role:   c.GetString(keyRole),
		Type:   c.GetString(keyActorType),
		Reason: reason,
	}
}
