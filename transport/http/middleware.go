package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rindwa/dispatch/authz"
	"github.com/rindwa/dispatch/db"
	"github.com/rindwa/dispatch/internal/apperr"
)

// corsMiddleware is permissive by default but reads the allowed origin
// from config rather than hardcoding "*".
func corsMiddleware(allowedOrigins string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := allowedOrigins
		if origin == "" {
			origin = "*"
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// correlationIDMiddleware stamps every request with a correlation id used
// to tie a client-visible error envelope back to server-side logs.
func correlationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Correlation-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("correlation_id", id)
		c.Writer.Header().Set("X-Correlation-ID", id)
		c.Next()
	}
}

const principalContextKey = "principal"

// authMiddleware validates the bearer token and stores the resulting
// principal in the gin context; it does not by itself require any
// particular role (see requireRole).
func authMiddleware(jwtSvc *authz.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			apperr.WriteHTTP(c, apperr.NewUnauthenticated("missing bearer token"))
			c.Abort()
			return
		}
		principal, err := jwtSvc.Validate(header[len(prefix):])
		if err != nil {
			apperr.WriteHTTP(c, err)
			c.Abort()
			return
		}
		c.Set(principalContextKey, principal)
		c.Next()
	}
}

func principalFrom(c *gin.Context) (db.Principal, bool) {
	v, ok := c.Get(principalContextKey)
	if !ok {
		return db.Principal{}, false
	}
	p, ok := v.(db.Principal)
	return p, ok
}

// requireRole aborts with Forbidden unless the bound principal's role is
// at least floor in the role hierarchy.
func requireRole(floor db.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principalFrom(c)
		if !ok || !authz.AtLeast(p.Role, floor) {
			apperr.WriteHTTP(c, apperr.NewForbidden("insufficient role for this operation"))
			c.Abort()
			return
		}
		c.Next()
	}
}
