package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	bookingDomain "github.com/servemate/service-booking/internal/domain/booking"
	"go.uber.org/zap"
)

// Identity headers set by the upstream gateway after authentication.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
	HeaderActorName = "X-Actor-Name"
	HeaderRequestID = "X-Request-ID"

	actorKey = "actor"
)

// ActorMiddleware reads the caller's identity from gateway headers.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := bookingDomain.ActorRole(c.GetHeader(HeaderActorRole))
		if !role.IsValid() {
			Unauthorized(c, "missing or unknown actor role")
			return
		}
		id, err := uuid.Parse(c.GetHeader(HeaderActorID))
		if err != nil && role != bookingDomain.ActorSystem {
			Unauthorized(c, "missing or invalid actor id")
			return
		}
		c.Set(actorKey, bookingDomain.Actor{ID: id, Name: c.GetHeader(HeaderActorName), Role: role})
		c.Next()
	}
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...bookingDomain.ActorRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			Unauthorized(c, "unauthorized")
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		abort(c, 403, &apiError{Code: "FORBIDDEN", Message: "role " + string(actor.Role) + " may not call this endpoint"})
	}
}

// GetActor returns the actor stored by ActorMiddleware.
func GetActor(c *gin.Context) (bookingDomain.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return bookingDomain.Actor{}, false
	}
	actor, ok := v.(bookingDomain.Actor)
	return actor, ok
}

// RequestIDMiddleware propagates or assigns a request id.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(HeaderRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// LoggerMiddleware logs one line per request.
func LoggerMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(HeaderRequestID)),
		)
	}
}

// RecoveryMiddleware turns panics into 500 responses.
func RecoveryMiddleware(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
		)
		abort(c, 500, &apiError{Code: "INTERNAL_ERROR", Message: "internal server error"})
	})
}
