// Package http assembles the thin JSON transport surface: gin handlers
// over the core services, with auth, CORS and correlation-id middleware.
package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rindwa/dispatch/authz"
	"github.com/rindwa/dispatch/db"
	"github.com/rindwa/dispatch/incidents"
	"github.com/rindwa/dispatch/internal/config"
	"github.com/rindwa/dispatch/notify"
	"github.com/rindwa/dispatch/services"
	"github.com/rindwa/dispatch/subscriptions"
	"github.com/rindwa/dispatch/transport/ws"
)

// Server holds every collaborator the handlers close over.
type Server struct {
	Store         db.Store
	Auth          *services.AuthService
	Incidents     *incidents.Service
	Subscriptions *subscriptions.Registry
	Gate          *authz.Gate
	Bus           *notify.NotificationBus
	Hub           *ws.Hub
	Redis         *redis.Client
}

func NewServer(store db.Store, auth *services.AuthService, incidentSvc *incidents.Service, subs *subscriptions.Registry, gate *authz.Gate, bus *notify.NotificationBus, hub *ws.Hub, redisClient *redis.Client) *Server {
	return &Server{
		Store:         store,
		Auth:          auth,
		Incidents:     incidentSvc,
		Subscriptions: subs,
		Gate:          gate,
		Bus:           bus,
		Hub:           hub,
		Redis:         redisClient,
	}
}

// NewRouter wires every route behind a single entrypoint.
func (s *Server) NewRouter() *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware(config.App.AllowedOrigins))
	r.Use(correlationIDMiddleware())

	r.GET("/ws", s.handleWebsocket)

	api := r.Group("/api")
	{
		api.POST("/auth/login", s.handleLogin)

		api.POST("/incidents/citizen", rateLimitMiddleware(s.Redis, 10, time.Minute), s.handleCreateCitizenIncident)
		api.GET("/incidents/public", s.handleListPublicIncidents)
		api.POST("/incidents/:id/upvote", s.handleUpvote)
		api.POST("/incidents/:id/follow-up", s.handleFollowUp)
		api.POST("/incidents/:id/subscribe", s.handleSubscribe)
		api.POST("/invitations/accept", s.handleAcceptInvitation)

		authed := api.Group("")
		authed.Use(authMiddleware(s.Auth.JWTService))
		{
			authed.POST("/incidents", s.handleCreateStaffIncident)
			authed.GET("/incidents", s.handleListIncidents)
			authed.GET("/incidents/:id", s.handleGetIncident)
			authed.PUT("/incidents/:id", s.handleUpdateIncident)
			authed.PUT("/incidents/:id/assign", s.handleAssign)
			authed.PUT("/incidents/:id/status", s.handleUpdateStatus)
			authed.POST("/incidents/:id/resolve", s.handleResolve)
			authed.POST("/incidents/:id/escalate", s.handleEscalate)
			authed.POST("/incidents/:id/progress-update", s.handleProgressUpdate)

			invitations := authed.Group("/invitations")
			invitations.Use(requireRole(db.RoleStationAdmin))
			{
				invitations.POST("", s.handleCreateInvitation)
				invitations.GET("", s.handleListInvitations)
				invitations.DELETE("/:id", s.handleDeleteInvitation)
			}
		}
	}

	return r
}
