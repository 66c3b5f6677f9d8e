package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rindwa/dispatch/authz"
	"github.com/rindwa/dispatch/db"
	"github.com/rindwa/dispatch/internal/apperr"
	"github.com/rindwa/dispatch/services"
)

func (s *Server) handleLogin(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.WriteHTTP(c, apperr.NewInvalid(err.Error()))
		return
	}
	resp, err := s.Auth.Login(c.Request.Context(), req)
	if err != nil {
		apperr.WriteHTTP(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCreateCitizenIncident(c *gin.Context) {
	var req db.CreateCitizenIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.WriteHTTP(c, apperr.NewInvalid(err.Error()))
		return
	}
	incident, err := s.Incidents.CreateFromCitizen(c.Request.Context(), req)
	if err != nil {
		apperr.WriteHTTP(c, err)
		return
	}
	c.JSON(http.StatusCreated, incident)
}

func (s *Server) handleCreateStaffIncident(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		apperr.WriteHTTP(c, apperr.NewUnauthenticated("missing principal"))
		return
	}
	var req db.CreateStaffIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.WriteHTTP(c, apperr.NewInvalid(err.Error()))
		return
	}
	incident, err := s.Incidents.CreateAuthenticated(c.Request.Context(), p, req)
	if err != nil {
		apperr.WriteHTTP(c, err)
		return
	}
	c.JSON(http.StatusCreated, incident)
}

// handleListPublicIncidents serves the unauthenticated feed: canonical
// PublicIncidentView projection, no PII (Open Question #3).
func (s *Server) handleListPublicIncidents(c *gin.Context) {
	gate := authz.NewGate()
	filter := gate.VisibilityFilter(db.Principal{Role: db.RoleCitizen})

	list, err := s.Store.ListIncidents(c.Request.Context(), filter)
	if err != nil {
		apperr.WriteHTTP(c, apperr.NewUnavailable("failed to list incidents", err))
		return
	}

	views := make([]db.PublicIncidentView, 0, len(list))
	for _, i := range list {
		view := db.PublicIncidentView{
			ID:          i.ID,
			Title:       i.Title,
			Category:    i.Type,
			Priority:    i.Priority,
			Status:      i.Status,
			Location:    i.Location,
			CreatedAt:   i.CreatedAt,
			UpvoteCount: i.UpvoteCount,
		}
		if i.StationID != "" {
			if st, err := s.Store.GetStation(c.Request.Context(), i.StationID); err == nil && st != nil {
				view.StationName = st.Name
			}
		}
		if i.OrganisationID != "" {
			if org, err := s.Store.GetOrganization(c.Request.Context(), i.OrganisationID); err == nil && org != nil {
				view.OrganisationName = org.Name
			}
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleListIncidents(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		apperr.WriteHTTP(c, apperr.NewUnauthenticated("missing principal"))
		return
	}
	filter := s.Gate.VisibilityFilter(p)
	list, err := s.Store.ListIncidents(c.Request.Context(), filter)
	if err != nil {
		apperr.WriteHTTP(c, apperr.NewUnavailable("failed to list incidents", err))
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetIncident(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		apperr.WriteHTTP(c, apperr.NewUnauthenticated("missing principal"))
		return
	}
	incident, err := s.Store.GetIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.WriteHTTP(c, apperr.NewUnavailable("failed to look up incident", err))
		return
	}
	if incident == nil {
		apperr.WriteHTTP(c, apperr.NewNotFound("incident not found"))
		return
	}
	if !s.Gate.CanView(p, incident) {
		apperr.WriteHTTP(c, apperr.NewForbidden("you do not have permission to view this incident"))
		return
	}
	c.JSON(http.StatusOK, incident)
}

func (s *Server) handleUpdateIncident(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		apperr.WriteHTTP(c, apperr.NewUnauthenticated("missing principal"))
		return
	}
	incident, err := s.Store.GetIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.WriteHTTP(c, apperr.NewUnavailable("failed to look up incident", err))
		return
	}
	if incident == nil {
		apperr.WriteHTTP(c, apperr.NewNotFound("incident not found"))
		return
	}
	if err := s.Gate.Authorize(p, incident, authz.ActionUpdate); err != nil {
		apperr.WriteHTTP(c, err)
		return
	}

	var req db.UpdateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.WriteHTTP(c, apperr.NewInvalid(err.Error()))
		return
	}
	if req.Title != nil {
		incident.Title = *req.Title
	}
	if req.Description != nil {
		incident.Description = *req.Description
	}
	if req.Priority != nil {
		incident.Priority = db.Priority(*req.Priority)
	}
	if err := s.Store.UpdateIncident(c.Request.Context(), incident); err != nil {
		apperr.WriteHTTP(c, apperr.NewUnavailable("failed to update incident", err))
		return
	}
	c.JSON(http.StatusOK, incident)
}

func (s *Server) handleAssign(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		apperr.WriteHTTP(c, apperr.NewUnauthenticated("missing principal"))
		return
	}
	var req db.AssignIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.WriteHTTP(c, apperr.NewInvalid(err.Error()))
		return
	}
	incident, err := s.Incidents.Assign(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		apperr.WriteHTTP(c, err)
		return
	}
	c.JSON(http.StatusOK, incident)
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		apperr.WriteHTTP(c, apperr.NewUnauthenticated("missing principal"))
		return
	}
	var req db.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.WriteHTTP(c, apperr.NewInvalid(err.Error()))
		return
	}
	incident, err := s.Incidents.UpdateStatus(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		apperr.WriteHTTP(c, err)
		return
	}
	c.JSON(http.StatusOK, incident)
}

func (s *Server) handleResolve(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		apperr.WriteHTTP(c, apperr.NewUnauthenticated("missing principal"))
		return
	}
	var req db.ResolveIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.WriteHTTP(c, apperr.NewInvalid(err.Error()))
		return
	}
	incident, err := s.Incidents.UpdateStatus(c.Request.Context(), p, c.Param("id"), db.UpdateStatusRequest{
		Status:           string(db.StatusResolved),
		Resolution:       req.ResolutionSummary,
		ActionsTaken:     req.ActionsTaken,
		TimeToResolution: req.TimeToResolution,
	})
	if err != nil {
		apperr.WriteHTTP(c, err)
		return
	}
	c.JSON(http.StatusOK, incident)
}

func (s *Server) handleEscalate(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		apperr.WriteHTTP(c, apperr.NewUnauthenticated("missing principal"))
		return
	}
	var req db.EscalateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.WriteHTTP(c, apperr.NewInvalid(err.Error()))
		return
	}
	incident, err := s.Incidents.Escalate(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		apperr.WriteHTTP(c, err)
		return
	}
	c.JSON(http.StatusOK, incident)
}

func (s *Server) handleUpvote(c *gin.Context) {
	actorKey := c.ClientIP()
	if header := c.GetHeader("X-Actor-Key"); header != "" {
		actorKey = header
	}
	count, err := s.Incidents.Upvote(c.Request.Context(), c.Param("id"), actorKey)
	if err != nil {
		apperr.WriteHTTP(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"upvoteCount": count})
}

func (s *Server) handleFollowUp(c *gin.Context) {
	var req db.FollowUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.WriteHTTP(c, apperr.NewInvalid(err.Error()))
		return
	}
	if err := s.Incidents.RegisterFollowUp(c.Request.Context(), c.Param("id"), req); err != nil {
		apperr.WriteHTTP(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSubscribe(c *gin.Context) {
	var req db.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.WriteHTTP(c, apperr.NewInvalid(err.Error()))
		return
	}
	sub, err := s.Subscriptions.Subscribe(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		apperr.WriteHTTP(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// handleDeleteInvitation is the single gated DELETE endpoint decided in
// Open Question #1: station_admin and above, scoped to their own
// org/station.
func (s *Server) handleDeleteInvitation(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		apperr.WriteHTTP(c, apperr.NewUnauthenticated("missing principal"))
		return
	}
	inv, err := s.Store.GetInvitationByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.WriteHTTP(c, apperr.NewUnavailable("failed to look up invitation", err))
		return
	}
	if inv == nil {
		apperr.WriteHTTP(c, apperr.NewNotFound("invitation not found"))
		return
	}
	if p.Role != db.RoleMainAdmin {
		if p.Role == db.RoleSuperAdmin && inv.OrganisationID != p.OrganisationID {
			apperr.WriteHTTP(c, apperr.NewForbidden("invitation is outside your organisation"))
			return
		}
		if p.Role == db.RoleStationAdmin && inv.StationID != p.StationID {
			apperr.WriteHTTP(c, apperr.NewForbidden("invitation is outside your station"))
			return
		}
	}
	if err := s.Store.DeleteInvitation(c.Request.Context(), inv.ID); err != nil {
		apperr.WriteHTTP(c, apperr.NewUnavailable("failed to delete invitation", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// handleCreateInvitation is station_admin-and-above, scoped to the
// caller's own org/station unless they are main_admin.
func (s *Server) handleCreateInvitation(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		apperr.WriteHTTP(c, apperr.NewUnauthenticated("missing principal"))
		return
	}
	var req db.CreateInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.WriteHTTP(c, apperr.NewInvalid(err.Error()))
		return
	}
	orgID, stationID := req.OrganisationID, req.StationID
	if p.Role != db.RoleMainAdmin {
		orgID = p.OrganisationID
		stationID = p.StationID
	}
	inv := &db.Invitation{
		Token:          uuid.New().String(),
		Email:          req.Email,
		Role:           req.Role,
		OrganisationID: orgID,
		StationID:      stationID,
		Status:         db.InvitationPending,
		ExpiresAt:      time.Now().Add(7 * 24 * time.Hour),
		CreatedBy:      p.UserID,
	}
	if err := s.Store.CreateInvitation(c.Request.Context(), inv); err != nil {
		apperr.WriteHTTP(c, apperr.NewUnavailable("failed to create invitation", err))
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (s *Server) handleListInvitations(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		apperr.WriteHTTP(c, apperr.NewUnauthenticated("missing principal"))
		return
	}
	orgID, stationID := "", ""
	if p.Role != db.RoleMainAdmin {
		orgID, stationID = p.OrganisationID, p.StationID
	}
	list, err := s.Store.ListInvitations(c.Request.Context(), orgID, stationID)
	if err != nil {
		apperr.WriteHTTP(c, apperr.NewUnavailable("failed to list invitations", err))
		return
	}
	c.JSON(http.StatusOK, list)
}

// handleAcceptInvitation is public: the caller proves authority with the
// invitation token itself, not a bearer token.
func (s *Server) handleAcceptInvitation(c *gin.Context) {
	var req db.AcceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.WriteHTTP(c, apperr.NewInvalid(err.Error()))
		return
	}
	resp, err := s.Auth.AcceptInvitation(c.Request.Context(), req)
	if err != nil {
		apperr.WriteHTTP(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// handleProgressUpdate posts an admin progress note without necessarily
// moving the incident through the full status-transition table.
func (s *Server) handleProgressUpdate(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		apperr.WriteHTTP(c, apperr.NewUnauthenticated("missing principal"))
		return
	}
	var req db.ProgressUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.WriteHTTP(c, apperr.NewInvalid(err.Error()))
		return
	}
	incident, err := s.Incidents.ProgressUpdate(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		apperr.WriteHTTP(c, err)
		return
	}
	c.JSON(http.StatusOK, incident)
}

func (s *Server) handleWebsocket(c *gin.Context) {
	s.Hub.ServeHTTP(c.Writer, c.Request)
}
