// Package incidents implements the IncidentService of spec §4.3: the
// lifecycle state machine and its authorization-gated mutations.
package incidents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rindwa/dispatch/authz"
	"github.com/rindwa/dispatch/classify"
	"github.com/rindwa/dispatch/db"
	"github.com/rindwa/dispatch/internal/apperr"
	"github.com/rindwa/dispatch/notify"
	"github.com/rindwa/dispatch/routing"
)

// Service wires together every collaborator an incident mutation needs:
// storage, authorization, classification, routing, and notification
// fan-out.
type Service struct {
	Store   db.Store
	Gate    *authz.Gate
	Routing *routing.RoutingEngine
	Bus     *notify.NotificationBus
}

func NewService(store db.Store, gate *authz.Gate, re *routing.RoutingEngine, bus *notify.NotificationBus) *Service {
	return &Service{Store: store, Gate: gate, Routing: re, Bus: bus}
}

func categoryToOrgType(c classify.Category) db.OrgType {
	switch c {
	case classify.CategoryHealth:
		return db.OrgTypeHealth
	case classify.CategoryInvestigation:
		return db.OrgTypeInvestigation
	default:
		return db.OrgTypePolice
	}
}

func parsePriority(s string) db.Priority {
	switch db.Priority(s) {
	case db.PriorityLow, db.PriorityMedium, db.PriorityHigh, db.PriorityCritical:
		return db.Priority(s)
	default:
		return db.PriorityMedium
	}
}

// classifyAndRoute runs the Classifier then SelectOptimalStation, the
// shared first half of both creation paths.
func (s *Service) classifyAndRoute(ctx context.Context, title, description string, loc db.Location, priority db.Priority) (classify.Result, db.Station, error) {
	result := classify.Classify(title, description)
	orgType := categoryToOrgType(result.Category)

	station, err := s.Routing.SelectOptimalStation(ctx, orgType, routing.Point{Lat: loc.Lat, Lng: loc.Lng}, priority)
	if err != nil {
		return result, db.Station{}, err
	}
	return result, station.Station, nil
}

// CreateFromCitizen implements the unauthenticated citizen report path.
func (s *Service) CreateFromCitizen(ctx context.Context, req db.CreateCitizenIncidentRequest) (*db.Incident, error) {
	if req.Title == "" || req.Description == "" || req.LocationAddress == "" {
		return nil, apperr.NewInvalid("title, description and location_address are required")
	}

	priority := db.PriorityMedium
	if req.Priority != "" {
		priority = parsePriority(req.Priority)
	}
	loc := db.Location{Lat: req.LocationLat, Lng: req.LocationLng, Address: req.LocationAddress}

	result, station, err := s.classifyAndRoute(ctx, req.Title, req.Description, loc, priority)
	if err != nil {
		return nil, err
	}

	incident := &db.Incident{
		ID:             uuid.New().String(),
		Title:          req.Title,
		Description:    req.Description,
		Type:           db.Category(result.Category),
		Priority:       priority,
		Status:         db.StatusReported,
		Location:       loc,
		StationID:      station.ID,
		OrganisationID: station.OrganisationID,
		ReportedByID:   db.AnonymousSentinel,
		ReporterEmail:  req.ReporterEmail,
		ReporterPhone:  req.ReporterPhone,
	}

	if err := s.persistAndNotifyCreated(ctx, incident); err != nil {
		return nil, err
	}
	return incident, nil
}

// CreateAuthenticated implements the staff-create path: same pipeline, but
// reportedById is the principal and station/org default from it.
func (s *Service) CreateAuthenticated(ctx context.Context, p db.Principal, req db.CreateStaffIncidentRequest) (*db.Incident, error) {
	if req.Title == "" || req.Description == "" || req.LocationAddress == "" {
		return nil, apperr.NewInvalid("title, description and location_address are required")
	}

	priority := db.PriorityMedium
	if req.Priority != "" {
		priority = parsePriority(req.Priority)
	}
	loc := db.Location{Lat: req.LocationLat, Lng: req.LocationLng, Address: req.LocationAddress}

	stationID := req.StationID
	orgID := req.OrganisationID
	if stationID == "" && p.StationID != "" {
		stationID = p.StationID
	}
	if orgID == "" && p.OrganisationID != "" {
		orgID = p.OrganisationID
	}

	result, station, err := s.classifyAndRoute(ctx, req.Title, req.Description, loc, priority)
	if err != nil {
		return nil, err
	}
	if stationID == "" {
		stationID = station.ID
	}
	if orgID == "" {
		orgID = station.OrganisationID
	}

	incident := &db.Incident{
		ID:             uuid.New().String(),
		Title:          req.Title,
		Description:    req.Description,
		Type:           db.Category(result.Category),
		Priority:       priority,
		Status:         db.StatusReported,
		Location:       loc,
		StationID:      stationID,
		OrganisationID: orgID,
		ReportedByID:   p.UserID,
	}

	if err := s.persistAndNotifyCreated(ctx, incident); err != nil {
		return nil, err
	}
	return incident, nil
}

func (s *Service) persistAndNotifyCreated(ctx context.Context, incident *db.Incident) error {
	now := time.Now()
	incident.CreatedAt = now
	incident.UpdatedAt = now
	incident.StatusUpdatedAt = now

	if err := s.Store.CreateIncident(ctx, incident); err != nil {
		return apperr.NewUnavailable("failed to create incident", err)
	}

	recipients := s.stationAdmins(ctx, incident.StationID)
	s.Bus.Publish(ctx, notify.Event{
		Kind:              db.NotifIncidentCreated,
		Title:             "New incident reported",
		Message:           incident.Title,
		RelatedEntityType: "incident",
		RelatedEntityID:   incident.ID,
		ActionRequired:    true,
		Recipients:        recipients,
	})
	return nil
}

func (s *Service) stationAdmins(ctx context.Context, stationID string) []string {
	users, err := s.Store.ListUsersByRoleAndScope(ctx, db.RoleStationAdmin, stationID, "")
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

// Assign implements §4.3's self-assign/scoped-assign rules.
func (s *Service) Assign(ctx context.Context, p db.Principal, incidentID string, req db.AssignIncidentRequest) (*db.Incident, error) {
	incident, err := s.mustGet(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if err := s.Gate.Authorize(p, incident, authz.ActionAssign); err != nil {
		return nil, err
	}

	switch p.Role {
	case db.RoleStationStaff:
		if req.AssignedToID != p.UserID {
			return nil, apperr.NewForbidden("station staff may only self-assign")
		}
	case db.RoleStationAdmin:
		if incident.StationID != p.StationID {
			return nil, apperr.NewForbidden("station admin may only assign within their own station")
		}
	case db.RoleSuperAdmin:
		if incident.OrganisationID != p.OrganisationID {
			return nil, apperr.NewForbidden("super admin may only assign within their own organisation")
		}
	}

	now := time.Now()
	incident.Status = db.StatusAssigned
	incident.AssignedTo = req.AssignedToID
	incident.AssignedBy = p.UserID
	incident.AssignedAt = &now
	incident.StatusUpdatedAt = now
	incident.StatusUpdatedBy = p.UserID
	incident.UpdatedAt = now
	if req.Priority != nil {
		incident.Priority = parsePriority(*req.Priority)
	}

	if err := s.Store.UpdateIncident(ctx, incident); err != nil {
		return nil, apperr.NewUnavailable("failed to update incident", err)
	}

	kind := db.NotifAssigned
	recipients := []string{req.AssignedToID}
	if req.AssignedToID == p.UserID {
		kind = db.NotifSelfAssigned
		recipients = excluding(s.stationAdmins(ctx, incident.StationID), p.UserID)
	}
	s.Bus.Publish(ctx, notify.Event{
		Kind:              kind,
		Title:             "Incident assigned",
		Message:           incident.Title,
		RelatedEntityType: "incident",
		RelatedEntityID:   incident.ID,
		Recipients:        recipients,
	})

	return incident, nil
}

// validStatusTransition checks a from→to pair against §4.3's transition
// table. Escalation is an orthogonal flag-state reached through
// Escalate/AutoEscalate, not through this table.
func validStatusTransition(from, to db.IncidentStatus) bool {
	switch from {
	case db.StatusReported:
		return to == db.StatusAssigned
	case db.StatusAssigned:
		return to == db.StatusInProgress || to == db.StatusResolved
	case db.StatusInProgress:
		return to == db.StatusResolved
	case db.StatusResolved:
		return to == db.StatusAssigned
	default:
		return false
	}
}

// UpdateStatus implements the normal-flow transitions of §4.3's table.
func (s *Service) UpdateStatus(ctx context.Context, p db.Principal, incidentID string, req db.UpdateStatusRequest) (*db.Incident, error) {
	incident, err := s.mustGet(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if err := s.Gate.Authorize(p, incident, authz.ActionChangeStatus); err != nil {
		return nil, err
	}

	newStatus := db.IncidentStatus(req.Status)
	switch newStatus {
	case db.StatusAssigned, db.StatusInProgress, db.StatusResolved:
	default:
		return nil, apperr.NewInvalid("invalid status", apperr.FieldError{Field: "status", Message: "unrecognized status"})
	}

	if !validStatusTransition(incident.Status, newStatus) {
		return nil, apperr.NewConflict(fmt.Sprintf("cannot move an incident from %s to %s", incident.Status, newStatus))
	}

	if incident.Status == db.StatusAssigned && newStatus == db.StatusInProgress {
		if incident.AssignedTo != p.UserID && !authz.AtLeast(p.Role, db.RoleStationAdmin) {
			return nil, apperr.NewForbidden("you do not have permission to start work on an incident assigned to someone else")
		}
	}

	if newStatus == db.StatusResolved && req.Resolution == "" {
		return nil, apperr.NewInvalid("resolution is required to resolve an incident",
			apperr.FieldError{Field: "resolution", Message: "required"})
	}
	if incident.Status == db.StatusResolved && newStatus == db.StatusAssigned {
		if !authz.AtLeast(p.Role, db.RoleStationAdmin) {
			return nil, apperr.NewForbidden("you do not have permission to reopen a resolved incident")
		}
		if req.ReopenReason == "" {
			return nil, apperr.NewInvalid("reopenReason is required to reopen a resolved incident",
				apperr.FieldError{Field: "reopenReason", Message: "required"})
		}
	}

	now := time.Now()
	incident.Status = newStatus
	incident.StatusUpdatedAt = now
	incident.StatusUpdatedBy = p.UserID
	incident.UpdatedAt = now
	if newStatus == db.StatusResolved {
		incident.ResolvedBy = p.UserID
		incident.ResolvedAt = &now
		incident.Resolution = req.Resolution
	}

	if err := s.Store.UpdateIncident(ctx, incident); err != nil {
		return nil, apperr.NewUnavailable("failed to update incident", err)
	}

	recipients := excluding(s.updateAudience(ctx, incident), p.UserID)
	s.Bus.Publish(ctx, notify.Event{
		Kind:              db.NotifUpdated,
		Title:             "Incident updated",
		Message:           fmt.Sprintf("%s is now %s", incident.Title, incident.Status),
		RelatedEntityType: "incident",
		RelatedEntityID:   incident.ID,
		Recipients:        recipients,
	})

	if newStatus == db.StatusResolved {
		s.Bus.PublishToSubscribers(ctx, incident.ID, notify.Message{
			Title: fmt.Sprintf("Resolved: %s", incident.Title),
			Body:  resolutionBody(incident, p.UserID, req.TimeToResolution, req.ActionsTaken),
		})
	}

	return incident, nil
}

// resolutionBody builds the richer per-resolution template §4.6 requires:
// resolver identity, time-to-resolution, and the actions taken.
func resolutionBody(incident *db.Incident, resolverID, timeToResolution string, actionsTaken []string) string {
	body := fmt.Sprintf("%s has been resolved: %s\nResolved by: %s", incident.Title, incident.Resolution, resolverID)
	if timeToResolution != "" {
		body += fmt.Sprintf("\nTime to resolution: %s", timeToResolution)
	}
	if len(actionsTaken) > 0 {
		body += "\nActions taken:"
		for _, a := range actionsTaken {
			body += fmt.Sprintf("\n- %s", a)
		}
	}
	return body
}

// ProgressUpdate implements the admin progress-note operation of §6: a
// narrative note that may also carry it across a valid status/priority
// transition, and is always echoed to subscribers verbatim.
func (s *Service) ProgressUpdate(ctx context.Context, p db.Principal, incidentID string, req db.ProgressUpdateRequest) (*db.Incident, error) {
	incident, err := s.mustGet(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if err := s.Gate.Authorize(p, incident, authz.ActionChangeStatus); err != nil {
		return nil, err
	}

	newStatus := incident.Status
	if req.Status != "" && db.IncidentStatus(req.Status) != incident.Status {
		newStatus = db.IncidentStatus(req.Status)
		if !validStatusTransition(incident.Status, newStatus) {
			return nil, apperr.NewConflict(fmt.Sprintf("cannot move an incident from %s to %s", incident.Status, newStatus))
		}
	}

	now := time.Now()
	incident.Status = newStatus
	incident.StatusUpdatedAt = now
	incident.StatusUpdatedBy = p.UserID
	incident.UpdatedAt = now
	if req.Priority != "" {
		incident.Priority = parsePriority(req.Priority)
	}

	if err := s.Store.UpdateIncident(ctx, incident); err != nil {
		return nil, apperr.NewUnavailable("failed to update incident", err)
	}

	recipients := excluding(s.updateAudience(ctx, incident), p.UserID)
	s.Bus.Publish(ctx, notify.Event{
		Kind:              db.NotifUpdated,
		Title:             "Incident progress update",
		Message:           req.Message,
		RelatedEntityType: "incident",
		RelatedEntityID:   incident.ID,
		Recipients:        recipients,
	})
	s.Bus.PublishToSubscribers(ctx, incident.ID, notify.Message{
		Title: fmt.Sprintf("Update on %s", incident.Title),
		Body:  req.Message,
	})

	return incident, nil
}

func (s *Service) updateAudience(ctx context.Context, incident *db.Incident) []string {
	recipients := s.stationAdmins(ctx, incident.StationID)
	if incident.AssignedTo != "" {
		recipients = append(recipients, incident.AssignedTo)
	}
	return recipients
}

// Escalate implements manual escalation along the 4-level authority chain.
func (s *Service) Escalate(ctx context.Context, p db.Principal, incidentID string, req db.EscalateIncidentRequest) (*db.Incident, error) {
	incident, err := s.mustGet(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if err := s.Gate.Authorize(p, incident, authz.ActionEscalate); err != nil {
		return nil, err
	}
	if req.Reason == "" {
		return nil, apperr.NewInvalid("reason is required", apperr.FieldError{Field: "reason", Message: "required"})
	}
	if incident.EscalationLevel >= 3 {
		return nil, apperr.NewConflict("incident is already at the maximum escalation level")
	}

	currentLevel := incident.EscalationLevel
	newLevel := currentLevel + 1
	if req.TargetLevel != nil {
		newLevel = *req.TargetLevel
	}
	if newLevel > 3 {
		newLevel = 3
	}
	if newLevel <= currentLevel {
		return nil, apperr.NewConflict("incident is already at or above the requested escalation level")
	}
	if rankOf(p.Role) >= newLevel {
		return nil, apperr.NewForbidden("principal's role must be strictly below the target escalation level")
	}

	return s.applyEscalation(ctx, incident, newLevel, db.RoleAtEscalationLevel(newLevel), p.UserID, req.Reason)
}

func rankOf(r db.Role) int { return db.EscalationLevelForRole(r) }

// AutoEscalate is called by the escalation scheduler with the rule that
// matched; escalatedBy is the empty string, marking the system as actor,
// and the notification audience comes from the rule's own EscalateToRole
// rather than being re-derived from the escalation level.
func (s *Service) AutoEscalate(ctx context.Context, incident *db.Incident, rule db.EscalationRule, reason string) (*db.Incident, error) {
	if incident.EscalationLevel >= 3 {
		return incident, nil
	}
	newLevel := incident.EscalationLevel + 1
	return s.applyEscalation(ctx, incident, newLevel, rule.EscalateToRole, "", reason)
}

func (s *Service) applyEscalation(ctx context.Context, incident *db.Incident, newLevel int, notifyRole db.Role, actorID, reason string) (*db.Incident, error) {
	now := time.Now()
	incident.Status = db.StatusEscalated
	incident.EscalationLevel = newLevel
	incident.EscalatedBy = actorID
	incident.EscalatedAt = &now
	incident.EscalationReason = reason
	incident.StatusUpdatedAt = now
	incident.UpdatedAt = now

	if err := s.Store.UpdateIncident(ctx, incident); err != nil {
		return nil, apperr.NewUnavailable("failed to update incident", err)
	}

	users, err := s.Store.ListUsersByRoleAndScope(ctx, notifyRole, incident.StationID, incident.OrganisationID)
	var recipients []string
	if err == nil {
		for _, u := range users {
			recipients = append(recipients, u.ID)
		}
	}
	s.Bus.Publish(ctx, notify.Event{
		Kind:              db.NotifEscalated,
		Title:             "Incident escalated",
		Message:           reason,
		RelatedEntityType: "incident",
		RelatedEntityID:   incident.ID,
		ActionRequired:    true,
		Recipients:        recipients,
	})

	return incident, nil
}

// Upvote is idempotent per (actorKey, incidentId): a duplicate silently
// no-ops and returns the current authoritative count (Open Question #2).
func (s *Service) Upvote(ctx context.Context, incidentID, actorKey string) (int, error) {
	incident, err := s.Store.GetIncident(ctx, incidentID)
	if err != nil {
		return 0, apperr.NewUnavailable("failed to look up incident", err)
	}
	if incident == nil {
		return 0, apperr.NewNotFound("incident not found")
	}

	if _, err := s.Store.RecordUpvote(ctx, incidentID, actorKey); err != nil {
		return 0, apperr.NewUnavailable("failed to record upvote", err)
	}
	count, err := s.Store.CountUpvotes(ctx, incidentID)
	if err != nil {
		return 0, apperr.NewUnavailable("failed to count upvotes", err)
	}
	return count, nil
}

// RegisterFollowUp requires at least one contact field.
func (s *Service) RegisterFollowUp(ctx context.Context, incidentID string, req db.FollowUpRequest) error {
	if req.Email == "" && req.Phone == "" {
		return apperr.NewInvalid("at least one of email or phone is required")
	}
	incident, err := s.Store.GetIncident(ctx, incidentID)
	if err != nil {
		return apperr.NewUnavailable("failed to look up incident", err)
	}
	if incident == nil {
		return apperr.NewNotFound("incident not found")
	}
	incident.ReporterEmail = req.Email
	incident.ReporterPhone = req.Phone
	incident.UpdatedAt = time.Now()
	if err := s.Store.UpdateIncident(ctx, incident); err != nil {
		return apperr.NewUnavailable("failed to update incident", err)
	}
	return nil
}

func (s *Service) mustGet(ctx context.Context, id string) (*db.Incident, error) {
	incident, err := s.Store.GetIncident(ctx, id)
	if err != nil {
		return nil, apperr.NewUnavailable("failed to look up incident", err)
	}
	if incident == nil {
		return nil, apperr.NewNotFound("incident not found")
	}
	return incident, nil
}

func excluding(ids []string, exclude string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}
