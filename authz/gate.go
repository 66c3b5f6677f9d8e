package authz

import (
	"github.com/rindwa/dispatch/db"
	"github.com/rindwa/dispatch/internal/apperr"
)

// Gate implements spec §4.5. It is stateless — visibility and mutation
// decisions are derived entirely from the principal and the incident already
// in hand, never from a fresh database lookup, because role/org/station
// scope travel with the validated principal.
type Gate struct{}

func NewGate() *Gate { return &Gate{} }

// VisibilityFilter returns the db.IncidentFilter scoping a list query to
// what the principal is permitted to see.
func (g *Gate) VisibilityFilter(p db.Principal) db.IncidentFilter {
	switch p.Role {
	case db.RoleMainAdmin:
		return db.IncidentFilter{}
	case db.RoleSuperAdmin:
		return db.IncidentFilter{OrganisationID: p.OrganisationID}
	case db.RoleStationAdmin, db.RoleStationStaff:
		return db.IncidentFilter{StationID: p.StationID}
	default:
		// citizen / unknown: public feed only
		return db.IncidentFilter{ActiveOnly: true}
	}
}

// CanView reports whether the principal may read this specific incident,
// per the same scope rule VisibilityFilter encodes.
func (g *Gate) CanView(p db.Principal, i *db.Incident) bool {
	switch p.Role {
	case db.RoleMainAdmin:
		return true
	case db.RoleSuperAdmin:
		return p.OrganisationID != "" && p.OrganisationID == i.OrganisationID
	case db.RoleStationAdmin, db.RoleStationStaff:
		return p.StationID != "" && p.StationID == i.StationID
	default:
		return i.Status == db.StatusReported || i.Status == db.StatusAssigned || i.Status == db.StatusInProgress
	}
}

// CanViewStationUsers gates user-management reads by station scope:
// station_admin and station_staff see only their own station's users;
// main_admin and super_admin may read any station's users (super_admin is
// not limited to its own organisation here).
func (g *Gate) CanViewStationUsers(p db.Principal, stationID string) bool {
	switch p.Role {
	case db.RoleMainAdmin, db.RoleSuperAdmin:
		return true
	case db.RoleStationAdmin, db.RoleStationStaff:
		return p.StationID != "" && p.StationID == stationID
	default:
		return false
	}
}

// Authorize checks a mutation against both scope and the §4.3 operation
// table. It returns a typed *apperr.Error rather than a bare bool so callers
// get a surface-appropriate message without re-deriving one.
func (g *Gate) Authorize(p db.Principal, i *db.Incident, action Action) error {
	if !g.CanView(p, i) {
		return apperr.NewForbidden("you do not have permission to access this incident")
	}

	switch action {
	case ActionView:
		return nil

	case ActionAssign:
		if p.Role == db.RoleStationStaff {
			return nil // self-assign only; caller enforces targetUserId == principal.userId
		}
		if p.Role == db.RoleStationAdmin || p.Role == db.RoleSuperAdmin || p.Role == db.RoleMainAdmin {
			return nil
		}
		return apperr.NewForbidden("you do not have permission to assign this incident")

	case ActionChangeStatus:
		if p.Role == db.RoleCitizen {
			return apperr.NewForbidden("you do not have permission to update incident status")
		}
		return nil

	case ActionEscalate:
		if p.Role == db.RoleCitizen {
			return apperr.NewForbidden("you do not have permission to escalate this incident")
		}
		return nil

	default:
		if AtLeast(p.Role, db.RoleStationAdmin) {
			return nil
		}
		return apperr.NewForbidden("you do not have permission to perform this action")
	}
}
