// Package authz implements the AuthorizationGate: deriving a visibility
// filter and mutation permission from a principal's role and the incident's
// ownership chain (spec §4.5).
package authz

import "github.com/rindwa/dispatch/db"

// Action is the operation being attempted, compatible in spirit with a
// ReBAC/OpenFGA-style generic Check signature.
type Action string

const (
	ActionView         Action = "view"
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionAssign       Action = "assign"
	ActionChangeStatus Action = "change_status"
	ActionEscalate     Action = "escalate"
	ActionManageUsers  Action = "manage_users"
	ActionManageStation Action = "manage_station"
)

// rank mirrors db.EscalationLevelForRole but is kept local so authz does not
// need to know about escalation semantics, only ordering.
func rank(r db.Role) int {
	switch r {
	case db.RoleStationStaff:
		return 0
	case db.RoleStationAdmin:
		return 1
	case db.RoleSuperAdmin:
		return 2
	case db.RoleMainAdmin:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether principal role p has at least the authority of
// role floor (higher rank = more authority).
func AtLeast(p, floor db.Role) bool {
	pr, fr := rank(p), rank(floor)
	return pr >= 0 && pr >= fr
}
