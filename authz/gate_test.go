package authz

import (
	"testing"

	"github.com/rindwa/dispatch/db"
	"github.com/stretchr/testify/assert"
)

func TestAtLeast_HierarchyOrdering(t *testing.T) {
	assert.True(t, AtLeast(db.RoleMainAdmin, db.RoleStationStaff))
	assert.True(t, AtLeast(db.RoleStationAdmin, db.RoleStationAdmin))
	assert.False(t, AtLeast(db.RoleStationStaff, db.RoleStationAdmin))
	assert.False(t, AtLeast(db.RoleCitizen, db.RoleStationStaff))
}

func TestGate_CanView_ScopesByRole(t *testing.T) {
	g := NewGate()
	incident := &db.Incident{StationID: "s1", OrganisationID: "org1", Status: db.StatusAssigned}

	assert.True(t, g.CanView(db.Principal{Role: db.RoleMainAdmin}, incident))
	assert.True(t, g.CanView(db.Principal{Role: db.RoleSuperAdmin, OrganisationID: "org1"}, incident))
	assert.False(t, g.CanView(db.Principal{Role: db.RoleSuperAdmin, OrganisationID: "org2"}, incident))
	assert.True(t, g.CanView(db.Principal{Role: db.RoleStationAdmin, StationID: "s1"}, incident))
	assert.False(t, g.CanView(db.Principal{Role: db.RoleStationStaff, StationID: "other"}, incident))
}

func TestGate_CanView_CitizenOnlyPublicStatuses(t *testing.T) {
	g := NewGate()
	citizen := db.Principal{Role: db.RoleCitizen}

	assert.True(t, g.CanView(citizen, &db.Incident{Status: db.StatusReported}))
	assert.True(t, g.CanView(citizen, &db.Incident{Status: db.StatusInProgress}))
	assert.False(t, g.CanView(citizen, &db.Incident{Status: db.StatusResolved}))
}

func TestGate_Authorize_CitizenCannotChangeStatusOrEscalate(t *testing.T) {
	g := NewGate()
	incident := &db.Incident{Status: db.StatusReported}
	citizen := db.Principal{Role: db.RoleCitizen}

	assert.Error(t, g.Authorize(citizen, incident, ActionChangeStatus))
	assert.Error(t, g.Authorize(citizen, incident, ActionEscalate))
}

func TestGate_Authorize_StationStaffCanSelfAssignAction(t *testing.T) {
	g := NewGate()
	incident := &db.Incident{StationID: "s1", Status: db.StatusReported}
	staff := db.Principal{Role: db.RoleStationStaff, StationID: "s1"}

	assert.NoError(t, g.Authorize(staff, incident, ActionAssign))
}
