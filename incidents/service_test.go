package incidents

import (
	"context"
	"testing"

	"github.com/rindwa/dispatch/authz"
	"github.com/rindwa/dispatch/db"
	"github.com/rindwa/dispatch/notify"
	"github.com/rindwa/dispatch/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	db.Store
	incidents map[string]*db.Incident
	stations  []db.Station
	upvoted   map[string]bool
	upvotes   map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		incidents: make(map[string]*db.Incident),
		upvoted:   make(map[string]bool),
		upvotes:   make(map[string]int),
	}
}

func (f *fakeStore) CreateIncident(ctx context.Context, i *db.Incident) error {
	f.incidents[i.ID] = i
	return nil
}

func (f *fakeStore) GetIncident(ctx context.Context, id string) (*db.Incident, error) {
	i, ok := f.incidents[id]
	if !ok {
		return nil, nil
	}
	return i, nil
}

func (f *fakeStore) UpdateIncident(ctx context.Context, i *db.Incident) error {
	f.incidents[i.ID] = i
	return nil
}

func (f *fakeStore) ListActiveStationsByOrgType(ctx context.Context, t db.OrgType) ([]db.Station, error) {
	return f.stations, nil
}

func (f *fakeStore) ListUsersByRoleAndScope(ctx context.Context, role db.Role, stationID, orgID string) ([]db.User, error) {
	return nil, nil
}

func (f *fakeStore) CreateNotification(ctx context.Context, n *db.Notification) error { return nil }

func (f *fakeStore) ListActiveSubscriptions(ctx context.Context, incidentID string) ([]db.CitizenSubscription, error) {
	return nil, nil
}

func (f *fakeStore) RecordUpvote(ctx context.Context, incidentID, actorKey string) (bool, error) {
	key := incidentID + "|" + actorKey
	if f.upvoted[key] {
		return false, nil
	}
	f.upvoted[key] = true
	f.upvotes[incidentID]++
	return true, nil
}

func (f *fakeStore) CountUpvotes(ctx context.Context, incidentID string) (int, error) {
	return f.upvotes[incidentID], nil
}

func newTestService(store *fakeStore) *Service {
	re := routing.NewRoutingEngine(store)
	bus := notify.NewNotificationBus(store, nil, nil, nil)
	return NewService(store, authz.NewGate(), re, bus)
}

func TestCreateFromCitizen_RequiresFields(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.CreateFromCitizen(context.Background(), db.CreateCitizenIncidentRequest{})
	assert.Error(t, err)
}

func TestCreateFromCitizen_UsesAnonymousSentinel(t *testing.T) {
	store := newFakeStore()
	store.stations = []db.Station{{ID: "station-1", OrganisationID: "org-1", IsActive: true}}
	svc := newTestService(store)

	incident, err := svc.CreateFromCitizen(context.Background(), db.CreateCitizenIncidentRequest{
		Title:           "Fire",
		Description:     "Building on fire",
		LocationAddress: "Main St",
	})
	require.NoError(t, err)
	assert.Equal(t, db.AnonymousSentinel, incident.ReportedByID)
	assert.Equal(t, db.StatusReported, incident.Status)
	assert.Equal(t, "station-1", incident.StationID)
}

func TestAssign_StationStaffCannotAssignOthers(t *testing.T) {
	store := newFakeStore()
	store.incidents["i1"] = &db.Incident{ID: "i1", StationID: "s1", Status: db.StatusReported}
	svc := newTestService(store)

	p := db.Principal{UserID: "staff-1", Role: db.RoleStationStaff, StationID: "s1"}
	_, err := svc.Assign(context.Background(), p, "i1", db.AssignIncidentRequest{AssignedToID: "someone-else"})
	assert.Error(t, err)
}

func TestAssign_StationStaffSelfAssign(t *testing.T) {
	store := newFakeStore()
	store.incidents["i1"] = &db.Incident{ID: "i1", StationID: "s1", Status: db.StatusReported}
	svc := newTestService(store)

	p := db.Principal{UserID: "staff-1", Role: db.RoleStationStaff, StationID: "s1"}
	incident, err := svc.Assign(context.Background(), p, "i1", db.AssignIncidentRequest{AssignedToID: "staff-1"})
	require.NoError(t, err)
	assert.Equal(t, db.StatusAssigned, incident.Status)
	assert.Equal(t, "staff-1", incident.AssignedTo)
}

func TestEscalate_RejectsWhenPrincipalRoleTooHigh(t *testing.T) {
	store := newFakeStore()
	store.incidents["i1"] = &db.Incident{ID: "i1", StationID: "s1", Status: db.StatusReported, EscalationLevel: 0}
	svc := newTestService(store)

	// station_admin (level 1) escalating to level 1 must fail: role must be strictly below target.
	p := db.Principal{UserID: "admin-1", Role: db.RoleStationAdmin, StationID: "s1"}
	target := 1
	_, err := svc.Escalate(context.Background(), p, "i1", db.EscalateIncidentRequest{Reason: "stalled", TargetLevel: &target})
	assert.Error(t, err)
}

func TestEscalate_RejectsAtMaxLevel(t *testing.T) {
	store := newFakeStore()
	store.incidents["i1"] = &db.Incident{ID: "i1", StationID: "s1", Status: db.StatusReported, EscalationLevel: 3}
	svc := newTestService(store)

	p := db.Principal{UserID: "admin-1", Role: db.RoleMainAdmin}
	_, err := svc.Escalate(context.Background(), p, "i1", db.EscalateIncidentRequest{Reason: "stalled"})
	assert.Error(t, err)
}

func TestUpdateStatus_NonAssigneeStaffForbidden(t *testing.T) {
	store := newFakeStore()
	store.incidents["i1"] = &db.Incident{ID: "i1", StationID: "s1", Status: db.StatusAssigned, AssignedTo: "staff-a"}
	svc := newTestService(store)

	staffB := db.Principal{UserID: "staff-b", Role: db.RoleStationStaff, StationID: "s1"}
	_, err := svc.UpdateStatus(context.Background(), staffB, "i1", db.UpdateStatusRequest{Status: string(db.StatusInProgress)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission")
}

func TestUpdateStatus_AssigneeCanStartWork(t *testing.T) {
	store := newFakeStore()
	store.incidents["i1"] = &db.Incident{ID: "i1", StationID: "s1", Status: db.StatusAssigned, AssignedTo: "staff-a"}
	svc := newTestService(store)

	staffA := db.Principal{UserID: "staff-a", Role: db.RoleStationStaff, StationID: "s1"}
	incident, err := svc.UpdateStatus(context.Background(), staffA, "i1", db.UpdateStatusRequest{Status: string(db.StatusInProgress)})
	require.NoError(t, err)
	assert.Equal(t, db.StatusInProgress, incident.Status)
}

func TestUpdateStatus_RejectsSkippedTransition(t *testing.T) {
	store := newFakeStore()
	store.incidents["i1"] = &db.Incident{ID: "i1", StationID: "s1", Status: db.StatusReported}
	svc := newTestService(store)

	admin := db.Principal{UserID: "admin-1", Role: db.RoleStationAdmin, StationID: "s1"}
	_, err := svc.UpdateStatus(context.Background(), admin, "i1", db.UpdateStatusRequest{Status: string(db.StatusResolved), Resolution: "done"})
	assert.Error(t, err)
}

func TestUpdateStatus_ReopenRequiresReasonAndRole(t *testing.T) {
	store := newFakeStore()
	store.incidents["i1"] = &db.Incident{ID: "i1", StationID: "s1", Status: db.StatusResolved, Resolution: "fixed"}
	svc := newTestService(store)

	staff := db.Principal{UserID: "staff-a", Role: db.RoleStationStaff, StationID: "s1"}
	_, err := svc.UpdateStatus(context.Background(), staff, "i1", db.UpdateStatusRequest{Status: string(db.StatusAssigned), ReopenReason: "citizen disputes resolution"})
	assert.Error(t, err, "station staff must not be able to reopen")

	admin := db.Principal{UserID: "admin-1", Role: db.RoleStationAdmin, StationID: "s1"}
	_, err = svc.UpdateStatus(context.Background(), admin, "i1", db.UpdateStatusRequest{Status: string(db.StatusAssigned)})
	assert.Error(t, err, "reopen without a reason must be rejected")

	incident, err := svc.UpdateStatus(context.Background(), admin, "i1", db.UpdateStatusRequest{Status: string(db.StatusAssigned), ReopenReason: "citizen disputes resolution"})
	require.NoError(t, err)
	assert.Equal(t, db.StatusAssigned, incident.Status)
}

func TestUpvote_IsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.incidents["i1"] = &db.Incident{ID: "i1"}
	svc := newTestService(store)

	count1, err := svc.Upvote(context.Background(), "i1", "actor-1")
	require.NoError(t, err)
	count2, err := svc.Upvote(context.Background(), "i1", "actor-1")
	require.NoError(t, err)

	assert.Equal(t, 1, count1)
	assert.Equal(t, 1, count2)
}

func TestUpvote_NotFound(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.Upvote(context.Background(), "missing", "actor-1")
	assert.Error(t, err)
}
