package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/rindwa/dispatch/authz"
	"github.com/rindwa/dispatch/db"
	"github.com/rindwa/dispatch/incidents"
	"github.com/rindwa/dispatch/notify"
	"github.com/rindwa/dispatch/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	db.Store
	incidents map[string]*db.Incident
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

func (f *fakeStore) ListIncidents(ctx context.Context, filter db.IncidentFilter) ([]db.Incident, error) {
	var out []db.Incident
	for _, i := range f.incidents {
		if i.Status == filter.Status {
			out = append(out, *i)
		}
	}
	return out, nil
}

func (f *fakeStore) ListUsersByRoleAndScope(ctx context.Context, role db.Role, stationID, orgID string) ([]db.User, error) {
	return nil, nil
}

func (f *fakeStore) CreateNotification(ctx context.Context, n *db.Notification) error { return nil }

func newTestScheduler(store *fakeStore) *Scheduler {
	re := routing.NewRoutingEngine(store)
	bus := notify.NewNotificationBus(store, nil, nil, nil)
	svc := incidents.NewService(store, authz.NewGate(), re, bus)
	return NewScheduler(store, svc, time.Minute)
}

func TestMaybeEscalate_BumpsLevelPastThreshold(t *testing.T) {
	store := &fakeStore{incidents: map[string]*db.Incident{
		"i1": {
			ID:              "i1",
			Status:          db.StatusReported,
			Priority:        db.PriorityCritical,
			CreatedAt:       time.Now().Add(-20 * time.Minute),
			StatusUpdatedAt: time.Now().Add(-20 * time.Minute),
		},
	}}
	s := newTestScheduler(store)

	s.maybeEscalate(context.Background(), "i1")

	updated := store.incidents["i1"]
	require.Equal(t, db.StatusEscalated, updated.Status)
	assert.Equal(t, 1, updated.EscalationLevel)
}

func TestMaybeEscalate_NoOpBeforeThreshold(t *testing.T) {
	store := &fakeStore{incidents: map[string]*db.Incident{
		"i1": {
			ID:              "i1",
			Status:          db.StatusReported,
			Priority:        db.PriorityCritical,
			CreatedAt:       time.Now().Add(-5 * time.Minute),
			StatusUpdatedAt: time.Now().Add(-5 * time.Minute),
		},
	}}
	s := newTestScheduler(store)

	s.maybeEscalate(context.Background(), "i1")

	updated := store.incidents["i1"]
	assert.Equal(t, db.StatusReported, updated.Status)
	assert.Equal(t, 0, updated.EscalationLevel)
}

func TestMaybeEscalate_NoRuleMatch(t *testing.T) {
	store := &fakeStore{incidents: map[string]*db.Incident{
		"i1": {
			ID:        "i1",
			Status:    db.StatusResolved,
			Priority:  db.PriorityLow,
			CreatedAt: time.Now().Add(-48 * time.Hour),
		},
	}}
	s := newTestScheduler(store)

	s.maybeEscalate(context.Background(), "i1")

	updated := store.incidents["i1"]
	assert.Equal(t, db.StatusResolved, updated.Status)
}
