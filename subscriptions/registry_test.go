package subscriptions

import (
	"context"
	"testing"

	"github.com/rindwa/dispatch/db"
	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	db.Store
	created  []db.CitizenSubscription
	existing *db.CitizenSubscription
}

func (f *fakeStore) CreateSubscription(ctx context.Context, s *db.CitizenSubscription) error {
	f.created = append(f.created, *s)
	return nil
}

func (f *fakeStore) FindSubscriptionByPushToken(ctx context.Context, incidentID, pushToken string) (*db.CitizenSubscription, error) {
	return f.existing, nil
}

func (f *fakeStore) DeactivateSubscription(ctx context.Context, id string) error { return nil }

func TestSubscribe_CreatesNew(t *testing.T) {
	store := &fakeStore{}
	reg := NewRegistry(store)

	sub, err := reg.Subscribe(context.Background(), "incident-1", db.SubscribeRequest{PushToken: "tok"})
	assert.NoError(t, err)
	assert.True(t, sub.IsActive)
	assert.Len(t, store.created, 1)
}

func TestSubscribe_IdempotentPerPushToken(t *testing.T) {
	store := &fakeStore{existing: &db.CitizenSubscription{ID: "existing", IsActive: true}}
	reg := NewRegistry(store)

	sub, err := reg.Subscribe(context.Background(), "incident-1", db.SubscribeRequest{PushToken: "tok"})
	assert.NoError(t, err)
	assert.Equal(t, "existing", sub.ID)
	assert.Empty(t, store.created)
}
