package notify

import (
	"context"
	"testing"

	"github.com/rindwa/dispatch/db"
	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	db.Store
	created []db.Notification
	subs    []db.CitizenSubscription
}

func (f *fakeStore) CreateNotification(ctx context.Context, n *db.Notification) error {
	f.created = append(f.created, *n)
	return nil
}

func (f *fakeStore) ListActiveSubscriptions(ctx context.Context, incidentID string) ([]db.CitizenSubscription, error) {
	return f.subs, nil
}

type fakeChannel struct {
	frames []interface{}
}

func (c *fakeChannel) Push(frame interface{}) error {
	c.frames = append(c.frames, frame)
	return nil
}

type fakeSender struct {
	name string
	sent []string
}

func (s *fakeSender) Name() string { return s.name }
func (s *fakeSender) Send(ctx context.Context, recipient string, msg Message) error {
	s.sent = append(s.sent, recipient)
	return nil
}

func TestPublish_PersistsAndPushesToLiveConnection(t *testing.T) {
	store := &fakeStore{}
	bus := NewNotificationBus(store, nil, nil, nil)
	ch := &fakeChannel{}
	bus.Register("user-1", ch)

	bus.Publish(context.Background(), Event{
		Kind:       db.NotifAssigned,
		Title:      "Assigned",
		Message:    "you were assigned",
		Recipients: []string{"user-1", "user-2"},
	})

	assert.Len(t, store.created, 2)
	assert.Len(t, ch.frames, 1)
}

func TestPublishToSubscribers_RespectsPreferences(t *testing.T) {
	push := &fakeSender{name: "fcm"}
	email := &fakeSender{name: "email"}
	sms := &fakeSender{name: "sms"}
	store := &fakeStore{subs: []db.CitizenSubscription{
		{ID: "s1", PushToken: "tok", Email: "a@b.com", Preferences: db.SubscriptionPreferences{Push: true, Email: true, SMS: false}},
	}}
	bus := NewNotificationBus(store, push, email, sms)

	bus.PublishToSubscribers(context.Background(), "incident-1", Message{Title: "Resolved", Body: "done"})

	assert.Equal(t, []string{"tok"}, push.sent)
	assert.Equal(t, []string{"a@b.com"}, email.sent)
	assert.Empty(t, sms.sent)
}
