package notify

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/rindwa/dispatch/db"
)

// LiveChannel is the per-connection sink a transport (WS hub) registers on
// behalf of an authenticated principal. Implemented by transport/ws.Conn.
// It is an alias of the unnamed interface type, so NotificationBus.Register
// also satisfies transport/ws.Registrar, which spells the type out.
type LiveChannel = interface {
	Push(frame interface{}) error
}

// Event is the input to Publish: one notification of type Kind destined
// for the user IDs listed in Recipients.
type Event struct {
	Kind              db.NotificationType
	Title             string
	Message           string
	RelatedEntityType string
	RelatedEntityID   string
	ActionRequired    bool
	Recipients        []string // resolved user IDs; audience rules live in incidents/escalation callers
}

// notificationFrame is the live-channel envelope shape from spec §4.6.
type notificationFrame struct {
	Type         string           `json:"type"`
	Notification db.Notification `json:"notification"`
}

// NotificationBus is the in-process pub/sub: it fans in-app events out to
// persistent Notification rows plus live connections, and fans
// per-incident events out to subscribed citizens over push/email/SMS. It
// is an injected object rather than ambient package state, so each test
// and each server instance gets its own connection table.
type NotificationBus struct {
	store db.Store

	mu      sync.RWMutex
	clients map[string]LiveChannel // userId -> channel

	push  Sender
	email Sender
	sms   Sender
}

func NewNotificationBus(store db.Store, push, email, sms Sender) *NotificationBus {
	return &NotificationBus{
		store:   store,
		clients: make(map[string]LiveChannel),
		push:    push,
		email:   email,
		sms:     sms,
	}
}

// Register binds a live channel to a principal's user id, replacing any
// previous connection for that user (spec §4.8: one live binding per
// authenticated principal).
func (b *NotificationBus) Register(userID string, ch LiveChannel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[userID] = ch
}

func (b *NotificationBus) Unregister(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, userID)
}

// Publish creates a persistent Notification per recipient and best-effort
// pushes a live frame to any currently connected one. Delivery failures
// are logged and swallowed: the persistent record is authoritative, per
// spec §7's propagation policy.
func (b *NotificationBus) Publish(ctx context.Context, ev Event) {
	for _, userID := range ev.Recipients {
		n := db.Notification{
			ID:                uuid.New().String(),
			UserID:            userID,
			Type:              ev.Kind,
			Title:             ev.Title,
			Message:           ev.Message,
			RelatedEntityType: ev.RelatedEntityType,
			RelatedEntityID:   ev.RelatedEntityID,
			ActionRequired:    ev.ActionRequired,
		}
		if err := b.store.CreateNotification(ctx, &n); err != nil {
			log.Printf("notify: failed to persist notification for %s: %v", userID, err)
			continue
		}

		b.mu.RLock()
		ch, ok := b.clients[userID]
		b.mu.RUnlock()
		if !ok {
			continue
		}
		if err := ch.Push(notificationFrame{Type: "new_notification", Notification: n}); err != nil {
			log.Printf("notify: live push failed for %s: %v", userID, err)
		}
	}
}

// PublishToSubscribers dispatches an incident update to every active
// CitizenSubscription on that incident whose preference flag matches the
// channel, via the corresponding Sender. Per spec §4.6, delivery is
// independent per channel and failures never propagate.
func (b *NotificationBus) PublishToSubscribers(ctx context.Context, incidentID string, msg Message) {
	subs, err := b.store.ListActiveSubscriptions(ctx, incidentID)
	if err != nil {
		log.Printf("notify: failed to list subscriptions for incident %s: %v", incidentID, err)
		return
	}
	for _, sub := range subs {
		if sub.Preferences.Push && sub.PushToken != "" && b.push != nil {
			if err := b.push.Send(ctx, sub.PushToken, msg); err != nil {
				log.Printf("notify: push delivery failed for subscription %s: %v", sub.ID, err)
			}
		}
		if sub.Preferences.Email && sub.Email != "" && b.email != nil {
			if err := b.email.Send(ctx, sub.Email, msg); err != nil {
				log.Printf("notify: email delivery failed for subscription %s: %v", sub.ID, err)
			}
		}
		if sub.Preferences.SMS && sub.Phone != "" && b.sms != nil {
			if err := b.sms.Send(ctx, sub.Phone, msg); err != nil {
				log.Printf("notify: sms delivery failed for subscription %s: %v", sub.ID, err)
			}
		}
	}
}
