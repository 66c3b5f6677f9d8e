// Package subscriptions implements the SubscriptionRegistry of spec §4.7:
// per-incident citizen subscriptions that NotificationBus fans updates out
// to.
package subscriptions

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rindwa/dispatch/db"
)

// Registry serializes subscribe/unsubscribe per incident with a per-incident
// lock, matching the store's row-level transaction guarantee for incident
// mutations (spec §5). It is rebuildable from Store alone; it holds no
// state that the database doesn't also have.
type Registry struct {
	store db.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRegistry(store db.Store) *Registry {
	return &Registry{store: store, locks: make(map[string]*sync.Mutex)}
}

func (r *Registry) lockFor(incidentID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[incidentID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[incidentID] = l
	}
	return l
}

// Subscribe is idempotent per pushToken: re-subscribing the same token on
// the same incident returns the existing active subscription rather than
// creating a duplicate. Subscriptions that differ by contact/preferences
// may coexist.
func (r *Registry) Subscribe(ctx context.Context, incidentID string, req db.SubscribeRequest) (*db.CitizenSubscription, error) {
	lock := r.lockFor(incidentID)
	lock.Lock()
	defer lock.Unlock()

	if req.PushToken != "" {
		existing, err := r.store.FindSubscriptionByPushToken(ctx, incidentID, req.PushToken)
		if err != nil {
			return nil, fmt.Errorf("look up existing subscription: %w", err)
		}
		if existing != nil && existing.IsActive {
			return existing, nil
		}
	}

	sub := &db.CitizenSubscription{
		ID:          uuid.New().String(),
		IncidentID:  incidentID,
		PushToken:   req.PushToken,
		Email:       req.Email,
		Phone:       req.Phone,
		Preferences: req.NotificationPreferences,
		IsActive:    true,
	}
	if err := r.store.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return sub, nil
}

// Unsubscribe soft-deletes: it flips isActive rather than removing the row.
func (r *Registry) Unsubscribe(ctx context.Context, incidentID, subscriptionID string) error {
	lock := r.lockFor(incidentID)
	lock.Lock()
	defer lock.Unlock()

	return r.store.DeactivateSubscription(ctx, subscriptionID)
}

// Active returns the currently active subscriptions for an incident.
func (r *Registry) Active(ctx context.Context, incidentID string) ([]db.CitizenSubscription, error) {
	return r.store.ListActiveSubscriptions(ctx, incidentID)
}
