// Package escalation implements the EscalationScheduler of spec §4.4: a
// periodic scan of active incidents that auto-escalates stalled ones.
package escalation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rindwa/dispatch/db"
	"github.com/rindwa/dispatch/incidents"
)

// activeWindow bounds the scan to incidents created within the last 24h,
// per §4.4.
const activeWindow = 24 * time.Hour

// Scheduler runs DefaultEscalationRules() against active incidents on a
// fixed tick, stoppable via a close-channel-then-wait-for-done handshake.
type Scheduler struct {
	Store    db.Store
	Incident *incidents.Service
	Interval time.Duration
	Rules    []db.EscalationRule

	stop chan struct{}
	done chan struct{}
}

func NewScheduler(store db.Store, svc *incidents.Service, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		Store:    store,
		Incident: svc,
		Interval: interval,
		Rules:    db.DefaultEscalationRules(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the tick loop until Stop is called. It does not block.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop signals the loop to exit and waits for the in-flight tick, if any,
// to finish cleanly before returning, per §4.4's cancellation contract.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-activeWindow)
	for _, status := range []db.IncidentStatus{db.StatusReported, db.StatusAssigned, db.StatusInProgress} {
		incidentsList, err := s.Store.ListIncidents(ctx, db.IncidentFilter{
			Status:       status,
			CreatedAfter: cutoff,
		})
		if err != nil {
			log.Printf("escalation: failed to list %s incidents: %v", status, err)
			continue
		}
		for i := range incidentsList {
			s.maybeEscalate(ctx, incidentsList[i].ID)
		}
	}
}

// maybeEscalate re-reads the incident before applying a rule, so that two
// incidents matched in the same tick (or a tick racing a manual escalation)
// never double-escalate.
func (s *Scheduler) maybeEscalate(ctx context.Context, incidentID string) {
	incident, err := s.Store.GetIncident(ctx, incidentID)
	if err != nil || incident == nil {
		return
	}

	rule, ok := s.matchRule(incident)
	if !ok {
		return
	}

	elapsed := time.Since(incident.Clock())
	if elapsed.Minutes() < float64(rule.ThresholdMinutes) {
		return
	}

	reason := fmt.Sprintf("Auto-escalated: %s for %.0f minutes (%s priority)",
		incident.Status, elapsed.Minutes(), incident.Priority)

	if _, err := s.Incident.AutoEscalate(ctx, incident, rule, reason); err != nil {
		log.Printf("escalation: auto-escalate failed for %s: %v", incidentID, err)
	}
}

func (s *Scheduler) matchRule(incident *db.Incident) (db.EscalationRule, bool) {
	for _, r := range s.Rules {
		if r.FromStatus == incident.Status && r.Priority == incident.Priority {
			return r, true
		}
	}
	return db.EscalationRule{}, false
}
