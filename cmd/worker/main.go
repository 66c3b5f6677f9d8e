// cmd/worker runs the EscalationScheduler as its own deployable, separate
// from the HTTP/WS server, so escalation ticking can scale and deploy
// independently of request handling.
package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rindwa/dispatch/authz"
	"github.com/rindwa/dispatch/db"
	"github.com/rindwa/dispatch/escalation"
	"github.com/rindwa/dispatch/incidents"
	"github.com/rindwa/dispatch/internal/config"
	"github.com/rindwa/dispatch/notify"
	"github.com/rindwa/dispatch/routing"
)

func main() {
	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	pg, err := sql.Open("postgres", config.App.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer pg.Close()

	store := &db.PostgresStore{DB: pg}
	gate := authz.NewGate()

	re := routing.NewRoutingEngine(store,
		routing.NewGoogleMapsProvider(config.App.Routing.GoogleMapsAPIKey),
		routing.NewOSRMProvider(config.App.Routing.OSRMBaseURL),
		routing.NewMapboxProvider(config.App.Routing.MapboxAPIKey),
	)

	pushSender := notify.NewFCMSender(config.App.FirebaseCredentialsFile)
	emailSender := notify.NewSMTPEmailSender(config.App.Mail.SMTPHost, config.App.Mail.SMTPPort, config.App.Mail.Username, config.App.Mail.Password, config.App.Mail.From)
	smsSender := notify.NewTwilioSMSSender(config.App.SMS.TwilioAccountSID, config.App.SMS.TwilioAuthToken, config.App.SMS.TwilioFromNumber)
	bus := notify.NewNotificationBus(store, pushSender, emailSender, smsSender)

	incidentSvc := incidents.NewService(store, gate, re, bus)
	scheduler := escalation.NewScheduler(store, incidentSvc, time.Duration(config.App.EscalationTickSeconds)*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("dispatch worker started")
	scheduler.Start(ctx)

	<-ctx.Done()
	log.Println("dispatch worker shutting down")
	scheduler.Stop()
}
