package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/rindwa/dispatch/authz"
	"github.com/rindwa/dispatch/db"
	"github.com/rindwa/dispatch/escalation"
	"github.com/rindwa/dispatch/incidents"
	"github.com/rindwa/dispatch/internal/config"
	"github.com/rindwa/dispatch/notify"
	"github.com/rindwa/dispatch/routing"
	"github.com/rindwa/dispatch/services"
	"github.com/rindwa/dispatch/subscriptions"
	transporthttp "github.com/rindwa/dispatch/transport/http"
	"github.com/rindwa/dispatch/transport/ws"
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

	var redisClient *redis.Client
	if config.App.RedisURL != "" {
		opt, err := redis.ParseURL(config.App.RedisURL)
		if err != nil {
			log.Fatalf("invalid redis url: %v", err)
		}
		redisClient = redis.NewClient(opt)
	}

	store := &db.PostgresStore{DB: pg}
	gate := authz.NewGate()
	jwtSvc := authz.NewJWTService(config.App.JWTSecret)
	authSvc := services.NewAuthService(store)

	re := routing.NewRoutingEngine(store,
		routing.NewGoogleMapsProvider(config.App.Routing.GoogleMapsAPIKey),
		routing.NewOSRMProvider(config.App.Routing.OSRMBaseURL),
		routing.NewMapboxProvider(config.App.Routing.MapboxAPIKey),
	).WithCache(redisClient)

	pushSender := notify.NewFCMSender(config.App.FirebaseCredentialsFile)
	emailSender := notify.NewSMTPEmailSender(config.App.Mail.SMTPHost, config.App.Mail.SMTPPort, config.App.Mail.Username, config.App.Mail.Password, config.App.Mail.From)
	smsSender := notify.NewTwilioSMSSender(config.App.SMS.TwilioAccountSID, config.App.SMS.TwilioAuthToken, config.App.SMS.TwilioFromNumber)
	bus := notify.NewNotificationBus(store, pushSender, emailSender, smsSender)

	incidentSvc := incidents.NewService(store, gate, re, bus)
	subs := subscriptions.NewRegistry(store)
	hub := ws.NewHub(jwtSvc, bus).WithCache(redisClient)

	scheduler := escalation.NewScheduler(store, incidentSvc, time.Duration(config.App.EscalationTickSeconds)*time.Second)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	scheduler.Start(ctx)

	server := transporthttp.NewServer(store, authSvc, incidentSvc, subs, gate, bus, hub, redisClient)
	router := server.NewRouter()

	addr := ":" + config.App.Port
	log.Printf("dispatch server listening on %s", addr)

	go func() {
		<-ctx.Done()
		scheduler.Stop()
	}()

	if err := router.Run(addr); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
