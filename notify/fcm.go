package notify

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMSender delivers push notifications via Firebase Cloud Messaging. The
// client is built best-effort at construction: a missing credentials file
// or a failed init degrades to a no-op sender rather than failing startup.
type FCMSender struct {
	client *messaging.Client
}

func NewFCMSender(credentialsFile string) *FCMSender {
	if credentialsFile == "" {
		log.Println("notify: no firebase credentials configured, push notifications disabled")
		return &FCMSender{}
	}
	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		log.Printf("notify: firebase app not initialized: %v", err)
		return &FCMSender{}
	}
	client, err := app.Messaging(context.Background())
	if err != nil {
		log.Printf("notify: firebase messaging client not initialized: %v", err)
		return &FCMSender{}
	}
	return &FCMSender{client: client}
}

func (s *FCMSender) Name() string { return "fcm" }

func (s *FCMSender) Send(ctx context.Context, recipient string, msg Message) error {
	if s.client == nil {
		return nil
	}
	message := &messaging.Message{
		Token: recipient,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID:    "incident_updates",
				Priority:     messaging.PriorityHigh,
				DefaultSound: true,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{Title: msg.Title, Body: msg.Body},
					Sound: "default",
				},
			},
		},
	}
	if _, err := s.client.Send(ctx, message); err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}
