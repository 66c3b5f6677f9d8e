package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSMSSender delivers the SMS leg of subscriber notifications.
type TwilioSMSSender struct {
	client     *twilio.RestClient
	fromNumber string
}

func NewTwilioSMSSender(accountSID, authToken, fromNumber string) *TwilioSMSSender {
	if accountSID == "" || authToken == "" {
		log.Println("notify: twilio not configured, sms notifications disabled")
		return &TwilioSMSSender{}
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSMSSender{client: client, fromNumber: fromNumber}
}

func (s *TwilioSMSSender) Name() string { return "sms" }

func (s *TwilioSMSSender) Send(ctx context.Context, recipient string, msg Message) error {
	if s.client == nil {
		return nil
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(s.fromNumber)
	params.SetBody(fmt.Sprintf("%s: %s", msg.Title, msg.Body))

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	return nil
}
