package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"alert-engine/internal/config"
	"alert-engine/internal/models"
)

// SMSSender delivers over Twilio SMS.
type SMSSender struct {
	client *twilio.RestClient
	from   string
}

// NewSMS builds the sms channel adapter from Twilio credentials.
func NewSMS(cfg config.Config) *SMSSender {
	return &SMSSender{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.Twilio.AccountSID,
			Password: cfg.Twilio.AuthToken,
		}),
		from: cfg.Twilio.FromNumber,
	}
}

func (s *SMSSender) Channel() models.Channel { return models.ChannelSMS }

func (s *SMSSender) Send(_ context.Context, msg Message) error {
	to := msg.Recipient.Contact.Phone
	if !strings.HasPrefix(to, "+") {
		return Permanentf("recipient %s has no valid phone number", msg.Recipient.ID)
	}
	body := Body(msg.Alert)
	params := &twilioApi.CreateMessageParams{
		To:   &to,
		From: &s.from,
		Body: &body,
	}
	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send SMS to %s: %w", to, err)
	}
	return nil
}

// WhatsAppSender delivers over the Twilio WhatsApp messaging API.
type WhatsAppSender struct {
	client *twilio.RestClient
	from   string
}

// NewWhatsApp builds the whatsapp channel adapter.
func NewWhatsApp(cfg config.Config) *WhatsAppSender {
	return &WhatsAppSender{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.Twilio.AccountSID,
			Password: cfg.Twilio.AuthToken,
		}),
		from: cfg.Twilio.WhatsAppFrom,
	}
}

func (s *WhatsAppSender) Channel() models.Channel { return models.ChannelWhatsApp }

func (s *WhatsAppSender) Send(_ context.Context, msg Message) error {
	phone := msg.Recipient.Contact.Phone
	if !strings.HasPrefix(phone, "+") {
		return Permanentf("recipient %s has no valid phone number", msg.Recipient.ID)
	}
	to := "whatsapp:" + phone
	from := "whatsapp:" + s.from
	body := Body(msg.Alert)
	params := &twilioApi.CreateMessageParams{
		To:   &to,
		From: &from,
		Body: &body,
	}
	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send WhatsApp message to %s: %w", phone, err)
	}
	return nil
}

// VoiceSender places a Twilio call that reads the alert out loud.
type VoiceSender struct {
	client *twilio.RestClient
	from   string
}

// NewVoice builds the voice channel adapter.
func NewVoice(cfg config.Config) *VoiceSender {
	return &VoiceSender{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.Twilio.AccountSID,
			Password: cfg.Twilio.AuthToken,
		}),
		from: cfg.Twilio.VoiceFrom,
	}
}

func (s *VoiceSender) Channel() models.Channel { return models.ChannelVoice }

func (s *VoiceSender) Send(_ context.Context, msg Message) error {
	to := msg.Recipient.Contact.Phone
	if !strings.HasPrefix(to, "+") {
		return Permanentf("recipient %s has no valid phone number", msg.Recipient.ID)
	}
	twiml := fmt.Sprintf("<Response><Say>%s. %s</Say></Response>",
		escapeXML(msg.Alert.Title), escapeXML(msg.Alert.Message))
	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetTwiml(twiml)
	if _, err := s.client.Api.CreateCall(params); err != nil {
		return fmt.Errorf("failed to place voice call to %s: %w", to, err)
	}
	return nil
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
