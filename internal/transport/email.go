package transport

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"alert-engine/internal/config"
	"alert-engine/internal/models"
)

// EmailSender delivers over SMTP.
type EmailSender struct {
	server   string
	port     int
	username string
	password string
}

// NewEmail builds the email channel adapter.
func NewEmail(cfg config.Config) *EmailSender {
	return &EmailSender{
		server:   cfg.Email.SMTPServer,
		port:     cfg.Email.SMTPPort,
		username: cfg.Email.Username,
		password: cfg.Email.Password,
	}
}

func (s *EmailSender) Channel() models.Channel { return models.ChannelEmail }

func (s *EmailSender) Send(_ context.Context, msg Message) error {
	to := msg.Recipient.Contact.Email
	if !strings.Contains(to, "@") {
		return Permanentf("recipient %s has no valid email address", msg.Recipient.ID)
	}
	if s.server == "" || s.port == 0 || s.username == "" || s.password == "" {
		return fmt.Errorf("missing Email configuration: SMTPServer, SMTPPort, Username, or Password is empty")
	}

	message := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s\r\n", to, msg.Alert.Title, Body(msg.Alert)))
	auth := smtp.PlainAuth("", s.username, s.password, s.server)
	addr := fmt.Sprintf("%s:%d", s.server, s.port)
	if err := smtp.SendMail(addr, auth, s.username, []string{to}, message); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
