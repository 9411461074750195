package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"alert-engine/internal/config"
	"alert-engine/internal/logging"
	"alert-engine/internal/models"
	"alert-engine/internal/utils"
)

// PushSender delivers the push channel through the deployment's Telegram bot,
// to the chat id registered for the recipient. A shared rate limiter keeps
// the bot inside the API's message budget.
type PushSender struct {
	token   string
	limiter *rate.Limiter
	logger  *logging.Logger
}

// NewPush builds the push channel adapter.
func NewPush(cfg config.Config, logger *logging.Logger) *PushSender {
	return &PushSender{
		token:   cfg.Telegram.BotToken,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.Telegram.RatePerSecond)), cfg.Telegram.RatePerSecond),
		logger:  logger,
	}
}

func (s *PushSender) Channel() models.Channel { return models.ChannelPush }

func (s *PushSender) Send(ctx context.Context, msg Message) error {
	chatID := msg.Recipient.Contact.TelegramChatID
	if chatID == 0 {
		return Permanentf("recipient %s has no registered push chat id", msg.Recipient.ID)
	}
	if s.token == "" {
		return fmt.Errorf("missing push configuration: bot token is empty")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("push rate limit wait cancelled: %w", err)
	}

	text := fmt.Sprintf("*%s*\n%s", msg.Alert.Title, Body(msg.Alert))
	return utils.Retry(s.logger, "push send", 3, time.Second, func() error {
		b, err := bot.New(s.token)
		if err != nil {
			return fmt.Errorf("failed to initialize push bot: %w", err)
		}
		params := &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      text,
			ParseMode: "Markdown",
		}
		if _, err := b.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send push message to chat_id %d: %w", chatID, err)
		}
		return nil
	})
}
