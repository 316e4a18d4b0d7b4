package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Telegram sends alerts to a single chat.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("📱 Telegram notifier initialized")

	return &Telegram{api: api, chatID: chatID}, nil
}

// NotifyTrade sends a trade execution alert.
func (t *Telegram) NotifyTrade(action, symbol, side string, price, size decimal.Decimal) {
	var emoji string
	switch action {
	case "OPEN":
		emoji = "✅"
	case "VENUE_CLOSED":
		emoji = "🛑"
	default:
		emoji = "📊"
	}

	msg := fmt.Sprintf(`%s *%s*

📊 %s %s
💵 Price: *%s*
📦 Size: *%s*`,
		emoji, action,
		symbol, side,
		price.StringFixed(2),
		size.StringFixed(4),
	)

	t.sendMarkdown(msg)
}

// NotifyText sends a plain status message.
func (t *Telegram) NotifyText(text string) {
	t.sendMarkdown(text)
}

func (t *Telegram) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.api.Send(msg); err != nil {
		log.Warn().Err(err).Msg("Telegram send failed")
	}
}
