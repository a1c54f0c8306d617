// Package notify fans session events out to trainees. Delivery is
// fire-and-forget: a failed notification is logged and dropped, it
// never blocks or fails the operation that produced the event.
package notify

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/claude/repcoach/internal/events"
)

// Notifier delivers one rendered message.
type Notifier interface {
	Notify(text string) error
}

// LogNotifier writes notifications to the structured log. Used when no
// external channel is configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (n *LogNotifier) Notify(text string) error {
	n.Log.Info("notification", "text", text)
	return nil
}

// TelegramNotifier sends notifications to a Telegram chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier authenticates against the Bot API.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (n *TelegramNotifier) Notify(text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	_, err := n.bot.Send(msg)
	return err
}

// Dispatcher consumes the event bus and renders events for notifiers.
type Dispatcher struct {
	notifiers []Notifier
	log       *slog.Logger
	done      chan struct{}
}

func NewDispatcher(log *slog.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		log:       log,
		done:      make(chan struct{}),
	}
}

// Run consumes events until the channel closes. Call in a goroutine.
func (d *Dispatcher) Run(sub <-chan events.Event) {
	defer close(d.done)
	for e := range sub {
		text, ok := render(e)
		if !ok {
			continue
		}
		for _, n := range d.notifiers {
			if err := n.Notify(text); err != nil {
				d.log.Warn("notification delivery failed",
					"event", e.Type, "session_id", e.SessionID, "error", err)
			}
		}
	}
}

// Wait blocks until Run has drained its subscription.
func (d *Dispatcher) Wait() {
	<-d.done
}

// render maps an event to human-readable text. Events with no
// user-facing message report ok=false.
func render(e events.Event) (string, bool) {
	switch e.Type {
	case events.SessionAssigned:
		if d, ok := e.Payload["date"].(string); ok {
			return "New workout scheduled for " + d, true
		}
		return "New workout scheduled", true
	case events.SessionCompleted:
		if v, ok := e.Payload["totalVolumeKg"].(float64); ok {
			return fmt.Sprintf("Workout complete. Total volume %.1f kg", v), true
		}
		return "Workout complete", true
	case events.SessionCancelled:
		return "Workout cancelled", true
	case events.RestCountdown:
		return "Rest almost over, get ready", true
	case events.RestEnded:
		return "Rest over, next set", true
	default:
		return "", false
	}
}
