package notify

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/viper"
)

// Manager fans one notification out to every configured provider.
// Provider failures are logged and never propagate; notifications are
// best-effort.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a manager with the providers enabled by
// configuration.
func NewManager() *Manager {
	m := &Manager{}
	m.initSlack()
	return m
}

func (m *Manager) initSlack() {
	if !viper.GetBool("notifications.slack.enabled") {
		return
	}

	botToken := os.Getenv("SLACK_BOT_USER_TOKEN")
	if botToken == "" {
		slog.Warn("SLACK_BOT_USER_TOKEN not set, slack notifications disabled")
		return
	}

	channel := viper.GetString("notifications.slack.channel")
	m.Add(NewSlackNotifier(botToken, channel))
}

// Add registers an additional provider.
func (m *Manager) Add(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Notify sends the message to every provider.
func (m *Manager) Notify(ctx context.Context, eventType string, message string) error {
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, eventType, message); err != nil {
			slog.Warn("notification failed", "event", eventType, "error", err)
		}
	}
	return nil
}
