package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// slackPoster is the slice of the Slack API the notifier uses. Tests
// substitute a fake.
type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier posts notifications to a Slack channel.
type SlackNotifier struct {
	client    slackPoster
	channelID string
}

// NewSlackNotifier creates a notifier for the given bot token and
// channel.
func NewSlackNotifier(botToken, channelID string) *SlackNotifier {
	return &SlackNotifier{
		client:    slack.New(botToken),
		channelID: channelID,
	}
}

// Notify posts the message to the configured channel.
func (s *SlackNotifier) Notify(ctx context.Context, eventType string, message string) error {
	if s.channelID == "" {
		return fmt.Errorf("slack channel is not configured")
	}
	text := fmt.Sprintf("[%s] %s", eventType, message)
	_, _, err := s.client.PostMessageContext(ctx, s.channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("failed to post slack message: %w", err)
	}
	return nil
}
