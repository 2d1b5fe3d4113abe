package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"

	"github.com/alarmdeck/alarmdeck/internal/database"
	"github.com/alarmdeck/alarmdeck/internal/utils"
)

// Notifier delivers "member M should look at alarm A at level L" messages.
// Per-channel failures are the notification subsystem's problem; the core
// records them and moves on, without interface-level retries.
type Notifier interface {
	Notify(ctx context.Context, member database.TeamMember, alarm *database.Alarm, level int, channels []string) error
}

// LogNotifier writes notifications to the structured log. It stands in for
// the email/SMS/phone transports the core does not own, and is the notifier
// used in tests.
type LogNotifier struct{}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs the notification
func (n *LogNotifier) Notify(ctx context.Context, member database.TeamMember, alarm *database.Alarm, level int, channels []string) error {
	log.Info().
		Str("member", member.UserID).
		Str("alarm", alarm.UUID).
		Str("title", alarm.Title).
		Str("severity", string(alarm.Severity)).
		Int("level", level).
		Strs("channels", channels).
		Msg("notification dispatched")
	return nil
}

// SlackNotifier posts alarm notifications to Slack. It handles the "slack"
// channel and delegates everything else to a fallback notifier.
type SlackNotifier struct {
	client   *slack.Client
	channel  string
	fallback Notifier
}

// NewSlackNotifier creates a Slack-backed notifier posting to the given
// channel, with fallback handling non-Slack channels
func NewSlackNotifier(client *slack.Client, channel string, fallback Notifier) *SlackNotifier {
	return &SlackNotifier{client: client, channel: channel, fallback: fallback}
}

// Notify posts to Slack when "slack" is among the channels and the member
// or default channel is known; other channels go to the fallback
func (n *SlackNotifier) Notify(ctx context.Context, member database.TeamMember, alarm *database.Alarm, level int, channels []string) error {
	var rest []string
	wantSlack := false
	for _, ch := range channels {
		if ch == "slack" {
			wantSlack = true
		} else {
			rest = append(rest, ch)
		}
	}

	var firstErr error
	if wantSlack {
		if err := n.post(ctx, member, alarm, level); err != nil {
			firstErr = err
		}
	}
	if len(rest) > 0 && n.fallback != nil {
		if err := n.fallback.Notify(ctx, member, alarm, level, rest); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (n *SlackNotifier) post(ctx context.Context, member database.TeamMember, alarm *database.Alarm, level int) error {
	if n.client == nil {
		return fmt.Errorf("slack client not configured")
	}

	target := n.channel
	if member.SlackID != "" {
		target = member.SlackID
	}
	if target == "" {
		return fmt.Errorf("no slack destination for member %q", member.UserID)
	}

	text := fmt.Sprintf("%s *%s* [%s] escalation L%d\n%s",
		database.GetSeverityEmoji(alarm.Severity), alarm.Title, alarm.Severity,
		level, utils.TruncateText(alarm.Description, 500))
	if !alarm.FirstOccurredAt.IsZero() {
		text += fmt.Sprintf("\nactive for %s", utils.FormatDuration(time.Since(alarm.FirstOccurredAt)))
	}
	if alarm.Host != "" {
		text += fmt.Sprintf("\nhost: `%s`", alarm.Host)
	}
	if alarm.Service != "" {
		text += fmt.Sprintf("  service: `%s`", alarm.Service)
	}

	_, _, err := n.client.PostMessageContext(ctx, target,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("slack post to %q failed: %w", target, err)
	}
	return nil
}
