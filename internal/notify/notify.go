// Package notify pushes proposal lifecycle events to reviewers so a
// pending proposal is seen before its TTL runs out.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// Notification describes one reviewer-facing event.
type Notification struct {
	Kind       string // e.g. "proposal.created", "proposal.applied"
	ProjectKey string
	ProposalID string
	Title      string
	Message    string
}

// Notifier sends reviewer notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// messenger abstracts the Slack API client for testing.
type messenger interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier posts notifications to a fixed Slack channel.
type SlackNotifier struct {
	api     messenger
	channel string
	logger  zerolog.Logger
}

func NewSlackNotifier(botToken, channel string, logger zerolog.Logger) *SlackNotifier {
	return &SlackNotifier{
		api:     slack.New(botToken),
		channel: channel,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

func (s *SlackNotifier) Notify(ctx context.Context, n Notification) error {
	fallback := fmt.Sprintf("%s [%s] %s", n.Title, n.ProjectKey, n.Message)
	_, _, err := s.api.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(fallback, false),
		slack.MsgOptionBlocks(buildBlocks(n)...),
	)
	if err != nil {
		return fmt.Errorf("failed to post slack notification: %w", err)
	}

	s.logger.Info().
		Str("kind", n.Kind).
		Str("project", n.ProjectKey).
		Str("channel", s.channel).
		Msg("notification sent")
	return nil
}

// buildBlocks renders a notification as Block Kit: a header, the message
// body, and a context line with project and proposal ids.
func buildBlocks(n Notification) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text", n.Title, false, false),
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", n.Message, false, false),
			nil, nil,
		),
	}

	meta := fmt.Sprintf("Project: `%s`", n.ProjectKey)
	if n.ProposalID != "" {
		meta += fmt.Sprintf(" · Proposal: `%s`", n.ProposalID)
	}
	blocks = append(blocks, slack.NewContextBlock("",
		slack.NewTextBlockObject("mrkdwn", meta, false, false),
	))
	return blocks
}

// LogNotifier writes notifications to the log only. Used when no Slack
// credentials are configured.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.logger.Info().
		Str("kind", n.Kind).
		Str("project", n.ProjectKey).
		Str("proposal_id", n.ProposalID).
		Str("title", n.Title).
		Msg(n.Message)
	return nil
}

// MultiNotifier fans out to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

func NewMultiNotifier(ns ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: ns}
}

func (m *MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Notify(ctx, n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
