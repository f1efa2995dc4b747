package channels

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

// SlackChannel is the Slack adapter over Socket Mode, so no public webhook
// endpoint is needed.
type SlackChannel struct {
	BaseChannel
	Config *config.SlackConfig

	api    *slack.Client
	socket *socketmode.Client
	botID  string
	cancel context.CancelFunc
}

// NewSlackChannel creates a SlackChannel.
func NewSlackChannel(cfg *config.SlackConfig, messageBus *bus.MessageBus) *SlackChannel {
	return &SlackChannel{
		BaseChannel: NewBaseChannel("slack", messageBus, cfg.AllowFrom),
		Config:      cfg,
	}
}

func (c *SlackChannel) Start() error {
	if c.Config.BotToken == "" || c.Config.AppToken == "" {
		return fmt.Errorf("slack botToken and appToken must both be configured")
	}

	c.api = slack.New(c.Config.BotToken, slack.OptionAppLevelToken(c.Config.AppToken))

	auth, err := c.api.AuthTest()
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	c.botID = auth.UserID
	log.Printf("Slack bot authorized as %s", auth.User)

	c.socket = socketmode.New(c.api)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.setRunning(true)

	go func() {
		if err := c.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Slack socket mode stopped: %v", err)
		}
	}()
	go c.eventLoop(ctx)

	return nil
}

func (c *SlackChannel) Stop() error {
	c.setRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send posts to a channel, or into a thread when the chat id has the form
// "channel/thread_ts".
func (c *SlackChannel) Send(msg models.OutboundMessage) error {
	if c.api == nil {
		return fmt.Errorf("slack client not initialized")
	}

	channelID := msg.ChatID
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if channel, threadTS, ok := strings.Cut(msg.ChatID, "/"); ok {
		channelID = channel
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}

	_, _, err := c.api.PostMessageContext(context.Background(), channelID, opts...)
	return err
}

func (c *SlackChannel) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.socket.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			c.socket.Ack(*evt.Request)
			c.handleEvent(apiEvent)
		}
	}
}

func (c *SlackChannel) handleEvent(event slackevents.EventsAPIEvent) {
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.BotID != "" || ev.User == "" || ev.User == c.botID {
			return
		}
		if ev.SubType != "" {
			return
		}
		c.publish(ev.User, ev.Channel, ev.ThreadTimeStamp, ev.ChannelType, event.TeamID, ev.Text)
	case *slackevents.AppMentionEvent:
		if ev.User == "" || ev.User == c.botID {
			return
		}
		text := strings.TrimSpace(strings.ReplaceAll(ev.Text, fmt.Sprintf("<@%s>", c.botID), ""))
		c.publish(ev.User, ev.Channel, ev.ThreadTimeStamp, "channel", event.TeamID, text)
	}
}

func (c *SlackChannel) publish(userID, channelID, threadTS, channelType, teamID, text string) {
	if text == "" {
		return
	}

	chatID := channelID
	if threadTS != "" {
		chatID = channelID + "/" + threadTS
	}

	metadata := map[string]string{
		"peer_kind": "direct",
		"peer_id":   userID,
	}
	if channelType != "im" {
		metadata["peer_kind"] = "group"
		metadata["peer_id"] = channelID
	}
	if teamID != "" {
		metadata["team_id"] = teamID
	}

	c.HandleMessage(userID, chatID, text, nil, metadata)
}
