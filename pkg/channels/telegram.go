package channels

import (
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

// TelegramChannel is the Telegram adapter, long-polling for updates.
type TelegramChannel struct {
	BaseChannel
	Config *config.TelegramConfig
	bot    *tgbotapi.BotAPI
}

// NewTelegramChannel creates a TelegramChannel.
func NewTelegramChannel(cfg *config.TelegramConfig, messageBus *bus.MessageBus) *TelegramChannel {
	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", messageBus, cfg.AllowFrom),
		Config:      cfg,
	}
}

func (c *TelegramChannel) Start() error {
	if c.Config.Token == "" {
		return fmt.Errorf("telegram token not configured")
	}

	var err error
	c.bot, err = tgbotapi.NewBotAPI(c.Config.Token)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	log.Printf("Telegram bot authorized as @%s", c.bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)
	c.setRunning(true)

	go func() {
		for update := range updates {
			if !c.IsRunning() {
				break
			}
			if update.Message == nil {
				continue
			}
			c.handleUpdate(update)
		}
	}()

	return nil
}

func (c *TelegramChannel) Stop() error {
	c.setRunning(false)
	if c.bot != nil {
		c.bot.StopReceivingUpdates()
	}
	return nil
}

func (c *TelegramChannel) Send(msg models.OutboundMessage) error {
	if c.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q", msg.ChatID)
	}
	if msg.Content == "" {
		return nil
	}

	reply := tgbotapi.NewMessage(chatID, markdownToTelegramHTML(msg.Content))
	reply.ParseMode = tgbotapi.ModeHTML
	if _, err := c.bot.Send(reply); err != nil {
		// HTML can fail on odd markup; retry as plain text.
		plain := tgbotapi.NewMessage(chatID, msg.Content)
		_, err = c.bot.Send(plain)
		return err
	}
	return nil
}

func (c *TelegramChannel) handleUpdate(update tgbotapi.Update) {
	msg := update.Message

	senderID := strconv.FormatInt(msg.From.ID, 10)
	if msg.From.UserName != "" {
		senderID = fmt.Sprintf("%s|%s", senderID, msg.From.UserName)
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			reply := tgbotapi.NewMessage(msg.Chat.ID, "Hi! I'm tinyclaw. Send me a message and I'll respond.")
			c.bot.Send(reply)
			return
		case "help":
			reply := tgbotapi.NewMessage(msg.Chat.ID, "Send me a message and I'll respond.\n/new starts a fresh conversation.")
			c.bot.Send(reply)
			return
		}
	}

	content := msg.Text
	if msg.Caption != "" {
		content = msg.Caption
	}
	if msg.Photo != nil {
		content = "[Photo received] " + content
	} else if msg.Voice != nil {
		content = "[Voice received] " + content
	}
	if content == "" {
		return
	}

	metadata := map[string]string{
		"message_id": strconv.Itoa(msg.MessageID),
		"username":   msg.From.UserName,
		"first_name": msg.From.FirstName,
		"peer_kind":  "direct",
		"peer_id":    strconv.FormatInt(msg.From.ID, 10),
	}
	if msg.Chat.IsGroup() || msg.Chat.IsSuperGroup() {
		metadata["peer_kind"] = "group"
		metadata["peer_id"] = chatID
		metadata["chat_title"] = msg.Chat.Title
		// Prefix sender name so group context is visible to the agent.
		name := msg.From.FirstName
		if name == "" {
			name = msg.From.UserName
		}
		if name != "" {
			content = fmt.Sprintf("[%s]: %s", name, content)
		}
	}

	c.HandleMessage(senderID, chatID, content, nil, metadata)
}
