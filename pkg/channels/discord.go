package channels

import (
	"fmt"
	"log"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

const discordMessageLimit = 2000

// DiscordChannel is the Discord adapter over the gateway websocket.
type DiscordChannel struct {
	BaseChannel
	Config  *config.DiscordConfig
	session *discordgo.Session
}

// NewDiscordChannel creates a DiscordChannel.
func NewDiscordChannel(cfg *config.DiscordConfig, messageBus *bus.MessageBus) *DiscordChannel {
	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", messageBus, cfg.AllowFrom),
		Config:      cfg,
	}
}

func (c *DiscordChannel) Start() error {
	if c.Config.Token == "" {
		return fmt.Errorf("discord token not configured")
	}

	session, err := discordgo.New("Bot " + c.Config.Token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	session.AddHandler(c.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	c.session = session
	c.setRunning(true)
	log.Printf("Discord bot connected as %s", session.State.User.Username)
	return nil
}

func (c *DiscordChannel) Stop() error {
	c.setRunning(false)
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *DiscordChannel) Send(msg models.OutboundMessage) error {
	if c.session == nil {
		return fmt.Errorf("discord session not initialized")
	}
	for _, chunk := range chunkText(msg.Content, discordMessageLimit) {
		if _, err := c.session.ChannelMessageSend(msg.ChatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *DiscordChannel) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	content := m.Content
	if content == "" {
		return
	}

	senderID := m.Author.ID
	if m.Author.Username != "" {
		senderID = fmt.Sprintf("%s|%s", m.Author.ID, m.Author.Username)
	}

	metadata := map[string]string{
		"username":  m.Author.Username,
		"peer_kind": "direct",
		"peer_id":   m.Author.ID,
	}
	if m.GuildID != "" {
		metadata["guild_id"] = m.GuildID
		metadata["peer_kind"] = "group"
		metadata["peer_id"] = m.ChannelID
		content = fmt.Sprintf("[%s]: %s", m.Author.Username, content)
	}

	c.HandleMessage(senderID, m.ChannelID, content, nil, metadata)
}

// chunkText splits text into pieces of at most limit bytes, preferring
// newline boundaries and never splitting inside a UTF-8 sequence.
func chunkText(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		for i := cut; i > limit/2; i-- {
			if text[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if len(text) > 0 {
		chunks = append(chunks, text)
	}
	return chunks
}
