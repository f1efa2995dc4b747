package channels

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

const whatsappReconnectDelay = 5 * time.Second

// whatsappEvent is a frame from the bridge process.
type whatsappEvent struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
	IsGroup bool   `json:"is_group,omitempty"`
}

// whatsappCommand is a frame sent to the bridge process.
type whatsappCommand struct {
	Type    string `json:"type"`
	To      string `json:"to"`
	Content string `json:"content"`
}

// WhatsAppChannel talks to an external WhatsApp bridge over a websocket.
// The bridge owns the device session; this adapter only relays frames.
type WhatsAppChannel struct {
	BaseChannel
	Config *config.WhatsAppConfig

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWhatsAppChannel creates a WhatsAppChannel.
func NewWhatsAppChannel(cfg *config.WhatsAppConfig, messageBus *bus.MessageBus) *WhatsAppChannel {
	return &WhatsAppChannel{
		BaseChannel: NewBaseChannel("whatsapp", messageBus, cfg.AllowFrom),
		Config:      cfg,
	}
}

func (c *WhatsAppChannel) Start() error {
	if c.Config.BridgeURL == "" {
		return fmt.Errorf("whatsapp bridgeUrl not configured")
	}

	c.setRunning(true)
	go c.connectLoop()
	return nil
}

func (c *WhatsAppChannel) Stop() error {
	c.setRunning(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

func (c *WhatsAppChannel) Send(msg models.OutboundMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}

	return conn.WriteJSON(whatsappCommand{
		Type:    "send",
		To:      msg.ChatID,
		Content: msg.Content,
	})
}

// connectLoop keeps the bridge connection alive, reconnecting until Stop.
func (c *WhatsAppChannel) connectLoop() {
	for c.IsRunning() {
		conn, _, err := websocket.DefaultDialer.Dial(c.Config.BridgeURL, nil)
		if err != nil {
			log.Printf("WhatsApp bridge dial failed: %v, retrying in %s", err, whatsappReconnectDelay)
			time.Sleep(whatsappReconnectDelay)
			continue
		}
		log.Printf("WhatsApp bridge connected: %s", c.Config.BridgeURL)

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		c.readLoop(conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()

		if c.IsRunning() {
			time.Sleep(whatsappReconnectDelay)
		}
	}
}

func (c *WhatsAppChannel) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.IsRunning() {
				log.Printf("WhatsApp bridge read failed: %v", err)
			}
			return
		}

		var event whatsappEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("WhatsApp bridge sent invalid frame: %v", err)
			continue
		}
		if event.Type != "message" || event.Content == "" {
			continue
		}

		content := event.Content
		metadata := map[string]string{
			"peer_kind": "direct",
			"peer_id":   event.Sender,
		}
		if event.IsGroup {
			metadata["peer_kind"] = "group"
			metadata["peer_id"] = event.ChatID
			if event.Name != "" {
				content = fmt.Sprintf("[%s]: %s", event.Name, content)
			}
		}

		c.HandleMessage(event.Sender, event.ChatID, content, nil, metadata)
	}
}
