package channels

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

const onebotReconnectDelay = 5 * time.Second

// onebotEvent is a OneBot v11 event frame. Only message events are used.
type onebotEvent struct {
	PostType    string          `json:"post_type"`
	MessageType string          `json:"message_type"`
	UserID      int64           `json:"user_id"`
	GroupID     int64           `json:"group_id"`
	RawMessage  string          `json:"raw_message"`
	Sender      onebotSender    `json:"sender"`
	SelfID      int64           `json:"self_id"`
	Message     json.RawMessage `json:"message"`
}

type onebotSender struct {
	Nickname string `json:"nickname"`
	Card     string `json:"card"`
}

type onebotAction struct {
	Action string                 `json:"action"`
	Params map[string]interface{} `json:"params"`
}

// OneBotChannel connects to a OneBot v11 implementation (NapCat, Lagrange)
// over its websocket API. Chat ids are "private:<user>" or "group:<group>".
type OneBotChannel struct {
	BaseChannel
	Config *config.OneBotConfig

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewOneBotChannel creates a OneBotChannel.
func NewOneBotChannel(cfg *config.OneBotConfig, messageBus *bus.MessageBus) *OneBotChannel {
	return &OneBotChannel{
		BaseChannel: NewBaseChannel("onebot", messageBus, cfg.AllowFrom),
		Config:      cfg,
	}
}

func (c *OneBotChannel) Start() error {
	if c.Config.URL == "" {
		return fmt.Errorf("onebot url not configured")
	}

	c.setRunning(true)
	go c.connectLoop()
	return nil
}

func (c *OneBotChannel) Stop() error {
	c.setRunning(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

func (c *OneBotChannel) Send(msg models.OutboundMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("onebot not connected")
	}

	kind, id, ok := strings.Cut(msg.ChatID, ":")
	if !ok {
		return fmt.Errorf("invalid onebot chat id %q", msg.ChatID)
	}
	target, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid onebot chat id %q", msg.ChatID)
	}

	action := onebotAction{Params: map[string]interface{}{"message": msg.Content}}
	switch kind {
	case "group":
		action.Action = "send_group_msg"
		action.Params["group_id"] = target
	case "private":
		action.Action = "send_private_msg"
		action.Params["user_id"] = target
	default:
		return fmt.Errorf("invalid onebot chat id %q", msg.ChatID)
	}

	return conn.WriteJSON(action)
}

func (c *OneBotChannel) connectLoop() {
	header := http.Header{}
	if c.Config.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.Config.AccessToken)
	}

	for c.IsRunning() {
		conn, _, err := websocket.DefaultDialer.Dial(c.Config.URL, header)
		if err != nil {
			log.Printf("OneBot dial failed: %v, retrying in %s", err, onebotReconnectDelay)
			time.Sleep(onebotReconnectDelay)
			continue
		}
		log.Printf("OneBot connected: %s", c.Config.URL)

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
			time.Sleep(onebotReconnectDelay)
		}
	}
}

func (c *OneBotChannel) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.IsRunning() {
				log.Printf("OneBot read failed: %v", err)
			}
			return
		}

		var event onebotEvent
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		if event.PostType != "message" || event.RawMessage == "" {
			continue
		}
		c.handleEvent(event)
	}
}

func (c *OneBotChannel) handleEvent(event onebotEvent) {
	senderID := strconv.FormatInt(event.UserID, 10)
	content := event.RawMessage

	name := event.Sender.Card
	if name == "" {
		name = event.Sender.Nickname
	}

	metadata := map[string]string{
		"username":  event.Sender.Nickname,
		"peer_kind": "direct",
		"peer_id":   senderID,
	}

	var chatID string
	switch event.MessageType {
	case "group":
		// Groups only respond when the trigger prefix is present.
		trigger := c.Config.GroupTrigger
		if trigger != "" {
			if !strings.HasPrefix(content, trigger) {
				return
			}
			content = strings.TrimSpace(strings.TrimPrefix(content, trigger))
		}
		if content == "" {
			return
		}
		chatID = "group:" + strconv.FormatInt(event.GroupID, 10)
		metadata["peer_kind"] = "group"
		metadata["peer_id"] = strconv.FormatInt(event.GroupID, 10)
		if name != "" {
			content = fmt.Sprintf("[%s]: %s", name, content)
		}
	case "private":
		chatID = "private:" + senderID
	default:
		return
	}

	c.HandleMessage(senderID, chatID, content, nil, metadata)
}
