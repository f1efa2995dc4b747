package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkdispatcher "github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"

	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

// FeishuChannel is the Feishu/Lark adapter. Receiving uses the long
// connection (websocket) event stream, so no public callback URL is needed;
// sending uses the OpenAPI client with an interactive card.
type FeishuChannel struct {
	BaseChannel
	Config *config.FeishuConfig

	client   *lark.Client
	wsClient *larkws.Client
	cancel   context.CancelFunc
}

// NewFeishuChannel creates a FeishuChannel.
func NewFeishuChannel(cfg *config.FeishuConfig, messageBus *bus.MessageBus) *FeishuChannel {
	return &FeishuChannel{
		BaseChannel: NewBaseChannel("feishu", messageBus, cfg.AllowFrom),
		Config:      cfg,
	}
}

func (c *FeishuChannel) Start() error {
	if c.Config.AppID == "" || c.Config.AppSecret == "" {
		return fmt.Errorf("feishu appId and appSecret must both be configured")
	}

	c.client = lark.NewClient(c.Config.AppID, c.Config.AppSecret)

	handler := larkdispatcher.NewEventDispatcher(c.Config.VerificationToken, c.Config.EncryptKey).
		OnP2MessageReceiveV1(c.onMessageReceive)

	c.wsClient = larkws.NewClient(
		c.Config.AppID,
		c.Config.AppSecret,
		larkws.WithEventHandler(handler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.setRunning(true)

	go func() {
		log.Println("Feishu websocket client starting")
		if err := c.wsClient.Start(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Feishu websocket stopped: %v", err)
		}
	}()

	return nil
}

func (c *FeishuChannel) Stop() error {
	c.setRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *FeishuChannel) onMessageReceive(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
	if event.Event == nil || event.Event.Message == nil || event.Event.Message.Content == nil {
		return nil
	}

	content := extractFeishuText(*event.Event.Message.Content)
	if content == "" {
		return nil
	}

	var chatID string
	if event.Event.Message.ChatId != nil {
		chatID = *event.Event.Message.ChatId
	}
	var senderID string
	if event.Event.Sender != nil && event.Event.Sender.SenderId != nil && event.Event.Sender.SenderId.OpenId != nil {
		senderID = *event.Event.Sender.SenderId.OpenId
	}
	if chatID == "" || senderID == "" {
		return nil
	}

	metadata := map[string]string{
		"peer_kind": "direct",
		"peer_id":   senderID,
	}
	if event.Event.Message.ChatType != nil && *event.Event.Message.ChatType == "group" {
		metadata["peer_kind"] = "group"
		metadata["peer_id"] = chatID
	}

	c.HandleMessage(senderID, chatID, content, nil, metadata)
	return nil
}

// extractFeishuText pulls plain text out of the JSON-encoded message content.
func extractFeishuText(raw string) string {
	var text struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(raw), &text); err == nil && text.Text != "" {
		return text.Text
	}

	var generic map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &generic); err == nil {
		if _, ok := generic["content"]; ok {
			return fmt.Sprintf("[Rich Text] %s", raw)
		}
	}
	return raw
}

// Send delivers the reply as an interactive card. Chat ids with the "oc_"
// prefix are group chats; everything else is treated as a user open id.
func (c *FeishuChannel) Send(msg models.OutboundMessage) error {
	if c.client == nil {
		return fmt.Errorf("feishu client not initialized")
	}

	receiveIDType := larkim.ReceiveIdTypeOpenId
	if len(msg.ChatID) > 3 && msg.ChatID[:3] == "oc_" {
		receiveIDType = larkim.ReceiveIdTypeChatId
	}

	card := map[string]interface{}{
		"config": map[string]interface{}{
			"wide_screen_mode": true,
		},
		"elements": []interface{}{
			map[string]interface{}{
				"tag": "div",
				"text": map[string]interface{}{
					"tag":     "lark_md",
					"content": msg.Content,
				},
			},
		},
	}
	cardJSON, err := json.Marshal(card)
	if err != nil {
		return err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(msg.ChatID).
			MsgType(larkim.MsgTypeInteractive).
			Content(string(cardJSON)).
			Build()).
		Build()

	resp, err := c.client.Im.Message.Create(context.Background(), req)
	if err != nil {
		return err
	}
	if !resp.Success() {
		return fmt.Errorf("feishu send failed: %d %s", resp.Code, resp.Msg)
	}
	return nil
}
