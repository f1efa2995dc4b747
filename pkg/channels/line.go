package channels

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

const (
	linePushURL  = "https://api.line.me/v2/bot/message/push"
	lineReplyURL = "https://api.line.me/v2/bot/message/reply"

	// Reply tokens are single-use and expire quickly; past this age we go
	// straight to the push API.
	lineReplyTokenTTL = 50 * time.Second
)

type lineWebhookBody struct {
	Events []lineEvent `json:"events"`
}

type lineEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Message    struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
	Source struct {
		Type    string `json:"type"`
		UserID  string `json:"userId"`
		GroupID string `json:"groupId"`
		RoomID  string `json:"roomId"`
	} `json:"source"`
}

type lineReplyToken struct {
	token  string
	issued time.Time
}

// LineChannel receives LINE webhooks and replies through the reply API when a
// fresh reply token is on hand, falling back to the push API.
type LineChannel struct {
	BaseChannel
	Config *config.LineConfig

	server *http.Server
	client *http.Client

	mu          sync.Mutex
	replyTokens map[string]lineReplyToken
}

// NewLineChannel creates a LineChannel.
func NewLineChannel(cfg *config.LineConfig, messageBus *bus.MessageBus) *LineChannel {
	return &LineChannel{
		BaseChannel: NewBaseChannel("line", messageBus, cfg.AllowFrom),
		Config:      cfg,
		client:      &http.Client{Timeout: 30 * time.Second},
		replyTokens: make(map[string]lineReplyToken),
	}
}

func (c *LineChannel) Start() error {
	if c.Config.ChannelSecret == "" || c.Config.AccessToken == "" {
		return fmt.Errorf("line channelSecret and accessToken must both be configured")
	}

	addr := c.Config.ListenAddr
	if addr == "" {
		addr = "0.0.0.0:18791"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/line/webhook", c.handleWebhook)
	c.server = &http.Server{Addr: addr, Handler: mux}

	c.setRunning(true)
	go func() {
		log.Printf("LINE webhook listening on %s", addr)
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("LINE webhook server stopped: %v", err)
		}
	}()
	return nil
}

func (c *LineChannel) Stop() error {
	c.setRunning(false)
	if c.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return c.server.Shutdown(ctx)
	}
	return nil
}

func (c *LineChannel) Send(msg models.OutboundMessage) error {
	messages := []map[string]string{
		{"type": "text", "text": msg.Content},
	}

	if token, ok := c.takeReplyToken(msg.ChatID); ok {
		err := c.post(lineReplyURL, map[string]interface{}{
			"replyToken": token,
			"messages":   messages,
		})
		if err == nil {
			return nil
		}
		log.Printf("LINE reply failed, falling back to push: %v", err)
	}

	return c.post(linePushURL, map[string]interface{}{
		"to":       msg.ChatID,
		"messages": messages,
	})
}

func (c *LineChannel) post(url string, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Config.AccessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("line send failed: %s: %s", resp.Status, body)
	}
	return nil
}

// takeReplyToken removes and returns the chat's reply token if still fresh.
func (c *LineChannel) takeReplyToken(chatID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.replyTokens[chatID]
	if !ok {
		return "", false
	}
	delete(c.replyTokens, chatID)
	if time.Since(entry.issued) > lineReplyTokenTTL {
		return "", false
	}
	return entry.token, true
}

func (c *LineChannel) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !c.verifySignature(body, r.Header.Get("x-line-signature")) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var webhook lineWebhookBody
	if err := json.Unmarshal(body, &webhook); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	for _, event := range webhook.Events {
		if event.Type != "message" || event.Message.Type != "text" || event.Message.Text == "" {
			continue
		}
		c.handleEvent(event)
	}
}

func (c *LineChannel) handleEvent(event lineEvent) {
	senderID := event.Source.UserID
	chatID := senderID
	metadata := map[string]string{
		"peer_kind": "direct",
		"peer_id":   senderID,
	}
	switch event.Source.Type {
	case "group":
		chatID = event.Source.GroupID
		metadata["peer_kind"] = "group"
		metadata["peer_id"] = event.Source.GroupID
	case "room":
		chatID = event.Source.RoomID
		metadata["peer_kind"] = "group"
		metadata["peer_id"] = event.Source.RoomID
	}

	if event.ReplyToken != "" {
		c.mu.Lock()
		c.replyTokens[chatID] = lineReplyToken{token: event.ReplyToken, issued: time.Now()}
		c.mu.Unlock()
	}

	c.HandleMessage(senderID, chatID, event.Message.Text, nil, metadata)
}

// verifySignature checks the webhook HMAC-SHA256 signature.
func (c *LineChannel) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.Config.ChannelSecret))
	mac.Write(body)
	return hmac.Equal(decoded, mac.Sum(nil))
}
