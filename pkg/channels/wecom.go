package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

// WeComChannel sends through a WeCom group robot webhook. When listenAddr is
// set it also accepts inbound messages as JSON posts, guarded by the shared
// token.
type WeComChannel struct {
	BaseChannel
	Config *config.WeComConfig

	server *http.Server
	client *http.Client
}

type wecomInbound struct {
	Token   string `json:"token"`
	Sender  string `json:"sender"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

// NewWeComChannel creates a WeComChannel.
func NewWeComChannel(cfg *config.WeComConfig, messageBus *bus.MessageBus) *WeComChannel {
	return &WeComChannel{
		BaseChannel: NewBaseChannel("wecom", messageBus, cfg.AllowFrom),
		Config:      cfg,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *WeComChannel) Start() error {
	if c.Config.WebhookURL == "" {
		return fmt.Errorf("wecom webhookUrl not configured")
	}

	if c.Config.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/wecom/message", c.handleInbound)
		c.server = &http.Server{Addr: c.Config.ListenAddr, Handler: mux}
		go func() {
			log.Printf("WeCom inbound listening on %s", c.Config.ListenAddr)
			if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("WeCom inbound server stopped: %v", err)
			}
		}()
	}

	c.setRunning(true)
	return nil
}

func (c *WeComChannel) Stop() error {
	c.setRunning(false)
	if c.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return c.server.Shutdown(ctx)
	}
	return nil
}

func (c *WeComChannel) Send(msg models.OutboundMessage) error {
	payload := map[string]interface{}{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"content": msg.Content,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := c.client.Post(c.Config.WebhookURL, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("wecom webhook failed: %s: %s", resp.Status, body)
	}

	var result struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && result.ErrCode != 0 {
		return fmt.Errorf("wecom webhook error %d: %s", result.ErrCode, result.ErrMsg)
	}
	return nil
}

func (c *WeComChannel) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var inbound wecomInbound
	if err := json.NewDecoder(r.Body).Decode(&inbound); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if c.Config.Token != "" && inbound.Token != c.Config.Token {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if inbound.Content == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	chatID := inbound.ChatID
	if chatID == "" {
		chatID = "default"
	}
	c.HandleMessage(inbound.Sender, chatID, inbound.Content, nil, map[string]string{
		"peer_kind": "group",
		"peer_id":   chatID,
	})
	w.WriteHeader(http.StatusOK)
}
