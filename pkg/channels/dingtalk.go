package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	dingtalkoauth2 "github.com/alibabacloud-go/dingtalk/oauth2_1_0"
	dingtalkrobot "github.com/alibabacloud-go/dingtalk/robot_1_0"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/client"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/logger"

	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

// DingTalkChannel is the DingTalk adapter. Receiving uses the stream SDK
// (websocket), sending goes through the robot OpenAPI.
type DingTalkChannel struct {
	BaseChannel
	Config *config.DingTalkConfig

	streamClient *client.StreamClient
	robotClient  *dingtalkrobot.Client
	oauthClient  *dingtalkoauth2.Client

	tokenMu       sync.RWMutex
	accessToken   string
	tokenExpireAt time.Time
}

// NewDingTalkChannel creates a DingTalkChannel.
func NewDingTalkChannel(cfg *config.DingTalkConfig, messageBus *bus.MessageBus) *DingTalkChannel {
	return &DingTalkChannel{
		BaseChannel: NewBaseChannel("dingtalk", messageBus, cfg.AllowFrom),
		Config:      cfg,
	}
}

func (c *DingTalkChannel) Start() error {
	if c.Config.ClientID == "" || c.Config.AppSecret == "" {
		return fmt.Errorf("dingtalk clientId and appSecret must both be configured")
	}

	apiConfig := &openapi.Config{
		Protocol: tea.String("https"),
		RegionId: tea.String("central"),
	}

	robotClient, err := dingtalkrobot.NewClient(apiConfig)
	if err != nil {
		return fmt.Errorf("init dingtalk robot client: %w", err)
	}
	c.robotClient = robotClient

	oauthClient, err := dingtalkoauth2.NewClient(apiConfig)
	if err != nil {
		return fmt.Errorf("init dingtalk oauth client: %w", err)
	}
	c.oauthClient = oauthClient

	logger.SetLogger(logger.NewStdTestLogger())
	c.streamClient = client.NewStreamClient(client.WithAppCredential(client.NewAppCredentialConfig(c.Config.ClientID, c.Config.AppSecret)))
	c.streamClient.RegisterChatBotCallbackRouter(c.onChatReceive)

	c.setRunning(true)
	go func() {
		log.Println("DingTalk stream client starting")
		if err := c.streamClient.Start(context.Background()); err != nil {
			log.Printf("DingTalk stream client stopped: %v", err)
		}
	}()

	return nil
}

func (c *DingTalkChannel) Stop() error {
	c.setRunning(false)
	if c.streamClient != nil {
		c.streamClient.Close()
	}
	return nil
}

// getAccessToken returns a cached OpenAPI token, refreshing 60s before
// expiry.
func (c *DingTalkChannel) getAccessToken() (string, error) {
	c.tokenMu.RLock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpireAt) {
		defer c.tokenMu.RUnlock()
		return c.accessToken, nil
	}
	c.tokenMu.RUnlock()

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpireAt) {
		return c.accessToken, nil
	}

	req := &dingtalkoauth2.GetAccessTokenRequest{
		AppKey:    tea.String(c.Config.ClientID),
		AppSecret: tea.String(c.Config.AppSecret),
	}
	resp, err := c.oauthClient.GetAccessToken(req)
	if err != nil {
		return "", err
	}
	if resp.Body == nil || resp.Body.AccessToken == nil {
		return "", fmt.Errorf("dingtalk token response is empty")
	}

	c.accessToken = *resp.Body.AccessToken
	expireIn := *resp.Body.ExpireIn
	c.tokenExpireAt = time.Now().Add(time.Duration(expireIn-60) * time.Second)

	return c.accessToken, nil
}

func (c *DingTalkChannel) onChatReceive(ctx context.Context, data *chatbot.BotCallbackDataModel) ([]byte, error) {
	content := strings.TrimSpace(data.Text.Content)
	if content == "" {
		return nil, nil
	}

	senderID := data.SenderStaffId
	if senderID == "" {
		senderID = data.SenderId
	}
	if senderID == "" {
		return nil, nil
	}

	// conversationType "1" is a single chat, "2" a group; group replies go
	// back to the conversation, not the sender.
	chatID := senderID
	metadata := map[string]string{
		"sender_name": data.SenderNick,
		"peer_kind":   "direct",
		"peer_id":     senderID,
	}
	if data.ConversationType == "2" && data.ConversationId != "" {
		chatID = data.ConversationId
		metadata["peer_kind"] = "group"
		metadata["peer_id"] = data.ConversationId
		if data.SenderNick != "" {
			content = fmt.Sprintf("[%s]: %s", data.SenderNick, content)
		}
	}

	c.HandleMessage(senderID, chatID, content, nil, metadata)
	return nil, nil
}

type dingTalkSampleTextParam struct {
	Content string `json:"content"`
}

// Send posts a text message. Ids with the "cid" prefix are group
// conversations; everything else is sent one-to-one by staff id.
func (c *DingTalkChannel) Send(msg models.OutboundMessage) error {
	if msg.Content == "" {
		return nil
	}

	token, err := c.getAccessToken()
	if err != nil {
		return fmt.Errorf("dingtalk access token: %w", err)
	}

	if strings.HasPrefix(msg.ChatID, "cid") {
		return c.sendGroup(token, msg)
	}
	return c.sendOTO(token, msg)
}

func (c *DingTalkChannel) sendOTO(token string, msg models.OutboundMessage) error {
	headers := &dingtalkrobot.BatchSendOTOHeaders{
		XAcsDingtalkAccessToken: tea.String(token),
	}

	param, _ := json.Marshal(dingTalkSampleTextParam{Content: msg.Content})
	req := &dingtalkrobot.BatchSendOTORequest{
		RobotCode: tea.String(c.Config.RobotCode),
		UserIds:   []*string{tea.String(msg.ChatID)},
		MsgKey:    tea.String("sampleText"),
		MsgParam:  tea.String(string(param)),
	}

	_, err := c.robotClient.BatchSendOTOWithOptions(req, headers, &util.RuntimeOptions{})
	return err
}

func (c *DingTalkChannel) sendGroup(token string, msg models.OutboundMessage) error {
	headers := &dingtalkrobot.OrgGroupSendHeaders{
		XAcsDingtalkAccessToken: tea.String(token),
	}

	param, _ := json.Marshal(dingTalkSampleTextParam{Content: msg.Content})
	req := &dingtalkrobot.OrgGroupSendRequest{
		RobotCode:          tea.String(c.Config.RobotCode),
		OpenConversationId: tea.String(msg.ChatID),
		MsgKey:             tea.String("sampleText"),
		MsgParam:           tea.String(string(param)),
	}

	_, err := c.robotClient.OrgGroupSendWithOptions(req, headers, &util.RuntimeOptions{})
	return err
}
