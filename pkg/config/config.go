package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

type WhatsAppConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	BridgeURL string   `json:"bridgeUrl" yaml:"bridgeUrl"`
	AllowFrom []string `json:"allowFrom" yaml:"allowFrom"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Token     string   `json:"token" yaml:"token"`
	AllowFrom []string `json:"allowFrom" yaml:"allowFrom"`
}

type DiscordConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Token     string   `json:"token" yaml:"token"`
	AllowFrom []string `json:"allowFrom" yaml:"allowFrom"`
}

type SlackConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	BotToken  string   `json:"botToken" yaml:"botToken"`
	AppToken  string   `json:"appToken" yaml:"appToken"`
	AllowFrom []string `json:"allowFrom" yaml:"allowFrom"`
}

type OneBotConfig struct {
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	URL           string   `json:"url" yaml:"url"`
	AccessToken   string   `json:"accessToken" yaml:"accessToken"`
	GroupTrigger  string   `json:"groupTrigger" yaml:"groupTrigger"`
	AllowFrom     []string `json:"allowFrom" yaml:"allowFrom"`
}

type LineConfig struct {
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	ChannelSecret string   `json:"channelSecret" yaml:"channelSecret"`
	AccessToken   string   `json:"accessToken" yaml:"accessToken"`
	ListenAddr    string   `json:"listenAddr" yaml:"listenAddr"`
	AllowFrom     []string `json:"allowFrom" yaml:"allowFrom"`
}

type WeComConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	WebhookURL string   `json:"webhookUrl" yaml:"webhookUrl"`
	ListenAddr string   `json:"listenAddr" yaml:"listenAddr"`
	Token      string   `json:"token" yaml:"token"`
	AllowFrom  []string `json:"allowFrom" yaml:"allowFrom"`
}

type MaixCamConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Host      string   `json:"host" yaml:"host"`
	Port      int      `json:"port" yaml:"port"`
	AllowFrom []string `json:"allowFrom" yaml:"allowFrom"`
}

type FeishuConfig struct {
	Enabled           bool     `json:"enabled" yaml:"enabled"`
	AppID             string   `json:"appId" yaml:"appId"`
	AppSecret         string   `json:"appSecret" yaml:"appSecret"`
	EncryptKey        string   `json:"encryptKey" yaml:"encryptKey"`
	VerificationToken string   `json:"verificationToken" yaml:"verificationToken"`
	AllowFrom         []string `json:"allowFrom" yaml:"allowFrom"`
}

type DingTalkConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	ClientID  string   `json:"clientId" yaml:"clientId"`
	AppSecret string   `json:"appSecret" yaml:"appSecret"`
	RobotCode string   `json:"robotCode" yaml:"robotCode"`
	AllowFrom []string `json:"allowFrom" yaml:"allowFrom"`
}

type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp" yaml:"whatsapp"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Discord  DiscordConfig  `json:"discord" yaml:"discord"`
	Slack    SlackConfig    `json:"slack" yaml:"slack"`
	OneBot   OneBotConfig   `json:"onebot" yaml:"onebot"`
	Line     LineConfig     `json:"line" yaml:"line"`
	WeCom    WeComConfig    `json:"wecom" yaml:"wecom"`
	MaixCam  MaixCamConfig  `json:"maixcam" yaml:"maixcam"`
	Feishu   FeishuConfig   `json:"feishu" yaml:"feishu"`
	DingTalk DingTalkConfig `json:"dingtalk" yaml:"dingtalk"`
}

// AgentDefaults apply to every agent unless overridden in its entry.
type AgentDefaults struct {
	Workspace           string   `json:"workspace" yaml:"workspace"`
	Model               string   `json:"model" yaml:"model"`
	Fallbacks           []string `json:"fallbacks" yaml:"fallbacks"`
	MaxTokens           int      `json:"maxTokens" yaml:"maxTokens"`
	Temperature         float64  `json:"temperature" yaml:"temperature"`
	MaxToolIterations   int      `json:"maxToolIterations" yaml:"maxToolIterations"`
	RestrictToWorkspace bool     `json:"restrictToWorkspace" yaml:"restrictToWorkspace"`
}

// AgentEntry configures one named agent. Zero-valued fields inherit from
// the defaults.
type AgentEntry struct {
	ID                  string   `json:"id" yaml:"id"`
	Name                string   `json:"name" yaml:"name"`
	Workspace           string   `json:"workspace" yaml:"workspace"`
	Model               string   `json:"model" yaml:"model"`
	Fallbacks           []string `json:"fallbacks" yaml:"fallbacks"`
	MaxTokens           int      `json:"maxTokens" yaml:"maxTokens"`
	Temperature         float64  `json:"temperature" yaml:"temperature"`
	MaxToolIterations   int      `json:"maxToolIterations" yaml:"maxToolIterations"`
	RestrictToWorkspace bool     `json:"restrictToWorkspace" yaml:"restrictToWorkspace"`
	Subagents           []string `json:"subagents" yaml:"subagents"`
}

type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults" yaml:"defaults"`
	List     []AgentEntry  `json:"list" yaml:"list"`
}

type SessionConfig struct {
	HistoryLimit int `json:"historyLimit" yaml:"historyLimit"`
}

type ProviderConfig struct {
	APIKey  string `json:"apiKey" yaml:"apiKey"`
	APIBase string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
}

type ProvidersConfig struct {
	Anthropic  ProviderConfig `json:"anthropic" yaml:"anthropic"`
	OpenAI     ProviderConfig `json:"openai" yaml:"openai"`
	OpenRouter ProviderConfig `json:"openrouter" yaml:"openrouter"`
	DeepSeek   ProviderConfig `json:"deepseek" yaml:"deepseek"`
	Groq       ProviderConfig `json:"groq" yaml:"groq"`
	Zhipu      ProviderConfig `json:"zhipu" yaml:"zhipu"`
	VLLM       ProviderConfig `json:"vllm" yaml:"vllm"`
	Gemini     ProviderConfig `json:"gemini" yaml:"gemini"`
}

// ModelRoute aliases a model name to a provider/model pair, so agent model
// lists can reference short names.
type ModelRoute struct {
	Name     string `json:"name" yaml:"name"`
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
}

type GatewayConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

type WebSearchConfig struct {
	APIKey     string `json:"apiKey" yaml:"apiKey"`
	MaxResults int    `json:"maxResults" yaml:"maxResults"`
}

type WebToolsConfig struct {
	Search WebSearchConfig `json:"search" yaml:"search"`
}

type ExecToolConfig struct {
	Timeout             int  `json:"timeout" yaml:"timeout"`
	RestrictToWorkspace bool `json:"restrictToWorkspace" yaml:"restrictToWorkspace"`
}

type ToolsConfig struct {
	Web  WebToolsConfig `json:"web" yaml:"web"`
	Exec ExecToolConfig `json:"exec" yaml:"exec"`
}

type HeartbeatConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	IntervalSeconds int    `json:"intervalSeconds" yaml:"intervalSeconds"`
	Channel         string `json:"channel" yaml:"channel"`
	To              string `json:"to" yaml:"to"`
}

type DevicesConfig struct {
	Enabled     bool `json:"enabled" yaml:"enabled"`
	PollSeconds int  `json:"pollSeconds" yaml:"pollSeconds"`
}

type Config struct {
	Agents    AgentsConfig          `json:"agents" yaml:"agents"`
	Bindings  []models.AgentBinding `json:"bindings" yaml:"bindings"`
	Session   SessionConfig         `json:"session" yaml:"session"`
	Channels  ChannelsConfig        `json:"channels" yaml:"channels"`
	Providers ProvidersConfig       `json:"providers" yaml:"providers"`
	ModelList []ModelRoute          `json:"model_list" yaml:"model_list"`
	Gateway   GatewayConfig         `json:"gateway" yaml:"gateway"`
	Tools     ToolsConfig           `json:"tools" yaml:"tools"`
	Heartbeat HeartbeatConfig       `json:"heartbeat" yaml:"heartbeat"`
	Devices   DevicesConfig         `json:"devices" yaml:"devices"`
}

// ConfigDir returns the process-wide fixed path, ~/.tinyclaw.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tinyclaw"
	}
	return filepath.Join(home, ".tinyclaw")
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				Workspace:         filepath.Join(ConfigDir(), "workspace"),
				Model:             "anthropic/claude-sonnet-4-5",
				MaxTokens:         8192,
				Temperature:       0.7,
				MaxToolIterations: 20,
			},
		},
		Session: SessionConfig{HistoryLimit: 50},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{BridgeURL: "ws://localhost:3001"},
			MaixCam:  MaixCamConfig{Host: "0.0.0.0", Port: 18850},
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18790,
		},
		Tools: ToolsConfig{
			Web:  WebToolsConfig{Search: WebSearchConfig{MaxResults: 5}},
			Exec: ExecToolConfig{Timeout: 120},
		},
		Heartbeat: HeartbeatConfig{IntervalSeconds: 1800},
		Devices:   DevicesConfig{PollSeconds: 5},
	}
}

// LoadConfig reads the configuration from path, or searches
// ~/.tinyclaw/config.{yaml,yml,json} when path is empty. A missing file
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
			candidate := filepath.Join(ConfigDir(), name)
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			return DefaultConfig(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	return cfg, nil
}

// AgentEntries returns the configured agents with defaults applied. A bare
// config yields a single "default" agent.
func (c *Config) AgentEntries() []AgentEntry {
	d := c.Agents.Defaults
	entries := c.Agents.List
	if len(entries) == 0 {
		entries = []AgentEntry{{ID: "default"}}
	}

	out := make([]AgentEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		if e.Name == "" {
			e.Name = e.ID
		}
		if e.Workspace == "" {
			e.Workspace = d.Workspace
		}
		if e.Model == "" {
			e.Model = d.Model
		}
		if len(e.Fallbacks) == 0 {
			e.Fallbacks = d.Fallbacks
		}
		if e.MaxTokens == 0 {
			e.MaxTokens = d.MaxTokens
		}
		if e.Temperature == 0 {
			e.Temperature = d.Temperature
		}
		if e.MaxToolIterations == 0 {
			e.MaxToolIterations = d.MaxToolIterations
		}
		if !e.RestrictToWorkspace {
			e.RestrictToWorkspace = d.RestrictToWorkspace
		}
		out = append(out, e)
	}
	return out
}
