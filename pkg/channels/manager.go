package channels

import (
	"fmt"
	"log"
	"sync"

	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

// Manager owns the channel adapters and the outbound dispatcher.
type Manager struct {
	Bus *bus.MessageBus

	channels map[string]Channel
	order    []string

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewManager builds the adapters for every enabled channel in the config.
func NewManager(cfg *config.Config, messageBus *bus.MessageBus) *Manager {
	m := &Manager{
		Bus:      messageBus,
		channels: make(map[string]Channel),
		stopChan: make(chan struct{}),
	}

	ch := cfg.Channels
	if ch.Telegram.Enabled {
		m.Register(NewTelegramChannel(&ch.Telegram, messageBus))
	}
	if ch.Discord.Enabled {
		m.Register(NewDiscordChannel(&ch.Discord, messageBus))
	}
	if ch.Slack.Enabled {
		m.Register(NewSlackChannel(&ch.Slack, messageBus))
	}
	if ch.WhatsApp.Enabled {
		m.Register(NewWhatsAppChannel(&ch.WhatsApp, messageBus))
	}
	if ch.OneBot.Enabled {
		m.Register(NewOneBotChannel(&ch.OneBot, messageBus))
	}
	if ch.Line.Enabled {
		m.Register(NewLineChannel(&ch.Line, messageBus))
	}
	if ch.WeCom.Enabled {
		m.Register(NewWeComChannel(&ch.WeCom, messageBus))
	}
	if ch.MaixCam.Enabled {
		m.Register(NewMaixCamChannel(&ch.MaixCam, messageBus))
	}
	if ch.Feishu.Enabled {
		m.Register(NewFeishuChannel(&ch.Feishu, messageBus))
	}
	if ch.DingTalk.Enabled {
		m.Register(NewDingTalkChannel(&ch.DingTalk, messageBus))
	}

	return m
}

// Register adds a channel adapter.
func (m *Manager) Register(ch Channel) {
	if _, exists := m.channels[ch.Name()]; exists {
		return
	}
	m.channels[ch.Name()] = ch
	m.order = append(m.order, ch.Name())
}

// Get returns the named channel.
func (m *Manager) Get(name string) (Channel, bool) {
	ch, ok := m.channels[name]
	return ch, ok
}

// Names returns the registered channel names in registration order.
func (m *Manager) Names() []string {
	return append([]string(nil), m.order...)
}

// StartAll starts every channel sequentially. A failing channel is logged
// and skipped; the batch continues.
func (m *Manager) StartAll() {
	for _, name := range m.order {
		if err := m.channels[name].Start(); err != nil {
			log.Printf("Channel %s failed to start: %v", name, err)
		}
	}
}

// StopAll stops every channel sequentially, logging failures.
func (m *Manager) StopAll() {
	for _, name := range m.order {
		if err := m.channels[name].Stop(); err != nil {
			log.Printf("Channel %s failed to stop: %v", name, err)
		}
	}
}

// SendToChannel delivers an outbound message to the named channel. A no-op
// when the channel is absent or not running.
func (m *Manager) SendToChannel(name string, msg models.OutboundMessage) error {
	ch, ok := m.channels[name]
	if !ok || !ch.IsRunning() {
		return nil
	}
	if err := ch.Send(msg); err != nil {
		return fmt.Errorf("send via %s: %w", name, err)
	}
	return nil
}

// RunDispatcher drains the outbound queue, routing each message to its
// channel, until Stop or bus close.
func (m *Manager) RunDispatcher() {
	log.Println("Dispatcher started")
	for {
		select {
		case <-m.stopChan:
			log.Println("Dispatcher stopping")
			return
		default:
		}

		msg, ok := m.Bus.ConsumeOutbound()
		if !ok {
			if m.Bus.Closed() {
				log.Println("Dispatcher stopping: bus closed")
				return
			}
			continue
		}

		if err := m.SendToChannel(msg.Channel, msg); err != nil {
			log.Printf("Dispatch failed: %v", err)
		}
	}
}

// Stop halts the dispatcher loop.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}
