package channels

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

// Channel is a transport adapter. Start and Stop must be safe to call once
// each; Send must be callable only while running.
type Channel interface {
	Name() string
	Start() error
	Stop() error
	Send(msg models.OutboundMessage) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}

// BaseChannel carries the pieces every adapter shares: the bus, the
// allowlist, and the running flag.
type BaseChannel struct {
	name      string
	Bus       *bus.MessageBus
	AllowFrom []string

	running atomic.Bool
}

// NewBaseChannel creates the shared channel state.
func NewBaseChannel(name string, messageBus *bus.MessageBus, allowFrom []string) BaseChannel {
	return BaseChannel{
		name:      name,
		Bus:       messageBus,
		AllowFrom: allowFrom,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) setRunning(v bool) {
	c.running.Store(v)
}

// IsAllowed checks the sender against the allowlist. An empty allowlist
// allows everyone. Compound sender ids of the form "id|username" match if
// either side matches; a leading "@" is stripped on both sides.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.AllowFrom) == 0 {
		return true
	}

	parts := strings.Split(senderID, "|")
	for _, allowed := range c.AllowFrom {
		allowed = strings.TrimPrefix(allowed, "@")
		if allowed == "" {
			continue
		}
		for _, part := range parts {
			if strings.TrimPrefix(part, "@") == allowed {
				return true
			}
		}
	}
	return false
}

// HandleMessage applies the allowlist and publishes the inbound message.
// Rejected senders are dropped silently.
func (c *BaseChannel) HandleMessage(senderID, chatID, content string, media []string, metadata map[string]string) {
	if !c.IsAllowed(senderID) {
		return
	}

	c.Bus.PublishInbound(models.InboundMessage{
		Channel:   c.name,
		SenderID:  senderID,
		ChatID:    chatID,
		Content:   content,
		Timestamp: time.Now(),
		Media:     media,
		Metadata:  metadata,
	})
}
