package devices

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

const usbRoot = "/dev/bus/usb"

// Monitor polls the USB device tree and publishes an inbound message when
// devices appear or disappear, so the agent can react to hardware changes.
type Monitor struct {
	Bus      *bus.MessageBus
	Interval time.Duration
	Channel  string
	ChatID   string

	mu          sync.Mutex
	lastChannel string
	lastChatID  string

	known    map[string]bool
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a device monitor that reports events to the given
// channel and chat.
func NewMonitor(messageBus *bus.MessageBus, pollSeconds int, channel, chatID string) *Monitor {
	if pollSeconds <= 0 {
		pollSeconds = 5
	}
	return &Monitor{
		Bus:      messageBus,
		Interval: time.Duration(pollSeconds) * time.Second,
		Channel:  channel,
		ChatID:   chatID,
		stopChan: make(chan struct{}),
	}
}

// Start snapshots the current device set and begins polling. The initial
// snapshot is not reported.
func (m *Monitor) Start() error {
	if _, err := os.Stat(usbRoot); err != nil {
		return fmt.Errorf("usb device tree unavailable: %w", err)
	}

	m.known = m.scan()
	go m.loop()
	log.Printf("Device monitor started (every %s)", m.Interval)
	return nil
}

// SetLastDestination records where the most recent conversation happened, so
// device events follow the user instead of a fixed target.
func (m *Monitor) SetLastDestination(channel, chatID string) {
	if channel == "" || chatID == "" {
		return
	}
	m.mu.Lock()
	m.lastChannel, m.lastChatID = channel, chatID
	m.mu.Unlock()
}

// Destination returns the last-seen destination, falling back to the
// configured channel and chat.
func (m *Monitor) Destination() (string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastChannel != "" && m.lastChatID != "" {
		return m.lastChannel, m.lastChatID
	}
	return m.Channel, m.ChatID
}

// Stop halts the poll loop.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *Monitor) poll() {
	current := m.scan()

	var added, removed []string
	for dev := range current {
		if !m.known[dev] {
			added = append(added, dev)
		}
	}
	for dev := range m.known {
		if !current[dev] {
			removed = append(removed, dev)
		}
	}
	m.known = current

	if len(added) == 0 && len(removed) == 0 {
		return
	}
	sort.Strings(added)
	sort.Strings(removed)

	var parts []string
	if len(added) > 0 {
		parts = append(parts, "connected: "+strings.Join(added, ", "))
	}
	if len(removed) > 0 {
		parts = append(parts, "disconnected: "+strings.Join(removed, ", "))
	}

	channel, chatID := m.Destination()
	m.Bus.PublishInbound(models.InboundMessage{
		Channel:   channel,
		SenderID:  "device-monitor",
		ChatID:    chatID,
		Content:   "[Device Event] " + strings.Join(parts, "; "),
		Timestamp: time.Now(),
	})
}

// scan lists the bus/device paths currently present under /dev/bus/usb.
func (m *Monitor) scan() map[string]bool {
	devices := make(map[string]bool)

	buses, err := os.ReadDir(usbRoot)
	if err != nil {
		return devices
	}
	for _, busDir := range buses {
		if !busDir.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(usbRoot, busDir.Name()))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			devices[busDir.Name()+"/"+entry.Name()] = true
		}
	}
	return devices
}
