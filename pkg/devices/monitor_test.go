package devices

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
)

func TestDestinationFollowsLastSeen(t *testing.T) {
	m := NewMonitor(bus.NewMessageBus(), 5, "telegram", "42")

	channel, chatID := m.Destination()
	assert.Equal(t, "telegram", channel)
	assert.Equal(t, "42", chatID)

	m.SetLastDestination("slack", "C123")
	channel, chatID = m.Destination()
	assert.Equal(t, "slack", channel)
	assert.Equal(t, "C123", chatID)

	// Partial destinations are ignored.
	m.SetLastDestination("discord", "")
	channel, chatID = m.Destination()
	assert.Equal(t, "slack", channel)
	assert.Equal(t, "C123", chatID)
}

func TestPollIntervalFloor(t *testing.T) {
	m := NewMonitor(bus.NewMessageBus(), 0, "", "")
	assert.Equal(t, "5s", m.Interval.String())
}
