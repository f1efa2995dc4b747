package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

func newTestBus() *MessageBus {
	b := NewMessageBusWithCapacity(4)
	b.poll = 50 * time.Millisecond
	return b
}

func TestPublishConsumeInbound(t *testing.T) {
	b := newTestBus()
	defer b.Close()

	b.PublishInbound(models.InboundMessage{Channel: "telegram", SenderID: "u1", ChatID: "c1", Content: "hello"})

	msg, ok := b.ConsumeInbound()
	require.True(t, ok)
	assert.Equal(t, "telegram", msg.Channel)
	assert.Equal(t, "hello", msg.Content)
}

func TestConsumeOrderIsFIFO(t *testing.T) {
	b := newTestBus()
	defer b.Close()

	b.PublishOutbound(models.OutboundMessage{Channel: "cli", ChatID: "direct", Content: "first"})
	b.PublishOutbound(models.OutboundMessage{Channel: "cli", ChatID: "direct", Content: "second"})

	msg, ok := b.ConsumeOutbound()
	require.True(t, ok)
	assert.Equal(t, "first", msg.Content)

	msg, ok = b.ConsumeOutbound()
	require.True(t, ok)
	assert.Equal(t, "second", msg.Content)
}

func TestConsumeTimesOutWhenEmpty(t *testing.T) {
	b := newTestBus()
	defer b.Close()

	start := time.Now()
	_, ok := b.ConsumeInbound()
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	b := newTestBus()
	b.Close()
	require.True(t, b.Closed())

	// Must not block or panic.
	b.PublishInbound(models.InboundMessage{Content: "late"})
	b.PublishOutbound(models.OutboundMessage{Content: "late"})

	_, ok := b.ConsumeInbound()
	assert.False(t, ok)
}

func TestCloseIsIdempotent(t *testing.T) {
	b := newTestBus()
	b.Close()
	b.Close()
	assert.True(t, b.Closed())
}
