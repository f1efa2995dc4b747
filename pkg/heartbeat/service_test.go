package heartbeat

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoppedService(t *testing.T, workspace string) *Service {
	t.Helper()
	s := NewService(workspace, MinInterval, "telegram", "42", func(prompt, channel, chatID string) (string, error) {
		return "HEARTBEAT_OK", nil
	})
	return s
}

func TestIntervalIsClampedToMinimum(t *testing.T) {
	s := NewService(t.TempDir(), 10*time.Second, "", "", nil)
	assert.Equal(t, MinInterval, s.Interval)

	s = NewService(t.TempDir(), 20*time.Minute, "", "", nil)
	assert.Equal(t, 20*time.Minute, s.Interval)
}

func TestStartSeedsTemplate(t *testing.T) {
	workspace := t.TempDir()
	s := newStoppedService(t, workspace)
	require.NoError(t, s.Start())
	defer s.Stop()

	data, err := os.ReadFile(filepath.Join(workspace, "HEARTBEAT.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Heartbeat Tasks")

	// The seeded template is comment-only, so nothing is active yet.
	assert.False(t, s.HasActiveTasks())
}

func TestStartKeepsExistingFile(t *testing.T) {
	workspace := t.TempDir()
	existing := "check the build status\n"
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "HEARTBEAT.md"), []byte(existing), 0644))

	s := newStoppedService(t, workspace)
	require.NoError(t, s.Start())
	defer s.Stop()

	data, err := os.ReadFile(filepath.Join(workspace, "HEARTBEAT.md"))
	require.NoError(t, err)
	assert.Equal(t, existing, string(data))
	assert.True(t, s.HasActiveTasks())
}

func TestHasActiveTasksIgnoresCommentsAndBlanks(t *testing.T) {
	workspace := t.TempDir()
	s := newStoppedService(t, workspace)

	write := func(content string) {
		require.NoError(t, os.WriteFile(filepath.Join(workspace, "HEARTBEAT.md"), []byte(content), 0644))
	}

	write("")
	assert.False(t, s.HasActiveTasks())

	write("# heading only\n\n<!-- a comment -->\n")
	assert.False(t, s.HasActiveTasks())

	write("# heading\n\ndo the thing\n")
	assert.True(t, s.HasActiveTasks())

	// Missing file means no tasks.
	require.NoError(t, os.Remove(filepath.Join(workspace, "HEARTBEAT.md")))
	assert.False(t, s.HasActiveTasks())
}

func TestBeatSkipsHandlerWhenNoActiveTasks(t *testing.T) {
	workspace := t.TempDir()
	called := false
	s := NewService(workspace, MinInterval, "", "", func(prompt, channel, chatID string) (string, error) {
		called = true
		return "", nil
	})
	require.NoError(t, s.Start())
	defer s.Stop()

	s.beat()
	assert.False(t, called)
}

func TestBeatRunsHandlerAndLogs(t *testing.T) {
	workspace := t.TempDir()
	var gotPrompt, gotChannel, gotChatID string
	s := NewService(workspace, MinInterval, "telegram", "42", func(prompt, channel, chatID string) (string, error) {
		gotPrompt, gotChannel, gotChatID = prompt, channel, chatID
		return "HEARTBEAT_OK", nil
	})
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "HEARTBEAT.md"), []byte("ping the user\n"), 0644))
	require.NoError(t, s.Start())
	defer s.Stop()

	s.beat()
	assert.Contains(t, gotPrompt, "HEARTBEAT.md")
	assert.Contains(t, gotPrompt, "ping the user")
	assert.Equal(t, "telegram", gotChannel)
	assert.Equal(t, "42", gotChatID)

	data, err := os.ReadFile(filepath.Join(workspace, "heartbeat.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "ok")
}

func TestBeatFollowsLastSeenDestination(t *testing.T) {
	workspace := t.TempDir()
	var gotChannel, gotChatID string
	s := NewService(workspace, MinInterval, "telegram", "42", func(prompt, channel, chatID string) (string, error) {
		gotChannel, gotChatID = channel, chatID
		return "HEARTBEAT_OK", nil
	})
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "HEARTBEAT.md"), []byte("water the plants\n"), 0644))

	// Without any observed activity the configured destination is used.
	s.beat()
	assert.Equal(t, "telegram", gotChannel)
	assert.Equal(t, "42", gotChatID)

	s.SetLastDestination("discord", "chan-9")
	s.beat()
	assert.Equal(t, "discord", gotChannel)
	assert.Equal(t, "chan-9", gotChatID)

	// Partial destinations are ignored.
	s.SetLastDestination("", "77")
	s.beat()
	assert.Equal(t, "discord", gotChannel)
	assert.Equal(t, "chan-9", gotChatID)
}
