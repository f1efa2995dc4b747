package memory

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLongTermRoundTrip(t *testing.T) {
	m := NewStore(t.TempDir())

	content, err := m.ReadLongTerm()
	require.NoError(t, err)
	assert.Empty(t, content)

	require.NoError(t, m.WriteLongTerm("remember the milk"))
	content, err = m.ReadLongTerm()
	require.NoError(t, err)
	assert.Equal(t, "remember the milk", content)
}

func TestAppendTodayCreatesDateHeader(t *testing.T) {
	m := NewStore(t.TempDir())

	require.NoError(t, m.AppendToday("first note"))
	content, err := m.ReadToday()
	require.NoError(t, err)
	assert.Contains(t, content, "# "+time.Now().Format("2006-01-02"))
	assert.Contains(t, content, "first note")

	// Subsequent appends do not repeat the header.
	require.NoError(t, m.AppendToday("second note"))
	content, err = m.ReadToday()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(content, "# "+time.Now().Format("2006-01-02")))
	assert.Contains(t, content, "second note")
}

func TestTodayFileLayout(t *testing.T) {
	workspace := t.TempDir()
	m := NewStore(workspace)

	now := time.Now()
	assert.Contains(t, m.TodayFile(), now.Format("200601"))
	assert.Contains(t, m.TodayFile(), now.Format("20060102")+".md")
}

func TestContext(t *testing.T) {
	m := NewStore(t.TempDir())
	assert.Empty(t, m.Context())

	require.NoError(t, m.WriteLongTerm("likes coffee"))
	ctx := m.Context()
	assert.Contains(t, ctx, "## Long-term Memory")
	assert.Contains(t, ctx, "likes coffee")
	assert.NotContains(t, ctx, "## Today's Notes")

	require.NoError(t, m.AppendToday("met at 9am"))
	ctx = m.Context()
	assert.Contains(t, ctx, "## Today's Notes")
	assert.Contains(t, ctx, "met at 9am")
}

func TestListNoteFilesNewestFirst(t *testing.T) {
	m := NewStore(t.TempDir())
	require.NoError(t, os.MkdirAll(m.MemoryDir+"/202501", 0755))
	require.NoError(t, os.WriteFile(m.MemoryDir+"/202501/20250101.md", []byte("a"), 0644))
	require.NoError(t, os.WriteFile(m.MemoryDir+"/202501/20250115.md", []byte("b"), 0644))

	files, err := m.ListNoteFiles()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Contains(t, files[0], "20250115.md")
	assert.Contains(t, files[1], "20250101.md")
}
