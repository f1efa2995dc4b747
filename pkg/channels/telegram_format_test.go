package channels

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestEscapeHTMLOnceIsIdempotent(t *testing.T) {
	inputs := []string{
		"a < b && c > d",
		"already &lt;escaped&gt; &amp; raw < mix",
		"plain text",
		"<pre>code</pre>",
	}
	for _, in := range inputs {
		once := escapeHTMLOnce(in)
		twice := escapeHTMLOnce(once)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestMarkdownToTelegramHTMLCodeBlock(t *testing.T) {
	out := markdownToTelegramHTML("before\n```go\nif a < b {\n}\n```\nafter")

	assert.Contains(t, out, "<pre>if a &lt; b {\n}\n</pre>")
	// The code content is escaped exactly once.
	assert.NotContains(t, out, "&amp;lt;")
}

func TestMarkdownToTelegramHTMLInlineCode(t *testing.T) {
	out := markdownToTelegramHTML("run `a > b` now")
	assert.Contains(t, out, "<code>a &gt; b</code>")
}

func TestMarkdownToTelegramHTMLStyles(t *testing.T) {
	out := markdownToTelegramHTML("**bold** and *ital* and [link](https://example.com)")

	assert.Contains(t, out, "<b>bold</b>")
	assert.Contains(t, out, "<i>ital</i>")
	assert.Contains(t, out, `<a href="https://example.com">link</a>`)
}

func TestMarkdownToTelegramHTMLHeading(t *testing.T) {
	out := markdownToTelegramHTML("# Title\nbody")
	assert.Contains(t, out, "<b>Title</b>")
}

func TestMarkdownToTelegramHTMLCodeNotStyled(t *testing.T) {
	// Markdown inside code spans must not be converted.
	out := markdownToTelegramHTML("`**not bold**`")
	assert.Contains(t, out, "<code>**not bold**</code>")
	assert.NotContains(t, out, "<b>")
}

func TestChunkText(t *testing.T) {
	assert.Equal(t, []string{"short"}, chunkText("short", 2000))

	long := ""
	for i := 0; i < 100; i++ {
		long += "0123456789012345678\n"
	}
	chunks := chunkText(long, 300)
	assert.Greater(t, len(chunks), 1)
	total := ""
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 300)
		total += c
	}
	assert.Equal(t, long, total)
}

func TestChunkTextKeepsRunesWhole(t *testing.T) {
	// No newlines, so the cut lands mid-text; it must back up to a rune
	// boundary instead of splitting a multi-byte character.
	long := strings.Repeat("é", 100) // 2 bytes each

	chunks := chunkText(long, 15)
	total := ""
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, len(c), 15)
		total += c
	}
	assert.Equal(t, long, total)
}
