package channels

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	reCodeBlock  = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9_+-]*)\n?(.*?)```")
	reInlineCode = regexp.MustCompile("`([^`\n]+)`")
	reBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reItalic     = regexp.MustCompile(`(?m)(^|[^*])\*([^*\n]+)\*`)
	reMDLink     = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	reHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
)

// escapeHTMLOnce HTML-escapes text. Already-escaped entities are normalized
// first, so applying it twice yields the same result as applying it once.
func escapeHTMLOnce(s string) string {
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// markdownToTelegramHTML converts common markdown to Telegram's HTML parse
// mode. Code spans are extracted first so their content is escaped exactly
// once and never styled.
func markdownToTelegramHTML(text string) string {
	var blocks []string
	placeholder := func(i int) string { return fmt.Sprintf("\x00TCBLOCK%d\x00", i) }

	text = reCodeBlock.ReplaceAllStringFunc(text, func(m string) string {
		code := reCodeBlock.FindStringSubmatch(m)[1]
		blocks = append(blocks, "<pre>"+escapeHTMLOnce(code)+"</pre>")
		return placeholder(len(blocks) - 1)
	})
	text = reInlineCode.ReplaceAllStringFunc(text, func(m string) string {
		code := reInlineCode.FindStringSubmatch(m)[1]
		blocks = append(blocks, "<code>"+escapeHTMLOnce(code)+"</code>")
		return placeholder(len(blocks) - 1)
	})

	text = escapeHTMLOnce(text)

	text = reMDLink.ReplaceAllString(text, `<a href="$2">$1</a>`)
	text = reHeading.ReplaceAllString(text, "<b>$1</b>")
	text = reBold.ReplaceAllString(text, "<b>$1</b>")
	text = reItalic.ReplaceAllString(text, "$1<i>$2</i>")

	for i, block := range blocks {
		text = strings.Replace(text, placeholder(i), block, 1)
	}
	return text
}
