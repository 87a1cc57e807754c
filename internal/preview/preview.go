// Package preview turns editor markdown into HTML for display.
//
// Page embeds the raw text into a template that hands it to a client-side
// markdown library. The text is placed inside a JavaScript template literal,
// so only the characters that would break out of that literal are escaped.
// Other HTML-significant characters pass through untouched, which means a
// document containing "</script>" can inject markup into the page.
//
// Render is the server-side alternative used for static export.
package preview

import (
	"bytes"
	"fmt"
	stdhtml "html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

var templateLiteralReplacer = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	"\r", `\r`,
	"\n", `\n`,
	"\t", `\t`,
)

// EscapeTemplateLiteral escapes backslash, backtick, carriage return, line
// feed and tab. Nothing else is changed.
func EscapeTemplateLiteral(s string) string {
	return templateLiteralReplacer.Replace(s)
}

const pageHead = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Preview</title>
<script src="https://cdn.jsdelivr.net/npm/marked/marked.min.js"></script>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 1.5em; line-height: 1.5; }
pre, code { background: #f4f4f4; }
pre { padding: 0.75em; overflow-x: auto; }
</style>
</head>
<body>
<div id="content"></div>
<script>
`

const pageTail = `
</script>
</body>
</html>
`

// Page returns a standalone HTML document that renders markdown in the
// browser.
func Page(markdown string) string {
	var b strings.Builder
	b.WriteString(pageHead)
	b.WriteString("document.getElementById('content').innerHTML = marked.parse(`")
	b.WriteString(EscapeTemplateLiteral(markdown))
	b.WriteString("`);")
	b.WriteString(pageTail)
	return b.String()
}

// LivePage is Page plus a websocket subscription that re-renders on every
// preview_update message received from wsPath.
func LivePage(markdown, wsPath string) string {
	var b strings.Builder
	b.WriteString(pageHead)
	b.WriteString("const content = document.getElementById('content');\n")
	b.WriteString("content.innerHTML = marked.parse(`")
	b.WriteString(EscapeTemplateLiteral(markdown))
	b.WriteString("`);\n")
	fmt.Fprintf(&b, `const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '%s');
ws.onmessage = (ev) => {
  const msg = JSON.parse(ev.data);
  if (msg.type === 'preview_update') {
    content.innerHTML = marked.parse(msg.data.text);
  }
};`, EscapeTemplateLiteral(wsPath))
	b.WriteString(pageTail)
	return b.String()
}

var engine = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.TaskList),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// Render converts markdown to an HTML fragment.
func Render(markdown []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := engine.Convert(markdown, &buf); err != nil {
		return nil, fmt.Errorf("markdown render: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderDocument wraps Render's output in a minimal HTML document.
func RenderDocument(title string, markdown []byte) ([]byte, error) {
	body, err := Render(markdown)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	buf.WriteString(stdhtml.EscapeString(title))
	buf.WriteString("</title>\n</head>\n<body>\n")
	buf.Write(body)
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes(), nil
}
