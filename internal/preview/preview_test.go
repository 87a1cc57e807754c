package preview

import (
	"strings"
	"testing"
)

func TestEscapeTemplateLiteral(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"backslash", `a\b`, `a\\b`},
		{"backtick", "use `code`", "use \\`code\\`"},
		{"newline", "a\nb", `a\nb`},
		{"crlf", "a\r\nb", `a\r\nb`},
		{"tab", "a\tb", `a\tb`},
		{"html untouched", `<b>"x" & 'y'</b>`, `<b>"x" & 'y'</b>`},
		{"template expression untouched", "${x}", "${x}"},
		{"escaped backslash before backtick", "\\`", "\\\\\\`"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EscapeTemplateLiteral(tt.in); got != tt.want {
				t.Errorf("EscapeTemplateLiteral(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPage_EmbedsEscapedText(t *testing.T) {
	page := Page("# Title\n\nSome `code`")

	want := "marked.parse(`# Title\\n\\nSome \\`code\\``)"
	if !strings.Contains(page, want) {
		t.Errorf("Page() does not contain %q:\n%s", want, page)
	}
	if !strings.HasPrefix(page, "<!DOCTYPE html>") {
		t.Error("Page() should be a complete document")
	}
}

func TestLivePage_SubscribesToUpdates(t *testing.T) {
	page := LivePage("x", "/ws")
	if !strings.Contains(page, "'/ws'") {
		t.Error("LivePage() should connect to the given websocket path")
	}
	if !strings.Contains(page, "preview_update") {
		t.Error("LivePage() should handle preview_update messages")
	}
}

func TestRender(t *testing.T) {
	out, err := Render([]byte("# Title\n\n- [x] done\n\n~~gone~~\n"))
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	html := string(out)
	for _, want := range []string{`<h1 id="title">Title</h1>`, `type="checkbox"`, "<del>gone</del>"} {
		if !strings.Contains(html, want) {
			t.Errorf("Render() output missing %q:\n%s", want, html)
		}
	}
}

func TestRenderDocument_EscapesTitle(t *testing.T) {
	out, err := RenderDocument(`a<b> & "c"`, []byte("text"))
	if err != nil {
		t.Fatalf("RenderDocument() failed: %v", err)
	}
	if !strings.Contains(string(out), "<title>a&lt;b&gt; &amp; &#34;c&#34;</title>") {
		t.Errorf("title not escaped:\n%s", out)
	}
	if !strings.Contains(string(out), "<p>text</p>") {
		t.Errorf("body missing:\n%s", out)
	}
}
