// Package markdown renders conversation transcripts as markdown and HTML.
package markdown

import (
	"bytes"
	"html/template"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

// Raw HTML in the source is dropped, which matters because message content
// comes from users and providers.
var markdownEngine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Table,
		extension.Strikethrough,
		extension.TaskList,
		extension.Linkify,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
		htmlrenderer.WithXHTML(),
	),
)

var mermaidCodeRegex = regexp.MustCompile(`(?is)<pre><code class="language-mermaid">([\s\S]*?)</code></pre>`)

const documentStyle = `body { max-width: 780px; margin: 2em auto; padding: 0 1em; font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; line-height: 1.6; color: #24292f; }
      h1 { border-bottom: 1px solid #d0d7de; padding-bottom: .3em; }
      .message { margin: 1.5em 0; }
      .message h3 { font-size: .9em; text-transform: uppercase; letter-spacing: .04em; color: #57606a; }
      pre { background: #f6f8fa; padding: 1em; overflow: auto; border-radius: 6px; }
      code { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 90%; }
      table { border-collapse: collapse; } td, th { border: 1px solid #d0d7de; padding: .3em .6em; }`

// RenderContent converts markdown to an HTML fragment. On a conversion
// error the escaped source is returned.
func RenderContent(markdownText string) string {
	text := strings.TrimSpace(markdownText)
	if text == "" {
		return ""
	}
	var out bytes.Buffer
	if err := markdownEngine.Convert([]byte(text), &out); err != nil {
		return template.HTMLEscapeString(text)
	}
	return rewriteCodeBlocks(out.String())
}

type DocumentOptions struct {
	Title  string
	Info   string
	Footer string
	Lang   string
}

// RenderDocument wraps an HTML body in a standalone page.
func RenderDocument(body string, options DocumentOptions) string {
	var b strings.Builder
	b.Grow(len(body) + 2048)

	title := template.HTMLEscapeString(strings.TrimSpace(options.Title))
	if title == "" {
		title = "Conversation"
	}
	lang := options.Lang
	if lang == "" {
		lang = "en"
	}

	b.WriteString("<!DOCTYPE html>\n<html lang=\"")
	b.WriteString(template.HTMLEscapeString(lang))
	b.WriteString("\">\n")
	b.WriteString("  <head>\n")
	b.WriteString("    <meta charset=\"UTF-8\" />\n")
	b.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\" />\n")
	b.WriteString("    <meta name=\"referrer\" content=\"no-referrer\" />\n")
	b.WriteString("    <style>\n      ")
	b.WriteString(documentStyle)
	b.WriteString("\n    </style>\n")
	b.WriteString("    <title>")
	b.WriteString(title)
	b.WriteString("</title>\n")
	b.WriteString("  </head>\n\n")
	b.WriteString("  <body>\n")
	b.WriteString("    <h1>")
	b.WriteString(title)
	b.WriteString("</h1>\n")
	if info := strings.TrimSpace(options.Info); info != "" {
		b.WriteString("    <p style=\"opacity: 0.8;\">")
		b.WriteString(template.HTMLEscapeString(info))
		b.WriteString("</p>\n")
	}
	b.WriteString(body)
	b.WriteString("\n")
	if footer := strings.TrimSpace(options.Footer); footer != "" {
		b.WriteString("    <footer style=\"text-align: right; padding: 2em 0; font-size: 0.8em;\">")
		b.WriteString(template.HTMLEscapeString(footer))
		b.WriteString("</footer>\n")
	}
	b.WriteString("  </body>\n</html>")
	return b.String()
}

func rewriteCodeBlocks(html string) string {
	return mermaidCodeRegex.ReplaceAllString(html, `<pre class="mermaid">$1</pre>`)
}
