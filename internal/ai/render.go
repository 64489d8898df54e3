package ai

import (
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("div", "mark", "strong", "em")
	return p
}

// RenderReply turns a model reply into note content. Markdown replies are
// converted to HTML, the result is wrapped in a <div> when it is not
// already, and the markup is sanitized.
func RenderReply(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return ""
	}

	body := trimmed
	if !strings.HasPrefix(trimmed, "<") {
		body = strings.TrimSpace(string(markdownToHTML(trimmed)))
	}
	if !strings.HasPrefix(body, "<div>") {
		body = "<div>" + body + "</div>"
	}
	return policy.Sanitize(body)
}

func markdownToHTML(md string) []byte {
	extensions := parser.CommonExtensions | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(md))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})
	return markdown.Render(doc, renderer)
}
