// Package markdown renders model-written markdown, such as grading feedback
// and tutor replies, into sanitized HTML.
package markdown

import (
	"bytes"
	"html"
	"log/slog"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	converter = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
	)
	policy = bluemonday.UGCPolicy()
)

// HTML converts src to HTML and strips anything outside the user-content
// policy. If conversion fails the escaped source is returned.
func HTML(src string) string {
	var buf bytes.Buffer
	if err := converter.Convert([]byte(src), &buf); err != nil {
		slog.Warn("markdown conversion failed", "error", err)
		return html.EscapeString(src)
	}
	return policy.Sanitize(buf.String())
}
