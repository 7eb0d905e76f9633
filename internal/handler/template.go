package handler

import (
	"strings"
	"time"
)

// ForwardTemplate wraps a teacher message in the class-notice format
// before fan-out. Placeholders: {{SENDER}}, {{TIME}}, {{CONTENT}}.
// An empty template forwards the raw content unchanged.
type ForwardTemplate struct {
	raw string
}

func NewForwardTemplate(raw string) *ForwardTemplate {
	return &ForwardTemplate{raw: raw}
}

func (t *ForwardTemplate) Render(sender string, ts time.Time, content string) string {
	if t.raw == "" {
		return content
	}
	r := strings.NewReplacer(
		"{{SENDER}}", sender,
		"{{TIME}}", ts.Format("2006-01-02 15:04"),
		"{{CONTENT}}", content,
	)
	return r.Replace(t.raw)
}
