package render

import (
	"bytes"
	"html/template"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

// Message bodies are treated as markdown. Raw HTML is dropped by goldmark's
// default renderer, so the page is safe to open from an untrusted export.
var markdown = goldmark.New(goldmark.WithRendererOptions(html.WithHardWraps()))

var pageTemplate = template.Must(template.New("chat").Parse(`<!DOCTYPE html>
<html lang="{{.Locale}}"{{if eq .Locale "he"}} dir="rtl"{{end}}>
<head>
<meta charset="utf-8">
<title>{{.Name}}</title>
<style>
body{font-family:system-ui,sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem;background:#f4f1ea}
.msg{background:#fff;border-radius:.5rem;padding:.5rem .75rem;margin:.5rem 0}
.meta{font-size:.8rem;color:#667}
.note{background:transparent;text-align:center;color:#667;font-style:italic}
.att{font-size:.85rem;color:#355}
</style>
</head>
<body>
<h1>{{.Name}}</h1>
<p class="meta">{{len .Messages}} messages{{if .Source}} from {{.Source}}{{end}}</p>
{{range .Messages}}{{if .Notification}}<div class="msg note">{{.Body}} <span class="meta">{{.Timestamp}}</span></div>
{{else}}<div class="msg"><div class="meta"><strong>{{.Sender}}</strong> {{.Timestamp}}</div>{{.Body}}{{if .Attachment}}<div class="att">&#128206; {{.Attachment}}{{if .Kind}} ({{.Kind}}){{end}}</div>{{end}}</div>
{{end}}{{end}}</body>
</html>
`))

type htmlPage struct {
	Name     string
	Locale   string
	Source   string
	Messages []htmlMessage
}

type htmlMessage struct {
	Sender       string
	Timestamp    string
	Notification bool
	Body         template.HTML
	Attachment   string
	Kind         string
}

// WriteHTML writes a standalone transcript page.
func WriteHTML(w io.Writer, exp *Export) error {
	page := htmlPage{
		Name:     exp.Name,
		Locale:   exp.Locale,
		Source:   exp.Source,
		Messages: make([]htmlMessage, 0, len(exp.Messages)),
	}
	for _, m := range exp.Messages {
		hm := htmlMessage{
			Sender:       m.Sender,
			Timestamp:    m.Timestamp.Format("2006-01-02 15:04"),
			Notification: m.IsNotification(),
			Body:         renderMarkdown(m.Text),
			Attachment:   m.AttachmentName(),
		}
		if a := exp.attachment(m); a != nil {
			hm.Kind = string(a.Kind)
		}
		page.Messages = append(page.Messages, hm)
	}
	return pageTemplate.Execute(w, page)
}

// renderMarkdown converts message text to HTML, falling back to escaped text.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}
