// Package render turns side-channel payloads into the HTML fragments shown
// on the display panel.
package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"mastrogpt/internal/types"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))
	markdown  = goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy    = bluemonday.UGCPolicy()
)

// Render picks the first known key of payload (html, code, chess, message)
// and renders it. An empty string means there is nothing to show.
func Render(payload map[string]any) (string, error) {
	switch {
	case has(payload, "html"):
		return execute("html.html", template.HTML(text(payload["html"])))
	case has(payload, "code"):
		lang := text(payload["language"])
		if lang == "" {
			lang = "plain_text"
		}
		return execute("editor.html", struct{ Code, Language string }{text(payload["code"]), lang})
	case has(payload, "chess"):
		return Board(text(payload["chess"]))
	case has(payload, "message"):
		title := text(payload["title"])
		if title == "" {
			title = "Message"
		}
		return Message(title, text(payload["message"]))
	}
	return "", nil
}

// Message renders markdown under a heading. The markdown output is
// sanitised before it is embedded.
func Message(title, body string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(body), &buf); err != nil {
		return "", errors.Wrap(err, "converting markdown")
	}
	safe := template.HTML(policy.SanitizeBytes(buf.Bytes()))
	return execute("message.html", struct {
		Title string
		Body  template.HTML
	}{title, safe})
}

// Board renders a FEN position. An invalid position renders as a message.
func Board(fen string) (string, error) {
	b, err := ParseFEN(fen)
	if err != nil {
		return Message("Bad Chess Position", err.Error())
	}
	return execute("board.html", b)
}

// Events renders the calendar events table.
func Events(events []types.CalendarEvent) (string, error) {
	return execute("events.html", events)
}

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", errors.Wrapf(err, "rendering %s", name)
	}
	return buf.String(), nil
}

func has(payload map[string]any, key string) bool {
	_, ok := payload[key]
	return ok
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.RawMessage:
		var s string
		if json.Unmarshal(t, &s) == nil {
			return s
		}
		return strings.TrimSpace(string(t))
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
