package render

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"

	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	alertcallouts "github.com/zmtcreative/gm-alert-callouts"
)

// Renderer is a wrapper around the Goldmark markdown parser with pre-configured extensions
type Renderer struct {
	md goldmark.Markdown
}

//go:embed page.html
var pageTemplate string

// skippedFields are consumed by the preview shell rather than rendered.
var skippedFields = map[string]bool{
	"title": true,
	"theme": true,
}

func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			alertcallouts.AlertCallouts,
			extension.GFM,
			extension.Table,
			extension.Strikethrough,
			extension.TaskList,
			extension.Linkify,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Renderer{md: md}
}

// ConvertFragment parses markdown source and returns the HTML fragment.
// Raw HTML in the source is omitted.
func (r *Renderer) ConvertFragment(source []byte) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(source, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPayload turns a build data payload into a title and an HTML
// fragment. String fields are treated as markdown, everything else is
// shown as highlighted JSON.
func (r *Renderer) RenderPayload(payload map[string]any) (string, string, error) {
	source, err := PayloadMarkdown(payload)
	if err != nil {
		return "", "", err
	}
	fragment, err := r.ConvertFragment([]byte(source))
	if err != nil {
		return "", "", err
	}
	title, _ := payload["title"].(string)
	return title, fragment, nil
}

// PayloadMarkdown lays a payload out as a markdown document, fields in key
// order.
func PayloadMarkdown(payload map[string]any) (string, error) {
	var b strings.Builder

	if title, ok := payload["title"].(string); ok && title != "" {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		if !skippedFields[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(&b, "## %s\n\n", fieldHeading(k))

		switch v := payload[k].(type) {
		case string:
			b.WriteString(v)
			b.WriteString("\n\n")
		case nil:
			b.WriteString("_empty_\n\n")
		default:
			raw, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return "", fmt.Errorf("encode field %s: %w", k, err)
			}
			b.WriteString("```json\n")
			b.Write(raw)
			b.WriteString("\n```\n\n")
		}
	}

	return b.String(), nil
}

// RenderShell returns the preview page for a theme. Content arrives over
// the viewer websocket.
func (r *Renderer) RenderShell(build, theme string) string {
	page := strings.Replace(pageTemplate, "{{CONTENT}}", "", 1)
	page = strings.ReplaceAll(page, "{{BUILD}}", html.EscapeString(build))
	return strings.ReplaceAll(page, "{{THEME}}", html.EscapeString(theme))
}

func fieldHeading(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
