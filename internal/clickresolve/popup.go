package clickresolve

import (
	"html"
	"sort"
	"strings"

	"github.com/nstolbov/zuluview/internal/zulu"
)

// Popup bodies are built from remote content; every field name and value is
// HTML-escaped before display.

func fieldsHTML(fields []zulu.Field) string {
	var b strings.Builder
	b.WriteString("<table>")
	for _, f := range fields {
		writeRow(&b, f.UserName, f.Value)
	}
	b.WriteString("</table>")
	return b.String()
}

func attributesHTML(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("<table>")
	for _, k := range keys {
		writeRow(&b, k, attrs[k])
	}
	b.WriteString("</table>")
	return b.String()
}

func messageHTML(msg string) string {
	return "<p>" + html.EscapeString(msg) + "</p>"
}

func writeRow(b *strings.Builder, name, value string) {
	b.WriteString("<tr><td>")
	b.WriteString(html.EscapeString(name))
	b.WriteString("</td><td>")
	b.WriteString(html.EscapeString(value))
	b.WriteString("</td></tr>")
}
