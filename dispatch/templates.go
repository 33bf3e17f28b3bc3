package dispatch

import "strings"

// HasPlaceholders reports whether a reply template carries generation
// markers ({{...}}) that the AI responder should fill.
func HasPlaceholders(template string) bool {
	open := strings.Index(template, "{{")
	if open < 0 {
		return false
	}
	return strings.Contains(template[open:], "}}")
}

// RenderStatic substitutes the sender placeholders a raw template supports
// without AI involvement. Unknown markers stay verbatim so the fallback
// text is never partially rewritten.
func RenderStatic(template string, senderName string) string {
	name := strings.TrimSpace(senderName)
	if name == "" {
		return template
	}
	replacer := strings.NewReplacer(
		"{{name}}", name,
		"{{sender_name}}", name,
	)
	return replacer.Replace(template)
}
